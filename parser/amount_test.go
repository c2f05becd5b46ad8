package parser

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		fail  bool
	}{
		{input: "1234.56", want: "1234.56"},
		{input: "1234,56", want: "1234.56"},
		{input: "1 234,56", want: "1234.56"},
		{input: "1 234,56", want: "1234.56"},
		{input: "1 234,56 €", want: "1234.56"},
		{input: "1.234,56", want: "1234.56"},
		{input: "1,234.56", want: "1234.56"},
		{input: "1,234,567", want: "1234567"},
		{input: "1,234", want: "1234"},
		{input: "1,5", want: "1.5"},
		{input: "1.234.567", want: "1234567"},
		{input: "(12,50)", want: "-12.5"},
		{input: "-12.50", want: "-12.5"},
		{input: "12.50-", want: "-12.5"},
		{input: "$ 1,000.00", want: "1000"},
		{input: "EUR 500,00", want: "500"},
		{input: "0,00", want: "0"},
		{input: "12abc", fail: true},
		{input: "1-2", fail: true},
		{input: "", fail: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmountEmpty(t *testing.T) {
	_, err := ParseAmount("   ")
	assert.IsError(t, err, ErrEmptyAmount)
}
