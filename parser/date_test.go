package parser

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseStrictDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		fail  bool
	}{
		{input: "20240315", want: day(2024, time.March, 15)},
		{input: "20240229", want: day(2024, time.February, 29)},
		{input: "19000101", want: day(1900, time.January, 1)},
		{input: "20230229", fail: true},
		{input: "31131900", fail: true},
		{input: "18991231", fail: true},
		{input: "21010101", fail: true},
		{input: "2024-03-15", fail: true},
		{input: "2024031", fail: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrictDate(tt.input)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		fail  bool
	}{
		{input: "2024-03-15", want: day(2024, time.March, 15)},
		{input: "2024-3-5", want: day(2024, time.March, 5)},
		{input: "20240315", want: day(2024, time.March, 15)},
		{input: "15/03/2024", want: day(2024, time.March, 15)},
		{input: "15-03-2024", want: day(2024, time.March, 15)},
		{input: "15.03.2024", want: day(2024, time.March, 15)},
		{input: "15/03/24", want: day(2024, time.March, 15)},
		{input: "03/15/2024", want: day(2024, time.March, 15)},
		{input: "04/03/2024", want: day(2024, time.March, 4)},
		{input: "2024-03-15T10:30:00", want: day(2024, time.March, 15)},
		{input: "15/03/2024 10:30", want: day(2024, time.March, 15)},
		{input: "31/02/2024", fail: true},
		{input: "15/03-2024", fail: true},
		{input: "13/13/2024", fail: true},
		{input: "yesterday", fail: true},
		{input: "", fail: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
