package ledger

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "negative tolerance", mutate: func(c *Config) { c.Tolerance = decimal.NewFromInt(-1) }, wantErr: "tolerance"},
		{name: "threshold above one", mutate: func(c *Config) { c.DuplicateThreshold = 1.5 }, wantErr: "duplicate_threshold"},
		{name: "warn above probable", mutate: func(c *Config) { c.DuplicateWarnThreshold = 0.9 }, wantErr: "duplicate_warn_threshold"},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }, wantErr: "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigContext(t *testing.T) {
	cfg := NewConfig()
	cfg.CheckChronology = true

	ctx := cfg.WithContext(context.Background())
	assert.True(t, ConfigFromContext(ctx).CheckChronology)
	assert.False(t, ConfigFromContext(context.Background()).CheckChronology)
}
