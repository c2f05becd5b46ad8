package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the tunables of the validation engine. Zero durations
// disable the corresponding temporal check.
type Config struct {
	// Tolerance bounds |Σdebit − Σcredit| for an entry to be accepted.
	Tolerance decimal.Decimal `yaml:"tolerance"`

	// StaleAfter flags dates older than now minus this period.
	StaleAfter time.Duration `yaml:"stale_after"`
	// FutureGrace allows dates slightly after now without a warning.
	FutureGrace time.Duration `yaml:"future_grace"`

	DuplicateWindow        time.Duration `yaml:"duplicate_window"`
	DuplicateThreshold     float64       `yaml:"duplicate_threshold"`
	DuplicateWarnThreshold float64       `yaml:"duplicate_warn_threshold"`
	// IncludeDuplicates keeps probable duplicates in the accepted set.
	IncludeDuplicates bool `yaml:"include_duplicates"`

	CheckChronology bool `yaml:"check_chronology"`
	SkipEmptyRows   bool `yaml:"skip_empty_rows"`
	// Workers bounds the goroutines used for the structural layer.
	Workers int `yaml:"workers"`

	Now func() time.Time `yaml:"-"`
}

// NewConfig creates a Config with the default thresholds.
func NewConfig() *Config {
	return &Config{
		Tolerance:              DefaultTolerance,
		StaleAfter:             90 * 24 * time.Hour,
		DuplicateWindow:        7 * 24 * time.Hour,
		DuplicateThreshold:     0.8,
		DuplicateWarnThreshold: 0.5,
		CheckChronology:        false,
		SkipEmptyRows:          true,
		Workers:                4,
		Now:                    time.Now,
	}
}

// Validate checks the thresholds are coherent.
func (c *Config) Validate() error {
	if c.Tolerance.IsNegative() {
		return fmt.Errorf("tolerance must not be negative, got %s", c.Tolerance)
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate_threshold must be within [0,1], got %g", c.DuplicateThreshold)
	}
	if c.DuplicateWarnThreshold < 0 || c.DuplicateWarnThreshold > c.DuplicateThreshold {
		return fmt.Errorf("duplicate_warn_threshold must be within [0,%g], got %g", c.DuplicateThreshold, c.DuplicateWarnThreshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

func (c *Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// contextKey is a private type to avoid key collisions in context.
type contextKey struct{}

// WithContext returns a new context with the Config attached.
func (c *Config) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ConfigFromContext retrieves the Config from context.
// Returns a default Config if not found.
func ConfigFromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(contextKey{}).(*Config); ok {
		return cfg
	}
	return NewConfig()
}
