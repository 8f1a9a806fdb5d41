package scanner

import (
	"time"

	"kasirinaja/checkout/internal/errs"
)

type Config struct {
	MinLength int
	// IdleTimeout ends a burst after this much silence. Zero disables the
	// idle timer, leaving terminator keys as the only way to emit.
	IdleTimeout time.Duration
	// Cooldown suppresses a repeat of the same barcode within the window.
	Cooldown time.Duration
	Enabled  bool
}

func DefaultConfig() Config {
	return Config{
		MinLength:   6,
		IdleTimeout: 200 * time.Millisecond,
		Cooldown:    1500 * time.Millisecond,
		Enabled:     true,
	}
}

func (c Config) Validate() error {
	if c.MinLength < 1 {
		return errs.Mark(errs.Newf("scanner min length must be at least 1, got %d", c.MinLength), errs.ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return errs.Mark(errs.Newf("scanner idle timeout must not be negative, got %s", c.IdleTimeout), errs.ErrInvalidConfig)
	}
	if c.Cooldown < 0 {
		return errs.Mark(errs.Newf("scanner cooldown must not be negative, got %s", c.Cooldown), errs.ErrInvalidConfig)
	}
	return nil
}
