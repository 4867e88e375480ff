package escalateoverdue

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// DigestWindow bounds how far back the per-manager digest looks.
	DigestWindow time.Duration `mapstructure:"digest_window"`

	// SMSEnabled sends the digest summary over SNS as well, when the
	// manager has a phone number on record.
	SMSEnabled bool `mapstructure:"sms_enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 1,
		Timeout:       60 * time.Second,
		DigestWindow:  time.Hour,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.DigestWindow <= 0 {
		return fmt.Errorf("digest_window must be positive")
	}
	return nil
}
