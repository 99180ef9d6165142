package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation over the whole config in one pass
// (the returned error lists every failing field), then checks that the
// encryption key variable is set when event-store encryption is enabled.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return NewValidationError("config", "", fmt.Errorf("%w: %v", ErrValidationFailed, err))
	}
	if cfg.EventStore.EncryptionEnabled {
		if _, ok := os.LookupEnv(cfg.EventStore.EncryptionKeyEnv); !ok {
			return NewValidationError("event_store", "encryption_key_env",
				fmt.Errorf("environment variable %q is not set", cfg.EventStore.EncryptionKeyEnv))
		}
	}
	return nil
}

// Stats summarizes the resolved configuration for startup logging, in the
// style of the teacher's Config.Stats() (pkg/config/config.go).
type Stats struct {
	CacheMaxSize           int
	EventStoreMaxTotal     int
	ScrapeAllowedDomains   int
	ScrapeAllowPrivateIPs  bool
	Transport              string
}

// Summary builds a Stats snapshot of cfg.
func (cfg *Config) Summary() Stats {
	return Stats{
		CacheMaxSize:          cfg.Cache.MaxSize,
		EventStoreMaxTotal:    cfg.EventStore.MaxTotalEvents,
		ScrapeAllowedDomains:  len(cfg.Scrape.AllowedDomains),
		ScrapeAllowPrivateIPs: cfg.Scrape.AllowPrivateIPs,
		Transport:             cfg.Server.Transport,
	}
}
