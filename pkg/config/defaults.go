package config

import "time"

// Default returns a Config populated with every default value named in
// spec.md, suitable as the mergo.Merge base that a user's YAML overrides.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			DefaultTTL:       5 * time.Minute,
			MaxSize:          10000,
			EvictionFraction: 0.20,
			SweepInterval:    time.Minute,
			Strategy:         "on_shutdown",
		},
		EventStore: EventStoreConfig{
			MaxEventsPerStream: 1000,
			MaxTotalEvents:     100_000,
			EventTTL:           24 * time.Hour,
		},
		Scrape: ScrapeConfig{
			RequestTimeout:          30 * time.Second,
			NavigationTimeout:       60 * time.Second,
			MaxRedirects:            5,
			TruncateBytes:           200_000,
			MinContentChars:         200,
			TranscriptMaxAttempts:   3,
			CircuitFailureThreshold: 5,
			CircuitResetTimeout:     30 * time.Second,
		},
		Search: SearchConfig{
			APIKeyEnv: "GOOGLE_SEARCH_API_KEY",
			CSEIDEnv:  "GOOGLE_SEARCH_CSE_ID",
			Timeout:   15 * time.Second,
		},
		Dedup: DedupConfig{
			MinParagraphLength:  50,
			SimilarityThreshold: 0.8,
		},
		Metrics: MetricsConfig{
			ReservoirSize: 1000,
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
	}
}
