// Package config loads and validates the research server's YAML
// configuration, grounded on the teacher's loader/validator/envexpand
// shape (pkg/config/loader.go, validator.go, envexpand.go).
package config

import "time"

// Config is the fully resolved, validated configuration for the server.
type Config struct {
	Cache       CacheConfig       `yaml:"cache" validate:"required"`
	EventStore  EventStoreConfig  `yaml:"event_store" validate:"required"`
	Scrape      ScrapeConfig      `yaml:"scrape" validate:"required"`
	Search      SearchConfig      `yaml:"search" validate:"required"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Server      ServerConfig      `yaml:"server" validate:"required"`
}

// CacheConfig configures pkg/cache (spec §4.1).
type CacheConfig struct {
	DefaultTTL       time.Duration `yaml:"default_ttl" validate:"required"`
	MaxSize          int           `yaml:"max_size" validate:"required,min=1"`
	EvictionFraction float64       `yaml:"eviction_fraction" validate:"gt=0,lte=1"`
	SweepInterval    time.Duration `yaml:"sweep_interval" validate:"required"`
	PersistenceRoot  string        `yaml:"persistence_root"`
	EagerLoad        bool          `yaml:"eager_load"`
	Strategy         string        `yaml:"strategy" validate:"omitempty,oneof=periodic write_through on_shutdown hybrid"`
	PersistInterval  time.Duration `yaml:"persist_interval"`
	CriticalNamespaces []string    `yaml:"critical_namespaces"`
}

// EventStoreConfig configures pkg/eventstore (spec §4.2).
type EventStoreConfig struct {
	MaxEventsPerStream int           `yaml:"max_events_per_stream" validate:"required,min=1"`
	MaxTotalEvents     int           `yaml:"max_total_events" validate:"required,min=1"`
	EventTTL           time.Duration `yaml:"event_ttl" validate:"required"`
	CriticalStreams    []string      `yaml:"critical_streams"`
	PersistenceRoot    string        `yaml:"persistence_root"`
	EncryptionEnabled  bool          `yaml:"encryption_enabled"`
	EncryptionKeyEnv   string        `yaml:"encryption_key_env" validate:"required_if=EncryptionEnabled true"`
	AccessControl      bool          `yaml:"access_control"`
}

// ScrapeConfig configures pkg/scrape (spec §4.3).
type ScrapeConfig struct {
	AllowedDomains    []string      `yaml:"allowed_domains"`
	AllowPrivateIPs   bool          `yaml:"allow_private_ips"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	MaxRedirects      int           `yaml:"max_redirects" validate:"omitempty,min=1,max=20"`
	TruncateBytes     int64         `yaml:"truncate_bytes"`
	MinContentChars   int           `yaml:"min_content_chars"`
	TranscriptMaxAttempts int       `yaml:"transcript_max_attempts" validate:"omitempty,min=1,max=10"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" validate:"omitempty,min=1"`
	CircuitResetTimeout time.Duration `yaml:"circuit_reset_timeout"`
}

// SearchConfig configures the external search API client (spec §4.4 search).
type SearchConfig struct {
	APIKeyEnv string        `yaml:"api_key_env" validate:"required"`
	CSEIDEnv  string        `yaml:"cse_id_env" validate:"required"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DedupConfig configures paragraph deduplication (spec §4.4).
type DedupConfig struct {
	MinParagraphLength  int     `yaml:"min_paragraph_length" validate:"omitempty,min=1"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"omitempty,gt=0,lte=1"`
}

// MetricsConfig configures the orchestrator's metrics registry (spec §4.4).
type MetricsConfig struct {
	ReservoirSize int `yaml:"reservoir_size" validate:"omitempty,min=1"`
}

// ServerConfig configures the MCP transport and admin HTTP surface
// (spec §6).
type ServerConfig struct {
	Transport string `yaml:"transport" validate:"required,oneof=stdio http"`
	HTTPAddr  string `yaml:"http_addr" validate:"required_if=Transport http"`
	AdminAddr string `yaml:"admin_addr"`
}
