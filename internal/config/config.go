// Package config loads and validates the process configuration from a
// TOML file. The loaded Config is immutable: it is resolved and
// validated once at startup, and provider misconfiguration is fatal
// there rather than surfacing per request.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Known extraction providers, in the only order configuration may
// reference them.
var knownExtractionProviders = map[string]bool{
	"azuredi":      true,
	"unstructured": true,
	"plaintext":    true,
}

// Config is the full process configuration.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Cache      CacheConfig      `toml:"cache"`
	Ingestion  IngestionConfig  `toml:"ingestion"`
	Extraction ExtractionConfig `toml:"extraction"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	LLM        LLMConfig        `toml:"llm"`
	Rerank     RerankConfig     `toml:"rerank"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`

	// ConnString is the Postgres connection string.
	ConnString string `toml:"conn_string"`
}

// CacheConfig configures the Redis turn cache.
type CacheConfig struct {
	// Enabled turns the cache on. Off, every session read is a
	// durable round trip.
	Enabled bool `toml:"enabled"`

	// Addr is the Redis address.
	Addr string `toml:"addr"`

	// Password is the Redis password, empty for none.
	Password string `toml:"password"`

	// SessionTTL bounds cached session projections.
	SessionTTL time.Duration `toml:"session_ttl"`
}

// IngestionConfig configures the worker pool and queue.
type IngestionConfig struct {
	// Workers is the ingestion worker pool size.
	Workers int `toml:"workers"`

	// VisibilityTimeout is how long an unacknowledged task stays
	// invisible before redelivery.
	VisibilityTimeout time.Duration `toml:"visibility_timeout"`

	// WindowSize is the fallback chunk window in characters.
	WindowSize int `toml:"window_size"`

	// WindowOverlap is the fallback window overlap in characters.
	WindowOverlap int `toml:"window_overlap"`
}

// ExtractionConfig configures the provider chain.
type ExtractionConfig struct {
	// Providers is the chain order. The set is closed: azuredi,
	// unstructured, plaintext.
	Providers []string `toml:"providers"`

	// MaxRetries is the per-provider retry count on transient
	// errors.
	MaxRetries int `toml:"max_retries"`

	// RatePerSecond throttles provider calls, 0 for unlimited.
	RatePerSecond float64 `toml:"rate_per_second"`

	// ExtractTables enables table detection where supported.
	ExtractTables bool `toml:"extract_tables"`

	// ExtractFigures enables figure detection where supported.
	ExtractFigures bool `toml:"extract_figures"`

	Azure        AzureConfig        `toml:"azure"`
	Unstructured UnstructuredConfig `toml:"unstructured"`
}

// AzureConfig configures the Azure Document Intelligence provider.
type AzureConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

// UnstructuredConfig configures the Unstructured partition provider.
type UnstructuredConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// ProviderConfig configures one embedding provider and the slot it
// writes to.
type ProviderConfig struct {
	// Provider is the provider identity ("openai", "voyage").
	Provider string `toml:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `toml:"api_key"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// Dimensions fixes the storage slot width.
	Dimensions int `toml:"dimensions"`
}

// EmbeddingConfig configures the embedding providers. Text is
// required; Media is the optional multimodal provider for image and
// table chunks.
type EmbeddingConfig struct {
	Text  ProviderConfig  `toml:"text"`
	Media *ProviderConfig `toml:"media"`

	// BatchSize is how many chunks go into one provider call.
	BatchSize int `toml:"batch_size"`
}

// LLMConfig configures the generation model used for rerank scoring
// fallback.
type LLMConfig struct {
	// APIKey authenticates against the provider.
	APIKey string `toml:"api_key"`

	// Model is the chat model name.
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// Temperature is the scoring temperature. It is only sent when
	// the model's capability descriptor accepts it.
	Temperature float64 `toml:"temperature"`

	// SupportsTemperature overrides the capability table when set.
	SupportsTemperature *bool `toml:"supports_temperature"`
}

// RerankConfig configures the dedicated rerank endpoint.
type RerankConfig struct {
	// Enabled turns the dedicated endpoint on. Off, the generation
	// model scores candidates instead.
	Enabled bool `toml:"enabled"`

	// APIKey authenticates against the rerank provider.
	APIKey string `toml:"api_key"`

	// Model is the rerank model name.
	Model string `toml:"model"`

	// TokenBudget bounds the candidate text handed to the model.
	TokenBudget int `toml:"token_budget"`
}

// RetrievalConfig configures the hybrid retrieval engine.
type RetrievalConfig struct {
	// MaxResults caps the final ranked list.
	MaxResults int `toml:"max_results"`

	// SignalLimit is the per-signal hit limit before fusion.
	SignalLimit int `toml:"signal_limit"`

	// ScoreFloor drops weak candidates.
	ScoreFloor float64 `toml:"score_floor"`

	// RelaxedScoreFloor is the one-step relaxation when nothing
	// clears ScoreFloor.
	RelaxedScoreFloor float64 `toml:"relaxed_score_floor"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: StorageMemory,
		},
		Cache: CacheConfig{
			Addr:       "localhost:6379",
			SessionTTL: 30 * time.Minute,
		},
		Ingestion: IngestionConfig{
			Workers:           4,
			VisibilityTimeout: 5 * time.Minute,
			WindowSize:        1200,
			WindowOverlap:     200,
		},
		Extraction: ExtractionConfig{
			Providers:     []string{"plaintext"},
			MaxRetries:    3,
			ExtractTables: true,
		},
		Embedding: EmbeddingConfig{
			Text: ProviderConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
			},
			BatchSize: 64,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.0,
		},
		Rerank: RerankConfig{
			Model:       "rerank-v3.5",
			TokenBudget: 6000,
		},
		Retrieval: RetrievalConfig{
			MaxResults:        10,
			SignalLimit:       30,
			ScoreFloor:        0.30,
			RelaxedScoreFloor: 0.15,
		},
	}
}

// Load reads the TOML file at path over the defaults and validates
// the result. A missing file yields the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal inconsistencies.
func (c *Config) Validate() error {
	if c.Storage.Driver != StoragePostgres && c.Storage.Driver != StorageMemory {
		return fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidProviderConfig, c.Storage.Driver)
	}
	if c.Storage.Driver == StoragePostgres && c.Storage.ConnString == "" {
		return fmt.Errorf("%w: postgres storage requires conn_string", domain.ErrInvalidProviderConfig)
	}

	if len(c.Extraction.Providers) == 0 {
		return fmt.Errorf("%w: at least one extraction provider is required", domain.ErrInvalidProviderConfig)
	}
	for _, name := range c.Extraction.Providers {
		if !knownExtractionProviders[name] {
			return fmt.Errorf("%w: unknown extraction provider %q", domain.ErrInvalidProviderConfig, name)
		}
		switch name {
		case "azuredi":
			if c.Extraction.Azure.Endpoint == "" || c.Extraction.Azure.APIKey == "" {
				return fmt.Errorf("%w: azuredi requires endpoint and api_key", domain.ErrInvalidProviderConfig)
			}
		case "unstructured":
			if c.Extraction.Unstructured.APIKey == "" {
				return fmt.Errorf("%w: unstructured requires api_key", domain.ErrInvalidProviderConfig)
			}
		}
	}

	if err := c.Embedding.Text.validate("embedding.text"); err != nil {
		return err
	}
	if c.Embedding.Media != nil {
		if err := c.Embedding.Media.validate("embedding.media"); err != nil {
			return err
		}
	}

	if c.Rerank.Enabled && c.Rerank.APIKey == "" {
		return fmt.Errorf("%w: rerank endpoint requires api_key", domain.ErrInvalidProviderConfig)
	}

	if c.Retrieval.RelaxedScoreFloor > c.Retrieval.ScoreFloor {
		return fmt.Errorf("%w: relaxed score floor %.2f above score floor %.2f",
			domain.ErrInvalidProviderConfig, c.Retrieval.RelaxedScoreFloor, c.Retrieval.ScoreFloor)
	}
	return nil
}

func (p *ProviderConfig) validate(section string) error {
	if p.Provider == "" {
		return fmt.Errorf("%w: %s requires a provider", domain.ErrInvalidProviderConfig, section)
	}
	if p.Dimensions <= 0 {
		return fmt.Errorf("%w: %s requires positive dimensions", domain.ErrInvalidProviderConfig, section)
	}
	return nil
}

// Slot returns the vector storage slot this provider writes to.
func (p *ProviderConfig) Slot() domain.SlotKey {
	return domain.SlotKey{Provider: p.Provider, Dimension: p.Dimensions}
}

// Slots returns every configured vector slot, for store provisioning.
func (c *Config) Slots() []domain.SlotKey {
	slots := []domain.SlotKey{c.Embedding.Text.Slot()}
	if c.Embedding.Media != nil {
		slots = append(slots, c.Embedding.Media.Slot())
	}
	return slots
}
