package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratalob/lob/pkg/logging"
)

// AppConfig holds the full runtime configuration for the lobd daemon.
type AppConfig struct {
	Symbol  string        `yaml:"symbol"`
	Engine  EngineConfig  `yaml:"engine"`
	API     APIConfig     `yaml:"api"`
	Feed    FeedConfig    `yaml:"feed"`
	Bus     BusConfig     `yaml:"bus"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging logging.Config `yaml:"logging"`
}

// EngineConfig holds settings for the matching core. TickSize is
// validated by Validate but is not passed to the engine: book.New
// always uses its built-in tick size of 1e-8.
type EngineConfig struct {
	TickSize float64 `yaml:"tickSize"`
}

// APIConfig controls the JSON-RPC order-entry listener.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// FeedConfig controls the WebSocket market-data broadcaster.
type FeedConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	DepthLevels int    `yaml:"depthLevels"`
}

// BusConfig controls trade publication to NATS.
type BusConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Default returns a configuration usable without any file on disk.
func Default() AppConfig {
	return AppConfig{
		Symbol: "BOOK",
		Engine: EngineConfig{TickSize: 1e-8},
		API:    APIConfig{ListenAddr: ":8080"},
		Feed: FeedConfig{
			ListenAddr:  ":8081",
			DepthLevels: 10,
		},
		Bus: BusConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "lob.trades",
		},
		Metrics: MetricsConfig{ListenAddr: ":9090"},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads YAML configuration from path, starting from Default() so
// any field the file omits keeps its default value.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would put the engine or its
// collaborators in an inconsistent state.
func Validate(cfg AppConfig) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("config: symbol must not be empty")
	}
	if cfg.Engine.TickSize <= 0 {
		return fmt.Errorf("config: engine.tickSize must be positive")
	}
	if cfg.Feed.DepthLevels < 0 {
		return fmt.Errorf("config: feed.depthLevels must not be negative")
	}
	return nil
}
