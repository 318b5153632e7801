package synth

import (
	"strings"
	"time"
)

// AssetConfig pairs one allow-listed collateral asset with its price feed
// reference.
type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
	FeedURL  string `toml:"FeedURL"`
}

// Config controls the engine's oracle freshness window and the collateral
// allow-list consumed at construction.
type Config struct {
	MaxQuoteAgeSeconds int64         `toml:"MaxQuoteAgeSeconds"`
	Assets             []AssetConfig `toml:"assets"`
}

// Normalise applies defaults and canonical casing to the configuration values.
func (c Config) Normalise() Config {
	cfg := Config{
		MaxQuoteAgeSeconds: c.MaxQuoteAgeSeconds,
		Assets:             append([]AssetConfig{}, c.Assets...),
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 300
	}
	for i := range cfg.Assets {
		cfg.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Assets[i].Symbol))
		if cfg.Assets[i].Decimals == 0 {
			cfg.Assets[i].Decimals = 18
		}
		cfg.Assets[i].FeedURL = strings.TrimSpace(cfg.Assets[i].FeedURL)
	}
	return cfg
}

// MaxQuoteAge returns the configured freshness window as a duration.
func (c Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}
