package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fusd/crypto"
	"fusd/native/synth"

	"github.com/BurntSushi/toml"
)

// Allocation seeds a token balance at first boot so local networks and tests
// have funded accounts to work with.
type Allocation struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress           string       `toml:"RPCAddress"`
	DataDir              string       `toml:"DataDir"`
	Env                  string       `toml:"Env"`
	LogFile              string       `toml:"LogFile"`
	LogMaxSizeMB         int          `toml:"LogMaxSizeMB"`
	LogMaxBackups        int          `toml:"LogMaxBackups"`
	OperatorKeystorePath string       `toml:"OperatorKeystorePath"`
	Engine               synth.Config `toml:"engine"`
	Allocations          []Allocation `toml:"allocation"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir(path)
	}
	cfg.Engine = cfg.Engine.Normalise()
	if len(cfg.Engine.Assets) == 0 {
		return nil, fmt.Errorf("config file %s configures no collateral assets", path)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress: "127.0.0.1:8645",
		DataDir:    defaultDataDir(path),
		Env:        "local",
		Engine: synth.Config{
			MaxQuoteAgeSeconds: 300,
			Assets: []synth.AssetConfig{
				{Symbol: "WETH", Decimals: 18, FeedURL: "http://127.0.0.1:8750/price"},
				{Symbol: "WBTC", Decimals: 18, FeedURL: "http://127.0.0.1:8751/price"},
			},
		},
	}
	cfg.Engine = cfg.Engine.Normalise()

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
		cfg.OperatorKeystorePath = keystorePath
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.keystore")
}

func defaultDataDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "data")
}
