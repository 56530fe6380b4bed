package kitecmd

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// Backing selects the durable store: "sqlite" (default) or "leveldb".
	Backing string `toml:"backing"`
	DBPath  string `toml:"db"`

	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		Backing:        "sqlite",
		DBPath:         "kite.db",
		TimeoutSeconds: 15,
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("config %s: endpoint is required", path)
	}
	return &cfg, nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
