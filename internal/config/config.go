package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Provider string        `mapstructure:"provider"`
	Resolve  ResolveConfig `mapstructure:"resolve"`
	Storage  StorageConfig `mapstructure:"storage"`
	Server   ServerConfig  `mapstructure:"server"`
}

type ResolveConfig struct {
	MaxIterations int  `mapstructure:"max_iterations"`
	Strict        bool `mapstructure:"strict"`
}

type StorageConfig struct {
	Path     string         `mapstructure:"path"`
	Memgraph MemgraphConfig `mapstructure:"memgraph"`
}

type MemgraphConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// SyncRate throttles sync batches per second; 0 disables throttling.
	SyncRate float64 `mapstructure:"sync_rate"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads the configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".terramap"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("terramap")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TERRAMAP")
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("provider", "aws")
	viper.SetDefault("resolve.max_iterations", 100)
	viper.SetDefault("resolve.strict", false)
	viper.SetDefault("storage.path", "./data/terramap.db")
	viper.SetDefault("storage.memgraph.enabled", false)
	viper.SetDefault("storage.memgraph.uri", "bolt://localhost:7687")
	viper.SetDefault("storage.memgraph.sync_rate", 10.0)
	viper.SetDefault("server.listen", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
