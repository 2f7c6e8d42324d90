package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the knobs needed to stand up the storage stack: a
// buffer pool over a DiskManager rooted at DataDir, plus a default
// bucket count for hash tables created at startup.
type Config struct {
	Pool struct {
		Size int `mapstructure:"size"`
	} `mapstructure:"pool"`
	Storage struct {
		DataDir  string `mapstructure:"data_dir"`
		BaseName string `mapstructure:"base_name"`
	} `mapstructure:"storage"`
	HashIndex struct {
		NumBuckets int `mapstructure:"num_buckets"`
	} `mapstructure:"hash_index"`
}

// Load reads a YAML config file at path into a Config, applying
// defaults for any field the file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("pool.size", 16)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.base_name", "pagekit")
	v.SetDefault("hash_index.num_buckets", 16)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
