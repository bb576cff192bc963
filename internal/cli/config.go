package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/zefline/pkg/errors"
	"github.com/matzehuels/zefline/pkg/store"
	"github.com/matzehuels/zefline/pkg/zef"
)

// Config is the on-disk configuration, loaded from a TOML file.
//
// Repositories are listed in priority order: the scan order is the
// tie-break policy, so earlier repositories win equal-version conflicts.
type Config struct {
	Repositories []string    `toml:"repositories"`
	ZefBin       string      `toml:"zef_bin"`
	Noise        []string    `toml:"noise"`
	Redis        redisConfig `toml:"redis"`
}

type redisConfig struct {
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	Prefix        string `toml:"prefix"`
	BatchSize     int    `toml:"batch_size"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryDelay    string `toml:"retry_delay"`
}

// defaultConfig returns the configuration used when no file is present.
func defaultConfig() Config {
	return Config{
		Repositories: []string{"fez", "cpan", "p6c"},
		ZefBin:       zef.DefaultBin,
		Redis: redisConfig{
			Addr:   "localhost:6379",
			Prefix: store.DefaultPrefix,
		},
	}
}

// configPath returns the default config file location, honoring
// XDG_CONFIG_HOME (~/.config/zefline/config.toml otherwise).
func configPath() string {
	if cfgHome := os.Getenv("XDG_CONFIG_HOME"); cfgHome != "" {
		return filepath.Join(cfgHome, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

// loadConfig reads path, applying defaults for anything unset. A missing
// file is only an error when the path was given explicitly; the default
// location falling back to defaults is normal first-run behavior.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) && !explicit {
			return defaultConfig(), nil
		}
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load config %s", path)
	}

	if len(cfg.Repositories) == 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidConfig,
			"config %s lists no repositories", path)
	}
	return cfg, nil
}

// storeOptions converts the config's redis section into store options.
func (c Config) storeOptions() (store.Options, error) {
	opts := store.Options{
		Addr:          c.Redis.Addr,
		Password:      c.Redis.Password,
		DB:            c.Redis.DB,
		Prefix:        c.Redis.Prefix,
		BatchSize:     c.Redis.BatchSize,
		RetryAttempts: c.Redis.RetryAttempts,
	}
	if c.Redis.RetryDelay != "" {
		d, err := time.ParseDuration(c.Redis.RetryDelay)
		if err != nil {
			return store.Options{}, errors.Wrap(errors.ErrCodeInvalidConfig, err,
				"parse redis.retry_delay %q", c.Redis.RetryDelay)
		}
		opts.RetryDelay = d
	}
	return opts, nil
}
