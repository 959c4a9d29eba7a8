package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config/data directory name.
	ConfigDir = ".weft"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix is the prefix for environment overrides (WEFT_*).
	EnvPrefix = "WEFT"
)

// DefaultConfig returns the built-in defaults. Policy constants from the
// cache design (30m TTL, 5m cooldown, 3 concurrent prefetches, 1s delay,
// 1000 entry cap) live here, overridable per install.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ConfigDir)
	return Config{
		Paths: Paths{
			Home:      base,
			LogDir:    filepath.Join(base, "log"),
			CachePath: filepath.Join(base, "cache.db"),
		},
		Cache: CacheConfig{
			TTL:                   30 * time.Minute,
			MaxSize:               1000,
			PrefetchCooldown:      5 * time.Minute,
			MaxConcurrentPrefetch: 3,
			PrefetchDelay:         time.Second,
			PrefetchSessionCount:  5,
			PrefetchSiblingStates: 3,
			PreloadStateCap:       5,
			FileIndexEnabled:      true,
		},
		Sync: SyncConfig{
			WatchEnabled:  true,
			WatchInterval: 2 * time.Second,
		},
	}
}

// ConfigPath returns the config file path, honoring WEFT_CONFIG and
// WEFT_HOME overrides.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("WEFT_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFile), nil
}

func homeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("WEFT_HOME")); h != "" {
		return expandHome(h)
	}
	base, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, ConfigDir), nil
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		base, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, path[1:]), nil
	}
	return path, nil
}

// Load reads the config file (if present), applies env overrides, and fills
// unset values from defaults. A missing file is not an error.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Each section is processed against the root prefix so the envconfig
	// tags carry the full variable name (WEFT_CACHE_MAX_SIZE, not
	// WEFT_CACHE_CACHE_MAX_SIZE).
	for _, section := range []any{&cfg.Paths, &cfg.Cache, &cfg.Sync} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return cfg, fmt.Errorf("apply env overrides: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero values so a sparse config file still yields a
// usable engine.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Paths.Home == "" {
		if h, err := homeDir(); err == nil {
			c.Paths.Home = h
		} else {
			c.Paths.Home = def.Paths.Home
		}
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.Home, "log")
	}
	if c.Paths.CachePath == "" {
		c.Paths.CachePath = filepath.Join(c.Paths.Home, "cache.db")
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = def.Cache.MaxSize
	}
	if c.Cache.PrefetchCooldown <= 0 {
		c.Cache.PrefetchCooldown = def.Cache.PrefetchCooldown
	}
	if c.Cache.MaxConcurrentPrefetch <= 0 {
		c.Cache.MaxConcurrentPrefetch = def.Cache.MaxConcurrentPrefetch
	}
	if c.Cache.PrefetchDelay <= 0 {
		c.Cache.PrefetchDelay = def.Cache.PrefetchDelay
	}
	if c.Cache.PrefetchSessionCount <= 0 {
		c.Cache.PrefetchSessionCount = def.Cache.PrefetchSessionCount
	}
	if c.Cache.PrefetchSiblingStates <= 0 {
		c.Cache.PrefetchSiblingStates = def.Cache.PrefetchSiblingStates
	}
	if c.Cache.PreloadStateCap <= 0 {
		c.Cache.PreloadStateCap = def.Cache.PreloadStateCap
	}
	if c.Sync.WatchInterval <= 0 {
		c.Sync.WatchInterval = def.Sync.WatchInterval
	}
}

// Save writes the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DeviceID returns the stable per-install device identifier, creating it on
// first use. The id stamps every event this install appends to the log.
func DeviceID(home string) (string, error) {
	path := filepath.Join(home, "device-id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := newDeviceID()
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("create home dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
