// Package config provides configuration types and loading for weft.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Paths Paths       `json:"paths"`
	Cache CacheConfig `json:"cache"`
	Sync  SyncConfig  `json:"sync"`
}

// Paths groups filesystem locations. Everything lives under Home unless
// overridden individually.
type Paths struct {
	Home      string `json:"home" envconfig:"HOME_DIR"`
	LogDir    string `json:"logDir" envconfig:"LOG_DIR"`
	CachePath string `json:"cachePath" envconfig:"CACHE_PATH"`
}

// CacheConfig groups entity-cache and prefetch policy values. These are
// tunables, not structural requirements.
type CacheConfig struct {
	TTL                   time.Duration `json:"ttl" envconfig:"CACHE_TTL"`
	MaxSize               int           `json:"maxSize" envconfig:"CACHE_MAX_SIZE"`
	PrefetchCooldown      time.Duration `json:"prefetchCooldown" envconfig:"PREFETCH_COOLDOWN"`
	MaxConcurrentPrefetch int           `json:"maxConcurrentPrefetch" envconfig:"MAX_CONCURRENT_PREFETCH"`
	PrefetchDelay         time.Duration `json:"prefetchDelay" envconfig:"PREFETCH_DELAY"`
	PrefetchSessionCount  int           `json:"prefetchSessionCount" envconfig:"PREFETCH_SESSION_COUNT"`
	PrefetchSiblingStates int           `json:"prefetchSiblingStates" envconfig:"PREFETCH_SIBLING_STATES"`
	PreloadStateCap       int           `json:"preloadStateCap" envconfig:"PRELOAD_STATE_CAP"`
	FileIndexEnabled      bool          `json:"fileIndexEnabled" envconfig:"FILE_INDEX_ENABLED"`
}

// SyncConfig groups reconciler and watcher settings.
type SyncConfig struct {
	WatchEnabled  bool          `json:"watchEnabled" envconfig:"WATCH_ENABLED"`
	WatchInterval time.Duration `json:"watchInterval" envconfig:"WATCH_INTERVAL"`
	FsyncAppends  bool          `json:"fsyncAppends" envconfig:"FSYNC_APPENDS"`
}
