package cli

import (
	"context"
	"fmt"

	"github.com/weft-labs/weft/internal/config"
	"github.com/weft-labs/weft/internal/storage"
)

// openAdapter loads the config, resolves the device id and initializes the
// storage adapter. The CLI runs without the segment watcher; each invocation
// starts with a fresh sync anyway.
func openAdapter(ctx context.Context) (*storage.Adapter, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	deviceID, err := config.DeviceID(cfg.Paths.Home)
	if err != nil {
		return nil, cfg, err
	}

	adapter := storage.New(storage.Options{
		LogDir:       cfg.Paths.LogDir,
		CachePath:    cfg.Paths.CachePath,
		DeviceID:     deviceID,
		FsyncAppends: cfg.Sync.FsyncAppends,
	})
	if err := adapter.Initialize(ctx); err != nil {
		return nil, cfg, err
	}
	return adapter, cfg, nil
}
