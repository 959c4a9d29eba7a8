// Package reconcile replays unprocessed log events into the query cache and
// tracks per-device checkpoints.
package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint records how far one device has applied the log into its cache.
// LastSyncedFiles maps a log segment name to the timestamp of the last event
// processed from it.
type Checkpoint struct {
	DeviceID           string           `json:"deviceId"`
	LastEventTimestamp int64            `json:"lastEventTimestamp"`
	LastSyncedFiles    map[string]int64 `json:"lastSyncedFiles"`
}

// LoadCheckpoint reads the checkpoint file for the given device. A missing
// file yields a fresh zero checkpoint, not an error.
func LoadCheckpoint(path, deviceID string) (Checkpoint, error) {
	cp := Checkpoint{DeviceID: deviceID, LastSyncedFiles: map[string]int64{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}

	var all map[string]Checkpoint
	if err := json.Unmarshal(data, &all); err != nil {
		return cp, fmt.Errorf("decode checkpoint: %w", err)
	}
	if saved, ok := all[deviceID]; ok {
		if saved.LastSyncedFiles == nil {
			saved.LastSyncedFiles = map[string]int64{}
		}
		saved.DeviceID = deviceID
		return saved, nil
	}
	return cp, nil
}

// SaveCheckpoint persists the checkpoint, keeping other devices' entries in
// the same file intact. The write is atomic (tmp file + rename) so a crash
// never leaves a torn checkpoint behind.
func SaveCheckpoint(path string, cp Checkpoint) error {
	all := map[string]Checkpoint{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &all)
	}
	all[cp.DeviceID] = cp

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
