package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps the snapshot as indented JSON in a single file so operators
// can inspect (and in a pinch hand-edit) the live subscription set.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the snapshot. A missing file means nothing was persisted yet and a
// corrupt file is discarded with a warning; both yield an empty snapshot so the
// manager can rebuild state from the remote side.
func (fs *FileStore) Load(ctx context.Context) (map[string]Record, error) {
	b, err := os.ReadFile(fs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("read subscription store: %w", err)
	}
	subs := map[string]Record{}
	if err := json.Unmarshal(b, &subs); err != nil {
		slog.Warn("subscription store corrupt, starting empty",
			slog.String("path", fs.Path), slog.Any("err", err))
		return map[string]Record{}, nil
	}
	return subs, nil
}

// Save writes the snapshot through a temp file and renames it into place, so a
// crash mid-write never leaves a torn store behind.
func (fs *FileStore) Save(ctx context.Context, subs map[string]Record) error {
	dir := filepath.Dir(fs.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	b, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".subscriptions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(b); err != nil {
		cleanup()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp store: %w", err)
	}
	if err := os.Rename(tmpName, fs.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
