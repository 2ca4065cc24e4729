package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"xray-backend/internal/constants"
)

// FileOwner describes the permission bits and ownership a file is written with.
// UID or GID of -1 leaves that id unchanged.
type FileOwner struct {
	Mode os.FileMode
	UID  int
	GID  int
}

// ProcessOwner writes files with mode 0644 owned by the current process
func ProcessOwner() FileOwner {
	return FileOwner{Mode: constants.DefaultFileMode, UID: -1, GID: -1}
}

// RootOwner writes files with mode 0644 owned by root:root
func RootOwner() FileOwner {
	return FileOwner{Mode: constants.DefaultFileMode, UID: 0, GID: 0}
}

// AtomicStore writes files via temp file, fsync, chmod, chown and rename
type AtomicStore struct {
	logger *logrus.Logger
}

// NewAtomicStore creates a new atomic store
func NewAtomicStore(logger *logrus.Logger) *AtomicStore {
	return &AtomicStore{
		logger: logger,
	}
}

// Write atomically replaces path with data
func (s *AtomicStore) Write(path string, data []byte, owner FileOwner) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.StoreDirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmp.Chmod(owner.Mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if owner.UID >= 0 || owner.GID >= 0 {
		if err := tmp.Chown(owner.UID, owner.GID); err != nil {
			if !errors.Is(err, fs.ErrPermission) {
				_ = tmp.Close()
				return fmt.Errorf("failed to set file owner: %w", err)
			}
			s.logger.Debugf("Keeping process ownership of %s: %v", path, err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file over %s: %w", path, err)
	}

	return nil
}

// WriteJSON atomically writes v as indented JSON
func (s *AtomicStore) WriteJSON(path string, v any, owner FileOwner) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return s.Write(path, append(data, '\n'), owner)
}

// ReadJSON decodes the JSON file at path into v
func (s *AtomicStore) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Remove deletes path; a missing file is not an error
func (s *AtomicStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
