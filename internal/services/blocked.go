package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
)

// BlockedRegistry keeps custody of blocked accounts' secrets
type BlockedRegistry struct {
	dir    string
	store  *AtomicStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewBlockedRegistry creates a registry stored under <quotaDir>/_blocked
func NewBlockedRegistry(quotaDir string, store *AtomicStore, now func() time.Time, logger *logrus.Logger) *BlockedRegistry {
	return &BlockedRegistry{
		dir:    filepath.Join(quotaDir, constants.BlockedDirName),
		store:  store,
		now:    now,
		logger: logger,
	}
}

// Path returns the record location of finalUser
func (r *BlockedRegistry) Path(finalUser string) string {
	return filepath.Join(r.dir, finalUser+constants.RecordExt)
}

// Get reports whether finalUser is blocked. A corrupt record still counts as blocked.
func (r *BlockedRegistry) Get(finalUser string) models.BlockedStatus {
	path := r.Path(finalUser)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return models.BlockedStatus{Blocked: false}
	}

	var record models.BlockedRecord
	if err := r.store.ReadJSON(path, &record); err != nil {
		r.logger.Warnf("Blocked record %s is unreadable: %v", path, err)
		return models.BlockedStatus{Blocked: true}
	}

	return models.BlockedStatus{
		Blocked:   true,
		BlockedAt: record.BlockedAt,
		Protocol:  record.Protocol,
	}
}

// Write persists the secret of finalUser with a UTC timestamp
func (r *BlockedRegistry) Write(finalUser, protocol, secret string) error {
	record := models.BlockedRecord{
		Username:  finalUser,
		Protocol:  protocol,
		Secret:    secret,
		BlockedAt: r.now().UTC().Format(time.RFC3339),
	}
	owner := FileOwner{Mode: constants.SecretFileMode, UID: -1, GID: -1}
	if err := r.store.WriteJSON(r.Path(finalUser), record, owner); err != nil {
		return fmt.Errorf("failed to write blocked record: %w", err)
	}
	return nil
}

// ReadSecret returns the preserved secret of finalUser
func (r *BlockedRegistry) ReadSecret(finalUser string) (string, error) {
	path := r.Path(finalUser)

	var record models.BlockedRecord
	err := r.store.ReadJSON(path, &record)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &apperrors.NotFoundError{What: "blocked record", Username: finalUser}
	}
	if err != nil {
		return "", &apperrors.InvalidRecordError{Path: path, Message: err.Error()}
	}

	secret := strings.TrimSpace(record.Secret)
	if secret == "" {
		return "", &apperrors.InvalidRecordError{Path: path, Message: "missing secret"}
	}
	return secret, nil
}

// Exists reports whether a blocked record is present for finalUser
func (r *BlockedRegistry) Exists(finalUser string) bool {
	_, err := os.Stat(r.Path(finalUser))
	return err == nil
}

// Remove deletes the record of finalUser; absence is not an error
func (r *BlockedRegistry) Remove(finalUser string) error {
	return r.store.Remove(r.Path(finalUser))
}
