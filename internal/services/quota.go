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
	"xray-backend/internal/helpers"
	"xray-backend/internal/models"
	"xray-backend/internal/validation"
)

// QuotaLedger stores quota and expiry metadata, one directory per protocol.
// Reads and updates are plain read-modify-write; callers serialize access.
type QuotaLedger struct {
	dir    string
	sheets *CredentialSheets
	store  *AtomicStore
	logger *logrus.Logger
}

// NewQuotaLedger creates a new quota ledger rooted at dir
func NewQuotaLedger(dir string, sheets *CredentialSheets, store *AtomicStore, logger *logrus.Logger) *QuotaLedger {
	return &QuotaLedger{
		dir:    dir,
		sheets: sheets,
		store:  store,
		logger: logger,
	}
}

// Path returns the record location of finalUser under protocol
func (l *QuotaLedger) Path(protocol, finalUser string) string {
	return filepath.Join(l.dir, protocol, finalUser+constants.RecordExt)
}

// Write persists a fresh record; quotaGB <= 0 means unlimited
func (l *QuotaLedger) Write(protocol, finalUser string, quotaGB float64, createdAt, expiredAt string) (*models.QuotaRecord, error) {
	record := &models.QuotaRecord{
		Username:   finalUser,
		Protocol:   protocol,
		QuotaLimit: helpers.QuotaBytesFromGB(quotaGB),
		CreatedAt:  createdAt,
		ExpiredAt:  expiredAt,
	}
	if err := l.store.WriteJSON(l.Path(protocol, finalUser), record, ProcessOwner()); err != nil {
		return nil, fmt.Errorf("failed to write quota record: %w", err)
	}
	l.logger.Debugf("Wrote quota record %s/%s limit=%d expires=%s", protocol, finalUser, record.QuotaLimit, expiredAt)
	return record, nil
}

// Read loads the record of finalUser under protocol
func (l *QuotaLedger) Read(protocol, finalUser string) (*models.QuotaRecord, error) {
	var record models.QuotaRecord
	err := l.store.ReadJSON(l.Path(protocol, finalUser), &record)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &apperrors.NotFoundError{What: "quota metadata", Username: finalUser}
	}
	if err != nil {
		return nil, &apperrors.InvalidRecordError{Path: l.Path(protocol, finalUser), Message: err.Error()}
	}
	return &record, nil
}

// Update applies fn to an existing record and persists the result
func (l *QuotaLedger) Update(protocol, finalUser string, fn func(*models.QuotaRecord) error) (*models.QuotaRecord, error) {
	record, err := l.Read(protocol, finalUser)
	if err != nil {
		return nil, err
	}
	if err := fn(record); err != nil {
		return nil, err
	}
	if err := l.store.WriteJSON(l.Path(protocol, finalUser), record, ProcessOwner()); err != nil {
		return nil, fmt.Errorf("failed to update quota record: %w", err)
	}
	return record, nil
}

// Remove deletes the record of finalUser under protocol
func (l *QuotaLedger) Remove(protocol, finalUser string) error {
	return l.store.Remove(l.Path(protocol, finalUser))
}

// RemoveLegacy deletes per-family records left behind for an allproto account
func (l *QuotaLedger) RemoveLegacy(finalUser string) error {
	var errs []error
	for _, p := range constants.RealProtocols {
		if err := l.Remove(p, finalUser); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scanned is a ledger item with the mtime of the file it came from
type scanned struct {
	item  models.LedgerItem
	mtime time.Time
}

// Scan lists ledger items for filter (a protocol or "all"), newest file per username,
// sorted by expiry then username
func (l *QuotaLedger) Scan(filter string) ([]models.LedgerItem, error) {
	protocols, err := scanProtocols(filter)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]scanned)
	for _, protocol := range protocols {
		dir := filepath.Join(l.dir, protocol)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warnf("Failed to read ledger directory %s: %v", dir, err)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.RecordExt) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			item, mtime, ok := l.scanRecord(path, protocol)
			if !ok {
				continue
			}
			if prev, seen := byUser[item.Username]; !seen || !mtime.Before(prev.mtime) {
				byUser[item.Username] = scanned{item: item, mtime: mtime}
			}
		}
	}

	items := make([]models.LedgerItem, 0, len(byUser))
	for _, s := range byUser {
		items = append(items, s.item)
	}
	models.SortLedgerItems(items)
	return items, nil
}

// scanRecord parses one ledger file; unreadable or inconsistent records are skipped
func (l *QuotaLedger) scanRecord(path, dirProtocol string) (models.LedgerItem, time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return models.LedgerItem{}, time.Time{}, false
	}

	var record models.QuotaRecord
	if err := l.store.ReadJSON(path, &record); err != nil {
		l.logger.Debugf("Skipping unreadable ledger record %s: %v", path, err)
		return models.LedgerItem{}, time.Time{}, false
	}

	username := strings.TrimSpace(record.Username)
	protocol := strings.ToLower(strings.TrimSpace(record.Protocol))
	if protocol == "" {
		protocol = dirProtocol
	}
	if !models.IsValidProtocol(protocol) {
		return models.LedgerItem{}, time.Time{}, false
	}
	if _, suffix, ok := models.SplitFinalUser(username); !ok || suffix != protocol {
		return models.LedgerItem{}, time.Time{}, false
	}

	return models.LedgerItem{
		Username:   username,
		Protocol:   protocol,
		ExpiredAt:  strings.TrimSpace(record.ExpiredAt),
		CreatedAt:  strings.TrimSpace(record.CreatedAt),
		QuotaLimit: record.QuotaLimit,
		DetailPath: l.sheets.Path(protocol, username),
	}, info.ModTime(), true
}

// scanProtocols expands a list filter into ledger directories
func scanProtocols(filter string) ([]string, error) {
	f, err := validation.ValidateProtocolFilter(filter)
	if err != nil {
		return nil, err
	}
	if f == constants.ProtocolFilterAll {
		return constants.LedgerProtocols, nil
	}
	return []string{f}, nil
}

// Paginate returns the window [offset, offset+limit) of items after clamping
func Paginate(items []models.LedgerItem, limit, offset int) models.LedgerPage {
	limit, offset = validation.ClampListWindow(limit, offset)
	total := len(items)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]models.LedgerItem, end-start)
	copy(page, items[start:end])

	return models.LedgerPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasMore: offset+limit < total,
		Items:   page,
	}
}
