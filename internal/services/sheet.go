package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/helpers"
	"xray-backend/internal/models"
)

// HostInfo supplies the display metadata printed on credential sheets
type HostInfo interface {
	Domain() string
	PublicPort() int
	PublicIP(ctx context.Context) string
}

// SheetRequest describes one credential sheet to (re)generate
type SheetRequest struct {
	Protocol   string
	FinalUser  string
	Secret     string
	QuotaGB    float64
	Days       int
	ValidUntil string
}

// CredentialSheets renders and stores the per-account credential sheets
type CredentialSheets struct {
	dir    string
	host   HostInfo
	qr     *QRService
	store  *AtomicStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewCredentialSheets creates a sheet writer rooted at dir. A nil qr disables QR images.
func NewCredentialSheets(dir string, host HostInfo, qr *QRService, store *AtomicStore, now func() time.Time, logger *logrus.Logger) *CredentialSheets {
	return &CredentialSheets{
		dir:    dir,
		host:   host,
		qr:     qr,
		store:  store,
		now:    now,
		logger: logger,
	}
}

// Path returns the sheet location of finalUser
func (s *CredentialSheets) Path(protocol, finalUser string) string {
	return filepath.Join(s.dir, protocol, finalUser+constants.SheetExt)
}

// QRPath returns the QR image location of finalUser
func (s *CredentialSheets) QRPath(protocol, finalUser string) string {
	return filepath.Join(s.dir, protocol, finalUser+constants.QRExt)
}

// Write renders and stores the sheet, returning its path and text
func (s *CredentialSheets) Write(ctx context.Context, req SheetRequest) (string, string, error) {
	info := helpers.SheetInfo{
		Protocol:   req.Protocol,
		FinalUser:  req.FinalUser,
		Secret:     req.Secret,
		Domain:     s.host.Domain(),
		IP:         s.host.PublicIP(ctx),
		Port:       s.host.PublicPort(),
		QuotaGB:    req.QuotaGB,
		Days:       req.Days,
		ValidUntil: req.ValidUntil,
		Created:    s.now().Format("Mon Jan 02 15:04:05 MST 2006"),
	}

	text := helpers.FormatCredentialSheet(info)
	path := s.Path(req.Protocol, req.FinalUser)
	if err := s.store.Write(path, []byte(text), ProcessOwner()); err != nil {
		return "", "", fmt.Errorf("failed to write credential sheet: %w", err)
	}

	if s.qr != nil {
		s.writeQR(req, info)
	}

	s.logger.Debugf("Wrote credential sheet %s", path)
	return path, text, nil
}

// writeQR stores the QR image of the primary link; failures only lose the image
func (s *CredentialSheets) writeQR(req SheetRequest, info helpers.SheetInfo) {
	link := helpers.PrimaryLink(info)
	if link == "" {
		return
	}
	if err := s.qr.WriteLink(s.QRPath(req.Protocol, req.FinalUser), link); err != nil {
		s.logger.Warnf("No QR image for %s: %v", req.FinalUser, err)
	}
}

// Read returns the sheet text of finalUser
func (s *CredentialSheets) Read(protocol, finalUser string) (string, error) {
	data, err := os.ReadFile(s.Path(protocol, finalUser))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Remove deletes the sheet and QR image of finalUser
func (s *CredentialSheets) Remove(protocol, finalUser string) error {
	return errors.Join(
		s.store.Remove(s.Path(protocol, finalUser)),
		s.store.Remove(s.QRPath(protocol, finalUser)),
	)
}

// secretLine matches the labelled secret written by FormatCredentialSheet
var secretLine = regexp.MustCompile(regexp.QuoteMeta(constants.SheetSecretKey) + `\s*:\s*([A-Za-z0-9-]{8,})`)

// SecretResolver recovers a previously issued secret.
// The ledger never stores secrets; the sheet is the primary source.
type SecretResolver struct {
	sheets *CredentialSheets
}

// NewSecretResolver creates a new secret resolver
func NewSecretResolver(sheets *CredentialSheets) *SecretResolver {
	return &SecretResolver{
		sheets: sheets,
	}
}

// FromSheet parses the secret out of the credential sheet
func (r *SecretResolver) FromSheet(protocol, finalUser string) (string, error) {
	path := r.sheets.Path(protocol, finalUser)
	text, err := r.sheets.Read(protocol, finalUser)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &apperrors.ParseError{Source: path, Message: "detail file not found"}
	}
	if err != nil {
		return "", &apperrors.ParseError{Source: path, Message: err.Error()}
	}

	m := secretLine.FindStringSubmatch(text)
	if m == nil {
		return "", &apperrors.ParseError{Source: path, Message: "no " + constants.SheetSecretKey + " line"}
	}
	return m[1], nil
}

// FromConfig looks the secret up in the live config within the protocol family
func (r *SecretResolver) FromConfig(cfg *ProxyConfig, protocol, finalUser string) (string, error) {
	for _, family := range models.ProtocolFamilies(protocol) {
		if secret, ok := cfg.ClientSecret(family, finalUser); ok {
			return secret, nil
		}
	}
	return "", &apperrors.ParseError{Source: "proxy config", Message: "no client entry for " + finalUser}
}

// Resolve tries the sheet first and falls back to the live config
func (r *SecretResolver) Resolve(cfg *ProxyConfig, protocol, finalUser string) (string, error) {
	secret, err := r.FromSheet(protocol, finalUser)
	if err == nil {
		return secret, nil
	}
	if cfg == nil {
		return "", err
	}
	if secret, cfgErr := r.FromConfig(cfg, protocol, finalUser); cfgErr == nil {
		return secret, nil
	}
	return "", err
}
