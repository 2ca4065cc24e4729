package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeHost struct{}

func (fakeHost) Domain() string { return "vpn.example.com" }
func (fakeHost) PublicPort() int { return 443 }
func (fakeHost) PublicIP(ctx context.Context) string { return "203.0.113.7" }

func newTestSheets(t *testing.T, dir string, qr *QRService) *CredentialSheets {
	t.Helper()
	logger := newTestLogger()
	return NewCredentialSheets(dir, fakeHost{}, qr, NewAtomicStore(logger), func() time.Time { return fixedNow }, logger)
}
