package services

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"xray-backend/internal/constants"
)

// QRService renders share links as PNG QR codes stored beside credential sheets
type QRService struct {
	size   int
	store  *AtomicStore
	logger *logrus.Logger
}

// NewQRService creates a new QR code service
func NewQRService(store *AtomicStore, logger *logrus.Logger) *QRService {
	return &QRService{
		size:   constants.QRSize,
		store:  store,
		logger: logger,
	}
}

// Encode returns the PNG of link. Long vmess links need medium recovery to stay scannable.
func (s *QRService) Encode(link string) ([]byte, error) {
	if link == "" {
		return nil, errors.New("empty share link")
	}

	code, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return code.PNG(s.size)
}

// WriteLink encodes link and atomically stores it at path
func (s *QRService) WriteLink(path, link string) error {
	png, err := s.Encode(link)
	if err != nil {
		return err
	}
	if err := s.store.Write(path, png, ProcessOwner()); err != nil {
		return fmt.Errorf("failed to write QR image: %w", err)
	}

	s.logger.Debugf("Wrote QR image %s", path)
	return nil
}
