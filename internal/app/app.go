package app

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"xray-backend/internal/config"
	"xray-backend/internal/handlers"
	"xray-backend/internal/services"
)

// SetupLogger builds the process logger. With a log file the output is
// duplicated to stderr and a size-rotated file.
func SetupLogger(level, file string) *logrus.Logger {
	logger := logrus.New()

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", level)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if file != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}))
	}

	return logger
}

// NewDispatcher wires the stores and OS collaborators described by cfg
func NewDispatcher(cfg *config.Config, logger *logrus.Logger) *handlers.Dispatcher {
	store := services.NewAtomicStore(logger)
	host := services.NewHostInfoService(cfg.Host, logger)

	var qr *services.QRService
	if cfg.Storage.WriteQR {
		qr = services.NewQRService(store, logger)
	}

	sheets := services.NewCredentialSheets(cfg.Storage.SheetDir, host, qr, store, time.Now, logger)

	return handlers.NewDispatcher(handlers.Dependencies{
		Config:   cfg,
		Proxy:    services.NewXrayConfigStore(cfg.Xray, store, logger),
		Ledger:   services.NewQuotaLedger(cfg.Storage.QuotaDir, sheets, store, logger),
		Blocked:  services.NewBlockedRegistry(cfg.Storage.QuotaDir, store, time.Now, logger),
		Sheets:   sheets,
		Resolver: services.NewSecretResolver(sheets),
		System:   services.NewSystemdService(logger),
		Journal:  services.NewJournalService(logger),
		Lock:     services.NewFileLock(cfg.Xray.LockPath()),
		Logger:   logger,
	})
}
