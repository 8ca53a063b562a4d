package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"weekbot/internal/config"
	"weekbot/internal/dispatch"
	"weekbot/internal/storage"
	logx "weekbot/pkg/logx"
)

const defaultSQLiteFile = "weekbot.db"

// mapStorageConfig turns the marker settings into a storage config. A sqlite
// path naming a directory gets the default database file inside it.
func mapStorageConfig(cfg *config.Config, d config.Durations) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Marker.Driver))
	path := strings.TrimSpace(cfg.Marker.Path)
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}
	case "sqlite", "sqlite3":
		if path == "" {
			path = defaultSQLiteFile
		} else if st, err := os.Stat(path); err == nil && st.IsDir() {
			path = filepath.Join(path, defaultSQLiteFile)
		}
		busy := d.MarkerBusyWait
		if busy <= 0 {
			busy = time.Second
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}
	default:
		return storage.Config{Driver: driver, Path: path}
	}
}

func mapDispatchConfig(cfg *config.Config, d config.Durations) dispatch.Config {
	return dispatch.Config{
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		HistorySize: cfg.Dispatcher.HistorySize,
		SendTimeout: d.DispatchSend,
		StopTimeout: d.DispatchStop,
		Location:    time.Local,
	}
}

// mapLoggingConfig builds the logx config. The Telegram sink falls back to the
// schedule's recipient when no chat is configured.
func mapLoggingConfig(lc config.LoggingConfig, recipientID int64) logx.Config {
	chatID := lc.Telegram.ChatID
	if chatID == 0 {
		chatID = recipientID
	}
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     chatID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
