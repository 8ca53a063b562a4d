package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds process settings. The schedule itself (recipient, token and
// messages) lives in the schedule file, not here.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// ScheduleFile is the path of the schedule file.
	ScheduleFile string `json:"schedule_file"`

	Telegram   TelegramConfig   `json:"telegram"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Marker     StorageConfig    `json:"marker"`
	Logging    LoggingConfig    `json:"logging"`
}

type TelegramConfig struct {
	// APIURL overrides the Bot API endpoint (e.g. a local bot API server).
	APIURL string `json:"api_url,omitempty"`
	// ParseMode is "HTML", "Markdown", "MarkdownV2" or "" for plain text.
	ParseMode   string `json:"parse_mode"`
	SendTimeout string `json:"send_timeout"`
}

// DispatcherConfig controls how scheduled sends are executed.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 64
//   - send_timeout: "30s"
//   - stop_timeout: "5s"
//   - history_size: 100
type DispatcherConfig struct {
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	SendTimeout string `json:"send_timeout"`
	StopTimeout string `json:"stop_timeout"`
	HistorySize int    `json:"history_size"`
}

// StorageConfig selects where the startup marker is persisted.
//
// Example:
//
//	"marker": { "driver": "sqlite", "path": "./weekbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings to a chat. ChatID 0 means the schedule
// file's recipient.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Default returns the settings used when no settings file is given. Fields
// omitted from a settings file keep these values.
func Default() *Config {
	return &Config{
		ScheduleFile: "./config.txt",
		Telegram: TelegramConfig{
			ParseMode:   "HTML",
			SendTimeout: "30s",
		},
		Dispatcher: DispatcherConfig{
			Workers:     4,
			QueueSize:   64,
			SendTimeout: "30s",
			StopTimeout: "5s",
			HistorySize: 100,
		},
		Marker: StorageConfig{
			Driver: "file",
			Path:   ".",
		},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			File:    LoggingFile{Path: "./weekbot.log"},
			Telegram: LoggingTelegram{
				MinLevel:   "WARN",
				RatePerSec: 1,
			},
		},
	}
}

var validParseModes = map[string]bool{"": true, "HTML": true, "Markdown": true, "MarkdownV2": true}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ScheduleFile) == "" {
		errs = append(errs, errors.New("schedule_file: required"))
	}
	if !validParseModes[c.Telegram.ParseMode] {
		errs = append(errs, fmt.Errorf("telegram.parse_mode: unsupported %q", c.Telegram.ParseMode))
	}
	if c.Dispatcher.Workers < 0 || c.Dispatcher.QueueSize < 0 || c.Dispatcher.HistorySize < 0 {
		errs = append(errs, errors.New("dispatcher: workers, queue_size and history_size must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Marker.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory":
	default:
		errs = append(errs, fmt.Errorf("marker.driver: unsupported %q", c.Marker.Driver))
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.telegram.rate_per_sec: must be >= 0"))
	}
	if _, err := c.ParseDurations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
