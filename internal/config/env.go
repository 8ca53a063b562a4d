package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvScheduleFile = "WEEKBOT_SCHEDULE_FILE"
	EnvLogLevel     = "WEEKBOT_LOG_LEVEL"
	EnvMarkerDriver = "WEEKBOT_MARKER_DRIVER"
	EnvMarkerPath   = "WEEKBOT_MARKER_PATH"
)

// LoadDotEnv loads path into the process environment. Variables already set
// win over the file, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv overrides settings from WEEKBOT_* environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvScheduleFile, &cfg.ScheduleFile)
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvMarkerDriver, &cfg.Marker.Driver)
	set(EnvMarkerPath, &cfg.Marker.Path)
}
