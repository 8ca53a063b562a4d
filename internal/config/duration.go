package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Durations holds the parsed duration fields of a Config.
type Durations struct {
	TelegramSend   time.Duration
	DispatchSend   time.Duration
	DispatchStop   time.Duration
	MarkerBusyWait time.Duration
}

// ParseDurations parses every duration field. Empty or zero values fall back
// to the field's default; marker.busy_timeout has none and stays 0.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.send_timeout", c.Telegram.SendTimeout, 30 * time.Second, &d.TelegramSend},
		{"dispatcher.send_timeout", c.Dispatcher.SendTimeout, 30 * time.Second, &d.DispatchSend},
		{"dispatcher.stop_timeout", c.Dispatcher.StopTimeout, 5 * time.Second, &d.DispatchStop},
		{"marker.busy_timeout", c.Marker.BusyTimeout, 0, &d.MarkerBusyWait},
	}
	var errs []error
	for _, f := range fields {
		v, err := durationOrDefault(f.path, f.raw, f.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = v
	}
	return d, errors.Join(errs...)
}

func parseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
