package config

import (
	logx "weekbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and log-safe
// attributes describing them.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.ScheduleFile != newCfg.ScheduleFile {
		changed = append(changed, "schedule_file")
		attrs = append(attrs, logx.String("schedule_file", newCfg.ScheduleFile))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.api_url_set", newCfg.Telegram.APIURL != ""),
			logx.String("telegram.parse_mode", newCfg.Telegram.ParseMode),
			logx.String("telegram.send_timeout", newCfg.Telegram.SendTimeout),
		)
	}
	if oldCfg.Dispatcher != newCfg.Dispatcher {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.Int("dispatcher.workers", newCfg.Dispatcher.Workers),
			logx.Int("dispatcher.queue_size", newCfg.Dispatcher.QueueSize),
		)
	}
	if oldCfg.Marker != newCfg.Marker {
		changed = append(changed, "marker")
		attrs = append(attrs, logx.String("marker.driver", newCfg.Marker.Driver))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect on restart.
// Logging is the one section applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}
