package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func managerFor(path string, env map[string]string) *ConfigManager {
	m := NewConfigManager(path)
	m.env = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return m
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseWithoutFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := managerFor("", nil).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
	d, err := cfg.ParseDurations()
	if err != nil {
		t.Fatalf("ParseDurations: %v", err)
	}
	if d.DispatchSend != 30*time.Second || d.DispatchStop != 5*time.Second || d.MarkerBusyWait != 0 {
		t.Fatalf("durations = %+v", d)
	}
}

func TestParseFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "json", file: "settings.json", body: `{"schedule_file":"/etc/weekbot/config.txt","dispatcher":{"workers":8},"logging":{"level":"DEBUG"}}`},
		{name: "yaml", file: "settings.yaml", body: "schedule_file: /etc/weekbot/config.txt\ndispatcher:\n  workers: 8\nlogging:\n  level: DEBUG\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, t.TempDir(), tt.file, tt.body)
			cfg, err := managerFor(path, nil).Parse()
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cfg.ScheduleFile != "/etc/weekbot/config.txt" || cfg.Dispatcher.Workers != 8 || cfg.Logging.Level != "DEBUG" {
				t.Fatalf("overrides not applied: %+v", cfg)
			}
			// Omitted fields keep their defaults.
			if cfg.Dispatcher.QueueSize != 64 || cfg.Telegram.ParseMode != "HTML" || !cfg.Logging.Console {
				t.Fatalf("defaults lost: %+v", cfg)
			}
		})
	}
}

func TestParseRejectsBadSettings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unknown field", file: "s.json", body: `{"schedule_fiel":"x"}`, want: "unknown field"},
		{name: "trailing data", file: "s.json", body: `{} {}`, want: "trailing data"},
		{name: "bad duration", file: "s.json", body: `{"dispatcher":{"send_timeout":"soon"}}`, want: "dispatcher.send_timeout"},
		{name: "negative duration", file: "s.json", body: `{"dispatcher":{"stop_timeout":"-1s"}}`, want: "dispatcher.stop_timeout"},
		{name: "bad driver", file: "s.yaml", body: "marker:\n  driver: redis\n", want: "marker.driver"},
		{name: "bad parse mode", file: "s.json", body: `{"telegram":{"parse_mode":"BBCode"}}`, want: "telegram.parse_mode"},
		{name: "bad yaml", file: "s.yml", body: "logging: [", want: "yaml"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, t.TempDir(), tt.file, tt.body)
			_, err := managerFor(path, nil).Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "s.json", `{"schedule_file":"from-file.txt"}`)
	cfg, err := managerFor(path, map[string]string{
		EnvScheduleFile: "from-env.txt",
		EnvLogLevel:     "DEBUG",
		EnvMarkerDriver: "sqlite",
		EnvMarkerPath:   " ./state.db ",
	}).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ScheduleFile != "from-env.txt" || cfg.Logging.Level != "DEBUG" || cfg.Marker.Driver != "sqlite" || cfg.Marker.Path != "./state.db" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	t.Setenv(EnvMarkerPath, "")
	os.Unsetenv(EnvMarkerPath)
	path := writeFile(t, dir, ".env", EnvMarkerPath+"=/var/lib/weekbot\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvMarkerPath); got != "/var/lib/weekbot" {
		t.Fatalf("%s = %q", EnvMarkerPath, got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.json", `{"logging":{"level":"INFO"}}`)
	m := managerFor(path, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "DEBUG" {
				t.Fatalf("published level = %q", cfg.Logging.Level)
			}
			if m.Get().Logging.Level != "DEBUG" {
				t.Fatal("published config was not committed")
			}
			cancel()
			<-done
			return
		case <-tick.C:
			writeFile(t, dir, "settings.json", `{"logging":{"level":"DEBUG"}}`)
		case <-deadline:
			t.Fatal("no config published after file change")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	newCfg := Default()
	newCfg.Logging.Level = "DEBUG"
	newCfg.Dispatcher.Workers = 9

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !reflect.DeepEqual(changed, []string{"dispatcher", "logging"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attributes")
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"dispatcher"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
}
