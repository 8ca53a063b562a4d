package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"weekbot/internal/config"
	"weekbot/internal/dispatch"
	"weekbot/internal/runtime/supervisor"
	"weekbot/internal/schedfile"
	"weekbot/internal/storage"
	telegram "weekbot/internal/transport/telegram/adapter"
	logx "weekbot/pkg/logx"
)

// Options locate the files the app reads at startup.
type Options struct {
	// SettingsPath is an optional JSON or YAML settings file.
	SettingsPath string
	// SchedulePath overrides settings' schedule_file when set.
	SchedulePath string
	// EnvPath is a dotenv file loaded before settings; missing is fine.
	EnvPath string
}

type App struct {
	cfgm     *config.ConfigManager
	schedule schedfile.Config
	path     string

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter *telegram.Adapter
	disp    *dispatch.Dispatcher

	// notify reports service state to systemd; a no-op outside a unit.
	notify func(state string)
}

// New loads settings and the schedule file and wires every component. Nothing
// is sent until Run.
func New(opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvPath); err != nil {
		return nil, fmt.Errorf("load env %s: %w", opts.EnvPath, err)
	}
	cfgm := config.NewConfigManager(opts.SettingsPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	d, err := cfg.ParseDurations()
	if err != nil {
		return nil, err
	}

	// The Telegram log sink needs the adapter, which needs the schedule's
	// token, so logging starts without it and is re-applied below.
	bootCfg := mapLoggingConfig(cfg.Logging, 0)
	bootCfg.Telegram.Enabled = false
	logs, root := logx.New(bootCfg, nil)
	log := root.With(logx.String("comp", "app"))

	path := schedulePath(opts, cfg)
	sc, err := schedfile.ParseFile(path)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	sCfg := mapStorageConfig(cfg, d)
	store, err := storage.Open(sCfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open marker storage: %w", err)
	}

	ad, err := telegram.New(telegram.Config{
		Token:       sc.Credential,
		URL:         cfg.Telegram.APIURL,
		ParseMode:   cfg.Telegram.ParseMode,
		SendTimeout: d.TelegramSend,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	logs.SetSender(ad)
	logs.Apply(mapLoggingConfig(cfg.Logging, sc.RecipientID))

	disp := dispatch.New(
		mapDispatchConfig(cfg, d),
		ad,
		storage.NewMarker(store, storage.StartupMarkerKey),
		root.With(logx.String("comp", "dispatch")),
	)

	log.Info("schedule loaded",
		logx.String("path", path),
		logx.Int64("recipient_id", sc.RecipientID),
		logx.Int("entries", len(sc.Entries)),
		logx.Bool("startup_message", sc.StartupMessage != nil),
		logx.String("marker_driver", sCfg.Driver),
	)

	return &App{
		cfgm:     cfgm,
		schedule: sc,
		path:     path,
		log:      log,
		logs:     logs,
		store:    store,
		adapter:  ad,
		disp:     disp,
		notify:   sdNotify(log),
	}, nil
}

func schedulePath(opts Options, cfg *config.Config) string {
	if p := strings.TrimSpace(opts.SchedulePath); p != "" {
		return p
	}
	return cfg.ScheduleFile
}

func sdNotify(log logx.Logger) func(string) {
	return func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		}
	}
}

// Schedule returns the parsed schedule file.
func (a *App) Schedule() schedfile.Config { return a.schedule }

// Run starts dispatching and blocks until ctx is done or a supervised
// goroutine fails. Close must still be called afterwards.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	if err := a.disp.Start(sup.Context(), a.schedule); err != nil {
		sup.Cancel()
		return err
	}
	for _, s := range a.disp.Schedules() {
		a.log.Info("next run", logx.String("name", s.Name), logx.Time("at", s.Next))
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	sup.Go("config.watch", a.cfgm.Watch)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("triggers", len(a.schedule.Entries)))

	<-sup.Context().Done()

	reason := StopShutdown
	if sup.Err() != nil {
		reason = StopFatalError
	}
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.step("dispatcher", 0, func(c context.Context) error { a.disp.Stop(c); return nil })
	a.step("supervisor", 2*time.Second, func(c context.Context) error { return sup.Stop(c) })

	a.log.Info("stopped")
	return sup.Err()
}

// reloadLoop applies the logging section of every published config. Other
// sections need a restart, which is logged.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.logs.Apply(mapLoggingConfig(newCfg.Logging, a.schedule.RecipientID))

			if restart := config.RestartRequired(sections); len(restart) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// step runs one shutdown step bounded by max (0 means no extra bound).
func (a *App) step(name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	ctx := context.Background()
	if max > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// Close releases the transport, the marker store and the log sinks.
func (a *App) Close() error {
	var errs []error
	if a.adapter != nil {
		errs = append(errs, a.adapter.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
