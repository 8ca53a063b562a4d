// Package dispatch delivers the schedule file's messages: the one-time startup
// message gated by a persisted marker, then every weekly entry on its own
// recurring trigger until shutdown.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"weekbot/internal/schedfile"
	"weekbot/internal/task/engine"
	"weekbot/internal/task/scheduler"
	logx "weekbot/pkg/logx"
)

// MessageSender delivers text to a recipient.
type MessageSender interface {
	Send(ctx context.Context, recipientID int64, text string) error
}

// Marker is the persisted "startup message already sent" flag.
type Marker interface {
	IsSet(ctx context.Context) (bool, error)
	Set(ctx context.Context) error
}

type Config struct {
	Workers     int
	QueueSize   int
	HistorySize int

	// SendTimeout bounds every single send, startup message included.
	SendTimeout time.Duration
	// StopTimeout bounds the drain of pending sends on shutdown.
	StopTimeout time.Duration

	// Location is the zone entries are evaluated in; nil means time.Local.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Trigger is the weekly cron rule built from one schedule entry.
type Trigger struct {
	Name  string
	Spec  string
	Entry schedfile.Entry
}

// Triggers builds one trigger per entry, in declaration order. Names embed the
// entry index so entries sharing a time stay distinct.
func Triggers(sc schedfile.Config) ([]Trigger, error) {
	out := make([]Trigger, 0, len(sc.Entries))
	for i, e := range sc.Entries {
		if !e.Weekday.Valid() {
			return nil, &DispatchError{Op: "schedule", Err: fmt.Errorf("%w: entry %d: weekday %d", ErrInvalidSchedule, i, int(e.Weekday))}
		}
		spec, err := scheduler.WeeklySpec(e.Weekday.Time(), e.Hour, e.Minute)
		if err != nil {
			return nil, &DispatchError{Op: "schedule", Err: fmt.Errorf("%w: entry %d (line %d) %s: %v", ErrInvalidSchedule, i, e.Line, e.Label(), err)}
		}
		out = append(out, Trigger{Name: fmt.Sprintf("entry.%d.%s", i, e.Label()), Spec: spec, Entry: e})
	}
	return out, nil
}

type Dispatcher struct {
	cfg    Config
	sender MessageSender
	marker Marker
	log    logx.Logger

	mu      sync.Mutex
	eng     *engine.Service
	sched   *scheduler.Service
	started bool
}

func New(cfg Config, sender MessageSender, marker Marker, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg.withDefaults(),
		sender: sender,
		marker: marker,
		log:    log,
	}
}

// Start validates every entry, delivers the startup message if the marker is
// unset, then registers one trigger per entry. Either every trigger is
// registered or, on error, none is and nothing has been sent.
func (d *Dispatcher) Start(ctx context.Context, sc schedfile.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("dispatcher already started")
	}

	triggers, err := Triggers(sc)
	if err != nil {
		return err
	}
	if err := d.deliverStartup(ctx, sc); err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Workers:        d.cfg.Workers,
		QueueSize:      d.cfg.QueueSize,
		DefaultTimeout: d.cfg.SendTimeout,
		HistorySize:    d.cfg.HistorySize,
	}, d.log.With(logx.String("comp", "taskengine")))
	sched := scheduler.New(scheduler.Config{Location: d.cfg.Location}, eng, d.log.With(logx.String("comp", "scheduler")))

	for _, tr := range triggers {
		e := tr.Entry
		job := d.sendJob(tr.Name, sc.RecipientID, e.Body)
		if _, err := sched.AddWeekly(tr.Name, e.Weekday.Time(), e.Hour, e.Minute, d.cfg.SendTimeout, job); err != nil {
			return &DispatchError{Op: "register", Err: fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, tr.Name, err)}
		}
	}

	eng.Start(ctx)
	sched.Start(ctx)
	d.eng, d.sched, d.started = eng, sched, true

	for _, it := range sched.Snapshot().Schedules {
		d.log.Info("trigger registered", logx.String("trigger", it.Name), logx.String("spec", it.Spec), logx.Time("next", it.Next))
	}
	d.log.Info("dispatcher started", logx.Int("entries", len(triggers)), logx.Int64("recipient", sc.RecipientID))
	return nil
}

// deliverStartup sends the startup message at most once per marker lifetime.
// Check, send and set are separate steps: a crash between send and set sends
// the message again on the next start.
func (d *Dispatcher) deliverStartup(ctx context.Context, sc schedfile.Config) error {
	if sc.StartupMessage == nil {
		d.log.Debug("no startup message configured")
		return nil
	}

	sent, err := d.marker.IsSet(ctx)
	if err != nil {
		return &DispatchError{Op: "startup", Err: fmt.Errorf("%w: read: %w", ErrMarker, err)}
	}
	if sent {
		d.log.Info("startup message suppressed", logx.String("reason", "marker already set"))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err = d.sender.Send(sendCtx, sc.RecipientID, *sc.StartupMessage)
	cancel()
	if err != nil {
		serr := &SendError{Name: "startup", RecipientID: sc.RecipientID, Err: err}
		d.log.Error("startup message failed; marker left unset", logx.Err(serr))
		return nil
	}

	if err := d.marker.Set(ctx); err != nil {
		return &DispatchError{Op: "startup", Err: fmt.Errorf("%w: write: %w", ErrMarker, err)}
	}
	d.log.Info("startup message sent", logx.Int64("recipient", sc.RecipientID))
	return nil
}

func (d *Dispatcher) sendJob(name string, recipientID int64, body string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := d.sender.Send(ctx, recipientID, body); err != nil {
			serr := &SendError{Name: name, RecipientID: recipientID, Err: err}
			d.log.Error("scheduled message failed", logx.String("trigger", name), logx.Err(serr))
			return serr
		}
		d.log.Info("scheduled message sent", logx.String("trigger", name), logx.Int64("recipient", recipientID))
		return nil
	}
}

// Stop stops triggering and drains pending sends, bounded by ctx and the
// configured stop timeout.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	eng, sched := d.eng, d.sched
	d.eng, d.sched, d.started = nil, nil, false
	d.mu.Unlock()
	if sched == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.StopTimeout)
	defer cancel()
	sched.Stop(ctx)
	eng.Stop(ctx)

	snap := eng.Snapshot()
	d.log.Info("dispatcher stopped",
		logx.Uint64("sent", snap.Completed),
		logx.Uint64("failed", snap.Failed),
		logx.Int("in_flight", snap.InFlight),
		logx.Int("queued", snap.QueueLen),
	)
	for i := len(snap.History) - 1; i >= 0; i-- {
		if h := snap.History[i]; h.Error != "" {
			d.log.Warn("last failed send", logx.String("trigger", h.Name), logx.Time("at", h.Started), logx.String("err", h.Error))
			break
		}
	}
}

// Run starts the dispatcher and blocks until ctx is done, then stops it.
func (d *Dispatcher) Run(ctx context.Context, sc schedfile.Config) error {
	if err := d.Start(ctx, sc); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop(context.WithoutCancel(ctx))
	return nil
}

// Schedules lists the registered triggers with their next fire times.
func (d *Dispatcher) Schedules() []scheduler.ScheduleInfo {
	d.mu.Lock()
	sched := d.sched
	d.mu.Unlock()
	if sched == nil {
		return nil
	}
	return sched.Snapshot().Schedules
}
