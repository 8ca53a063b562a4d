package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rtsup "weekbot/internal/runtime/supervisor"
	logx "weekbot/pkg/logx"
)

type Service struct {
	cfg Config
	log logx.Logger

	mu  sync.Mutex
	gen *generation

	hmu     sync.Mutex
	history []HistoryItem

	inFlight  atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
}

// generation is one Start..Stop cycle of the worker pool.
type generation struct {
	queue    chan queuedTask
	sup      *rtsup.Supervisor
	closing  chan struct{} // closed by Stop
	done     chan struct{} // closed when every worker returned
	stopping bool
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg.withDefaults(),
		log: log,
	}
}

// Start launches the worker pool. Calling it while running is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != nil {
		return
	}

	g := &generation{
		queue:   make(chan queuedTask, s.cfg.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	// Workers outlive the caller's ctx; Stop is the only way to end them.
	g.sup = rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(s.log))
	for i := range s.cfg.Workers {
		g.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.worker(c, g.closing, g.queue)
			select {
			case <-g.closing:
				return nil
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	go func() {
		_ = g.sup.Wait(context.Background())
		s.mu.Lock()
		if s.gen == g {
			s.gen = nil
		}
		s.mu.Unlock()
		close(g.done)
	}()
	s.gen = g

	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop refuses new work and lets workers drain the queue. If ctx ends first,
// in-flight tasks are canceled and Stop returns without waiting further.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	g := s.gen
	if g == nil {
		s.mu.Unlock()
		return
	}
	first := !g.stopping
	if first {
		g.stopping = true
		close(g.closing)
	}
	s.mu.Unlock()

	select {
	case <-g.done:
		if first {
			s.log.Info("task engine stopped")
		}
	case <-ctx.Done():
		g.sup.Cancel()
		s.log.Warn("task engine stop timed out; canceling in-flight tasks", logx.Err(ctx.Err()))
	}
}

// Submit blocks until t is queued, ctx is done or the engine stops. Every
// submission runs, even while an earlier one with the same name is in flight.
func (s *Service) Submit(ctx context.Context, t Task) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("task Name is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	g := s.gen
	s.mu.Unlock()
	switch {
	case g == nil:
		return ErrStopped
	case isClosed(g.closing):
		return ErrStopping
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	qt := queuedTask{task: t, enqueuedAt: time.Now(), timeout: timeout}
	select {
	case g.queue <- qt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.closing:
		return ErrStopping
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	g := s.gen
	s.mu.Unlock()

	snap := Snapshot{
		Workers:        s.cfg.Workers,
		InFlight:       int(s.inFlight.Load()),
		Completed:      s.completed.Load(),
		Failed:         s.failed.Load(),
		DefaultTimeout: s.cfg.DefaultTimeout,
	}
	if g != nil {
		snap.Running = !isClosed(g.closing)
		snap.QueueLen = len(g.queue)
		snap.QueueCap = cap(g.queue)
	}

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) record(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if n := s.cfg.HistorySize; len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
}
