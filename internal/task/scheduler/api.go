package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"weekbot/internal/task/engine"
	logx "weekbot/pkg/logx"
)

// AddWeekly registers a schedule firing every week on weekday at hour:minute
// in the scheduler's zone, replacing any schedule with the same name.
func (s *Service) AddWeekly(name string, weekday time.Weekday, hour, minute int, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	spec, err := WeeklySpec(weekday, hour, minute)
	if err != nil {
		return "", err
	}
	return s.add(name, spec, timeout, job)
}

// add registers spec under name. The cron expression is parsed up front, so
// an invalid one registers nothing.
func (s *Service) add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	sched, err := s.parse(spec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{
		id:      uuid.NewString(),
		name:    name,
		spec:    strings.TrimSpace(spec),
		sched:   sched,
		timeout: timeout,
		job:     job,
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}

	args := []logx.Field{logx.String("name", name), logx.String("spec", d.spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRuns(d.spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return name, nil
}

func (s *Service) removeLocked(name string) {
	n := 0
	for _, d := range s.defs {
		if d.name != name {
			s.defs[n] = d
			n++
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
	}
	clear(s.defs[n:])
	s.defs = s.defs[:n]
}

// addCronLocked hands d to the running cron. Call with s.mu held.
func (s *Service) addCronLocked(d *scheduleDef) {
	ctx := s.runCtx
	d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() {
		if err := s.submit(ctx, d); err != nil {
			s.reportEnqueueError(d.name, err)
		}
	}))
}

// submit blocks until the engine accepts the task so no occurrence is lost
// to a momentarily full queue.
func (s *Service) submit(ctx context.Context, d *scheduleDef) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Submit(ctx, engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
	})
}
