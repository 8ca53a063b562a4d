package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "weekbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, closing <-chan struct{}, queue chan queuedTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-closing:
			s.drain(ctx, queue)
			return
		case qt := <-queue:
			s.execOne(ctx, qt)
		}
	}
}

// drain runs whatever is still queued after Stop, until the queue is empty or
// ctx is canceled.
func (s *Service) drain(ctx context.Context, queue chan queuedTask) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case qt := <-queue:
			s.execOne(ctx, qt)
		default:
			return
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	s.log.Debug("task.started", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay))

	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return qt.task.Run(runCtx)
	}()

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.failed.Add(1)
		s.log.Warn("task.failed", logx.String("task", qt.task.Name), logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else {
		s.completed.Add(1)
		if dur >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		} else {
			s.log.Debug("task.completed", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		}
	}
	s.record(item)
}
