package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weekbot/internal/task/engine"
	logx "weekbot/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	// Location is the zone schedules are evaluated in; nil means time.Local.
	Location *time.Location
}

type scheduleDef struct {
	id      string
	name    string
	spec    string
	sched   cron.Schedule
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	loc *time.Location

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	// runCtx bounds blocking submits; canceled by Stop.
	runCtx    context.Context
	runCancel context.CancelFunc

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
