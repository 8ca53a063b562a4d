package dispatch

import (
	"time"

	"weekbot/internal/schedfile"
	"weekbot/internal/task/scheduler"
	logx "weekbot/pkg/logx"
)

// PlannedTrigger is a trigger with its upcoming fire times.
type PlannedTrigger struct {
	Trigger
	Next []time.Time
}

// Plan computes the next n fire times of every entry after from, without
// sending or registering anything.
func Plan(sc schedfile.Config, loc *time.Location, from time.Time, n int) ([]PlannedTrigger, error) {
	triggers, err := Triggers(sc)
	if err != nil {
		return nil, err
	}
	calc := scheduler.New(scheduler.Config{Location: loc}, nil, logx.Nop())
	out := make([]PlannedTrigger, 0, len(triggers))
	for _, tr := range triggers {
		next, err := calc.NextRuns(tr.Spec, from, n)
		if err != nil {
			return nil, &DispatchError{Op: "plan", Err: err}
		}
		out = append(out, PlannedTrigger{Trigger: tr, Next: next})
	}
	return out, nil
}
