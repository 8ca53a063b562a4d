package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "weekbot/pkg/logx"
)

// WeeklySpec builds the 5-field cron spec firing every week on weekday at
// hour:minute. Out-of-range values are rejected rather than clamped.
func WeeklySpec(weekday time.Weekday, hour, minute int) (string, error) {
	if weekday < time.Sunday || weekday > time.Saturday {
		return "", fmt.Errorf("invalid weekday %d", int(weekday))
	}
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %d (want 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %d (want 0-59)", minute)
	}
	// Cron day-of-week numbering matches time.Weekday (Sunday=0).
	return fmt.Sprintf("%d %d * * %d", minute, hour, int(weekday)), nil
}

// NextRuns returns the next n fire times of spec strictly after from, in the
// scheduler's zone.
func (s *Service) NextRuns(spec string, from time.Time, n int) ([]time.Time, error) {
	sched, err := s.parse(spec)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, max(n, 0))
	t := from.In(s.loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("schedule required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return sched, nil
}

// previewNextRuns returns a short list of upcoming run times for debug logs.
func (s *Service) previewNextRuns(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	runs, err := s.NextRuns(spec, time.Now(), n)
	if err != nil {
		return ""
	}
	parts := make([]string, len(runs))
	for i, t := range runs {
		parts[i] = t.Format("2006-01-02 15:04:05")
	}
	return strings.Join(parts, ", ")
}
