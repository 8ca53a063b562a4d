package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"weekbot/internal/task/engine"
	logx "weekbot/pkg/logx"
)

func noopJob(context.Context) error { return nil }

func TestWeeklySpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		weekday time.Weekday
		hour    int
		minute  int
		want    string
		wantErr bool
	}{
		{name: "tuesday morning", weekday: time.Tuesday, hour: 8, minute: 30, want: "30 8 * * 2"},
		{name: "sunday midnight", weekday: time.Sunday, hour: 0, minute: 0, want: "0 0 * * 0"},
		{name: "saturday late", weekday: time.Saturday, hour: 23, minute: 59, want: "59 23 * * 6"},
		{name: "hour too big", weekday: time.Monday, hour: 24, minute: 0, wantErr: true},
		{name: "minute too big", weekday: time.Monday, hour: 9, minute: 60, wantErr: true},
		{name: "negative", weekday: time.Monday, hour: -1, minute: 0, wantErr: true},
		{name: "bad weekday", weekday: time.Weekday(7), hour: 9, minute: 0, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := WeeklySpec(tt.weekday, tt.hour, tt.minute)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("WeeklySpec = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("WeeklySpec error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("WeeklySpec = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextRunsWeekly(t *testing.T) {
	t.Parallel()
	s := New(Config{Location: time.UTC}, nil, logx.Nop())

	// 2024-01-01 is a Monday.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runs, err := s.NextRuns("30 8 * * 2", from, 3)
	if err != nil {
		t.Fatalf("NextRuns error: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 9, 8, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 8, 30, 0, 0, time.UTC),
	}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d", len(runs), len(want))
	}
	for i := range want {
		if !runs[i].Equal(want[i]) {
			t.Fatalf("run %d = %s, want %s", i, runs[i], want[i])
		}
	}

	// A fire time equal to from is not returned.
	runs, err = s.NextRuns("30 8 * * 2", want[0], 1)
	if err != nil || !runs[0].Equal(want[1]) {
		t.Fatalf("NextRuns from a fire time = %v, %v; want %s", runs, err, want[1])
	}
}

func TestAddRejectsInvalidSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	for _, spec := range []string{"", "61 9 * * 1", "0 25 * * 1", "not a spec"} {
		if _, err := s.add("bad", spec, 0, noopJob); err == nil {
			t.Fatalf("add(%q) expected error", spec)
		}
	}
	if _, err := s.AddWeekly("bad", time.Monday, 24, 0, 0, noopJob); err == nil {
		t.Fatal("AddWeekly expected error for hour 24")
	}
	if _, err := s.AddWeekly("bad", time.Monday, 9, 0, 0, nil); err == nil {
		t.Fatal("AddWeekly expected error for a nil job")
	}
	if got := len(s.Snapshot().Schedules); got != 0 {
		t.Fatalf("schedules = %d, want 0", got)
	}
}

func TestAddWeeklyReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Location: time.UTC}, nil, logx.Nop())
	if _, err := s.AddWeekly("job", time.Monday, 9, 0, 0, noopJob); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddWeekly("job", time.Monday, 10, 0, 0, noopJob); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddWeekly("other", time.Monday, 10, 0, 0, noopJob); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 2 || snap.Running || snap.Timezone != "UTC" {
		t.Fatalf("snapshot = %+v, want 2 stopped UTC schedules", snap)
	}
	if snap.Schedules[0].Name != "job" || snap.Schedules[0].Spec != "0 10 * * 1" {
		t.Fatalf("first schedule = %+v, want job replaced with 0 10 * * 1", snap.Schedules[0])
	}
	if next := snap.Schedules[0].Next; next.Weekday() != time.Monday || next.Hour() != 10 {
		t.Fatalf("Next = %s, want a Monday 10:00 fire time", next)
	}
}

// A job stuck until its timeout on the only worker must not stop another
// schedule from firing on every tick of the real cron clock.
func TestCronFiresWhileAnotherJobIsSlow(t *testing.T) {
	t.Parallel()
	eng := engine.New(engine.Config{Workers: 1}, logx.Nop())
	eng.Start(context.Background())
	defer eng.Stop(context.Background())

	s := New(Config{}, eng, logx.Nop())
	var slow, fast atomic.Int32
	if _, err := s.add("slow", "* * * * * *", 300*time.Millisecond, func(ctx context.Context) error {
		slow.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("add slow: %v", err)
	}
	if _, err := s.add("fast", "* * * * * *", time.Second, func(context.Context) error {
		fast.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("add fast: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())
	if !s.Snapshot().Running {
		t.Fatal("scheduler not running after Start")
	}

	deadline := time.Now().Add(4 * time.Second)
	for fast.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("fast fired %d times in 4s (slow=%d), want at least 2", fast.Load(), slow.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if slow.Load() == 0 {
		t.Fatal("slow job never ran")
	}
	t.Logf("slow=%d fast=%d", slow.Load(), fast.Load())
}

func TestStartStopWithoutEngine(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	if s.Snapshot().Running {
		t.Fatal("scheduler still running after Stop")
	}
	if err := s.submit(context.Background(), &scheduleDef{name: "x", job: noopJob}); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("submit without engine err = %v, want ErrStopped", err)
	}
}
