package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"weekbot/internal/schedfile"
	"weekbot/internal/storage"
	"weekbot/internal/task/engine"
	logx "weekbot/pkg/logx"
)

type sentMessage struct {
	to   int64
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	ch   chan sentMessage
}

func newFakeSender() *fakeSender { return &fakeSender{ch: make(chan sentMessage, 16)} }

func (f *fakeSender) Send(_ context.Context, to int64, text string) error {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.sent = append(f.sent, sentMessage{to: to, text: text})
	}
	f.mu.Unlock()
	if err == nil {
		f.ch <- sentMessage{to: to, text: text}
	}
	return err
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeMarker struct {
	mu     sync.Mutex
	set    bool
	getErr error
	setErr error
	sets   int
}

func (m *fakeMarker) IsSet(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set, m.getErr
}

func (m *fakeMarker) Set(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.set = true
	m.sets++
	return nil
}

func strptr(s string) *string { return &s }

func startDispatcher(t *testing.T, sc schedfile.Config, sender MessageSender, marker Marker) (*Dispatcher, error) {
	t.Helper()
	d := New(Config{Workers: 2, SendTimeout: time.Second, StopTimeout: time.Second}, sender, marker, logx.Nop())
	err := d.Start(context.Background(), sc)
	t.Cleanup(func() { d.Stop(context.Background()) })
	return d, err
}

// fireAt stands in for the clock: every registered trigger due at the given
// weekly time has its send job submitted to the running engine.
func fireAt(t *testing.T, d *Dispatcher, sc schedfile.Config, spec string) int {
	t.Helper()
	triggers, err := Triggers(sc)
	if err != nil {
		t.Fatalf("Triggers: %v", err)
	}
	registered := map[string]bool{}
	for _, it := range d.Schedules() {
		registered[it.Name] = it.Spec == spec
	}
	fired := 0
	for _, tr := range triggers {
		if !registered[tr.Name] {
			continue
		}
		task := engine.Task{Name: tr.Name, Run: d.sendJob(tr.Name, sc.RecipientID, tr.Entry.Body)}
		if err := d.eng.Submit(context.Background(), task); err != nil {
			t.Fatalf("Submit(%s): %v", tr.Name, err)
		}
		fired++
	}
	return fired
}

func receive(t *testing.T, f *fakeSender, n int) []sentMessage {
	t.Helper()
	var out []sentMessage
	for len(out) < n {
		select {
		case m := <-f.ch:
			out = append(out, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d sends", len(out), n)
		}
	}
	return out
}

func TestScenarioStartupAndWeeklyEntry(t *testing.T) {
	t.Parallel()
	sc, err := schedfile.Parse("USER_ID=42\nBOT_TOKEN=abc\nSTART_MESSAGE=\"\"\"Hello\"\"\"\nTUE-08:30-\"Good morning\"\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := newFakeSender()
	marker := &fakeMarker{}

	d, err := startDispatcher(t, sc, sender, marker)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sender.messages(); len(got) != 1 || got[0] != (sentMessage{to: 42, text: "Hello"}) {
		t.Fatalf("startup sends = %+v", got)
	}
	<-sender.ch
	if !marker.set {
		t.Fatal("marker not set after startup send")
	}

	scheds := d.Schedules()
	if len(scheds) != 1 || scheds[0].Spec != "30 8 * * 2" {
		t.Fatalf("schedules = %+v", scheds)
	}
	if next := scheds[0].Next; next.Weekday() != time.Tuesday || next.Hour() != 8 || next.Minute() != 30 {
		t.Fatalf("next fire = %s, want Tuesday 08:30", next)
	}

	if n := fireAt(t, d, sc, "30 8 * * 2"); n != 1 {
		t.Fatalf("fired %d triggers, want 1", n)
	}
	got := receive(t, sender, 1)
	if got[0] != (sentMessage{to: 42, text: "Good morning"}) {
		t.Fatalf("scheduled send = %+v", got[0])
	}
}

func TestSameTimeEntriesFireIndependently(t *testing.T) {
	t.Parallel()
	sc := schedfile.Config{
		RecipientID: 7,
		Credential:  "t",
		Entries: []schedfile.Entry{
			{Weekday: schedfile.Monday, Hour: 9, Minute: 0, Body: "Hi"},
			{Weekday: schedfile.Monday, Hour: 9, Minute: 0, Body: "Bye"},
		},
	}
	sender := newFakeSender()
	d, err := startDispatcher(t, sc, sender, &fakeMarker{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(d.Schedules()) != 2 {
		t.Fatalf("schedules = %+v, want 2", d.Schedules())
	}

	if n := fireAt(t, d, sc, "0 9 * * 1"); n != 2 {
		t.Fatalf("fired %d triggers, want 2", n)
	}
	got := receive(t, sender, 2)
	texts := []string{got[0].text, got[1].text}
	sort.Strings(texts)
	if texts[0] != "Bye" || texts[1] != "Hi" {
		t.Fatalf("sent %v, want Bye and Hi", texts)
	}
}

func TestStartupMessageOnceAcrossRuns(t *testing.T) {
	t.Parallel()
	store, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	marker := storage.NewMarker(store, storage.StartupMarkerKey)
	sc := schedfile.Config{RecipientID: 1, Credential: "t", StartupMessage: strptr("boot")}

	sender := newFakeSender()
	for run := 0; run < 3; run++ {
		d := New(Config{}, sender, marker, logx.Nop())
		if err := d.Start(context.Background(), sc); err != nil {
			t.Fatalf("run %d Start: %v", run, err)
		}
		d.Stop(context.Background())
	}
	if got := sender.messages(); len(got) != 1 || got[0].text != "boot" {
		t.Fatalf("startup sends = %+v, want exactly one", got)
	}
}

func TestStartupMessageForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		msg       *string
		markerSet bool
		wantSends int
		wantSet   bool
	}{
		{name: "no startup message", msg: nil, wantSends: 0, wantSet: false},
		{name: "empty startup message is still sent", msg: strptr(""), wantSends: 1, wantSet: true},
		{name: "marker already set", msg: strptr("hi"), markerSet: true, wantSends: 0, wantSet: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := newFakeSender()
			marker := &fakeMarker{set: tt.markerSet}
			if _, err := startDispatcher(t, schedfile.Config{RecipientID: 1, Credential: "t", StartupMessage: tt.msg}, sender, marker); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if got := len(sender.messages()); got != tt.wantSends {
				t.Fatalf("sends = %d, want %d", got, tt.wantSends)
			}
			if marker.set != tt.wantSet {
				t.Fatalf("marker set = %v, want %v", marker.set, tt.wantSet)
			}
		})
	}
}

func TestStartupSendFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	sender.err = errors.New("network down")
	marker := &fakeMarker{}
	sc := schedfile.Config{
		RecipientID:    1,
		Credential:     "t",
		StartupMessage: strptr("hi"),
		Entries:        []schedfile.Entry{{Weekday: schedfile.Friday, Hour: 17, Minute: 0, Body: "weekend"}},
	}

	d, err := startDispatcher(t, sc, sender, marker)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if marker.set {
		t.Fatal("marker must stay unset after a failed startup send")
	}
	if len(d.Schedules()) != 1 {
		t.Fatalf("schedules = %d, want 1", len(d.Schedules()))
	}
}

func TestMarkerFailuresAreFatal(t *testing.T) {
	t.Parallel()
	sc := schedfile.Config{
		RecipientID:    1,
		Credential:     "t",
		StartupMessage: strptr("hi"),
		Entries:        []schedfile.Entry{{Weekday: schedfile.Monday, Hour: 9, Minute: 0, Body: "x"}},
	}
	tests := []struct {
		name   string
		marker *fakeMarker
	}{
		{name: "read", marker: &fakeMarker{getErr: errors.New("disk gone")}},
		{name: "write", marker: &fakeMarker{setErr: errors.New("read-only")}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := startDispatcher(t, sc, newFakeSender(), tt.marker)
			if !errors.Is(err, ErrMarker) {
				t.Fatalf("err = %v, want ErrMarker", err)
			}
			var de *DispatchError
			if !errors.As(err, &de) {
				t.Fatalf("err %T is not *DispatchError", err)
			}
			if got := d.Schedules(); len(got) != 0 {
				t.Fatalf("registered %d triggers after fatal error", len(got))
			}
		})
	}
}

func TestInvalidScheduleRegistersNothing(t *testing.T) {
	t.Parallel()
	sc := schedfile.Config{
		RecipientID:    1,
		Credential:     "t",
		StartupMessage: strptr("hi"),
		Entries: []schedfile.Entry{
			{Weekday: schedfile.Monday, Hour: 9, Minute: 0, Body: "ok"},
			{Weekday: schedfile.Tuesday, Hour: 25, Minute: 0, Body: "bad hour"},
		},
	}
	sender := newFakeSender()
	marker := &fakeMarker{}
	d, err := startDispatcher(t, sc, sender, marker)
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if len(sender.messages()) != 0 || marker.set {
		t.Fatal("nothing may be sent when the schedule is invalid")
	}
	if len(d.Schedules()) != 0 {
		t.Fatal("no trigger may be registered when the schedule is invalid")
	}
}

func TestScheduledSendFailureKeepsRunning(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	sc := schedfile.Config{
		RecipientID: 3,
		Credential:  "t",
		Entries:     []schedfile.Entry{{Weekday: schedfile.Sunday, Hour: 10, Minute: 0, Body: "ping"}},
	}
	d, err := startDispatcher(t, sc, sender, &fakeMarker{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	sender.mu.Lock()
	sender.err = errors.New("flaky")
	sender.mu.Unlock()
	if n := fireAt(t, d, sc, "0 10 * * 0"); n != 1 {
		t.Fatalf("fired %d, want 1", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.eng.Snapshot().Failed == 0 {
		if time.Now().After(deadline) {
			t.Fatal("failed send never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	fireAt(t, d, sc, "0 10 * * 0")
	if got := receive(t, sender, 1); got[0].text != "ping" {
		t.Fatalf("send after failure = %+v", got[0])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	d := New(Config{}, newFakeSender(), &fakeMarker{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, schedfile.Config{RecipientID: 1, Credential: "t"})
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()
	sc := schedfile.Config{
		RecipientID: 1,
		Credential:  "t",
		Entries:     []schedfile.Entry{{Weekday: schedfile.Sunday, Hour: 0, Minute: 5, Body: "x"}},
	}
	// 2024-01-01 is a Monday.
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	plan, err := Plan(sc, time.UTC, from, 2)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].Name != "entry.0.SUN-00:05" {
		t.Fatalf("plan = %+v", plan)
	}
	want := time.Date(2024, 1, 7, 0, 5, 0, 0, time.UTC)
	if len(plan[0].Next) != 2 || !plan[0].Next[0].Equal(want) || !plan[0].Next[1].Equal(want.AddDate(0, 0, 7)) {
		t.Fatalf("next = %v", plan[0].Next)
	}

	sc.Entries[0].Minute = 60
	if _, err := Plan(sc, time.UTC, from, 1); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
}
