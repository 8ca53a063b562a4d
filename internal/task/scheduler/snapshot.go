package scheduler

import "time"

// Snapshot lists registered schedules in registration order. Next is taken
// from the running cron, or computed from now when the scheduler is stopped.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := make([]scheduleDef, len(s.defs))
	for i, d := range s.defs {
		defs[i] = *d
	}
	c := s.c
	s.mu.Unlock()

	now := time.Now().In(s.loc)
	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		if it.Next.IsZero() {
			it.Next = d.sched.Next(now)
		}
		items = append(items, it)
	}

	return Snapshot{
		Running:   c != nil,
		Timezone:  s.loc.String(),
		Schedules: items,
	}
}
