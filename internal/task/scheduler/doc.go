// Package scheduler registers recurring cron triggers and computes their fire
// times.
//
// The scheduler only triggers. Each firing is submitted to the task engine,
// which executes it:
//   - registering schedules (upsert by name)
//   - computing next trigger times
//   - submitting tasks into the engine
package scheduler
