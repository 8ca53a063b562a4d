package app

import (
	"fmt"
	"time"

	"weekbot/internal/config"
	"weekbot/internal/dispatch"
	"weekbot/internal/schedfile"
)

// CheckResult is a validated schedule with its upcoming fire times.
type CheckResult struct {
	Path     string
	Schedule schedfile.Config
	Plan     []dispatch.PlannedTrigger
}

// Check parses the settings and the schedule file and previews the next n
// runs of every entry in the local zone. It opens no storage and sends nothing.
func Check(opts Options, from time.Time, n int) (CheckResult, error) {
	if err := config.LoadDotEnv(opts.EnvPath); err != nil {
		return CheckResult{}, fmt.Errorf("load env %s: %w", opts.EnvPath, err)
	}
	cfg, err := config.NewConfigManager(opts.SettingsPath).Parse()
	if err != nil {
		return CheckResult{}, err
	}
	path := schedulePath(opts, cfg)
	sc, err := schedfile.ParseFile(path)
	if err != nil {
		return CheckResult{}, err
	}
	plan, err := dispatch.Plan(sc, time.Local, from, n)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Path: path, Schedule: sc, Plan: plan}, nil
}
