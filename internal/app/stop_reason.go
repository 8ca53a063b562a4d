package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopShutdown   StopReason = "shutdown"
	StopFatalError StopReason = "fatal_error"
)
