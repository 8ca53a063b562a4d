package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule marks an entry whose weekday, hour or minute cannot
	// become a weekly trigger.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrMarker marks a startup marker that could not be read or written.
	ErrMarker = errors.New("startup marker")
)

// DispatchError is fatal: the dispatcher refused to start and nothing was
// registered.
type DispatchError struct {
	Op  string
	Err error
}

func (e *DispatchError) Error() string { return "dispatch " + e.Op + ": " + e.Err.Error() }

func (e *DispatchError) Unwrap() error { return e.Err }

// SendError reports one failed delivery. It is logged, never fatal.
type SendError struct {
	Name        string
	RecipientID int64
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s to %d: %v", e.Name, e.RecipientID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
