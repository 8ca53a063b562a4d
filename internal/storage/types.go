package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": flag files under Path (a directory, default ".")
//   - "sqlite": SQLite database file at Path
//   - "memory": non-persistent
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API used by the dispatcher.
// Flags are set once and never cleared.
type Store interface {
	FlagSet(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string) error
	Close() error
}
