package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	logx "weekbot/pkg/logx"
)

const flagFileContent = "sent"

// fileStore keeps one file per flag:
//
//	<dir>/<key>.flag   (content: "sent")
//
// Presence of the file means the flag is set; its content is informational.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	dir    string
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("storage path %q is not a directory", dir)
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) flagPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("flag key required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid flag key %q", key)
	}
	return filepath.Join(s.dir, key+".flag"), nil
}

func (s *fileStore) FlagSet(ctx context.Context, key string) (bool, error) {
	_ = ctx
	path, err := s.flagPath(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *fileStore) SetFlag(ctx context.Context, key string) error {
	_ = ctx
	path, err := s.flagPath(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// Write via temp file + rename so a crash never leaves a half-written flag.
	if err := atomic.WriteFile(path, strings.NewReader(flagFileContent)); err != nil {
		return err
	}
	s.log.Debug("flag set", logx.String("key", key), logx.String("path", path))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
