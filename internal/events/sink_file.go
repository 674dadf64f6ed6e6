package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var errSinkClosed = errors.New("sink closed")

// FileSink appends one JSON object per line. Writes are unbuffered, so a crash loses at most
// the event being written.
type FileSink struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileSink(path string) (*FileSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file sink requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file sink dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file sink open: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &FileSink{path: path, f: f, enc: enc}, nil
}

func (s *FileSink) Name() string { return "file:" + s.path }

func (s *FileSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errSinkClosed
	}
	// Encode writes the trailing newline.
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("append %s: %w", s.path, err)
	}
	return nil
}

// Close syncs and closes the file. Later calls are no-ops.
func (s *FileSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f, s.enc = nil, nil
	return errors.Join(f.Sync(), f.Close())
}
