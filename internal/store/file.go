package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nhle/mailreply/internal/ratelimit"
)

// FileStore keeps the request history in a JSON file mapping each sender
// to a list of unix timestamps:
//
//	{
//	    "a@example.com": [1717000000, 1717003600]
//	}
//
// Every Update rewrites the file through a temporary file and a rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens the history file at path, creating its directory and
// an empty history when the file does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("request history file path is empty")
	}

	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(ratelimit.History{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking request history %s: %w", path, err)
	}

	return s, nil
}

// Path returns the history file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the history file.
func (s *FileStore) Load(_ context.Context) (ratelimit.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the stored history and writes the result. A corrupt
// file is replaced by what fn builds from an empty history.
func (s *FileStore) Update(_ context.Context, fn func(ratelimit.History) (ratelimit.History, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.read()
	if errors.Is(err, ErrCorruptHistory) {
		h = ratelimit.History{}
	} else if err != nil {
		return err
	}

	next, err := fn(h)
	if err != nil {
		return err
	}
	return s.write(next)
}

// Close is a no-op; the file is only open during reads and writes.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() (ratelimit.History, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ratelimit.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading request history %s: %w", s.path, err)
	}

	data = bytes.TrimSpace(data)
	// An empty history has been written as [] historically.
	if len(data) == 0 || bytes.Equal(data, []byte("[]")) {
		return ratelimit.History{}, nil
	}

	var raw map[string][]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptHistory, s.path, err)
	}

	h := make(ratelimit.History, len(raw))
	for sender, stamps := range raw {
		times := make([]time.Time, 0, len(stamps))
		for _, ts := range stamps {
			times = append(times, time.Unix(ts, 0))
		}
		h[sender] = times
	}
	return h, nil
}

func (s *FileStore) write(h ratelimit.History) error {
	raw := make(map[string][]int64, len(h))
	for sender, stamps := range h {
		unix := make([]int64, 0, len(stamps))
		for _, ts := range stamps {
			unix = append(unix, ts.Unix())
		}
		raw[sender] = unix
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding request history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".request_history-*.json")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing request history %s: %w", s.path, err)
	}

	return nil
}
