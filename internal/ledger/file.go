package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is the poll interval while another process holds the log
const lockRetry = 20 * time.Millisecond

// FileStore is a JSON-lines event log (one Event per line).
// Seq is the 1-based line number.
type FileStore struct {
	path string
	mu   sync.Mutex

	writer   sync.Mutex // one Lock holder per process
	fileLock *flock.Flock
}

// NewFileStore opens (or creates) the log at path. Writers coordinate
// through an advisory lock on <path>.lock.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	_ = f.Close()
	return &FileStore{path: path, fileLock: flock.New(path + ".lock")}, nil
}

// Path returns the log location
func (s *FileStore) Path() string {
	return s.path
}

// Lock blocks until this process owns the log's writer lock or ctx ends
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	s.writer.Lock()
	locked, err := s.fileLock.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		s.writer.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("lock ledger: %w", err)
	}

	var once sync.Once
	return func() error {
		var uerr error
		once.Do(func() {
			uerr = s.fileLock.Unlock()
			s.writer.Unlock()
		})
		if uerr != nil {
			return fmt.Errorf("unlock ledger: %w", uerr)
		}
		return nil
	}, nil
}

// Append writes events as one buffered write followed by fsync. A torn
// final line left by a crashed writer is cut off first so the new events
// start on a fresh line. Duplicate checks belong to the Lock holder, so
// every event is reported stored.
func (s *FileStore) Append(ctx context.Context, events []Event) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("encode %s event for %s: %w", ev.Event, ev.Pick.PickID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	if err := trimTornTail(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("repair ledger tail: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	stored := make([]bool, len(events))
	for i := range stored {
		stored[i] = true
	}
	return stored, nil
}

// trimTornTail truncates the file back to its last newline
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	const chunk = 4096
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
			return err
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			cut := start + int64(i) + 1
			if cut == size {
				return nil
			}
			return f.Truncate(cut)
		}
		end = start
	}
	return f.Truncate(0)
}

// Events reads the whole log. A final line without its newline (crash
// mid-append) is ignored; a malformed line anywhere else is an error.
func (s *FileStore) Events(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var events []Event
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("read ledger: %w", readErr)
		}
		complete := len(line) > 0 && line[len(line)-1] == '\n'
		line = bytes.TrimSpace(line)

		if !complete && readErr == io.EOF {
			break // never acknowledged; the next Append cuts it off
		}
		if len(line) > 0 {
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				return nil, fmt.Errorf("ledger line %d: %w", lineNo, err)
			}
			ev.Seq = int64(lineNo)
			events = append(events, ev)
		}

		if readErr == io.EOF {
			break
		}
	}
	return events, nil
}

// Close releases the lock handle; the log is opened per call
func (s *FileStore) Close() error {
	return s.fileLock.Close()
}
