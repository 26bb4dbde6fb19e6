package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// FileLogger logs audit events to a JSON-lines file
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu      sync.RWMutex
	file    *os.File
	encoder *json.Encoder
}

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // bytes; 0 disables rotation
	MaxBackups int   // rotated files kept; 0 keeps all
}

// rotatedSuffix sorts lexically in time order.
const rotatedSuffix = "20060102-150405.000000000"

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Path returns the active log file.
func (l *FileLogger) Path() string {
	return l.path
}

// Log appends an event, rotating first when the file has reached MaxSize.
func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log %s: %w", l.path, util.ErrNotConnected)
	}
	if l.rotation.MaxSize > 0 {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.rotation.MaxSize {
			if err := l.rotate(); err != nil {
				return fmt.Errorf("rotating audit log: %w", err)
			}
		}
	}
	return l.encoder.Encode(event)
}

// Query returns the events of the active file that match filter.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ReadFile(l.path, filter)
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	rotated := l.path + "." + time.Now().Format(rotatedSuffix)
	if err := os.Rename(l.path, rotated); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}
	if l.rotation.MaxBackups > 0 {
		l.pruneBackups()
	}
	return nil
}

func (l *FileLogger) pruneBackups() {
	backups, err := filepath.Glob(l.path + ".*")
	if err != nil || len(backups) <= l.rotation.MaxBackups {
		return
	}
	sort.Strings(backups)
	for _, path := range backups[:len(backups)-l.rotation.MaxBackups] {
		if err := os.Remove(path); err != nil {
			util.Warnf("audit: removing %s: %v", path, err)
		}
	}
}

// ReadFile reads the events in a JSON-lines audit file that match filter.
// A missing file has no events. Malformed lines are skipped.
func ReadFile(path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*Event{}, nil
		}
		return nil, err
	}
	defer file.Close()

	events := []*Event{}
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: skipping malformed entry at %s:%d: %v", path, lineNum, err)
			continue
		}
		if filter.matches(&event) {
			events = append(events, &event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []*Event{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (f Filter) matches(event *Event) bool {
	switch {
	case f.Device != "" && event.Device != f.Device:
		return false
	case f.User != "" && event.User != f.User:
		return false
	case f.Command != "" && !strings.HasPrefix(event.Command, f.Command):
		return false
	case !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime):
		return false
	case !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !event.Success:
		return false
	case f.FailureOnly && event.Success:
		return false
	}
	return true
}
