// Package audit records the admin commands run against a switch.
package audit

import (
	"fmt"
	"time"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Event is one console command and its outcome.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Device    string        `json:"device"`
	Command   string        `json:"command"`
	Remote    string        `json:"remote,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Kind      string        `json:"kind,omitempty"` // error class, e.g. "not-found"
	Duration  time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Command     string // matches events whose command starts with it
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, command string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Command:   command,
	}
}

// WithRemote sets the client address
func (e *Event) WithRemote(remote string) *Event {
	e.Remote = remote
	return e
}

// WithResult marks the event successful when err is nil and failed
// otherwise.
func (e *Event) WithResult(err error) *Event {
	if err == nil {
		e.Success = true
		e.Error = ""
		e.Kind = ""
		return e
	}
	e.Success = false
	e.Error = err.Error()
	e.Kind = util.ErrorKind(err)
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
