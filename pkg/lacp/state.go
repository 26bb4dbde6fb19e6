// Package lacp implements the per-port IEEE 802.1AX Link Aggregation Control
// Protocol actor: the LACPDU codec, the receive and mux state machines and
// the protocol timers.
package lacp

import (
	"fmt"
	"strings"
	"time"
)

// Protocol timers (802.1AX 6.4.4).
const (
	FastPeriodicTime = 1 * time.Second
	SlowPeriodicTime = 30 * time.Second
	ShortTimeoutTime = 3 * FastPeriodicTime
	LongTimeoutTime  = 3 * SlowPeriodicTime
)

// State is the LACP port state octet carried in every LACPDU.
type State uint8

const (
	StateActivity State = 1 << iota
	StateTimeout
	StateAggregation
	StateSync
	StateCollecting
	StateDistributing
	StateDefaulted
	StateExpired
)

// Has reports whether all of bits are set.
func (s State) Has(bits State) bool { return s&bits == bits }

// Set sets bits.
func (s *State) Set(bits State) { *s |= bits }

// Clear clears bits.
func (s *State) Clear(bits State) { *s &^= bits }

// SetTo sets or clears bits.
func (s *State) SetTo(bits State, on bool) {
	if on {
		s.Set(bits)
	} else {
		s.Clear(bits)
	}
}

// String renders the state in the switch CLI legend:
//
//	A/P active/passive, S/L short/long timeout, F/I aggregable/individual,
//	N/O in sync/out of sync, C collecting, D distributing,
//	X state machine expired, E default neighbor state.
func (s State) String() string {
	var b strings.Builder
	b.WriteString(pick(s.Has(StateActivity), "A", "P"))
	b.WriteString(pick(s.Has(StateTimeout), "S", "L"))
	b.WriteString(pick(s.Has(StateAggregation), "F", "I"))
	b.WriteString(pick(s.Has(StateSync), "N", "O"))
	if s.Has(StateCollecting) {
		b.WriteByte('C')
	}
	if s.Has(StateDistributing) {
		b.WriteByte('D')
	}
	if s.Has(StateExpired) {
		b.WriteByte('X')
	}
	if s.Has(StateDefaulted) {
		b.WriteByte('E')
	}
	return b.String()
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// Mode is the configured aggregation mode of a LAG.
type Mode int

const (
	ModeActive Mode = iota + 1
	ModePassive
	// ModeStatic bundles members without running LACP.
	ModeStatic
)

func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModePassive:
		return "passive"
	case ModeStatic:
		return "static"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Dynamic reports whether the mode runs LACP.
func (m Mode) Dynamic() bool { return m == ModeActive || m == ModePassive }

// ParseMode parses "active", "passive", "static" (and "on" as static).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return ModeActive, nil
	case "passive":
		return ModePassive, nil
	case "static", "on":
		return ModeStatic, nil
	default:
		return 0, fmt.Errorf("invalid LAG mode %q (want active, passive or static)", s)
	}
}

// Rate is the LACPDU rate an actor asks its partner to use.
type Rate int

const (
	RateSlow Rate = iota
	RateFast
)

func (r Rate) String() string {
	if r == RateFast {
		return "fast"
	}
	return "slow"
}

// ParseRate parses "fast" or "slow".
func ParseRate(s string) (Rate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return RateFast, nil
	case "slow", "":
		return RateSlow, nil
	default:
		return 0, fmt.Errorf("invalid LACP rate %q (want fast or slow)", s)
	}
}

// RxState is the receive machine state (802.1AX 6.4.12).
type RxState int

const (
	RxInitialize RxState = iota
	RxPortDisabled
	RxExpired
	RxDefaulted
	RxCurrent
)

func (s RxState) String() string {
	switch s {
	case RxInitialize:
		return "INITIALIZE"
	case RxPortDisabled:
		return "PORT_DISABLED"
	case RxExpired:
		return "EXPIRED"
	case RxDefaulted:
		return "DEFAULTED"
	case RxCurrent:
		return "CURRENT"
	default:
		return fmt.Sprintf("RX(%d)", int(s))
	}
}

// MuxState is the coupled-control mux machine state (802.1AX 6.4.15).
type MuxState int

const (
	MuxDetached MuxState = iota
	MuxAttached
	MuxCollectingDistributing
)

func (s MuxState) String() string {
	switch s {
	case MuxDetached:
		return "DETACHED"
	case MuxAttached:
		return "ATTACHED"
	case MuxCollectingDistributing:
		return "COLLECTING_DISTRIBUTING"
	default:
		return fmt.Sprintf("MUX(%d)", int(s))
	}
}
