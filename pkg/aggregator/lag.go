// Package aggregator groups ports whose LACP actors agree into logical LAGs,
// runs the Selection Logic and reports changes of each LAG's active member
// set.
package aggregator

import (
	"sort"

	"github.com/hongkiaong/lacpd/pkg/lacp"
)

// State is the aggregate operational state of a LAG.
type State string

const (
	// StateUp means every member is collecting and distributing.
	StateUp State = "up"
	// StateDown means no member is.
	StateDown State = "down"
	// StatePartial means at least one member is, but not all.
	StatePartial State = "partial"
)

// aggregateState is down with no active member, up when every member is
// active and partial otherwise.
func aggregateState(members, active int) State {
	switch {
	case active == 0:
		return StateDown
	case active == members:
		return StateUp
	default:
		return StatePartial
	}
}

// LAGOption customizes CreateLAG.
type LAGOption func(*lag)

// WithRate sets the LACPDU rate requested from partners.
func WithRate(r lacp.Rate) LAGOption {
	return func(l *lag) { l.rate = r }
}

// WithKey overrides the actor key, which defaults to the LAG number.
func WithKey(key uint16) LAGOption {
	return func(l *lag) {
		if key != 0 {
			l.key = key
		}
	}
}

type lag struct {
	name    string
	number  int
	mode    lacp.Mode
	rate    lacp.Rate
	key     uint16
	members map[string]bool

	// partner is the party the LAG aggregated with first. Members that
	// negotiate with anyone else are latched.
	partner lacp.Party
}

func (l *lag) sortedMembers() []string {
	out := make([]string, 0, len(l.members))
	for p := range l.members {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Member is the view of one LAG member.
type Member struct {
	Port   string
	PortUp bool
	Active bool
	// LACP is the actor state; zero for static LAGs.
	LACP lacp.Snapshot
}

// LAG is a snapshot of one LAG.
type LAG struct {
	Name    string
	Number  int
	Mode    lacp.Mode
	Rate    lacp.Rate
	Key     uint16
	State   State
	Partner lacp.Party
	Members []Member
}

// ActivePorts returns the ports currently collecting and distributing.
func (l LAG) ActivePorts() []string {
	var out []string
	for _, m := range l.Members {
		if m.Active {
			out = append(out, m.Port)
		}
	}
	return out
}
