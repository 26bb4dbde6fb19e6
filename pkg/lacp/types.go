package lacp

import (
	"bytes"
	"fmt"
	"net"
)

// Defaults used when nothing is configured.
const (
	DefaultSystemPriority = 0x8000
	DefaultPortPriority   = 0x8000
)

// SystemID identifies an LACP system: priority first, then MAC.
type SystemID struct {
	Priority uint16
	MAC      [6]byte
}

// NewSystemID builds a SystemID from a hardware address.
func NewSystemID(priority uint16, mac net.HardwareAddr) SystemID {
	id := SystemID{Priority: priority}
	copy(id.MAC[:], mac)
	return id
}

// HardwareAddr returns the system MAC.
func (s SystemID) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(s.MAC[:])
}

// IsZero reports whether the id is unset.
func (s SystemID) IsZero() bool { return s == SystemID{} }

// Compare orders system ids lexicographically by (priority, MAC).
func (s SystemID) Compare(o SystemID) int {
	switch {
	case s.Priority < o.Priority:
		return -1
	case s.Priority > o.Priority:
		return 1
	}
	return bytes.Compare(s.MAC[:], o.MAC[:])
}

// Less reports whether s is the more preferred system.
func (s SystemID) Less(o SystemID) bool { return s.Compare(o) < 0 }

func (s SystemID) String() string {
	return fmt.Sprintf("%d,%s", s.Priority, s.HardwareAddr())
}

// PortInfo is the actor or partner information carried in an LACPDU.
type PortInfo struct {
	System       SystemID
	Key          uint16
	PortPriority uint16
	Port         uint16
	State        State
}

// sameLink compares every identifying field and the state bits in mask.
func (p PortInfo) sameLink(o PortInfo, mask State) bool {
	return p.System == o.System &&
		p.Key == o.Key &&
		p.PortPriority == o.PortPriority &&
		p.Port == o.Port &&
		p.State&mask == o.State&mask
}

// Party is one end of an aggregated link: a system and its key.
type Party struct {
	System SystemID
	Key    uint16
}

// Compare orders parties by system, then key.
func (p Party) Compare(o Party) int {
	if c := p.System.Compare(o.System); c != 0 {
		return c
	}
	switch {
	case p.Key < o.Key:
		return -1
	case p.Key > o.Key:
		return 1
	}
	return 0
}

func (p Party) String() string {
	return fmt.Sprintf("(%s,%d)", p.System, p.Key)
}

// LinkKey identifies the aggregation a link belongs to. Both ends of the
// link compute the same LinkKey: Low is always the preferred system, which is
// the one that controls aggregation.
type LinkKey struct {
	Low  Party
	High Party
}

// NewLinkKey orders the two parties of a link.
func NewLinkKey(actor, partner Party) LinkKey {
	c := actor.System.Compare(partner.System)
	if c > 0 || (c == 0 && actor.Key > partner.Key) {
		return LinkKey{Low: partner, High: actor}
	}
	return LinkKey{Low: actor, High: partner}
}

// Controller returns the party that decides aggregation.
func (k LinkKey) Controller() Party { return k.Low }

// Less reports whether k is preferred over o: the link whose controlling
// party sorts first wins, then the other party decides.
func (k LinkKey) Less(o LinkKey) bool {
	if c := k.Low.Compare(o.Low); c != 0 {
		return c < 0
	}
	return k.High.Compare(o.High) < 0
}

func (k LinkKey) String() string {
	return k.Low.String() + k.High.String()
}
