package forwarding

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Ring parameters for every LAG. A LAG has at most a handful of members, so
// a small partition count spreads flows evenly.
const (
	partitionCount    = 271
	replicationFactor = 20
	load              = 1.25
)

// The consistent package requires a hasher function
type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// member is a port on a LAG's ring.
type member string

func (m member) String() string { return string(m) }

type group struct {
	mode    HashMode
	members []string
	ring    *consistent.Consistent
}

// Table maps every LAG to the ring of its COLLECTING_DISTRIBUTING members.
// It is rebuilt from each membership notification; flows hashed during a
// change may move to another member.
type Table struct {
	mu     sync.RWMutex
	device string
	lags   map[string]*group
}

// NewTable creates an empty forwarding table.
func NewTable(device string) *Table {
	return &Table{device: device, lags: make(map[string]*group)}
}

func ringConfig() consistent.Config {
	return consistent.Config{
		PartitionCount:    partitionCount,
		ReplicationFactor: replicationFactor,
		Load:              load,
		Hasher:            hasher{},
	}
}

func (t *Table) groupLocked(lag string) *group {
	g, ok := t.lags[lag]
	if !ok {
		g = &group{}
		t.lags[lag] = g
	}
	return g
}

// SetHashMode sets the flow hash mode of a LAG.
func (t *Table) SetHashMode(lag string, mode HashMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groupLocked(lag).mode = mode
}

// HashMode returns the LAG's flow hash mode.
func (t *Table) HashMode(lag string) HashMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if g, ok := t.lags[lag]; ok {
		return g.mode
	}
	return HashL3
}

// MembershipChanged replaces the LAG's forwarding set with active.
func (t *Table) MembershipChanged(lag string, active []string) {
	members := append([]string(nil), active...)
	sort.Strings(members)

	var ring *consistent.Consistent
	if len(members) > 0 {
		ring = consistent.New(nil, ringConfig())
		for _, m := range members {
			ring.Add(member(m))
		}
	}

	t.mu.Lock()
	g := t.groupLocked(lag)
	g.members = members
	g.ring = ring
	t.mu.Unlock()

	util.WithLAG(t.device, lag).Debugf("forwarding set %v", members)
}

// RemoveLAG forgets a deleted LAG.
func (t *Table) RemoveLAG(lag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lags, lag)
}

// Members returns the LAG's current forwarding set.
func (t *Table) Members(lag string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if g, ok := t.lags[lag]; ok {
		return append([]string(nil), g.members...)
	}
	return nil
}

// ResolveEgress picks the member port that carries a flow. The same hash
// maps to the same member for as long as the forwarding set is unchanged.
func (t *Table) ResolveEgress(lag string, flowHash uint64) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.lags[lag]
	if !ok {
		return "", util.NewNotFoundError("lag", lag)
	}
	if g.ring == nil {
		return "", util.ErrNoActiveMember
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], flowHash)
	return g.ring.LocateKey(key[:]).String(), nil
}
