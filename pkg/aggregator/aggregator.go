package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/portmon"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// PortTable is the port state the aggregator reads and annotates.
type PortTable interface {
	Get(name string) (portmon.Port, error)
	SetLAG(name, lag string) error
}

// MembershipListener is told the new active member set of a LAG whenever it
// changes.
type MembershipListener interface {
	MembershipChanged(lag string, active []string)
}

// MembershipListenerFunc adapts a function to MembershipListener.
type MembershipListenerFunc func(lag string, active []string)

// MembershipChanged calls f.
func (f MembershipListenerFunc) MembershipChanged(lag string, active []string) { f(lag, active) }

// Config holds the device-wide LACP parameters.
type Config struct {
	Device string
	System lacp.SystemID
	// Clock supplies the time for administrative changes. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Transmit is an LACPDU due on a port.
type Transmit struct {
	Port string
	PDU  *lacp.PDU
}

// Aggregator owns the LAG membership table. Every mutation runs under its
// single writer lock.
type Aggregator struct {
	mu        sync.RWMutex
	cfg       Config
	ports     PortTable
	lags      map[string]*lag
	actors    map[string]*lacp.Actor
	active    map[string][]string
	listeners []MembershipListener
}

type notification struct {
	lag    string
	active []string
}

// New creates an aggregator over a port table.
func New(cfg Config, ports PortTable) *Aggregator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Aggregator{
		cfg:    cfg,
		ports:  ports,
		lags:   make(map[string]*lag),
		actors: make(map[string]*lacp.Actor),
		active: make(map[string][]string),
	}
}

// Subscribe registers a membership listener.
func (a *Aggregator) Subscribe(l MembershipListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// CreateLAG creates an empty LAG.
func (a *Aggregator) CreateLAG(id string, mode lacp.Mode, opts ...LAGOption) (LAG, error) {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return LAG{}, err
	}
	number, _ := util.LAGNumber(name)
	if mode != lacp.ModeActive && mode != lacp.ModePassive && mode != lacp.ModeStatic {
		return LAG{}, util.NewValidationError(fmt.Sprintf("invalid mode %v", mode))
	}

	a.mu.Lock()
	if _, ok := a.lags[name]; ok {
		a.mu.Unlock()
		return LAG{}, util.NewDuplicateIDError("lag", name)
	}
	l := &lag{
		name:    name,
		number:  number,
		mode:    mode,
		key:     uint16(number),
		members: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	a.lags[name] = l
	view := a.viewLocked(l)
	a.mu.Unlock()

	util.WithLAG(a.cfg.Device, name).Infof("created LAG mode %s rate %s key %d", mode, l.rate, l.key)
	return view, nil
}

// DeleteLAG detaches every member, tears down their actors and removes the
// LAG. It returns the ports that were members.
func (a *Aggregator) DeleteLAG(id string) ([]string, error) {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	l, ok := a.lags[name]
	if !ok {
		a.mu.Unlock()
		return nil, util.NewNotFoundError("lag", name)
	}
	members := l.sortedMembers()
	for _, p := range members {
		a.detachLocked(l, p)
	}
	delete(a.lags, name)
	var notes []notification
	if len(a.active[name]) > 0 {
		notes = append(notes, notification{lag: name})
	}
	delete(a.active, name)
	listeners := a.listeners
	a.mu.Unlock()

	notify(listeners, notes)
	util.WithLAG(a.cfg.Device, name).Info("deleted LAG")
	return members, nil
}

// AddMember admits a port into a LAG after checking that it can aggregate
// with the existing members. Membership is unchanged on error.
func (a *Aggregator) AddMember(id, portName string) error {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return err
	}
	port, err := a.ports.Get(portName)
	if err != nil {
		return err
	}

	a.mu.Lock()
	l, ok := a.lags[name]
	if !ok {
		a.mu.Unlock()
		return util.NewNotFoundError("lag", name)
	}
	if l.members[portName] {
		a.mu.Unlock()
		return nil
	}
	if reason := a.incompatibleLocked(l, port); reason != "" {
		a.mu.Unlock()
		return util.NewIncompatibleMemberError(name, portName, reason)
	}

	if err := a.ports.SetLAG(portName, name); err != nil {
		a.mu.Unlock()
		return err
	}
	l.members[portName] = true
	if l.mode.Dynamic() {
		actor, ok := a.actors[portName]
		if !ok {
			actor = a.newActor(port, l.key, l.mode, l.rate)
			a.actors[portName] = actor
		}
		actor.SetMode(l.mode, l.rate)
		actor.SetPortEnabled(port.Up(), a.cfg.Clock())
	} else if actor, ok := a.actors[portName]; ok {
		actor.Stop()
		delete(a.actors, portName)
	}
	notes := a.selectLocked()
	listeners := a.listeners
	a.mu.Unlock()

	notify(listeners, notes)
	util.WithLAG(a.cfg.Device, name).Infof("added member %s", portName)
	return nil
}

// incompatibleLocked returns why port cannot join l, or "".
func (a *Aggregator) incompatibleLocked(l *lag, port portmon.Port) string {
	if port.LAG != "" && port.LAG != l.name {
		return "already a member of " + port.LAG
	}
	for _, m := range l.sortedMembers() {
		other, err := a.ports.Get(m)
		if err != nil {
			continue
		}
		if other.Speed != port.Speed {
			return fmt.Sprintf("speed %d Mb/s does not match member %s (%d Mb/s)", port.Speed, m, other.Speed)
		}
		if other.Duplex != port.Duplex {
			return fmt.Sprintf("duplex %s does not match member %s (%s)", port.Duplex, m, other.Duplex)
		}
		break
	}
	if !l.mode.Dynamic() {
		return ""
	}

	if port.Key != 0 && port.Key != l.key {
		return fmt.Sprintf("port key %d does not match LAG key %d", port.Key, l.key)
	}
	actor, ok := a.actors[port.Name]
	if !ok {
		return ""
	}
	snap := actor.Snapshot()
	if !snap.PartnerKnown() {
		return ""
	}
	if l.mode == lacp.ModePassive && !snap.Partner.State.Has(lacp.StateActivity) {
		return "both ends passive"
	}
	partner := lacp.Party{System: snap.Partner.System, Key: snap.Partner.Key}
	if !l.partner.System.IsZero() && partner != l.partner {
		return fmt.Sprintf("partner %s does not match LAG partner %s", partner, l.partner)
	}
	return ""
}

// RemoveMember detaches a port and cancels its timers.
func (a *Aggregator) RemoveMember(id, portName string) error {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return err
	}

	a.mu.Lock()
	l, ok := a.lags[name]
	if !ok {
		a.mu.Unlock()
		return util.NewNotFoundError("lag", name)
	}
	if !l.members[portName] {
		a.mu.Unlock()
		return util.NewNotFoundError("lag member", name+"|"+portName)
	}
	a.detachLocked(l, portName)
	notes := a.selectLocked()
	listeners := a.listeners
	a.mu.Unlock()

	notify(listeners, notes)
	util.WithLAG(a.cfg.Device, name).Infof("removed member %s", portName)
	return nil
}

func (a *Aggregator) detachLocked(l *lag, portName string) {
	delete(l.members, portName)
	if actor, ok := a.actors[portName]; ok {
		actor.Stop()
		delete(a.actors, portName)
	}
	if err := a.ports.SetLAG(portName, ""); err != nil {
		util.WithPort(a.cfg.Device, portName).Warnf("clearing LAG: %v", err)
	}
}

// AssignKey runs an individual actor on a port that has an administrative
// key but no LAG, so its partner is known by the time it is added.
func (a *Aggregator) AssignKey(portName string, key uint16) error {
	port, err := a.ports.Get(portName)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if port.LAG != "" {
		if l, ok := a.lags[port.LAG]; ok && l.mode.Dynamic() && l.key != key {
			return util.NewIncompatibleMemberError(l.name, portName,
				fmt.Sprintf("port key %d does not match LAG key %d", key, l.key))
		}
		return nil
	}
	if actor, ok := a.actors[portName]; ok {
		actor.Stop()
	}
	actor := a.newActor(port, key, lacp.ModeActive, lacp.RateSlow)
	actor.SetPortEnabled(port.Up(), a.cfg.Clock())
	a.actors[portName] = actor
	return nil
}

// SetPortPriority updates the advertised priority of a port's actor.
func (a *Aggregator) SetPortPriority(portName string, prio uint16) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if actor, ok := a.actors[portName]; ok {
		actor.SetPortPriority(prio)
	}
}

func (a *Aggregator) newActor(port portmon.Port, key uint16, mode lacp.Mode, rate lacp.Rate) *lacp.Actor {
	return lacp.NewActor(lacp.ActorConfig{
		Device:       a.cfg.Device,
		Port:         port.Name,
		PortNumber:   port.Number,
		PortPriority: port.Priority,
		System:       a.cfg.System,
		Key:          key,
		Mode:         mode,
		Rate:         rate,
	})
}

// LinkChanged feeds port transitions into the actors and reruns selection.
func (a *Aggregator) LinkChanged(portName string, up bool) {
	a.mu.Lock()
	if actor, ok := a.actors[portName]; ok {
		actor.SetPortEnabled(up, a.cfg.Clock())
	}
	notes := a.selectLocked()
	listeners := a.listeners
	a.mu.Unlock()
	notify(listeners, notes)
}

// ReceivePDU hands an LACPDU to the port's actor and reruns selection, so
// a mux transition it causes reaches the listeners before ReceivePDU
// returns. It reports false if the port runs no actor.
func (a *Aggregator) ReceivePDU(portName string, pdu *lacp.PDU, now time.Time) bool {
	a.mu.RLock()
	actor, ok := a.actors[portName]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	actor.ReceivePDU(pdu, now)
	a.Select()
	return true
}

// Tick advances every actor concurrently, then runs selection. It returns
// the LACPDUs to transmit, ordered by port.
func (a *Aggregator) Tick(ctx context.Context, now time.Time) ([]Transmit, error) {
	a.mu.RLock()
	ports := make([]string, 0, len(a.actors))
	actors := make([]*lacp.Actor, 0, len(a.actors))
	for p, actor := range a.actors {
		ports = append(ports, p)
		actors = append(actors, actor)
	}
	a.mu.RUnlock()

	pdus := make([]*lacp.PDU, len(actors))
	g, ctx := errgroup.WithContext(ctx)
	for i, actor := range actors {
		i, actor := i, actor
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pdus[i] = actor.Tick(now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Transmit
	for i, pdu := range pdus {
		if pdu != nil {
			out = append(out, Transmit{Port: ports[i], PDU: pdu})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })

	a.Select()
	return out, nil
}

// Select runs the Selection Logic once and notifies listeners of changed
// active sets.
func (a *Aggregator) Select() {
	a.mu.Lock()
	notes := a.selectLocked()
	listeners := a.listeners
	a.mu.Unlock()
	notify(listeners, notes)
}

// selectLocked decides which members may attach and returns the LAGs whose
// active set changed.
func (a *Aggregator) selectLocked() []notification {
	var notes []notification
	names := make([]string, 0, len(a.lags))
	for n := range a.lags {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		l := a.lags[n]
		var active []string
		if l.mode.Dynamic() {
			active = a.selectDynamicLocked(l)
		} else {
			for _, p := range l.sortedMembers() {
				if port, err := a.ports.Get(p); err == nil && port.Up() {
					active = append(active, p)
				}
			}
		}
		if !sameSet(active, a.active[n]) {
			log := util.WithLAG(a.cfg.Device, n)
			log.WithField("active", active).Infof("state %s -> %s",
				aggregateState(len(l.members), len(a.active[n])),
				aggregateState(len(l.members), len(active)))
			a.active[n] = active
			notes = append(notes, notification{lag: n, active: active})
		}
	}
	return notes
}

// selectDynamicLocked selects the members that agree on one partner. When
// members see different partners, the link key with the most preferred
// controlling system wins and the other members are latched.
func (a *Aggregator) selectDynamicLocked(l *lag) []string {
	type candidate struct {
		port    string
		actor   *lacp.Actor
		key     lacp.LinkKey
		partner lacp.Party
	}
	var candidates []candidate
	for _, p := range l.sortedMembers() {
		actor, ok := a.actors[p]
		if !ok {
			continue
		}
		snap := actor.Snapshot()
		port, err := a.ports.Get(p)
		if err != nil || !port.Up() || !snap.PartnerKnown() || snap.Latched != "" {
			actor.SetSelected(false)
			continue
		}
		if !snap.Partner.State.Has(lacp.StateAggregation) {
			actor.Latch("partner port is individual")
			continue
		}
		candidates = append(candidates, candidate{
			port:    p,
			actor:   actor,
			key:     snap.LinkKey(),
			partner: lacp.Party{System: snap.Partner.System, Key: snap.Partner.Key},
		})
	}
	if len(candidates) == 0 {
		l.partner = lacp.Party{}
		return nil
	}

	win := candidates[0]
	for _, c := range candidates[1:] {
		if c.key.Less(win.key) {
			win = c
		}
	}
	best, partner := win.key, win.partner
	if partner != l.partner {
		if !l.partner.System.IsZero() {
			util.WithLAG(a.cfg.Device, l.name).Warnf("partner %s -> %s, controlled by %s",
				l.partner, partner, best.Controller())
		}
		l.partner = partner
	}

	var active []string
	for _, c := range candidates {
		if c.key != best {
			c.actor.Latch(fmt.Sprintf("partner %s does not match LAG partner %s", c.partner, partner))
			continue
		}
		c.actor.SetSelected(true)
		if c.actor.Snapshot().Active() {
			active = append(active, c.port)
		}
	}
	return active
}

func notify(listeners []MembershipListener, notes []notification) {
	for _, n := range notes {
		for _, l := range listeners {
			l.MembershipChanged(n.lag, append([]string(nil), n.active...))
		}
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AggregateState computes the LAG's operational state from its members.
func (a *Aggregator) AggregateState(id string) (State, error) {
	l, err := a.GetLAG(id)
	if err != nil {
		return "", err
	}
	return l.State, nil
}

// GetLAG returns a snapshot of one LAG.
func (a *Aggregator) GetLAG(id string) (LAG, error) {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return LAG{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	l, ok := a.lags[name]
	if !ok {
		return LAG{}, util.NewNotFoundError("lag", name)
	}
	return a.viewLocked(l), nil
}

// HasLAG reports whether a LAG exists.
func (a *Aggregator) HasLAG(id string) bool {
	_, err := a.GetLAG(id)
	return err == nil
}

// ListLAGs returns every LAG ordered by number.
func (a *Aggregator) ListLAGs() []LAG {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]LAG, 0, len(a.lags))
	for _, l := range a.lags {
		out = append(out, a.viewLocked(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Actor returns the LACP state of a port, if it runs an actor.
func (a *Aggregator) Actor(portName string) (lacp.Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	actor, ok := a.actors[portName]
	if !ok {
		return lacp.Snapshot{}, false
	}
	return actor.Snapshot(), true
}

func (a *Aggregator) viewLocked(l *lag) LAG {
	view := LAG{
		Name:    l.name,
		Number:  l.number,
		Mode:    l.mode,
		Rate:    l.rate,
		Key:     l.key,
		Partner: l.partner,
	}
	// Active comes from the selected set, the same one the listeners were
	// given, never from the live actor state.
	selected := make(map[string]bool, len(a.active[l.name]))
	for _, p := range a.active[l.name] {
		selected[p] = true
	}
	for _, p := range l.sortedMembers() {
		m := Member{Port: p, Active: selected[p]}
		if port, err := a.ports.Get(p); err == nil {
			m.PortUp = port.Up()
		}
		if actor, ok := a.actors[p]; ok {
			m.LACP = actor.Snapshot()
		}
		view.Members = append(view.Members, m)
	}
	view.State = aggregateState(len(view.Members), len(selected))
	return view
}
