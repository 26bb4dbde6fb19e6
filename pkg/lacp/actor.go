package lacp

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// ActorConfig holds the administrative parameters of one port's actor.
type ActorConfig struct {
	Device       string
	Port         string
	PortNumber   uint16
	PortPriority uint16
	System       SystemID
	Key          uint16
	Mode         Mode
	Rate         Rate
}

// Snapshot is a copy of an actor's protocol state.
type Snapshot struct {
	Port     string
	Mode     Mode
	Actor    PortInfo
	Partner  PortInfo
	Rx       RxState
	Mux      MuxState
	Selected bool
	Latched  string
}

// PartnerKnown reports whether the partner information came from a
// received LACPDU rather than the administrative defaults.
func (s Snapshot) PartnerKnown() bool {
	return (s.Rx == RxCurrent || s.Rx == RxExpired) && !s.Partner.System.IsZero()
}

// LinkKey returns the aggregation identity of the link.
func (s Snapshot) LinkKey() LinkKey {
	return NewLinkKey(
		Party{System: s.Actor.System, Key: s.Actor.Key},
		Party{System: s.Partner.System, Key: s.Partner.Key},
	)
}

// Active reports whether the port is collecting and distributing.
func (s Snapshot) Active() bool { return s.Mux == MuxCollectingDistributing }

// Actor runs the receive, periodic and mux machines for one port. Timers are
// deadlines evaluated by Tick; an Actor never starts goroutines.
type Actor struct {
	mu sync.Mutex

	port    string
	mode    Mode
	enabled bool
	stopped bool

	actor        PortInfo
	partner      PortInfo
	partnerAdmin PortInfo

	rx       RxState
	mux      MuxState
	selected bool
	latched  string
	ntt      bool

	currentWhile time.Time
	nextPeriodic time.Time

	log *logrus.Entry
}

// NewActor creates an actor in INITIALIZE. The port starts disabled until
// SetPortEnabled is called.
func NewActor(cfg ActorConfig) *Actor {
	a := &Actor{
		port: cfg.Port,
		mode: cfg.Mode,
		rx:   RxInitialize,
		mux:  MuxDetached,
		log:  util.WithPort(cfg.Device, cfg.Port),
	}
	prio := cfg.PortPriority
	if prio == 0 {
		prio = DefaultPortPriority
	}
	a.actor = PortInfo{
		System:       cfg.System,
		Key:          cfg.Key,
		PortPriority: prio,
		Port:         cfg.PortNumber,
		State:        StateAggregation,
	}
	a.actor.State.SetTo(StateActivity, cfg.Mode == ModeActive)
	a.actor.State.SetTo(StateTimeout, cfg.Rate == RateFast)
	a.initialize()
	return a
}

// initialize enters INITIALIZE and immediately falls through to
// PORT_DISABLED.
func (a *Actor) initialize() {
	a.setRx(RxInitialize)
	a.selected = false
	a.recordDefault()
	a.actor.State.Clear(StateExpired)
	a.setRx(RxPortDisabled)
	a.partner.State.Clear(StateSync)
}

// SetPortEnabled reports the port's operational state (admin AND link).
func (a *Actor) SetPortEnabled(up bool, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || up == a.enabled {
		return
	}
	a.enabled = up
	if up {
		a.enterExpired(now)
		a.nextPeriodic = now
	} else {
		a.setRx(RxPortDisabled)
		a.partner.State.Clear(StateSync)
		a.selected = false
	}
	a.runMux()
}

// SetMode changes the actor's activity, for a port moving between an
// individual configuration and a LAG.
func (a *Actor) SetMode(m Mode, r Rate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = m
	before := a.actor.State
	a.actor.State.SetTo(StateActivity, m == ModeActive)
	a.actor.State.SetTo(StateTimeout, r == RateFast)
	if before != a.actor.State {
		a.ntt = true
	}
}

// SetPortPriority changes the advertised port priority.
func (a *Actor) SetPortPriority(prio uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prio == 0 {
		prio = DefaultPortPriority
	}
	if a.actor.PortPriority != prio {
		a.actor.PortPriority = prio
		a.ntt = true
	}
}

// ReceivePDU runs the receive machine for an incoming LACPDU. PDUs arriving
// while the port is disabled or the actor stopped are ignored.
func (a *Actor) ReceivePDU(pdu *PDU, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !a.enabled {
		a.log.Debug("LACPDU ignored on disabled port")
		return
	}

	a.updateSelected(pdu)
	a.updateNTT(pdu)
	a.recordPDU(pdu)
	a.currentWhile = now.Add(a.timeout())
	a.actor.State.Clear(StateExpired)
	a.setRx(RxCurrent)
	a.runMux()
}

// Tick advances the actor's timers to now and returns the LACPDU to send, if
// any.
func (a *Actor) Tick(now time.Time) *PDU {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !a.enabled {
		return nil
	}

	if !a.currentWhile.IsZero() && !now.Before(a.currentWhile) {
		switch a.rx {
		case RxCurrent:
			a.enterExpired(now)
		case RxExpired:
			a.enterDefaulted()
		}
	}
	a.runMux()

	if a.periodicEnabled() && !now.Before(a.nextPeriodic) {
		a.ntt = true
		a.nextPeriodic = now.Add(a.periodicTime())
	}

	if !a.ntt || !a.periodicEnabled() && !a.respond() {
		return nil
	}
	a.ntt = false
	return &PDU{Actor: a.actor, Partner: a.partner}
}

// SetSelected records the Selection Logic's decision for this port.
func (a *Actor) SetSelected(sel bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if sel && a.latched != "" {
		sel = false
	}
	a.selected = sel
	a.runMux()
}

// Latch holds the port DETACHED until it is removed from its LAG.
func (a *Actor) Latch(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latched == "" {
		a.log.WithField("reason", reason).Warn("member detached")
	}
	a.latched = reason
	a.selected = false
	a.runMux()
}

// Stop cancels all timers. A stopped actor never transmits again.
func (a *Actor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.selected = false
	a.setMux(MuxDetached)
	a.actor.State.Clear(StateSync | StateCollecting | StateDistributing)
	a.currentWhile = time.Time{}
	a.nextPeriodic = time.Time{}
	a.ntt = false
}

// Snapshot returns a copy of the protocol state.
func (a *Actor) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Port:     a.port,
		Mode:     a.mode,
		Actor:    a.actor,
		Partner:  a.partner,
		Rx:       a.rx,
		Mux:      a.mux,
		Selected: a.selected,
		Latched:  a.latched,
	}
}

// timeout is current_while for the actor's own timeout setting.
func (a *Actor) timeout() time.Duration {
	if a.actor.State.Has(StateTimeout) {
		return ShortTimeoutTime
	}
	return LongTimeoutTime
}

func (a *Actor) periodicTime() time.Duration {
	if a.partner.State.Has(StateTimeout) {
		return FastPeriodicTime
	}
	return SlowPeriodicTime
}

// periodicEnabled is false when both ends are passive.
func (a *Actor) periodicEnabled() bool {
	return a.actor.State.Has(StateActivity) || a.partner.State.Has(StateActivity)
}

// respond lets a passive actor answer a known partner.
func (a *Actor) respond() bool {
	return a.rx == RxCurrent
}

func (a *Actor) enterExpired(now time.Time) {
	a.setRx(RxExpired)
	a.partner.State.Clear(StateSync)
	a.partner.State.Set(StateTimeout)
	a.actor.State.Set(StateExpired)
	a.currentWhile = now.Add(ShortTimeoutTime)
}

func (a *Actor) enterDefaulted() {
	a.setRx(RxDefaulted)
	if !a.partnerAdmin.sameLink(a.partner, StateAggregation) {
		a.selected = false
	}
	a.recordDefault()
	a.actor.State.Clear(StateExpired)
	a.currentWhile = time.Time{}
}

// recordPDU copies the PDU's actor information into the partner operational
// state and decides whether the partner is in sync with us (802.1AX 6.4.9).
func (a *Actor) recordPDU(pdu *PDU) {
	a.partner = pdu.Actor
	a.actor.State.Clear(StateDefaulted)

	matched := pdu.Partner.sameLink(a.actor, StateAggregation) && pdu.Actor.State.Has(StateSync)
	individual := !pdu.Actor.State.Has(StateAggregation) && pdu.Actor.State.Has(StateSync)
	activity := pdu.Actor.State.Has(StateActivity) ||
		(a.actor.State.Has(StateActivity) && pdu.Partner.State.Has(StateActivity))

	a.partner.State.SetTo(StateSync, (matched || individual) && activity)
}

// recordDefault installs the administrative partner defaults.
func (a *Actor) recordDefault() {
	a.partner = a.partnerAdmin
	a.actor.State.Set(StateDefaulted)
}

// updateSelected unselects the port when the partner identity changed.
func (a *Actor) updateSelected(pdu *PDU) {
	if !pdu.Actor.sameLink(a.partner, StateAggregation) {
		a.selected = false
	}
}

// updateNTT asks for a transmission when the partner's view of us is stale.
func (a *Actor) updateNTT(pdu *PDU) {
	const mask = StateActivity | StateTimeout | StateAggregation | StateSync
	if !pdu.Partner.sameLink(a.actor, mask) {
		a.ntt = true
	}
}

// runMux drives the coupled-control mux machine to a stable state.
func (a *Actor) runMux() {
	for {
		switch a.mux {
		case MuxDetached:
			if !a.selected {
				return
			}
			a.setMux(MuxAttached)
			a.actor.State.Set(StateSync)
			a.actor.State.Clear(StateCollecting | StateDistributing)
			a.ntt = true
		case MuxAttached:
			switch {
			case !a.selected:
				a.setMux(MuxDetached)
				a.actor.State.Clear(StateSync | StateCollecting | StateDistributing)
				a.ntt = true
			case a.partner.State.Has(StateSync):
				a.setMux(MuxCollectingDistributing)
				a.actor.State.Set(StateCollecting | StateDistributing)
				a.ntt = true
			default:
				return
			}
		case MuxCollectingDistributing:
			if a.selected && a.partner.State.Has(StateSync) {
				return
			}
			a.setMux(MuxAttached)
			a.actor.State.Clear(StateCollecting | StateDistributing)
			a.ntt = true
		}
	}
}

func (a *Actor) setRx(s RxState) {
	if a.rx != s {
		a.log.Debugf("rx %s -> %s", a.rx, s)
		a.rx = s
	}
}

func (a *Actor) setMux(s MuxState) {
	if a.mux != s {
		a.log.Debugf("mux %s -> %s", a.mux, s)
		a.mux = s
	}
}
