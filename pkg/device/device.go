// Package device composes the port monitor, LACP aggregator, VLAN table and
// forwarding table of one switch behind a single control plane.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hongkiaong/lacpd/pkg/aggregator"
	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/portmon"
	"github.com/hongkiaong/lacpd/pkg/util"
	"github.com/hongkiaong/lacpd/pkg/vlan"
)

// PublishTimeout bounds a state publication triggered by an admin command.
const PublishTimeout = 5 * time.Second

// Transmitter sends a frame out of a port.
type Transmitter interface {
	Transmit(port string, frame []byte) error
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(port string, frame []byte) error

// Transmit calls f.
func (f TransmitterFunc) Transmit(port string, frame []byte) error { return f(port, frame) }

// Publisher receives the device state whenever it changes.
type Publisher interface {
	Publish(ctx context.Context, s *model.DeviceState) error
}

// Config describes a switch at boot.
type Config struct {
	Name           string
	MAC            net.HardwareAddr
	SystemPriority uint16
	Ports          []portmon.Port
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Device is one switch. Admin commands and control-plane ticks are
// serialized by the device lock; frame receipt never takes it.
type Device struct {
	mu    sync.Mutex
	name  string
	mac   net.HardwareAddr
	clock func() time.Time
	log   *logrus.Entry

	ports *portmon.Monitor
	lags  *aggregator.Aggregator
	vlans *vlan.Manager
	fwd   *forwarding.Table

	hookMu    sync.RWMutex
	tx        Transmitter
	pub       Publisher
	published *model.DeviceState

	changeMu sync.Mutex
	changed  chan struct{}
}

// New boots a device from its configuration.
func New(cfg Config) (*Device, error) {
	v := &util.ValidationBuilder{}
	v.Add(cfg.Name != "", "device name is required")
	v.Add(len(cfg.MAC) == 6, fmt.Sprintf("device %s: system MAC %q must be 6 bytes", cfg.Name, cfg.MAC))
	for _, p := range cfg.Ports {
		if util.IsLAGName(p.Name) {
			v.AddErrorf("port name %q collides with a LAG name", p.Name)
		}
	}
	if err := v.Build(); err != nil {
		return nil, err
	}
	if cfg.SystemPriority == 0 {
		cfg.SystemPriority = lacp.DefaultSystemPriority
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	d := &Device{
		name:    cfg.Name,
		mac:     append(net.HardwareAddr(nil), cfg.MAC...),
		clock:   cfg.Clock,
		log:     util.WithDevice(cfg.Name),
		ports:   portmon.New(cfg.Name),
		vlans:   vlan.NewManager(cfg.Name),
		fwd:     forwarding.NewTable(cfg.Name),
		changed: make(chan struct{}),
	}
	for _, p := range cfg.Ports {
		if err := d.ports.AddPort(p); err != nil {
			return nil, fmt.Errorf("device %s: %w", cfg.Name, err)
		}
	}
	d.lags = aggregator.New(aggregator.Config{
		Device: cfg.Name,
		System: lacp.NewSystemID(cfg.SystemPriority, cfg.MAC),
		Clock:  cfg.Clock,
	}, d.ports)
	d.ports.Subscribe(d.lags)
	d.lags.Subscribe(aggregator.MembershipListenerFunc(d.membershipChanged))

	for _, p := range cfg.Ports {
		if p.Key == 0 {
			continue
		}
		if err := d.lags.AssignKey(p.Name, p.Key); err != nil {
			return nil, fmt.Errorf("device %s: %w", cfg.Name, err)
		}
	}

	d.log.Infof("booted with %d ports, system %s", len(cfg.Ports), lacp.NewSystemID(cfg.SystemPriority, cfg.MAC))
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// SystemMAC returns the LACP system MAC.
func (d *Device) SystemMAC() net.HardwareAddr { return d.mac }

// SetTransmitter installs the hook that sends frames out of ports.
func (d *Device) SetTransmitter(tx Transmitter) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.tx = tx
}

// SetPublisher installs the hook that receives state changes.
func (d *Device) SetPublisher(p Publisher) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.pub = p
	d.published = nil
}

func (d *Device) transmit(port string, frame []byte) {
	d.hookMu.RLock()
	tx := d.tx
	d.hookMu.RUnlock()
	if tx == nil {
		return
	}
	if err := tx.Transmit(port, frame); err != nil {
		util.WithPort(d.name, port).Warnf("transmit failed: %v", err)
	}
}

func (d *Device) membershipChanged(lag string, active []string) {
	d.fwd.MembershipChanged(lag, active)
	util.WithLAG(d.name, lag).Infof("active members %v", active)
	d.signal()
}

// signal wakes every WaitConverged caller.
func (d *Device) signal() {
	d.changeMu.Lock()
	close(d.changed)
	d.changed = make(chan struct{})
	d.changeMu.Unlock()
}

func (d *Device) changes() <-chan struct{} {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()
	return d.changed
}

// commitLocked finishes an admin change: waiters re-check and the new state
// is published.
func (d *Device) commitLocked() {
	d.signal()
	ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
	defer cancel()
	d.publishLocked(ctx)
}

// publishLocked hands the state to the publisher if it changed since the
// last successful publish. Failures are retried on the next change or tick.
func (d *Device) publishLocked(ctx context.Context) {
	d.hookMu.RLock()
	pub, last := d.pub, d.published
	d.hookMu.RUnlock()
	if pub == nil {
		return
	}
	s := d.Snapshot()
	if reflect.DeepEqual(s, last) {
		return
	}
	if err := pub.Publish(ctx, s); err != nil {
		d.log.Warnf("publishing state: %v", err)
		return
	}
	d.hookMu.Lock()
	if d.pub == pub {
		d.published = s
	}
	d.hookMu.Unlock()
}

// Tick advances every LACP actor to now, transmits the LACPDUs that are due
// and reruns selection.
func (d *Device) Tick(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, err := d.lags.Tick(ctx, now)
	if err != nil {
		return err
	}
	for _, t := range out {
		frame, err := t.PDU.Frame(d.mac)
		if err != nil {
			util.WithPort(d.name, t.Port).Warnf("encoding LACPDU: %v", err)
			continue
		}
		d.transmit(t.Port, frame)
	}
	d.signal()
	d.publishLocked(ctx)
	return nil
}

// Run ticks the control plane every interval until ctx is cancelled.
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Infof("control plane running, tick %v", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Tick(ctx, d.clock()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.log.Warnf("tick: %v", err)
			}
		}
	}
}

// ReceiveFrame handles a frame arriving on a port: LACPDUs go to the port's
// actor, anything else through the data path. Malformed LACPDUs are dropped
// without touching protocol state.
func (d *Device) ReceiveFrame(port string, frame []byte) error {
	if !d.ports.Has(port) {
		return util.NewNotFoundError("port", port)
	}
	log := util.WithPort(d.name, port)

	if lacp.IsSlowProtocols(frame) {
		pdu, err := lacp.DecodeFrame(frame)
		switch {
		case errors.Is(err, lacp.ErrNotLACP):
			log.Debugf("ignoring slow-protocols frame: %v", err)
			return nil
		case err != nil:
			log.Warnf("dropping LACPDU: %v", err)
			return nil
		}
		if !d.lags.ReceivePDU(port, pdu, d.clock()) {
			log.Debug("LACPDU on port without LACP")
			return nil
		}
		d.signal()
		return nil
	}

	egress, err := d.Forward(port, frame)
	if err != nil {
		log.Debugf("dropping frame: %v", err)
		return nil
	}
	for _, e := range egress {
		d.transmit(e.Port, e.Frame)
	}
	return nil
}

// WaitConverged blocks until the LAG's aggregate state is up and the data
// path forwards over every active member, or ctx ends.
func (d *Device) WaitConverged(ctx context.Context, id string) error {
	for {
		ch := d.changes()
		l, err := d.lags.GetLAG(id)
		if err != nil {
			return err
		}
		if l.State == aggregator.StateUp && slices.Equal(d.fwd.Members(l.Name), l.ActivePorts()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s (state %s): %w", id, l.State, ctx.Err())
		case <-ch:
		}
	}
}
