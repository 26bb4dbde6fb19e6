// Package netio moves frames between host interfaces and a device: one
// live pcap handle per port for receive and transmit, and a link poller
// that reports carrier changes read over netlink.
package netio

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sync/errgroup"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// SlowProtocolsFilter captures only slow-protocols frames (LACP, marker).
const SlowProtocolsFilter = "ether proto 0x8809"

const (
	snapLen     = 65536
	readTimeout = 50 * time.Millisecond
)

// Receiver consumes frames arriving on a port.
type Receiver interface {
	ReceiveFrame(port string, frame []byte) error
}

// LinkSetter records carrier changes.
type LinkSetter interface {
	SetLinkState(port string, up bool) error
}

// Handle is the packet source and sink of one port. *pcap.Handle
// implements it.
type Handle interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData(data []byte) error
	Close()
}

// Options control how ports are opened.
type Options struct {
	// DataPath captures every frame so data traffic is switched in
	// software. By default only slow-protocols frames are captured.
	DataPath bool
}

// IO owns the handles of every port of a device.
type IO struct {
	device string
	log    *logrus.Entry

	mu      sync.Mutex
	handles map[string]Handle
	closed  bool
}

// New wraps already open handles, keyed by port name.
func New(device string, handles map[string]Handle) *IO {
	h := make(map[string]Handle, len(handles))
	for port, handle := range handles {
		h[port] = handle
	}
	return &IO{device: device, log: util.WithDevice(device), handles: h}
}

// Open starts a live capture on each port's host interface. ifaces maps
// port names to interface names.
func Open(device string, ifaces map[string]string, opts Options) (*IO, error) {
	handles := make(map[string]Handle, len(ifaces))
	closeAll := func() {
		for _, h := range handles {
			h.Close()
		}
	}
	for _, port := range sortedPorts(ifaces) {
		ifname := ifaces[port]
		h, err := pcap.OpenLive(ifname, snapLen, opts.DataPath, readTimeout)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("port %s: opening %s: %w", port, ifname, err)
		}
		if !opts.DataPath {
			if err := h.SetBPFFilter(SlowProtocolsFilter); err != nil {
				h.Close()
				closeAll()
				return nil, fmt.Errorf("port %s: filter on %s: %w", port, ifname, err)
			}
		}
		if err := h.SetDirection(pcap.DirectionIn); err != nil {
			util.WithPort(device, port).Debugf("capturing both directions on %s: %v", ifname, err)
		}
		handles[port] = h
		util.WithPort(device, port).Infof("capturing on %s", ifname)
	}
	return New(device, handles), nil
}

// Transmit writes a frame out of a port.
func (n *IO) Transmit(port string, frame []byte) error {
	n.mu.Lock()
	h, ok := n.handles[port]
	closed := n.closed
	n.mu.Unlock()
	if !ok {
		return util.NewNotFoundError("port", port)
	}
	if closed {
		return fmt.Errorf("port %s: %w", port, util.ErrNotConnected)
	}
	return h.WritePacketData(frame)
}

// Run delivers received frames to rx until ctx is cancelled or a capture
// ends on its own, then closes every handle. A capture that ends on its own
// is returned as an error.
func (n *IO) Run(ctx context.Context, rx Receiver) error {
	g, gctx := errgroup.WithContext(ctx)

	n.mu.Lock()
	ports := make(map[string]Handle, len(n.handles))
	for port, h := range n.handles {
		ports[port] = h
	}
	n.mu.Unlock()

	for port, h := range ports {
		g.Go(func() error {
			return n.receive(gctx, port, h, rx)
		})
	}
	<-gctx.Done()
	n.Close()
	return g.Wait()
}

func (n *IO) receive(ctx context.Context, port string, h Handle, rx Receiver) error {
	log := n.log.WithField("port", port)
	src := gopacket.NewPacketSource(h, layers.LayerTypeEthernet)
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-packets:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("capture ended")
				return fmt.Errorf("port %s: capture ended", port)
			}
			if err := rx.ReceiveFrame(port, pkt.Data()); err != nil {
				log.Warnf("receive: %v", err)
			}
		}
	}
}

// Close releases every handle. It is safe to call more than once.
func (n *IO) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, h := range n.handles {
		h.Close()
	}
}

// linkEvent is a carrier change of a host interface.
type linkEvent struct {
	ifname string
	up     bool
}

// LinkPoller reports carrier changes of host interfaces. It follows netlink
// link updates and re-reads every interface on a timer in case one is
// missed.
type LinkPoller struct {
	device string
	ifaces map[string]string
	ports  map[string]string
	// linkUp returns the carrier state of a host interface.
	linkUp func(ifname string) (bool, error)
	// watch streams link updates until done is closed.
	watch func(done <-chan struct{}) (<-chan linkEvent, error)
	state map[string]bool
}

// NewLinkPoller watches the carrier of each port's host interface.
func NewLinkPoller(device string, ifaces map[string]string) *LinkPoller {
	ports := make(map[string]string, len(ifaces))
	for port, ifname := range ifaces {
		ports[ifname] = port
	}
	return &LinkPoller{
		device: device,
		ifaces: ifaces,
		ports:  ports,
		linkUp: carrier,
		watch:  watchLinks,
		state:  make(map[string]bool),
	}
}

// linkIsUp reports whether an interface is administratively up with its
// operational state up.
func linkIsUp(attrs *netlink.LinkAttrs) bool {
	return attrs.Flags&net.FlagUp != 0 && attrs.OperState == netlink.OperUp
}

// Poll reads every interface once and reports the ports whose state
// changed since the last poll. The first poll reports every port.
func (p *LinkPoller) Poll(ls LinkSetter) {
	for _, port := range sortedPorts(p.ifaces) {
		up, err := p.linkUp(p.ifaces[port])
		if err != nil {
			util.WithPort(p.device, port).Debugf("reading carrier of %s: %v", p.ifaces[port], err)
			up = false
		}
		p.report(port, up, ls)
	}
}

func (p *LinkPoller) report(port string, up bool, ls LinkSetter) {
	if last, seen := p.state[port]; seen && last == up {
		return
	}
	p.state[port] = up
	if err := ls.SetLinkState(port, up); err != nil {
		util.WithPort(p.device, port).Warnf("setting link state: %v", err)
	}
}

// Run reports link updates as they arrive and polls every interval until
// ctx is cancelled. Without netlink updates it only polls.
func (p *LinkPoller) Run(ctx context.Context, interval time.Duration, ls LinkSetter) error {
	done := make(chan struct{})
	defer close(done)
	events, err := p.watch(done)
	if err != nil {
		util.WithDevice(p.device).Warnf("no link updates, polling every %s: %v", interval, err)
	}

	p.Poll(ls)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ls)
		case ev, ok := <-events:
			if !ok {
				util.WithDevice(p.device).Warnf("link updates ended, polling every %s", interval)
				events = nil
				continue
			}
			if port, ok := p.ports[ev.ifname]; ok {
				p.report(port, ev.up, ls)
			}
		}
	}
}

func sortedPorts(ifaces map[string]string) []string {
	ports := make([]string, 0, len(ifaces))
	for p := range ifaces {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return util.LessPortName(ports[i], ports[j]) })
	return ports
}
