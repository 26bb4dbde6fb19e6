package device

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/portmon"
)

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type delivery struct {
	to    string
	frame []byte
}

type host struct {
	name  string
	mac   net.HardwareAddr
	ip    net.IP
	inbox []*forwarding.Frame
}

// lab wires switches and hosts with point-to-point links. Endpoints are
// "switch:port" or a host name. Frames are queued and delivered by drain so
// no device is re-entered from its own transmit hook.
type lab struct {
	t        *testing.T
	clock    *fakeClock
	switches map[string]*Device
	hosts    map[string]*host
	peer     map[string]string
	queue    []delivery
}

func newLab(t *testing.T) *lab {
	return &lab{
		t:        t,
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		switches: make(map[string]*Device),
		hosts:    make(map[string]*host),
		peer:     make(map[string]string),
	}
}

func (l *lab) addSwitch(name string, id byte, ports ...string) *Device {
	l.t.Helper()
	cfg := Config{
		Name:  name,
		MAC:   net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, id},
		Clock: l.clock.Now,
	}
	for _, p := range ports {
		cfg.Ports = append(cfg.Ports, portmon.Port{Name: p, AdminUp: true, Speed: 1000})
	}
	d, err := New(cfg)
	require.NoError(l.t, err)
	d.SetTransmitter(TransmitterFunc(func(port string, frame []byte) error {
		l.send(name+":"+port, frame)
		return nil
	}))
	l.switches[name] = d
	return d
}

func (l *lab) addHost(name string, id byte) *host {
	h := &host{
		name: name,
		mac:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x01, id},
		ip:   net.IPv4(10, 0, 0, id),
	}
	l.hosts[name] = h
	return h
}

func (l *lab) connect(a, b string) {
	l.t.Helper()
	l.peer[a] = b
	l.peer[b] = a
	l.setLink(a, true)
	l.setLink(b, true)
}

// setLink changes the link state of a switch endpoint; host ends are ignored.
func (l *lab) setLink(endpoint string, up bool) {
	l.t.Helper()
	sw, port, ok := strings.Cut(endpoint, ":")
	if !ok {
		return
	}
	require.NoError(l.t, l.switches[sw].SetLinkState(port, up))
}

func (l *lab) cut(a, b string) {
	l.t.Helper()
	l.setLink(a, false)
	l.setLink(b, false)
	delete(l.peer, a)
	delete(l.peer, b)
}

func (l *lab) send(from string, frame []byte) {
	to, ok := l.peer[from]
	if !ok {
		return
	}
	l.queue = append(l.queue, delivery{to: to, frame: append([]byte(nil), frame...)})
}

func (l *lab) drain() {
	l.t.Helper()
	for n := 0; len(l.queue) > 0; n++ {
		if n > 10000 {
			l.t.Fatal("frame storm: delivery queue never drained")
		}
		d := l.queue[0]
		l.queue = l.queue[1:]

		if sw, port, ok := strings.Cut(d.to, ":"); ok {
			require.NoError(l.t, l.switches[sw].ReceiveFrame(port, d.frame))
			continue
		}
		f, err := forwarding.ParseFrame(d.frame)
		require.NoError(l.t, err)
		h := l.hosts[d.to]
		h.inbox = append(h.inbox, f)
	}
}

// run advances the fabric one second at a time, ticking every switch.
func (l *lab) run(seconds int) {
	l.t.Helper()
	names := make([]string, 0, len(l.switches))
	for n := range l.switches {
		names = append(names, n)
	}
	sort.Strings(names)

	for i := 0; i < seconds; i++ {
		now := l.clock.Advance(time.Second)
		for _, n := range names {
			require.NoError(l.t, l.switches[n].Tick(context.Background(), now))
			l.drain()
		}
	}
}

// converge runs the fabric until every named switch reports lag up.
func (l *lab) converge(lag string, switches ...*Device) {
	l.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, len(switches))
	for _, sw := range switches {
		sw := sw
		go func() { done <- sw.WaitConverged(ctx, lag) }()
	}
	l.run(10)
	for range switches {
		select {
		case err := <-done:
			require.NoError(l.t, err)
		case <-ctx.Done():
			l.t.Fatalf("%s did not converge", lag)
		}
	}
}

// ping floods one frame from a host and returns the hosts that received it
// untagged with the same payload.
func (l *lab) ping(from string) []string {
	l.t.Helper()
	for _, h := range l.hosts {
		h.inbox = nil
	}
	src := l.hosts[from]
	payload := []byte("ping from " + from)
	l.send(from, udpFrame(l.t, src.mac, broadcast, src.ip, net.IPv4(10, 0, 0, 255), 4000, 7, payload))
	l.drain()

	var got []string
	for name, h := range l.hosts {
		for _, f := range h.inbox {
			if f.VLAN == 0 && strings.Contains(string(f.Payload), string(payload)) {
				got = append(got, name)
				break
			}
		}
	}
	sort.Strings(got)
	return got
}

func udpFrame(t *testing.T, src, dst net.HardwareAddr, srcIP, dstIP net.IP, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}
