package netio

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
	"github.com/stretchr/testify/require"

	"github.com/hongkiaong/lacpd/pkg/util"
)

type fakeHandle struct {
	rx   chan []byte
	once sync.Once

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{rx: make(chan []byte, 16)}
}

func (h *fakeHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ok := <-h.rx
	if !ok {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	return data, gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}, nil
}

func (h *fakeHandle) WritePacketData(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.written = append(h.written, append([]byte(nil), data...))
	return nil
}

func (h *fakeHandle) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.rx)
	})
}

type received struct {
	port  string
	frame []byte
}

type recorder struct {
	mu     sync.Mutex
	frames []received
	got    chan struct{}
}

func (r *recorder) ReceiveFrame(port string, frame []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, received{port, append([]byte(nil), frame...)})
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func TestRunDeliversFramesPerPort(t *testing.T) {
	h1, h2 := newFakeHandle(), newFakeHandle()
	n := New("sw1", map[string]Handle{"1": h1, "2": h2})
	rec := &recorder{got: make(chan struct{}, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, rec) }()

	frame := make([]byte, 60)
	frame[12], frame[13] = 0x88, 0x09
	h1.rx <- frame
	h2.rx <- frame
	for i := 0; i < 2; i++ {
		select {
		case <-rec.got:
		case <-time.After(5 * time.Second):
			t.Fatal("frame not delivered")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.True(t, h1.closed)
	assert.True(t, h2.closed)

	ports := map[string]bool{}
	for _, f := range rec.frames {
		ports[f.port] = true
		assert.Len(t, f.frame, 60)
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true}, ports)
}

func TestRunFailsWhenCaptureEnds(t *testing.T) {
	h1, h2 := newFakeHandle(), newFakeHandle()
	n := New("sw1", map[string]Handle{"1": h1, "2": h2})
	rec := &recorder{got: make(chan struct{}, 4)}

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background(), rec) }()

	// The interface behind port 2 goes away: reads return EOF.
	h2.once.Do(func() { close(h2.rx) })
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port 2")
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept waiting after a capture ended")
	}
	assert.True(t, h1.closed, "surviving handles are closed")
}

func TestTransmit(t *testing.T) {
	h := newFakeHandle()
	n := New("sw1", map[string]Handle{"1": h})

	require.NoError(t, n.Transmit("1", []byte{1, 2, 3}))
	assert.Equal(t, [][]byte{{1, 2, 3}}, h.written)

	err := n.Transmit("9", []byte{1})
	assert.True(t, errors.Is(err, util.ErrNotFound))

	n.Close()
	n.Close()
	err = n.Transmit("1", []byte{1})
	assert.True(t, errors.Is(err, util.ErrNotConnected))
}

type linkLog struct {
	changes []string
}

func (l *linkLog) SetLinkState(port string, up bool) error {
	state := "down"
	if up {
		state = "up"
	}
	l.changes = append(l.changes, port+" "+state)
	return nil
}

func TestLinkPollerReportsChanges(t *testing.T) {
	carrier := map[string]bool{"eth1": true, "eth2": false}
	p := NewLinkPoller("sw1", map[string]string{"Ethernet0": "eth1", "Ethernet4": "eth2", "Ethernet8": "eth3"})
	p.linkUp = func(ifname string) (bool, error) {
		up, ok := carrier[ifname]
		if !ok {
			return false, errors.New("no such interface")
		}
		return up, nil
	}

	log := &linkLog{}
	p.Poll(log)
	assert.Equal(t, []string{"Ethernet0 up", "Ethernet4 down", "Ethernet8 down"}, log.changes)

	log.changes = nil
	p.Poll(log)
	assert.Empty(t, log.changes, "unchanged carriers are not reported again")

	carrier["eth1"] = false
	carrier["eth2"] = true
	p.Poll(log)
	assert.Equal(t, []string{"Ethernet0 down", "Ethernet4 up"}, log.changes)
}

func TestLinkPollerRunStops(t *testing.T) {
	p := NewLinkPoller("sw1", map[string]string{"1": "eth1"})
	p.linkUp = func(string) (bool, error) { return true, nil }
	log := &linkLog{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx, time.Millisecond, log))
	assert.Equal(t, []string{"1 up"}, log.changes)
}

func TestLinkIsUp(t *testing.T) {
	tests := []struct {
		name  string
		attrs netlink.LinkAttrs
		want  bool
	}{
		{"up and running", netlink.LinkAttrs{Flags: net.FlagUp, OperState: netlink.OperUp}, true},
		{"no carrier", netlink.LinkAttrs{Flags: net.FlagUp, OperState: netlink.OperDown}, false},
		{"lower layer down", netlink.LinkAttrs{Flags: net.FlagUp, OperState: netlink.OperLowerLayerDown}, false},
		{"admin down", netlink.LinkAttrs{OperState: netlink.OperUp}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, linkIsUp(&tt.attrs))
		})
	}
}

type linkChanges struct {
	ch chan string
}

func (l *linkChanges) SetLinkState(port string, up bool) error {
	state := "down"
	if up {
		state = "up"
	}
	l.ch <- port + " " + state
	return nil
}

func TestLinkPollerFollowsUpdates(t *testing.T) {
	p := NewLinkPoller("sw1", map[string]string{"Ethernet0": "eth1", "Ethernet4": "eth2"})
	p.linkUp = func(string) (bool, error) { return false, nil }
	events := make(chan linkEvent)
	watching := make(chan (<-chan struct{}), 1)
	p.watch = func(done <-chan struct{}) (<-chan linkEvent, error) {
		watching <- done
		return events, nil
	}

	changes := &linkChanges{ch: make(chan string, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- p.Run(ctx, time.Hour, changes) }()

	next := func() string {
		t.Helper()
		select {
		case c := <-changes.ch:
			return c
		case <-time.After(5 * time.Second):
			t.Fatal("no link change reported")
			return ""
		}
	}
	assert.Equal(t, "Ethernet0 down", next())
	assert.Equal(t, "Ethernet4 down", next())

	events <- linkEvent{ifname: "eth9", up: true}
	events <- linkEvent{ifname: "eth2", up: true}
	assert.Equal(t, "Ethernet4 up", next(), "updates for other interfaces are ignored")
	events <- linkEvent{ifname: "eth2", up: true}
	events <- linkEvent{ifname: "eth2", up: false}
	assert.Equal(t, "Ethernet4 down", next(), "repeated states are not reported")

	done := <-watching
	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	select {
	case <-done:
	default:
		t.Error("link updates still subscribed after Run returned")
	}
}

func TestLinkPollerWithoutUpdates(t *testing.T) {
	p := NewLinkPoller("sw1", map[string]string{"1": "eth1"})
	up := make(chan bool, 1)
	up <- false
	p.linkUp = func(string) (bool, error) {
		select {
		case v := <-up:
			return v, nil
		default:
			return true, nil
		}
	}
	p.watch = func(<-chan struct{}) (<-chan linkEvent, error) {
		return nil, errors.New("netlink unavailable")
	}

	changes := &linkChanges{ch: make(chan string, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, time.Millisecond, changes)

	for _, want := range []string{"1 down", "1 up"} {
		select {
		case c := <-changes.ch:
			assert.Equal(t, want, c)
		case <-time.After(5 * time.Second):
			t.Fatalf("polling did not report %q", want)
		}
	}
}
