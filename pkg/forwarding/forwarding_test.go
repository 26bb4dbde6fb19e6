package forwarding

import (
	"fmt"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongkiaong/lacpd/pkg/util"
)

var (
	macA = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0a}
	macB = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0b}
)

func udpFrame(t *testing.T, src, dst string, sport, dport int) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("ping"))))
	return buf.Bytes()
}

func TestParseHashMode(t *testing.T) {
	tests := []struct {
		input   string
		want    HashMode
		wantErr bool
	}{
		{"l2-src-dst", HashL2, false},
		{"L3-SRC-DST", HashL3, false},
		{"", HashL3, false},
		{"l4-src-dst", HashL4, false},
		{"l5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseHashMode(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) HashMode {
	t.Helper()
	m, err := ParseHashMode(s)
	require.NoError(t, err)
	return m
}

func TestFlowHashModes(t *testing.T) {
	f1 := udpFrame(t, "140.1.1.10", "140.1.1.11", 1000, 53)
	f2 := udpFrame(t, "140.1.1.10", "140.1.1.11", 2000, 53)
	f3 := udpFrame(t, "140.1.1.10", "140.1.1.12", 1000, 53)

	// Same MACs everywhere: l2 cannot tell the flows apart.
	assert.Equal(t, FlowHash(f1, HashL2), FlowHash(f3, HashL2))
	// l3 separates by address but not by port.
	assert.Equal(t, FlowHash(f1, HashL3), FlowHash(f2, HashL3))
	assert.NotEqual(t, FlowHash(f1, HashL3), FlowHash(f3, HashL3))
	// l4 separates by port.
	assert.NotEqual(t, FlowHash(f1, HashL4), FlowHash(f2, HashL4))
	// Deterministic.
	assert.Equal(t, FlowHash(f1, HashL4), FlowHash(f1, HashL4))
}

func TestFlowHashFallsBackToL2(t *testing.T) {
	f := &Frame{Src: macA, Dst: macB, EtherType: layers.EthernetType(0x88b5), Payload: []byte{1, 2, 3}}
	raw, err := f.Encode(0, false)
	require.NoError(t, err)
	assert.Equal(t, FlowHash(raw, HashL2), FlowHash(raw, HashL4))
}

func TestFrameTagRoundTrip(t *testing.T) {
	raw := udpFrame(t, "140.1.1.10", "140.1.1.11", 1000, 53)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, f.VLAN)
	assert.Equal(t, layers.EthernetTypeIPv4, f.EtherType)

	tagged, err := f.Encode(800, true)
	require.NoError(t, err)
	assert.Len(t, tagged, len(raw)+4)

	g, err := ParseFrame(tagged)
	require.NoError(t, err)
	assert.Equal(t, 800, g.VLAN)
	assert.Equal(t, layers.EthernetTypeIPv4, g.EtherType)
	assert.Equal(t, f.Payload, g.Payload)

	untagged, err := g.Encode(800, false)
	require.NoError(t, err)
	assert.Equal(t, raw, untagged)

	// Tagging does not change which link a flow hashes to.
	assert.Equal(t, FlowHash(raw, HashL4), FlowHash(tagged, HashL4))
}

func TestResolveEgress(t *testing.T) {
	tbl := NewTable("sw1")

	_, err := tbl.ResolveEgress("lag1", 1)
	assert.ErrorIs(t, err, util.ErrNotFound)

	tbl.SetHashMode("lag1", HashL4)
	_, err = tbl.ResolveEgress("lag1", 1)
	assert.ErrorIs(t, err, util.ErrNoActiveMember)

	tbl.MembershipChanged("lag1", []string{"3", "2"})
	assert.Equal(t, []string{"2", "3"}, tbl.Members("lag1"))
	assert.Equal(t, HashL4, tbl.HashMode("lag1"))

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		h := FlowHash(udpFrame(t, "140.1.1.10", "140.1.1.11", 1000+i, 53), HashL4)
		first, err := tbl.ResolveEgress("lag1", h)
		require.NoError(t, err)
		again, _ := tbl.ResolveEgress("lag1", h)
		require.Equal(t, first, again, "flow moved without a membership change")
		counts[first]++
	}
	assert.Len(t, counts, 2, "flows should spread across both members")
	for port, n := range counts {
		assert.Greater(t, n, 200, fmt.Sprintf("member %s underused", port))
	}
}

func TestResolveEgressUsesOnlyActiveMembers(t *testing.T) {
	tbl := NewTable("sw1")
	tbl.MembershipChanged("lag1", []string{"2", "3"})
	tbl.MembershipChanged("lag1", []string{"3"})

	for i := uint64(0); i < 100; i++ {
		port, err := tbl.ResolveEgress("lag1", i*0x9e3779b97f4a7c15)
		require.NoError(t, err)
		assert.Equal(t, "3", port)
	}

	tbl.MembershipChanged("lag1", nil)
	_, err := tbl.ResolveEgress("lag1", 7)
	assert.ErrorIs(t, err, util.ErrNoActiveMember)

	tbl.RemoveLAG("lag1")
	_, err = tbl.ResolveEgress("lag1", 7)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestRebuildIsOrderIndependent(t *testing.T) {
	a, b := NewTable("a"), NewTable("b")
	a.MembershipChanged("lag1", []string{"2", "3", "5"})
	b.MembershipChanged("lag1", []string{"5", "2", "3"})
	for i := uint64(0); i < 50; i++ {
		pa, _ := a.ResolveEgress("lag1", i*7919)
		pb, _ := b.ResolveEgress("lag1", i*7919)
		assert.Equal(t, pa, pb)
	}
}
