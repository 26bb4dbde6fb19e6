package device

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/model"
)

// twoSwitchLab builds
//
//	hs1 -- sw1:1   sw1:2 == sw2:2   sw2:1 -- hs2
//	               sw1:3 == sw2:3   sw2:4 -- hs3
//
// with lag1 over ports 2 and 3, active on sw1 and passive on sw2, carrying
// VLANs 800 and 900 tagged. hs1 and hs2 are in VLAN 800, hs3 in VLAN 900.
func twoSwitchLab(t *testing.T) (*lab, *Device, *Device) {
	l := newLab(t)
	sw1 := l.addSwitch("sw1", 1, "1", "2", "3")
	sw2 := l.addSwitch("sw2", 2, "1", "2", "3", "4")
	l.addHost("hs1", 1)
	l.addHost("hs2", 2)
	l.addHost("hs3", 3)

	l.connect("hs1", "sw1:1")
	l.connect("sw1:2", "sw2:2")
	l.connect("sw1:3", "sw2:3")
	l.connect("hs2", "sw2:1")
	l.connect("hs3", "sw2:4")

	for _, sw := range []struct {
		dev  *Device
		mode lacp.Mode
	}{
		{sw1, lacp.ModeActive},
		{sw2, lacp.ModePassive},
	} {
		_, err := sw.dev.CreateLAG("1", LAGSettings{Mode: sw.mode})
		require.NoError(t, err)
		require.NoError(t, sw.dev.AddMember("lag1", "2"))
		require.NoError(t, sw.dev.AddMember("lag1", "3"))
		require.NoError(t, sw.dev.CreateVLAN(800))
		require.NoError(t, sw.dev.CreateVLAN(900))
		require.NoError(t, sw.dev.TagVLANs("lag1", []int{800, 900}, true))
	}
	require.NoError(t, sw1.SetAccessVLAN("1", 800))
	require.NoError(t, sw2.SetAccessVLAN("1", 800))
	require.NoError(t, sw2.SetAccessVLAN("4", 900))

	l.converge("lag1", sw1, sw2)
	return l, sw1, sw2
}

func TestTwoSwitchTaggedVLANsOverDynamicLAG(t *testing.T) {
	l, sw1, sw2 := twoSwitchLab(t)

	t.Run("LACP state synchronized", func(t *testing.T) {
		for _, sw := range []struct {
			dev    *Device
			local  string
			remote string
		}{
			{sw1, "ALFNCD", "PLFNCD"},
			{sw2, "PLFNCD", "ALFNCD"},
		} {
			pc, err := sw.dev.PortChannel("lag1")
			require.NoError(t, err)
			assert.Equal(t, "up", pc.OperStatus, sw.dev.Name())
			assert.Equal(t, []string{"2", "3"}, pc.ActiveMembers, sw.dev.Name())
			for _, m := range pc.Members {
				assert.Equal(t, sw.local, m.ActorState, "%s:%s LOCAL", sw.dev.Name(), m.Interface)
				assert.Equal(t, sw.remote, m.PartnerState, "%s:%s REMOTE", sw.dev.Name(), m.Interface)
			}
		}
	})

	t.Run("VLAN tables", func(t *testing.T) {
		want := []model.VLAN{
			{ID: 800, Name: "Vlan800", TaggedMembers: []string{"lag1"}, UntaggedMembers: []string{"1"}},
			{ID: 900, Name: "Vlan900", TaggedMembers: []string{"lag1"}},
		}
		if diff := cmp.Diff(want, sw1.VLANs()); diff != "" {
			t.Errorf("sw1 VLANs mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("A reaches B but not C", func(t *testing.T) {
		assert.True(t, sw1.IsReachable(800, "1", 800, "lag1"))
		assert.True(t, sw2.IsReachable(800, "2", 800, "1"), "member port stands for its LAG")
		assert.False(t, sw2.IsReachable(800, "1", 900, "4"))

		assert.Equal(t, []string{"hs2"}, l.ping("hs1"))
		assert.Equal(t, []string{"hs1"}, l.ping("hs2"))
		assert.Empty(t, l.ping("hs3"))
	})

	t.Run("moving A to VLAN 900", func(t *testing.T) {
		require.NoError(t, sw1.SetAccessVLAN("1", 900))

		iface, err := sw1.Interface("1")
		require.NoError(t, err)
		assert.Equal(t, 900, iface.AccessVLAN)

		assert.Equal(t, []string{"hs3"}, l.ping("hs1"))
		assert.Equal(t, []string{"hs1"}, l.ping("hs3"))
		assert.Empty(t, l.ping("hs2"))
	})
}

func TestReachabilityIsSymmetric(t *testing.T) {
	_, sw1, _ := twoSwitchLab(t)

	targets := []string{"1", "2", "3", "lag1"}
	for _, a := range targets {
		for _, b := range targets {
			for _, v := range []int{0, 800, 900} {
				assert.Equal(t, sw1.IsReachable(v, a, v, b), sw1.IsReachable(v, b, v, a),
					"IsReachable(%d, %s, %s)", v, a, b)
			}
		}
	}
}

func TestLinkFailureKeepsLAGForwarding(t *testing.T) {
	l, sw1, sw2 := twoSwitchLab(t)

	l.cut("sw1:3", "sw2:3")
	l.run(1)

	state, err := sw1.lags.AggregateState("lag1")
	require.NoError(t, err)
	assert.Equal(t, "partial", string(state))

	pc, err := sw2.PortChannel("lag1")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, pc.ActiveMembers)

	assert.Equal(t, []string{"hs2"}, l.ping("hs1"), "traffic should move to the surviving member")
}

func TestRemoveLastActiveMemberTakesLAGDown(t *testing.T) {
	_, sw1, _ := twoSwitchLab(t)

	require.NoError(t, sw1.RemoveMember("lag1", "2"))
	pc, err := sw1.PortChannel("lag1")
	require.NoError(t, err)
	assert.Equal(t, "up", pc.OperStatus)

	require.NoError(t, sw1.RemoveMember("lag1", "3"))
	pc, err = sw1.PortChannel("lag1")
	require.NoError(t, err)
	assert.Equal(t, "down", pc.OperStatus)
	assert.Empty(t, pc.Members)

	_, err = sw1.ResolveEgress("lag1", []byte{0})
	assert.Error(t, err)
}

func TestConvergedLAGAlwaysForwards(t *testing.T) {
	l := newLab(t)
	sw1 := l.addSwitch("sw1", 1, "2", "3")
	sw2 := l.addSwitch("sw2", 2, "2", "3")
	l.connect("sw1:2", "sw2:2")
	l.connect("sw1:3", "sw2:3")
	for _, sw := range []struct {
		dev  *Device
		mode lacp.Mode
	}{
		{sw1, lacp.ModeActive},
		{sw2, lacp.ModePassive},
	} {
		_, err := sw.dev.CreateLAG("1", LAGSettings{Mode: sw.mode})
		require.NoError(t, err)
		require.NoError(t, sw.dev.AddMember("lag1", "2"))
		require.NoError(t, sw.dev.AddMember("lag1", "3"))
	}

	// A cancelled context makes WaitConverged a non-blocking check.
	done, cancel := context.WithCancel(context.Background())
	cancel()

	converged := map[string]bool{}
	for round := 0; round < 20; round++ {
		for _, ticked := range []*Device{sw1, sw2} {
			now := l.clock.Advance(100 * time.Millisecond)
			require.NoError(t, ticked.Tick(context.Background(), now))
			l.drain()

			for _, sw := range []*Device{sw1, sw2} {
				if sw.WaitConverged(done, "lag1") != nil {
					continue
				}
				converged[sw.Name()] = true
				_, err := sw.ResolveEgress("lag1", []byte{byte(round)})
				assert.NoError(t, err, "round %d after %s tick: %s converged without a forwarding member",
					round, ticked.Name(), sw.Name())
			}
		}
	}
	assert.Equal(t, map[string]bool{"sw1": true, "sw2": true}, converged)
}
