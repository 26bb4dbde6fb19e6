package portmon

import (
	"errors"
	"testing"

	"github.com/hongkiaong/lacpd/pkg/util"
)

type recorder struct {
	events []string
}

func (r *recorder) LinkChanged(port string, up bool) {
	r.events = append(r.events, port+":"+upDown(up))
}

func newMonitor(t *testing.T, names ...string) *Monitor {
	t.Helper()
	m := New("sw1")
	for _, n := range names {
		if err := m.AddPort(Port{Name: n, Speed: 1000}); err != nil {
			t.Fatalf("AddPort(%s): %v", n, err)
		}
	}
	return m
}

func TestIsUpRequiresAdminAndLink(t *testing.T) {
	tests := []struct {
		name  string
		admin bool
		link  bool
		want  bool
	}{
		{"both down", false, false, false},
		{"admin only", true, false, false},
		{"link only", false, true, false},
		{"both up", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMonitor(t, "1")
			m.SetAdminState("1", tt.admin)
			m.SetLinkState("1", tt.link)
			got, err := m.IsUp("1")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsUp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListenersSeeOnlyTransitions(t *testing.T) {
	m := newMonitor(t, "1", "2")
	r := &recorder{}
	m.Subscribe(r)

	m.SetLinkState("1", true)  // admin still down: no transition
	m.SetAdminState("1", true) // up
	m.SetAdminState("1", true) // no-op
	m.SetLinkState("2", true)
	m.SetLinkState("1", false) // down

	want := []string{"1:up", "1:down"}
	if len(r.events) != len(want) {
		t.Fatalf("events = %v, want %v", r.events, want)
	}
	for i := range want {
		if r.events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, r.events[i], want[i])
		}
	}
}

func TestUnknownPort(t *testing.T) {
	m := newMonitor(t, "1")

	checks := map[string]error{
		"SetLinkState":  m.SetLinkState("9", true),
		"SetAdminState": m.SetAdminState("9", true),
		"SetSpeed":      m.SetSpeed("9", 1000, DuplexFull),
		"SetKey":        m.SetKey("9", 1),
	}
	_, err := m.IsUp("9")
	checks["IsUp"] = err

	for name, err := range checks {
		var nf *util.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("%s(unknown) error = %v, want NotFoundError", name, err)
		}
	}
}

func TestAddPortDuplicate(t *testing.T) {
	m := newMonitor(t, "1")
	if err := m.AddPort(Port{Name: "1"}); !errors.Is(err, util.ErrAlreadyExists) {
		t.Errorf("AddPort(dup) error = %v, want ErrAlreadyExists", err)
	}
	if err := m.AddPort(Port{}); !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("AddPort(no name) error = %v, want ErrValidationFailed", err)
	}
}

func TestListOrderAndDefaults(t *testing.T) {
	m := newMonitor(t, "3", "1", "2")
	ports := m.List()
	if len(ports) != 3 {
		t.Fatalf("List() len = %d", len(ports))
	}
	for i, p := range ports {
		if p.Number != uint16(i+1) {
			t.Errorf("ports[%d].Number = %d", i, p.Number)
		}
		if p.Duplex != DuplexFull {
			t.Errorf("ports[%d].Duplex = %q", i, p.Duplex)
		}
	}
	if ports[0].Name != "3" {
		t.Errorf("first port = %q, want boot order", ports[0].Name)
	}
}

func TestSettersRecordValues(t *testing.T) {
	m := newMonitor(t, "2")
	m.SetSpeed("2", 10000, DuplexHalf)
	m.SetKey("2", 5)
	m.SetPriority("2", 10)
	m.SetLAG("2", "lag1")

	p, _ := m.Get("2")
	if p.Speed != 10000 || p.Duplex != DuplexHalf || p.Key != 5 || p.Priority != 10 || p.LAG != "lag1" {
		t.Errorf("Get() = %+v", p)
	}
	if err := m.SetSpeed("2", 1000, "auto"); err == nil {
		t.Error("SetSpeed with bad duplex should fail")
	}
}
