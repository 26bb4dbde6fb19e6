package model

// PortChannel represents a link aggregation group (LAG)
type PortChannel struct {
	Name       string `json:"name"` // canonical lagN
	Mode       string `json:"mode"` // active, passive, static
	Rate       string `json:"rate"` // fast, slow
	HashMode   string `json:"hash"`
	Key        int    `json:"key"`
	OperStatus string `json:"oper_status"` // up, down, partial

	// Partner system the LAG aggregated with, "priority,mac"
	PartnerSystem string `json:"partner_system,omitempty"`
	PartnerKey    int    `json:"partner_key,omitempty"`

	Members       []LACPMemberState `json:"members"`
	ActiveMembers []string          `json:"active_members"`

	// L2 configuration
	AccessVLAN int   `json:"access_vlan,omitempty"`
	TrunkVLANs []int `json:"trunk_vlans,omitempty"`
}

// MemberNames returns the member interface names in order.
func (p *PortChannel) MemberNames() []string {
	names := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		names = append(names, m.Interface)
	}
	return names
}

// HasMember checks if an interface is a member
func (p *PortChannel) HasMember(iface string) bool {
	for _, m := range p.Members {
		if m.Interface == iface {
			return true
		}
	}
	return false
}

// LACPMemberState represents LACP state for a single member
type LACPMemberState struct {
	Interface string `json:"interface"`
	LinkUp    bool   `json:"link_up"`
	Active    bool   `json:"active"`
	Selected  bool   `json:"selected"`
	RxState   string `json:"rx_state,omitempty"`
	MuxState  string `json:"mux_state,omitempty"`
	Reason    string `json:"reason,omitempty"` // why the member is held detached

	// LOCAL (actor) and REMOTE (partner) flags in the A/P S/L F/I N/O C D X E legend
	ActorState    string `json:"actor_state,omitempty"`
	PartnerState  string `json:"partner_state,omitempty"`
	ActorSystem   string `json:"actor_system,omitempty"`
	PartnerSystem string `json:"partner_system,omitempty"`
	ActorPort     int    `json:"actor_port,omitempty"`
	PartnerPort   int    `json:"partner_port,omitempty"`
	ActorKey      int    `json:"actor_key,omitempty"`
	PartnerKey    int    `json:"partner_key,omitempty"`
	ActorPrio     int    `json:"actor_port_priority,omitempty"`
	PartnerPrio   int    `json:"partner_port_priority,omitempty"`
}

// LACPMode represents LACP negotiation mode
type LACPMode string

const (
	LACPModeActive  LACPMode = "active"  // Actively sends LACP PDUs
	LACPModePassive LACPMode = "passive" // Only responds to LACP PDUs
	LACPModeStatic  LACPMode = "static"  // Static LAG, no LACP
)
