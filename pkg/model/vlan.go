package model

// VLAN represents a VLAN and its members
type VLAN struct {
	ID              int      `json:"id"` // VLAN ID (1-4094)
	Name            string   `json:"name"`
	TaggedMembers   []string `json:"tagged_members,omitempty"`
	UntaggedMembers []string `json:"untagged_members,omitempty"`
}

// VLANMember represents VLAN membership for a port or LAG
type VLANMember struct {
	VLAN    int    `json:"vlan"`
	Target  string `json:"target"`
	Tagging string `json:"tagging"` // tagged, untagged
}

// Members returns every member with its tagging mode, tagged first.
func (v *VLAN) Members() []VLANMember {
	out := make([]VLANMember, 0, len(v.TaggedMembers)+len(v.UntaggedMembers))
	for _, t := range v.TaggedMembers {
		out = append(out, VLANMember{VLAN: v.ID, Target: t, Tagging: "tagged"})
	}
	for _, t := range v.UntaggedMembers {
		out = append(out, VLANMember{VLAN: v.ID, Target: t, Tagging: "untagged"})
	}
	return out
}

// HasMember reports whether target is bound to the VLAN in either mode.
func (v *VLAN) HasMember(target string) bool {
	for _, m := range v.Members() {
		if m.Target == target {
			return true
		}
	}
	return false
}
