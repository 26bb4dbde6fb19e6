package statedb

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// CONFIG_DB tables.
const (
	TablePortChannel       = "PORTCHANNEL"
	TablePortChannelMember = "PORTCHANNEL_MEMBER"
	TableVLAN              = "VLAN"
	TableVLANMember        = "VLAN_MEMBER"
)

// STATE_DB tables.
const (
	TablePortState      = "PORT_TABLE"
	TableLAGState       = "LAG_TABLE"
	TableLAGMemberState = "LAG_MEMBER_TABLE"
)

// ConfigTables are the CONFIG_DB tables owned by the controller.
var ConfigTables = []string{TablePortChannel, TablePortChannelMember, TableVLAN, TableVLANMember}

// StateTables are the STATE_DB tables owned by the controller.
var StateTables = []string{TablePortState, TableLAGState, TableLAGMemberState}

// ConfigChanges renders the admin configuration of a device as CONFIG_DB
// entries.
func ConfigChanges(s *model.DeviceState) []TableChange {
	var changes []TableChange
	for _, pc := range s.PortChannels {
		changes = append(changes, TableChange{
			Table: TablePortChannel,
			Key:   pc.Name,
			Fields: map[string]string{
				"admin_status": "up",
				"mode":         pc.Mode,
				"fast_rate":    strconv.FormatBool(pc.Rate == "fast"),
				"lacp_key":     strconv.Itoa(pc.Key),
				"hash":         pc.HashMode,
			},
		})
		for _, m := range pc.Members {
			changes = append(changes, TableChange{
				Table:  TablePortChannelMember,
				Key:    pc.Name + "|" + m.Interface,
				Fields: map[string]string{},
			})
		}
	}
	for _, v := range s.VLANs {
		name := util.VLANName(v.ID)
		changes = append(changes, TableChange{
			Table:  TableVLAN,
			Key:    name,
			Fields: map[string]string{"vlanid": strconv.Itoa(v.ID)},
		})
		for _, m := range v.Members() {
			changes = append(changes, TableChange{
				Table:  TableVLANMember,
				Key:    name + "|" + m.Target,
				Fields: map[string]string{"tagging_mode": m.Tagging},
			})
		}
	}
	return changes
}

// StateChanges renders the operational state of a device as STATE_DB
// entries.
func StateChanges(s *model.DeviceState) []TableChange {
	var changes []TableChange
	for _, i := range s.Interfaces {
		fields := map[string]string{
			"admin_status": i.AdminStatus,
			"oper_status":  i.OperStatus,
			"speed":        strconv.Itoa(i.Speed),
			"duplex":       i.Duplex,
		}
		if i.LAG != "" {
			fields["lag"] = i.LAG
		}
		if i.LACPKey != 0 {
			fields["lacp_key"] = strconv.Itoa(i.LACPKey)
		}
		changes = append(changes, TableChange{Table: TablePortState, Key: i.Name, Fields: fields})
	}
	for _, pc := range s.PortChannels {
		fields := map[string]string{
			"oper_status":    pc.OperStatus,
			"mode":           pc.Mode,
			"active_members": strings.Join(pc.ActiveMembers, ","),
		}
		if pc.PartnerSystem != "" {
			fields["partner_system"] = pc.PartnerSystem
			fields["partner_key"] = strconv.Itoa(pc.PartnerKey)
		}
		changes = append(changes, TableChange{Table: TableLAGState, Key: pc.Name, Fields: fields})

		for _, m := range pc.Members {
			changes = append(changes, TableChange{
				Table:  TableLAGMemberState,
				Key:    pc.Name + "|" + m.Interface,
				Fields: memberFields(m),
			})
		}
	}
	return changes
}

func memberFields(m model.LACPMemberState) map[string]string {
	fields := map[string]string{
		"oper_status":             model.Status(m.LinkUp),
		"selected":                strconv.FormatBool(m.Selected),
		"collecting_distributing": strconv.FormatBool(m.Active),
	}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	setInt := func(k string, v int) {
		if v != 0 {
			fields[k] = strconv.Itoa(v)
		}
	}
	set("rx_state", m.RxState)
	set("mux_state", m.MuxState)
	set("reason", m.Reason)
	set("actor_state", m.ActorState)
	set("partner_state", m.PartnerState)
	set("actor_system", m.ActorSystem)
	set("partner_system", m.PartnerSystem)
	setInt("actor_port_num", m.ActorPort)
	setInt("partner_port_num", m.PartnerPort)
	setInt("actor_key", m.ActorKey)
	setInt("partner_key", m.PartnerKey)
	setInt("actor_port_priority", m.ActorPrio)
	setInt("partner_port_priority", m.PartnerPrio)
	return fields
}

// parseMember is the inverse of memberFields.
func parseMember(port string, vals map[string]string) model.LACPMemberState {
	return model.LACPMemberState{
		Interface:     port,
		LinkUp:        vals["oper_status"] == "up",
		Selected:      vals["selected"] == "true",
		Active:        vals["collecting_distributing"] == "true",
		RxState:       vals["rx_state"],
		MuxState:      vals["mux_state"],
		Reason:        vals["reason"],
		ActorState:    vals["actor_state"],
		PartnerState:  vals["partner_state"],
		ActorSystem:   vals["actor_system"],
		PartnerSystem: vals["partner_system"],
		ActorPort:     atoi(vals["actor_port_num"]),
		PartnerPort:   atoi(vals["partner_port_num"]),
		ActorKey:      atoi(vals["actor_key"]),
		PartnerKey:    atoi(vals["partner_key"]),
		ActorPrio:     atoi(vals["actor_port_priority"]),
		PartnerPrio:   atoi(vals["partner_port_priority"]),
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// splitKey splits "lag1|2" into ("lag1", "2").
func splitKey(key string) (string, string, bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func sortedKeys(m map[string]map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
