package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hongkiaong/lacpd/pkg/cli"
	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/util"
)

func (c *Console) cmdShow(w io.Writer, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usageError("show")
	}
	switch args[0] {
	case "lag", "lags", "port-channel":
		if len(args) == 1 {
			RenderLAGSummary(w, c.dev.PortChannels())
			return nil
		}
		pc, err := c.dev.PortChannel(args[1])
		if err != nil {
			return err
		}
		RenderLAG(w, pc)
		return nil
	case "interface", "interfaces":
		if len(args) == 1 {
			RenderInterfaces(w, c.dev.Interfaces())
			return nil
		}
		iface, err := c.dev.Interface(args[1])
		if err != nil {
			return err
		}
		RenderInterface(w, iface)
		return nil
	case "vlan", "vlans":
		if len(args) == 1 {
			RenderVLANs(w, c.dev.VLANs())
			return nil
		}
		id, err := util.ParseVLANID(args[1])
		if err != nil {
			return err
		}
		v, err := c.dev.VLAN(id)
		if err != nil {
			return err
		}
		RenderVLANs(w, []model.VLAN{v})
		return nil
	default:
		return usageError("show")
	}
}

// RenderLAGSummary writes one row per LAG.
func RenderLAGSummary(w io.Writer, lags []model.PortChannel) {
	if len(lags) == 0 {
		fmt.Fprintln(w, "No LAGs configured")
		return
	}
	t := cli.NewTableTo(w, "LAG", "MODE", "STATE", "MEMBERS", "ACTIVE", "VLANS")
	for _, pc := range lags {
		t.Row(
			pc.Name,
			pc.Mode,
			cli.Status(pc.OperStatus),
			cli.OrDash(strings.Join(pc.MemberNames(), ",")),
			cli.OrDash(strings.Join(pc.ActiveMembers, ",")),
			cli.OrDash(vlanSummary(pc.AccessVLAN, pc.TrunkVLANs)),
		)
	}
	t.Flush()
}

// RenderLAG writes the details of one LAG, including the LOCAL and REMOTE
// LACP flags of every member.
func RenderLAG(w io.Writer, pc model.PortChannel) {
	fmt.Fprintf(w, "%s\n", cli.Bold(pc.Name))
	cli.Field(w, "Mode", pc.Mode)
	cli.Field(w, "Rate", pc.Rate)
	cli.Field(w, "Hash", pc.HashMode)
	cli.Field(w, "Key", pc.Key)
	cli.Field(w, "Aggregate State", cli.Status(pc.OperStatus))
	if pc.PartnerSystem != "" {
		cli.Field(w, "Partner System", pc.PartnerSystem)
		cli.Field(w, "Partner Key", pc.PartnerKey)
	}
	if s := vlanSummary(pc.AccessVLAN, pc.TrunkVLANs); s != "" {
		cli.Field(w, "VLANs", s)
	}
	if len(pc.Members) == 0 {
		fmt.Fprintln(w, "\nNo members")
		return
	}
	fmt.Fprintln(w)
	t := cli.NewTableTo(w, "PORT", "LINK", "ACTIVE", "RX", "MUX", "LOCAL", "REMOTE", "PARTNER")
	for _, m := range pc.Members {
		partner := "-"
		if m.PartnerSystem != "" {
			partner = fmt.Sprintf("%s port %d", m.PartnerSystem, m.PartnerPort)
		}
		t.Row(
			m.Interface,
			model.Status(m.LinkUp),
			yesNo(m.Active),
			cli.OrDash(m.RxState),
			cli.OrDash(m.MuxState),
			cli.OrDash(m.ActorState),
			cli.OrDash(m.PartnerState),
			partner,
		)
	}
	t.Flush()

	for _, m := range pc.Members {
		if m.Reason != "" {
			fmt.Fprintf(w, "%s: %s\n", m.Interface, m.Reason)
		}
	}
}

// RenderInterfaces writes one row per port.
func RenderInterfaces(w io.Writer, ifaces []model.Interface) {
	t := cli.NewTableTo(w, "PORT", "ADMIN", "OPER", "SPEED", "LAG", "KEY", "VLANS")
	for _, i := range ifaces {
		key := "-"
		if i.LACPKey != 0 {
			key = strconv.Itoa(i.LACPKey)
		}
		t.Row(
			i.Name,
			i.AdminStatus,
			cli.Status(i.OperStatus),
			speed(i.Speed),
			cli.OrDash(i.LAG),
			key,
			cli.OrDash(vlanSummary(i.AccessVLAN, i.TrunkVLANs)),
		)
	}
	t.Flush()
}

// RenderInterface writes the details of one port.
func RenderInterface(w io.Writer, i model.Interface) {
	fmt.Fprintf(w, "%s\n", cli.Bold(i.Name))
	cli.Field(w, "Admin Status", i.AdminStatus)
	cli.Field(w, "Oper Status", cli.Status(i.OperStatus))
	cli.Field(w, "Speed", speed(i.Speed))
	cli.Field(w, "Duplex", cli.OrDash(i.Duplex))
	if i.LACPKey != 0 {
		cli.Field(w, "LACP Key", i.LACPKey)
	}
	if i.LACPPrio != 0 {
		cli.Field(w, "LACP Port Priority", i.LACPPrio)
	}
	if i.IsLAGMember() {
		cli.Field(w, "LAG", i.LAG)
	}
	if s := vlanSummary(i.AccessVLAN, i.TrunkVLANs); s != "" {
		cli.Field(w, "VLANs", s)
	}
}

// RenderVLANs writes one row per VLAN.
func RenderVLANs(w io.Writer, vlans []model.VLAN) {
	if len(vlans) == 0 {
		fmt.Fprintln(w, "No VLANs configured")
		return
	}
	t := cli.NewTableTo(w, "VLAN", "NAME", "TAGGED", "UNTAGGED")
	for _, v := range vlans {
		t.Row(
			strconv.Itoa(v.ID),
			v.Name,
			cli.OrDash(strings.Join(v.TaggedMembers, ",")),
			cli.OrDash(strings.Join(v.UntaggedMembers, ",")),
		)
	}
	t.Flush()
}

// vlanSummary renders a target's VLANs as "u:800 t:900-901".
func vlanSummary(access int, trunk []int) string {
	var parts []string
	if access != 0 {
		parts = append(parts, fmt.Sprintf("u:%d", access))
	}
	if len(trunk) > 0 {
		parts = append(parts, "t:"+util.CompactRange(trunk))
	}
	return strings.Join(parts, " ")
}

func speed(mbps int) string {
	switch {
	case mbps == 0:
		return "-"
	case mbps%1000 == 0:
		return fmt.Sprintf("%dG", mbps/1000)
	default:
		return fmt.Sprintf("%dM", mbps)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
