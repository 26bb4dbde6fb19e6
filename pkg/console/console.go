// Package console implements the line-oriented admin command language of a
// switch. The same grammar is served over SSH exec and the interactive shell.
package console

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hongkiaong/lacpd/pkg/device"
	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/util"
)

var usage = []string{
	"interface <port> up|down",
	"interface <port> lacp port-key <key>",
	"interface <port> lacp port-priority <prio>",
	"lag create <id> mode active|passive|static [rate fast|slow] [hash l2-src-dst|l3-src-dst|l4-src-dst]",
	"lag delete <id>",
	"lag add-member <id> <port>",
	"lag remove-member <id> <port>",
	"vlan create <id>",
	"vlan delete <id>",
	"vlan tag <lag-or-port> <vlan-list> [tagged|untagged]",
	"vlan untag <lag-or-port> <vlan-id>",
	"vlan access <lag-or-port> <vlan-id>",
	"show lag [<id>]",
	"show interface [<port>]",
	"show vlan [<id>]",
}

// Console runs admin commands against one device.
type Console struct {
	dev      *device.Device
	commands map[string]func(w io.Writer, args []string) error
}

// New creates a console for dev.
func New(dev *device.Device) *Console {
	c := &Console{dev: dev}
	c.commands = map[string]func(w io.Writer, args []string) error{
		"interface": func(_ io.Writer, args []string) error { return c.cmdInterface(args) },
		"lag":       c.cmdLAG,
		"vlan":      func(_ io.Writer, args []string) error { return c.cmdVLAN(args) },
		"show":      c.cmdShow,
		"help":      func(w io.Writer, _ []string) error { c.Help(w); return nil },
		"?":         func(w io.Writer, _ []string) error { c.Help(w); return nil },
	}
	return c
}

// Prompt returns the interactive prompt.
func (c *Console) Prompt() string {
	return c.dev.Name() + "> "
}

// Exec runs one command line, writing any output to w. Blank lines and
// comments are accepted and do nothing.
func (c *Console) Exec(w io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args := strings.Fields(line)
	fn, ok := c.commands[args[0]]
	if !ok {
		return util.NewValidationError(fmt.Sprintf("unknown command %q (type 'help' for commands)", args[0]))
	}
	return fn(w, args[1:])
}

// Help lists the command grammar.
func (c *Console) Help(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, u := range usage {
		fmt.Fprintf(w, "  %s\n", u)
	}
}

// Complete returns the command words that start with prefix.
func (c *Console) Complete(prefix string) []string {
	var out []string
	for name := range c.commands {
		if strings.HasPrefix(name, prefix) && name != "?" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func usageError(prefix string) error {
	var lines []string
	for _, u := range usage {
		if strings.HasPrefix(u, prefix) {
			lines = append(lines, "usage: "+u)
		}
	}
	return util.NewValidationError(lines...)
}

func (c *Console) cmdInterface(args []string) error {
	switch {
	case len(args) == 2 && (args[1] == "up" || args[1] == "down"):
		return c.dev.SetInterfaceAdmin(args[0], args[1] == "up")
	case len(args) == 4 && args[1] == "lacp" && args[2] == "port-key":
		key, err := parseNumber("port-key", args[3])
		if err != nil {
			return err
		}
		return c.dev.SetPortKey(args[0], key)
	case len(args) == 4 && args[1] == "lacp" && args[2] == "port-priority":
		prio, err := parseNumber("port-priority", args[3])
		if err != nil {
			return err
		}
		return c.dev.SetPortPriority(args[0], prio)
	default:
		return usageError("interface")
	}
}

func (c *Console) cmdLAG(w io.Writer, args []string) error {
	if len(args) < 2 {
		return usageError("lag")
	}
	id := args[1]
	switch args[0] {
	case "create":
		s, err := parseLAGOptions(args[2:])
		if err != nil {
			return err
		}
		pc, err := c.dev.CreateLAG(id, s)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created %s (%s, key %d)\n", pc.Name, pc.Mode, pc.Key)
		return nil
	case "delete":
		if len(args) != 2 {
			return usageError("lag delete")
		}
		return c.dev.DeleteLAG(id)
	case "add-member":
		if len(args) != 3 {
			return usageError("lag add-member")
		}
		return c.dev.AddMember(id, args[2])
	case "remove-member":
		if len(args) != 3 {
			return usageError("lag remove-member")
		}
		return c.dev.RemoveMember(id, args[2])
	default:
		return usageError("lag")
	}
}

// parseLAGOptions parses "mode X [rate Y] [hash Z]" in any order; mode is
// required.
func parseLAGOptions(args []string) (device.LAGSettings, error) {
	var s device.LAGSettings
	if len(args)%2 != 0 {
		return s, usageError("lag create")
	}
	seen := make(map[string]bool)
	for i := 0; i < len(args); i += 2 {
		key, val := args[i], args[i+1]
		if seen[key] {
			return s, util.NewValidationError(fmt.Sprintf("%s given twice", key))
		}
		seen[key] = true
		var err error
		switch key {
		case "mode":
			s.Mode, err = lacp.ParseMode(val)
		case "rate":
			s.Rate, err = lacp.ParseRate(val)
		case "hash":
			s.Hash, err = forwarding.ParseHashMode(val)
		default:
			return s, usageError("lag create")
		}
		if err != nil {
			return s, util.NewValidationError(err.Error())
		}
	}
	if !seen["mode"] {
		return s, usageError("lag create")
	}
	return s, nil
}

func (c *Console) cmdVLAN(args []string) error {
	if len(args) < 2 {
		return usageError("vlan")
	}
	switch args[0] {
	case "create", "delete":
		if len(args) != 2 {
			return usageError("vlan " + args[0])
		}
		id, err := util.ParseVLANID(args[1])
		if err != nil {
			return err
		}
		if args[0] == "create" {
			return c.dev.CreateVLAN(id)
		}
		return c.dev.DeleteVLAN(id)
	case "tag":
		if len(args) < 3 || len(args) > 4 {
			return usageError("vlan tag")
		}
		ids, err := util.ExpandVLANRange(args[2])
		if err != nil {
			return err
		}
		tagged := true
		if len(args) == 4 {
			switch args[3] {
			case "tagged":
			case "untagged":
				tagged = false
			default:
				return usageError("vlan tag")
			}
		}
		return c.dev.TagVLANs(args[1], ids, tagged)
	case "untag", "access":
		if len(args) != 3 {
			return usageError("vlan " + args[0])
		}
		id, err := util.ParseVLANID(args[2])
		if err != nil {
			return err
		}
		if args[0] == "untag" {
			return c.dev.UntagVLAN(args[1], id)
		}
		return c.dev.SetAccessVLAN(args[1], id)
	default:
		return usageError("vlan")
	}
}

func parseNumber(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, util.NewValidationError(fmt.Sprintf("invalid %s %q", what, s))
	}
	return n, nil
}
