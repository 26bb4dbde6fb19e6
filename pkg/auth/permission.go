// Package auth decides which management users may run which console
// commands.
package auth

import (
	"strings"
)

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermInterfaceModify Permission = "interface.modify"
	PermInterfaceView   Permission = "interface.view"

	PermLAGCreate Permission = "lag.create"
	PermLAGModify Permission = "lag.modify"
	PermLAGDelete Permission = "lag.delete"
	PermLAGView   Permission = "lag.view"

	PermVLANCreate Permission = "vlan.create"
	PermVLANModify Permission = "vlan.modify"
	PermVLANDelete Permission = "vlan.delete"
	PermVLANView   Permission = "vlan.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "interface",
		Description: "Port admin state and LACP settings",
		Permissions: []Permission{PermInterfaceModify, PermInterfaceView},
	},
	{
		Name:        "lag",
		Description: "Link aggregation",
		Permissions: []Permission{PermLAGCreate, PermLAGModify, PermLAGDelete, PermLAGView},
	},
	{
		Name:        "vlan",
		Description: "VLAN management",
		Permissions: []Permission{PermVLANCreate, PermVLANModify, PermVLANDelete, PermVLANView},
	},
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermInterfaceView, PermLAGView, PermVLANView:
		return true
	}
	return false
}

// ForCommand returns the permission a console command line requires, or ""
// when the line needs none (blank lines, comments, help, unknown words).
func ForCommand(line string) Permission {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	args := strings.Fields(line)
	sub := ""
	if len(args) > 1 {
		sub = args[1]
	}

	switch args[0] {
	case "interface":
		return PermInterfaceModify
	case "lag":
		switch sub {
		case "create":
			return PermLAGCreate
		case "delete":
			return PermLAGDelete
		}
		return PermLAGModify
	case "vlan":
		switch sub {
		case "create":
			return PermVLANCreate
		case "delete":
			return PermVLANDelete
		}
		return PermVLANModify
	case "show":
		switch {
		case strings.HasPrefix(sub, "lag"), sub == "port-channel":
			return PermLAGView
		case strings.HasPrefix(sub, "interface"):
			return PermInterfaceView
		case strings.HasPrefix(sub, "vlan"):
			return PermVLANView
		}
	}
	return ""
}
