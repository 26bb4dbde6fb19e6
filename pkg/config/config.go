// Package config loads the YAML startup configuration of a switch.
package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hongkiaong/lacpd/pkg/audit"
	"github.com/hongkiaong/lacpd/pkg/auth"
	"github.com/hongkiaong/lacpd/pkg/device"
	"github.com/hongkiaong/lacpd/pkg/forwarding"
	"github.com/hongkiaong/lacpd/pkg/lacp"
	"github.com/hongkiaong/lacpd/pkg/portmon"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// Defaults applied to omitted fields.
const (
	DefaultListen = ":2222"
	DefaultTick   = time.Second
)

// Config is the startup configuration of one switch.
type Config struct {
	Device         string        `yaml:"device"`
	MAC            string        `yaml:"mac"`
	SystemPriority int           `yaml:"system_priority,omitempty"`
	Redis          string        `yaml:"redis,omitempty"`
	Listen         string        `yaml:"listen,omitempty"`
	Tick           time.Duration `yaml:"tick,omitempty"`
	Ports          []PortConfig  `yaml:"ports"`
	LAGs           []LAGConfig   `yaml:"lags,omitempty"`
	VLANs          []VLANConfig  `yaml:"vlans,omitempty"`
	Users          []User        `yaml:"users,omitempty"`
	Audit          AuditConfig   `yaml:"audit,omitempty"`
}

// PortConfig describes one front-panel port.
type PortConfig struct {
	Name   string `yaml:"name"`
	Number int    `yaml:"number,omitempty"`
	// Ifname is the host interface that carries the port's frames.
	Ifname   string `yaml:"ifname,omitempty"`
	Speed    int    `yaml:"speed,omitempty"`
	Duplex   string `yaml:"duplex,omitempty"`
	Admin    string `yaml:"admin,omitempty"`
	LACPKey  int    `yaml:"lacp_key,omitempty"`
	LACPPrio int    `yaml:"lacp_priority,omitempty"`
}

// LAGConfig describes a LAG and its members.
type LAGConfig struct {
	ID      string   `yaml:"id"`
	Mode    string   `yaml:"mode"`
	Rate    string   `yaml:"rate,omitempty"`
	Hash    string   `yaml:"hash,omitempty"`
	Key     int      `yaml:"key,omitempty"`
	Members []string `yaml:"members,omitempty"`
}

// VLANConfig describes a VLAN and the targets bound to it.
type VLANConfig struct {
	ID       int      `yaml:"id"`
	Tagged   []string `yaml:"tagged,omitempty"`
	Untagged []string `yaml:"untagged,omitempty"`
}

// User is a management plane login. An empty role is admin.
type User struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role,omitempty"`
}

// AuditConfig enables the command audit log when Path is set.
type AuditConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxSize    int64  `yaml:"max_size,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// Load reads and validates a startup configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a startup configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, util.NewValidationError(fmt.Sprintf("parsing YAML: %v", err))
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Tick == 0 {
		cfg.Tick = DefaultTick
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency. Every problem found is
// reported, not just the first.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.Device != "", "device name is required")
	if _, err := net.ParseMAC(c.MAC); err != nil {
		v.AddErrorf("mac %q: %v", c.MAC, err)
	}
	v.Add(c.SystemPriority >= 0 && c.SystemPriority <= 0xffff,
		fmt.Sprintf("system_priority %d out of range (0-65535)", c.SystemPriority))
	v.Add(c.Tick > 0, "tick must be positive")

	ports := make(map[string]bool)
	numbers := make(map[int]string)
	for i, p := range c.Ports {
		if p.Name == "" {
			v.AddErrorf("ports[%d]: name is required", i)
			continue
		}
		if ports[p.Name] {
			v.AddErrorf("port %s defined twice", p.Name)
		}
		ports[p.Name] = true
		if util.IsLAGName(p.Name) {
			v.AddErrorf("port %s: name collides with a LAG name", p.Name)
		}
		if p.Number < 0 || p.Number > 0xffff {
			v.AddErrorf("port %s: number %d out of range", p.Name, p.Number)
		} else if p.Number > 0 {
			if other, ok := numbers[p.Number]; ok {
				v.AddErrorf("port %s: number %d already used by %s", p.Name, p.Number, other)
			}
			numbers[p.Number] = p.Name
		}
		if p.Duplex != "" && p.Duplex != portmon.DuplexFull && p.Duplex != portmon.DuplexHalf {
			v.AddErrorf("port %s: duplex %q (want full or half)", p.Name, p.Duplex)
		}
		if _, err := adminUp(p.Admin); err != nil {
			v.AddErrorf("port %s: %v", p.Name, err)
		}
		v.Add(p.LACPKey >= 0 && p.LACPKey <= 0xffff, fmt.Sprintf("port %s: lacp_key %d out of range", p.Name, p.LACPKey))
		v.Add(p.LACPPrio >= 0 && p.LACPPrio <= 0xffff, fmt.Sprintf("port %s: lacp_priority %d out of range", p.Name, p.LACPPrio))
	}

	targets := make(map[string]bool)
	owner := make(map[string]string)
	for i, l := range c.LAGs {
		name, err := util.NormalizeLAGName(l.ID)
		if err != nil {
			v.AddErrorf("lags[%d]: %v", i, err)
			continue
		}
		if targets[name] {
			v.AddErrorf("%s defined twice", name)
		}
		targets[name] = true
		if _, err := lacp.ParseMode(l.Mode); err != nil {
			v.AddErrorf("%s: %v", name, err)
		}
		if _, err := lacp.ParseRate(l.Rate); err != nil {
			v.AddErrorf("%s: %v", name, err)
		}
		if _, err := forwarding.ParseHashMode(l.Hash); err != nil {
			v.AddErrorf("%s: %v", name, err)
		}
		v.Add(l.Key >= 0 && l.Key <= 0xffff, fmt.Sprintf("%s: key %d out of range", name, l.Key))
		for _, m := range l.Members {
			if !ports[m] {
				v.AddErrorf("%s: member %s is not a configured port", name, m)
				continue
			}
			if other, ok := owner[m]; ok {
				v.AddErrorf("%s: member %s already belongs to %s", name, m, other)
				continue
			}
			owner[m] = name
		}
	}

	vlans := make(map[int]bool)
	untagged := make(map[string]int)
	for _, vl := range c.VLANs {
		if err := util.ValidateVLANID(vl.ID); err != nil {
			v.AddErrorf("vlans: %v", err)
			continue
		}
		if vlans[vl.ID] {
			v.AddErrorf("VLAN %d defined twice", vl.ID)
		}
		vlans[vl.ID] = true
		for _, t := range append(append([]string(nil), vl.Tagged...), vl.Untagged...) {
			if err := checkTarget(t, ports, targets, owner); err != nil {
				v.AddErrorf("VLAN %d: %v", vl.ID, err)
			}
		}
		for _, t := range vl.Untagged {
			key := canonicalTarget(t)
			if other, ok := untagged[key]; ok {
				v.AddErrorf("VLAN %d: %s is already untagged in VLAN %d", vl.ID, t, other)
				continue
			}
			untagged[key] = vl.ID
		}
	}

	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.Name == "" {
			v.AddErrorf("users[%d]: name is required", i)
			continue
		}
		if seen[u.Name] {
			v.AddErrorf("user %s defined twice", u.Name)
		}
		seen[u.Name] = true
		v.Add(u.Password != "", fmt.Sprintf("user %s: password is required", u.Name))
		if _, err := auth.ParseRole(u.Role); err != nil {
			v.AddErrorf("user %s: unknown role %q", u.Name, u.Role)
		}
	}
	v.Add(c.Audit.MaxSize >= 0, "audit.max_size must not be negative")
	v.Add(c.Audit.MaxBackups >= 0, "audit.max_backups must not be negative")
	return v.Build()
}

func checkTarget(t string, ports, lags map[string]bool, owner map[string]string) error {
	if util.IsLAGName(t) {
		name, err := util.NormalizeLAGName(t)
		if err != nil {
			return err
		}
		if !lags[name] {
			return fmt.Errorf("%s is not a configured LAG", t)
		}
		return nil
	}
	if !ports[t] {
		return fmt.Errorf("%s is not a configured port or LAG", t)
	}
	if lag, ok := owner[t]; ok {
		return fmt.Errorf("%s is a member of %s; bind the LAG instead", t, lag)
	}
	return nil
}

func canonicalTarget(t string) string {
	if name, err := util.NormalizeLAGName(t); err == nil {
		return name
	}
	return t
}

func adminUp(s string) (bool, error) {
	switch s {
	case "", "up":
		return true, nil
	case "down":
		return false, nil
	default:
		return false, fmt.Errorf("admin %q (want up or down)", s)
	}
}

// DeviceConfig returns the boot parameters of the device. Links start down
// until packet I/O reports them.
func (c *Config) DeviceConfig() (device.Config, error) {
	mac, err := net.ParseMAC(c.MAC)
	if err != nil {
		return device.Config{}, util.NewValidationError(fmt.Sprintf("mac %q: %v", c.MAC, err))
	}
	dc := device.Config{
		Name:           c.Device,
		MAC:            mac,
		SystemPriority: uint16(c.SystemPriority),
	}
	for _, p := range c.Ports {
		up, err := adminUp(p.Admin)
		if err != nil {
			return device.Config{}, util.NewValidationError(fmt.Sprintf("port %s: %v", p.Name, err))
		}
		duplex := p.Duplex
		if duplex == "" {
			duplex = portmon.DuplexFull
		}
		dc.Ports = append(dc.Ports, portmon.Port{
			Name:     p.Name,
			Number:   uint16(p.Number),
			AdminUp:  up,
			Speed:    p.Speed,
			Duplex:   duplex,
			Key:      uint16(p.LACPKey),
			Priority: uint16(p.LACPPrio),
		})
	}
	return dc, nil
}

// Interfaces maps port names to host interfaces, defaulting to the port name.
func (c *Config) Interfaces() map[string]string {
	out := make(map[string]string, len(c.Ports))
	for _, p := range c.Ports {
		ifname := p.Ifname
		if ifname == "" {
			ifname = p.Name
		}
		out[p.Name] = ifname
	}
	return out
}

// Passwords returns the management logins keyed by user name.
func (c *Config) Passwords() map[string]string {
	out := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		out[u.Name] = u.Password
	}
	return out
}

// Roles returns the role of each management login.
func (c *Config) Roles() map[string]auth.Role {
	out := make(map[string]auth.Role, len(c.Users))
	for _, u := range c.Users {
		r, err := auth.ParseRole(u.Role)
		if err != nil {
			continue
		}
		out[u.Name] = r
	}
	return out
}

// AuditLogger opens the configured audit log, or returns nil when none is
// configured.
func (c *Config) AuditLogger() (*audit.FileLogger, error) {
	if c.Audit.Path == "" {
		return nil, nil
	}
	return audit.NewFileLogger(c.Audit.Path, audit.RotationConfig{
		MaxSize:    c.Audit.MaxSize,
		MaxBackups: c.Audit.MaxBackups,
	})
}

// Apply creates the configured VLANs and LAGs on d and binds targets to
// VLANs. LAG members are added before any VLAN binding.
func (c *Config) Apply(d *device.Device) error {
	vlans := append([]VLANConfig(nil), c.VLANs...)
	sort.Slice(vlans, func(i, j int) bool { return vlans[i].ID < vlans[j].ID })
	for _, vl := range vlans {
		if err := d.CreateVLAN(vl.ID); err != nil {
			return fmt.Errorf("creating VLAN %d: %w", vl.ID, err)
		}
	}

	for _, l := range c.LAGs {
		s, err := l.settings()
		if err != nil {
			return err
		}
		if _, err := d.CreateLAG(l.ID, s); err != nil {
			return fmt.Errorf("creating LAG %s: %w", l.ID, err)
		}
		for _, m := range l.Members {
			if err := d.AddMember(l.ID, m); err != nil {
				return fmt.Errorf("adding %s to LAG %s: %w", m, l.ID, err)
			}
		}
	}

	for _, vl := range vlans {
		for _, t := range vl.Tagged {
			if err := d.TagVLANs(t, []int{vl.ID}, true); err != nil {
				return fmt.Errorf("tagging VLAN %d on %s: %w", vl.ID, t, err)
			}
		}
		for _, t := range vl.Untagged {
			if err := d.SetAccessVLAN(t, vl.ID); err != nil {
				return fmt.Errorf("setting access VLAN %d on %s: %w", vl.ID, t, err)
			}
		}
	}
	return nil
}

func (l LAGConfig) settings() (device.LAGSettings, error) {
	mode, err := lacp.ParseMode(l.Mode)
	if err != nil {
		return device.LAGSettings{}, util.NewValidationError(err.Error())
	}
	rate, err := lacp.ParseRate(l.Rate)
	if err != nil {
		return device.LAGSettings{}, util.NewValidationError(err.Error())
	}
	hash, err := forwarding.ParseHashMode(l.Hash)
	if err != nil {
		return device.LAGSettings{}, util.NewValidationError(err.Error())
	}
	return device.LAGSettings{Mode: mode, Rate: rate, Hash: hash, Key: uint16(l.Key)}, nil
}
