package statedb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hongkiaong/lacpd/pkg/model"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// Publisher mirrors a device's state into CONFIG_DB and STATE_DB. Each
// publish replaces the controller-owned tables wholesale.
type Publisher struct {
	mu     sync.Mutex
	config *Client
	state  *Client
}

// NewPublisher creates a publisher for the redis server at addr.
func NewPublisher(addr string) *Publisher {
	return &Publisher{
		config: NewClient(addr, ConfigDB),
		state:  NewClient(addr, StateDB),
	}
}

// Connect checks both databases are reachable.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := p.config.Connect(ctx); err != nil {
		return err
	}
	return p.state.Connect(ctx)
}

// Close closes both connections.
func (p *Publisher) Close() error {
	err := p.config.Close()
	if serr := p.state.Close(); err == nil {
		err = serr
	}
	return err
}

// Publish writes the device state. Publishes are serialized so a slow write
// cannot overtake a newer one.
func (p *Publisher) Publish(ctx context.Context, s *model.DeviceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.config.ReplaceTables(ctx, ConfigTables, ConfigChanges(s)); err != nil {
		return fmt.Errorf("publishing config of %s: %w", s.Device, err)
	}
	if err := p.state.ReplaceTables(ctx, StateTables, StateChanges(s)); err != nil {
		return fmt.Errorf("publishing state of %s: %w", s.Device, err)
	}
	util.WithDevice(s.Device).Debugf("published %d LAGs, %d VLANs, %d ports",
		len(s.PortChannels), len(s.VLANs), len(s.Interfaces))
	return nil
}

// Reader reads published state back, for lagctl.
type Reader struct {
	config *Client
	state  *Client
}

// NewReader creates a reader for the redis server at addr.
func NewReader(addr string) *Reader {
	return &Reader{
		config: NewClient(addr, ConfigDB),
		state:  NewClient(addr, StateDB),
	}
}

// Connect checks both databases are reachable.
func (r *Reader) Connect(ctx context.Context) error {
	if err := r.config.Connect(ctx); err != nil {
		return err
	}
	return r.state.Connect(ctx)
}

// Close closes both connections.
func (r *Reader) Close() error {
	err := r.config.Close()
	if serr := r.state.Close(); err == nil {
		err = serr
	}
	return err
}

// LAGs reads every published LAG, ordered by number.
func (r *Reader) LAGs(ctx context.Context) ([]model.PortChannel, error) {
	cfg, err := r.config.Table(ctx, TablePortChannel)
	if err != nil {
		return nil, err
	}
	state, err := r.state.Table(ctx, TableLAGState)
	if err != nil {
		return nil, err
	}
	members, err := r.state.Table(ctx, TableLAGMemberState)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*model.PortChannel)
	for name, vals := range cfg {
		byName[name] = &model.PortChannel{
			Name:     name,
			Mode:     vals["mode"],
			Rate:     rateName(vals["fast_rate"]),
			HashMode: vals["hash"],
			Key:      atoi(vals["lacp_key"]),
		}
	}
	for name, vals := range state {
		pc, ok := byName[name]
		if !ok {
			pc = &model.PortChannel{Name: name, Mode: vals["mode"]}
			byName[name] = pc
		}
		pc.OperStatus = vals["oper_status"]
		pc.PartnerSystem = vals["partner_system"]
		pc.PartnerKey = atoi(vals["partner_key"])
		pc.ActiveMembers = util.SplitCommaSeparated(vals["active_members"])
	}
	for _, key := range sortedKeys(members) {
		lag, port, ok := splitKey(key)
		if !ok {
			continue
		}
		if pc, ok := byName[lag]; ok {
			pc.Members = append(pc.Members, parseMember(port, members[key]))
		}
	}

	out := make([]model.PortChannel, 0, len(byName))
	for _, pc := range byName {
		sort.Slice(pc.Members, func(i, j int) bool {
			return util.LessPortName(pc.Members[i].Interface, pc.Members[j].Interface)
		})
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, _ := util.LAGNumber(out[i].Name)
		nj, _ := util.LAGNumber(out[j].Name)
		return ni < nj
	})
	return out, nil
}

// LAG reads one published LAG.
func (r *Reader) LAG(ctx context.Context, id string) (model.PortChannel, error) {
	name, err := util.NormalizeLAGName(id)
	if err != nil {
		return model.PortChannel{}, err
	}
	lags, err := r.LAGs(ctx)
	if err != nil {
		return model.PortChannel{}, err
	}
	for _, pc := range lags {
		if pc.Name == name {
			return pc, nil
		}
	}
	return model.PortChannel{}, util.NewNotFoundError("lag", name)
}

// Interfaces reads PORT_TABLE, ordered by port name.
func (r *Reader) Interfaces(ctx context.Context) ([]model.Interface, error) {
	ports, err := r.state.Table(ctx, TablePortState)
	if err != nil {
		return nil, err
	}
	out := make([]model.Interface, 0, len(ports))
	for name, vals := range ports {
		out = append(out, model.Interface{
			Name:        name,
			AdminStatus: vals["admin_status"],
			OperStatus:  vals["oper_status"],
			Speed:       atoi(vals["speed"]),
			Duplex:      vals["duplex"],
			LACPKey:     atoi(vals["lacp_key"]),
			LAG:         vals["lag"],
		})
	}
	sort.Slice(out, func(i, j int) bool { return util.LessPortName(out[i].Name, out[j].Name) })
	return out, nil
}

func rateName(fast string) string {
	if b, _ := strconv.ParseBool(fast); b {
		return "fast"
	}
	return "slow"
}
