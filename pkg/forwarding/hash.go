// Package forwarding presents each LAG as one forwarding endpoint and
// spreads flows across its active members.
package forwarding

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// HashMode selects the header fields that identify a flow.
type HashMode int

const (
	HashL3 HashMode = iota // default
	HashL2
	HashL4
)

func (m HashMode) String() string {
	switch m {
	case HashL2:
		return "l2-src-dst"
	case HashL4:
		return "l4-src-dst"
	default:
		return "l3-src-dst"
	}
}

// ParseHashMode parses l2-src-dst, l3-src-dst or l4-src-dst.
func ParseHashMode(s string) (HashMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2-src-dst", "l2":
		return HashL2, nil
	case "l3-src-dst", "l3", "":
		return HashL3, nil
	case "l4-src-dst", "l4":
		return HashL4, nil
	default:
		return 0, fmt.Errorf("invalid hash mode %q (want l2-src-dst, l3-src-dst or l4-src-dst)", s)
	}
}

// FlowHash hashes the flow-identifying endpoints of an Ethernet frame. Modes
// fall back to the next lower layer when the frame lacks the selected
// headers, so every frame hashes.
func FlowHash(frame []byte, mode HashMode) uint64 {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	h := xxhash.New()

	wrote := false
	write := func(f gopacket.Flow) {
		src, dst := f.Endpoints()
		h.Write(src.Raw())
		h.Write(dst.Raw())
		wrote = true
	}

	if mode != HashL2 {
		if nl := pkt.NetworkLayer(); nl != nil {
			write(nl.NetworkFlow())
			if mode == HashL4 {
				if tl := pkt.TransportLayer(); tl != nil {
					write(tl.TransportFlow())
				}
			}
		}
	}
	if !wrote {
		if ll := pkt.LinkLayer(); ll != nil {
			write(ll.LinkFlow())
		} else {
			h.Write(frame)
		}
	}
	return h.Sum64()
}
