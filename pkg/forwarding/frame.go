package forwarding

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame is a decoded Ethernet frame with its 802.1Q tag lifted out.
type Frame struct {
	Src       net.HardwareAddr
	Dst       net.HardwareAddr
	VLAN      int // 0 when untagged
	Priority  uint8
	EtherType layers.EthernetType
	Payload   []byte
}

// ParseFrame decodes the Ethernet and optional 802.1Q headers.
func ParseFrame(data []byte) (*Frame, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, fmt.Errorf("not an ethernet frame (%d bytes)", len(data))
	}
	eth := ethLayer.(*layers.Ethernet)
	f := &Frame{
		Src:       eth.SrcMAC,
		Dst:       eth.DstMAC,
		EtherType: eth.EthernetType,
		Payload:   eth.Payload,
	}
	if eth.EthernetType == layers.EthernetTypeDot1Q {
		tagLayer := pkt.Layer(layers.LayerTypeDot1Q)
		if tagLayer == nil {
			return nil, fmt.Errorf("truncated 802.1Q header")
		}
		tag := tagLayer.(*layers.Dot1Q)
		f.VLAN = int(tag.VLANIdentifier)
		f.Priority = tag.Priority
		f.EtherType = tag.Type
		f.Payload = tag.Payload
	}
	return f, nil
}

// Encode serializes the frame, carrying vid in an 802.1Q tag when tagged.
func (f *Frame) Encode(vid int, tagged bool) ([]byte, error) {
	eth := &layers.Ethernet{SrcMAC: f.Src, DstMAC: f.Dst, EthernetType: f.EtherType}
	stack := []gopacket.SerializableLayer{eth}
	if tagged {
		eth.EthernetType = layers.EthernetTypeDot1Q
		stack = append(stack, &layers.Dot1Q{
			Priority:       f.Priority,
			VLANIdentifier: uint16(vid),
			Type:           f.EtherType,
		})
	}
	stack = append(stack, gopacket.Payload(f.Payload))

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, stack...); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
