package lacp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Slow-protocols framing (802.3 Annex 57A).
var SlowProtocolsMAC = net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x02}

const (
	EtherTypeSlowProtocols layers.EthernetType = 0x8809

	SubtypeLACP = 1
	Version     = 1

	// PDUSize is the length of a version 1 LACPDU, subtype through terminator.
	PDUSize = 110

	tlvActor      = 0x01
	tlvPartner    = 0x02
	tlvCollector  = 0x03
	tlvTerminator = 0x00

	infoLen      = 20
	collectorLen = 16
)

// ErrMalformedPDU is returned for frames that are not well-formed LACPDUs.
var ErrMalformedPDU = errors.New("malformed LACPDU")

// ErrNotLACP is returned for slow-protocols frames of another subtype.
var ErrNotLACP = errors.New("not an LACPDU")

// PDU is a decoded LACPDU.
type PDU struct {
	Actor           PortInfo
	Partner         PortInfo
	CollectorMaxDly uint16
}

// MarshalBinary encodes the PDU body (from the subtype octet on).
func (p *PDU) MarshalBinary() ([]byte, error) {
	b := make([]byte, PDUSize)
	b[0] = SubtypeLACP
	b[1] = Version
	putInfo(b[2:22], tlvActor, p.Actor)
	putInfo(b[22:42], tlvPartner, p.Partner)
	b[42] = tlvCollector
	b[43] = collectorLen
	binary.BigEndian.PutUint16(b[44:46], p.CollectorMaxDly)
	b[58] = tlvTerminator
	b[59] = 0
	return b, nil
}

// UnmarshalBinary decodes a PDU body. Trailing padding is ignored.
func (p *PDU) UnmarshalBinary(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("%w: %d bytes", ErrMalformedPDU, len(b))
	}
	if b[0] != SubtypeLACP {
		return fmt.Errorf("%w: subtype %d", ErrNotLACP, b[0])
	}
	if len(b) < PDUSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrMalformedPDU, len(b), PDUSize)
	}
	if b[1] < Version {
		return fmt.Errorf("%w: version %d", ErrMalformedPDU, b[1])
	}
	var err error
	if p.Actor, err = getInfo(b[2:22], tlvActor); err != nil {
		return err
	}
	if p.Partner, err = getInfo(b[22:42], tlvPartner); err != nil {
		return err
	}
	if b[42] != tlvCollector || b[43] != collectorLen {
		return fmt.Errorf("%w: collector TLV %d/%d", ErrMalformedPDU, b[42], b[43])
	}
	p.CollectorMaxDly = binary.BigEndian.Uint16(b[44:46])
	if b[58] != tlvTerminator || b[59] != 0 {
		return fmt.Errorf("%w: missing terminator", ErrMalformedPDU)
	}
	return nil
}

func putInfo(b []byte, tlv byte, info PortInfo) {
	b[0] = tlv
	b[1] = infoLen
	binary.BigEndian.PutUint16(b[2:4], info.System.Priority)
	copy(b[4:10], info.System.MAC[:])
	binary.BigEndian.PutUint16(b[10:12], info.Key)
	binary.BigEndian.PutUint16(b[12:14], info.PortPriority)
	binary.BigEndian.PutUint16(b[14:16], info.Port)
	b[16] = byte(info.State)
}

func getInfo(b []byte, tlv byte) (PortInfo, error) {
	var info PortInfo
	if b[0] != tlv || b[1] != infoLen {
		return info, fmt.Errorf("%w: TLV %d/%d, want %d/%d", ErrMalformedPDU, b[0], b[1], tlv, infoLen)
	}
	info.System.Priority = binary.BigEndian.Uint16(b[2:4])
	copy(info.System.MAC[:], b[4:10])
	info.Key = binary.BigEndian.Uint16(b[10:12])
	info.PortPriority = binary.BigEndian.Uint16(b[12:14])
	info.Port = binary.BigEndian.Uint16(b[14:16])
	info.State = State(b[16])
	return info, nil
}

// Frame wraps the PDU in an Ethernet II frame addressed to the
// slow-protocols multicast group.
func (p *PDU) Frame(src net.HardwareAddr) ([]byte, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       SlowProtocolsMAC,
		EthernetType: EtherTypeSlowProtocols,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(body)); err != nil {
		return nil, fmt.Errorf("serializing LACPDU: %w", err)
	}
	return buf.Bytes(), nil
}

// IsSlowProtocols reports whether an Ethernet frame carries the
// slow-protocols EtherType.
func IsSlowProtocols(frame []byte) bool {
	return len(frame) >= 14 && layers.EthernetType(binary.BigEndian.Uint16(frame[12:14])) == EtherTypeSlowProtocols
}

// DecodeFrame extracts an LACPDU from an Ethernet frame.
func DecodeFrame(frame []byte) (*PDU, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, fmt.Errorf("%w: no ethernet header", ErrMalformedPDU)
	}
	eth := ethLayer.(*layers.Ethernet)
	if eth.EthernetType != EtherTypeSlowProtocols {
		return nil, fmt.Errorf("%w: ethertype %s", ErrNotLACP, eth.EthernetType)
	}
	pdu := &PDU{}
	if err := pdu.UnmarshalBinary(eth.Payload); err != nil {
		return nil, err
	}
	return pdu, nil
}
