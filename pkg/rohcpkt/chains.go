/*
【ファイル概要: chains.go】
静的チェーンと動的チェーンのフィールド集合、およびそのワイヤ表現。

spec.mdはIR/IR-DYNの外側パケット形状（§4.7の判別子バイトとCRC-8の位置）
のみをビット単位で規定しており、チェーン内部のフィールド並びは
プロファイル依存の実装詳細として残されている。本実装では、プロファイル
ごとに必要なフィールドだけを含む固定順序のバイト列として静的/動的
チェーンを直列化する（RFC 3095のIPv4/UDP/RTP静的・動的チェーン構成に
準拠した現実的なフィールド集合）。
*/
package rohcpkt

import (
	"encoding/binary"
	"errors"
	"net"
)

// ErrMalformedChain is returned when a static/dynamic chain can't be
// parsed (truncated buffer, bad IP version byte, ...).
var ErrMalformedChain = errors.New("rohcpkt: malformed chain")

// IPVersion selects which outer IP family the chain describes.
type IPVersion uint8

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// StaticChain holds the fields frozen at context creation (§3): these
// never change for the lifetime of the flow and participate in the
// STATIC CRC mask.
type StaticChain struct {
	Version  IPVersion
	SrcIP    net.IP
	DstIP    net.IP
	Protocol uint8

	// FlowLabel is the IPv6 flow label (low 20 bits significant); zero and
	// unused for Version == IPv4. RFC 3095 treats it as part of the IPv6
	// static chain since a flow's label does not change over its lifetime.
	FlowLabel uint32

	HasTransportPorts bool
	SrcPort, DstPort  uint16

	HasRTP bool
	SSRC   uint32
	PT     uint8

	HasSPI bool
	SPI    uint32
}

// Marshal serializes the static chain.
func (s *StaticChain) Marshal() []byte {
	var buf []byte
	buf = append(buf, byte(s.Version))
	if s.Version == IPv4 {
		buf = append(buf, s.SrcIP.To4()...)
		buf = append(buf, s.DstIP.To4()...)
	} else {
		buf = append(buf, s.SrcIP.To16()...)
		buf = append(buf, s.DstIP.To16()...)
		var fl [3]byte
		fl[0] = byte(s.FlowLabel >> 16)
		fl[1] = byte(s.FlowLabel >> 8)
		fl[2] = byte(s.FlowLabel)
		buf = append(buf, fl[:]...)
	}
	buf = append(buf, s.Protocol)

	var flags uint8
	if s.HasTransportPorts {
		flags |= 0x01
	}
	if s.HasRTP {
		flags |= 0x02
	}
	if s.HasSPI {
		flags |= 0x04
	}
	buf = append(buf, flags)

	if s.HasTransportPorts {
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], s.SrcPort)
		binary.BigEndian.PutUint16(p[2:4], s.DstPort)
		buf = append(buf, p[:]...)
	}
	if s.HasRTP {
		var p [5]byte
		binary.BigEndian.PutUint32(p[0:4], s.SSRC)
		p[4] = s.PT
		buf = append(buf, p[:]...)
	}
	if s.HasSPI {
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], s.SPI)
		buf = append(buf, p[:]...)
	}
	return buf
}

// ParseStaticChain parses a static chain from the start of buf, returning
// the remaining bytes.
func ParseStaticChain(buf []byte) (*StaticChain, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, ErrMalformedChain
	}
	s := &StaticChain{Version: IPVersion(buf[0])}
	buf = buf[1:]
	addrLen := 4
	flowLabelLen := 0
	if s.Version == IPv6 {
		addrLen = 16
		flowLabelLen = 3
	} else if s.Version != IPv4 {
		return nil, nil, ErrMalformedChain
	}
	if len(buf) < addrLen*2+flowLabelLen+2 {
		return nil, nil, ErrMalformedChain
	}
	s.SrcIP = net.IP(append([]byte(nil), buf[:addrLen]...))
	buf = buf[addrLen:]
	s.DstIP = net.IP(append([]byte(nil), buf[:addrLen]...))
	buf = buf[addrLen:]
	if s.Version == IPv6 {
		s.FlowLabel = uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		buf = buf[3:]
	}
	s.Protocol = buf[0]
	flags := buf[1]
	buf = buf[2:]
	s.HasTransportPorts = flags&0x01 != 0
	s.HasRTP = flags&0x02 != 0
	s.HasSPI = flags&0x04 != 0

	if s.HasTransportPorts {
		if len(buf) < 4 {
			return nil, nil, ErrMalformedChain
		}
		s.SrcPort = binary.BigEndian.Uint16(buf[0:2])
		s.DstPort = binary.BigEndian.Uint16(buf[2:4])
		buf = buf[4:]
	}
	if s.HasRTP {
		if len(buf) < 5 {
			return nil, nil, ErrMalformedChain
		}
		s.SSRC = binary.BigEndian.Uint32(buf[0:4])
		s.PT = buf[4]
		buf = buf[5:]
	}
	if s.HasSPI {
		if len(buf) < 4 {
			return nil, nil, ErrMalformedChain
		}
		s.SPI = binary.BigEndian.Uint32(buf[0:4])
		buf = buf[4:]
	}
	return s, buf, nil
}

// DynamicChain holds the fields that are retransmitted (in full) on IR
// and IR-DYN, and that the DYNAMIC CRC mask covers.
type DynamicChain struct {
	TOS uint8
	TTL uint8
	DF  bool

	IPID uint16

	HasUDPChecksum bool
	UDPChecksum    uint16

	HasRTPDynamic bool
	Marker        bool
	SN            uint32
	TS            uint32

	// ESP/generic SN for non-RTP profiles that still carry a sequence
	// number (ESP, UDP-Lite/IP synthetic SN).
	GenericSN uint32
}

// Marshal serializes the dynamic chain.
func (d *DynamicChain) Marshal() []byte {
	var buf []byte
	buf = append(buf, d.TOS, d.TTL)
	var df uint8
	if d.DF {
		df = 1
	}
	buf = append(buf, df)
	var ipid [2]byte
	binary.BigEndian.PutUint16(ipid[:], d.IPID)
	buf = append(buf, ipid[:]...)

	var flags uint8
	if d.HasUDPChecksum {
		flags |= 0x01
	}
	if d.HasRTPDynamic {
		flags |= 0x02
	}
	if d.Marker {
		flags |= 0x04
	}
	buf = append(buf, flags)

	if d.HasUDPChecksum {
		var c [2]byte
		binary.BigEndian.PutUint16(c[:], d.UDPChecksum)
		buf = append(buf, c[:]...)
	}
	if d.HasRTPDynamic {
		var p [8]byte
		binary.BigEndian.PutUint32(p[0:4], d.SN)
		binary.BigEndian.PutUint32(p[4:8], d.TS)
		buf = append(buf, p[:]...)
	}
	var gsn [4]byte
	binary.BigEndian.PutUint32(gsn[:], d.GenericSN)
	buf = append(buf, gsn[:]...)
	return buf
}

// ParseDynamicChain parses a dynamic chain from the start of buf.
func ParseDynamicChain(buf []byte) (*DynamicChain, []byte, error) {
	if len(buf) < 6 {
		return nil, nil, ErrMalformedChain
	}
	d := &DynamicChain{TOS: buf[0], TTL: buf[1], DF: buf[2] != 0}
	d.IPID = binary.BigEndian.Uint16(buf[3:5])
	flags := buf[5]
	buf = buf[6:]
	d.HasUDPChecksum = flags&0x01 != 0
	d.HasRTPDynamic = flags&0x02 != 0
	d.Marker = flags&0x04 != 0

	if d.HasUDPChecksum {
		if len(buf) < 2 {
			return nil, nil, ErrMalformedChain
		}
		d.UDPChecksum = binary.BigEndian.Uint16(buf[0:2])
		buf = buf[2:]
	}
	if d.HasRTPDynamic {
		if len(buf) < 8 {
			return nil, nil, ErrMalformedChain
		}
		d.SN = binary.BigEndian.Uint32(buf[0:4])
		d.TS = binary.BigEndian.Uint32(buf[4:8])
		buf = buf[8:]
	}
	if len(buf) < 4 {
		return nil, nil, ErrMalformedChain
	}
	d.GenericSN = binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	return d, buf, nil
}
