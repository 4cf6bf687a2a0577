/*
【ファイル概要: matchers.go】
各プロファイル（RTP/UDP/ESP/IP/UDP-Lite/Uncompressed）のMatcher実装（TCPのMatcherは無い）。
より具体的なプロファイル（RTP）を一般的なもの（UDP、IP）より先に
登録することで、Registry.Classifyが正しく優先順位をつけて判定できる。
*/
package profile

import (
	"encoding/binary"

	"github.com/hmasataka/rohc-go/pkg/iphdr"
)

func outerAddrs(v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info) (src, dst string, flowLabel uint32) {
	if v4 != nil {
		return v4.Src.String(), v4.Dst.String(), 0
	}
	return v6.Src.String(), v6.Dst.String(), uint32(v6.FlowLabel)
}

func transportProto(v4 *iphdr.IPv4Info, chain []iphdr.Segment) int {
	if v4 != nil {
		return v4.Protocol
	}
	if len(chain) == 0 {
		return -1
	}
	return chain[len(chain)-1].Proto
}

// RTPMatcher matches UDP/RTP flows: UDP transport whose source or
// destination port is hinted as carrying RTP (§6 rtp_ports; with no hints
// configured, any port qualifies), and whose payload looks like a
// minimally valid RTP header (version 2).
type RTPMatcher struct{}

func (RTPMatcher) ID() ID { return RTP }

func (RTPMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, rtpPorts map[uint16]bool) (FlowKey, bool) {
	if transportProto(v4, chain) != iphdr.ProtoUDP {
		return FlowKey{}, false
	}
	if off+4 > len(pkt) {
		return FlowKey{}, false
	}
	srcPort := binary.BigEndian.Uint16(pkt[off : off+2])
	dstPort := binary.BigEndian.Uint16(pkt[off+2 : off+4])
	if len(rtpPorts) > 0 && !rtpPorts[srcPort] && !rtpPorts[dstPort] {
		return FlowKey{}, false
	}
	if off+8 > len(pkt) {
		return FlowKey{}, false
	}
	rtpOff := off + 8 // past the UDP header
	if rtpOff >= len(pkt) || pkt[rtpOff]>>6 != 2 {
		return FlowKey{}, false
	}
	src, dst, fl := outerAddrs(v4, v6)
	return FlowKey{OuterSrc: src, OuterDst: dst, NextProto: iphdr.ProtoUDP, SrcPort: srcPort, DstPort: dstPort, FlowLabel: fl}, true
}

// UDPMatcher matches plain UDP/IP flows (no RTP detected).
type UDPMatcher struct{}

func (UDPMatcher) ID() ID { return UDP }

func (UDPMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, _ map[uint16]bool) (FlowKey, bool) {
	if transportProto(v4, chain) != iphdr.ProtoUDP {
		return FlowKey{}, false
	}
	if off+4 > len(pkt) {
		return FlowKey{}, false
	}
	srcPort := binary.BigEndian.Uint16(pkt[off : off+2])
	dstPort := binary.BigEndian.Uint16(pkt[off+2 : off+4])
	src, dst, fl := outerAddrs(v4, v6)
	return FlowKey{OuterSrc: src, OuterDst: dst, NextProto: iphdr.ProtoUDP, SrcPort: srcPort, DstPort: dstPort, FlowLabel: fl}, true
}

// UDPLiteMatcher matches UDP-Lite transport.
type UDPLiteMatcher struct{}

func (UDPLiteMatcher) ID() ID { return UDPLite }

func (UDPLiteMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, _ map[uint16]bool) (FlowKey, bool) {
	if transportProto(v4, chain) != iphdr.ProtoUDPLite {
		return FlowKey{}, false
	}
	if off+4 > len(pkt) {
		return FlowKey{}, false
	}
	srcPort := binary.BigEndian.Uint16(pkt[off : off+2])
	dstPort := binary.BigEndian.Uint16(pkt[off+2 : off+4])
	src, dst, fl := outerAddrs(v4, v6)
	return FlowKey{OuterSrc: src, OuterDst: dst, NextProto: iphdr.ProtoUDPLite, SrcPort: srcPort, DstPort: dstPort, FlowLabel: fl}, true
}

// ESPMatcher matches IPsec ESP flows, keyed by SPI per §3.
type ESPMatcher struct{}

func (ESPMatcher) ID() ID { return ESP }

func (ESPMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, _ map[uint16]bool) (FlowKey, bool) {
	if transportProto(v4, chain) != iphdr.ProtoESP {
		return FlowKey{}, false
	}
	if off+4 > len(pkt) {
		return FlowKey{}, false
	}
	spi := binary.BigEndian.Uint32(pkt[off : off+4])
	src, dst, fl := outerAddrs(v4, v6)
	return FlowKey{OuterSrc: src, OuterDst: dst, NextProto: iphdr.ProtoESP, SPI: spi, FlowLabel: fl}, true
}

// IPMatcher is the IP-only fallback profile: any IPv4/IPv6 packet whose
// transport protocol didn't match a more specific profile.
type IPMatcher struct{}

func (IPMatcher) ID() ID { return IP }

func (IPMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, _ map[uint16]bool) (FlowKey, bool) {
	proto := transportProto(v4, chain)
	src, dst, fl := outerAddrs(v4, v6)
	return FlowKey{OuterSrc: src, OuterDst: dst, NextProto: proto, FlowLabel: fl}, true
}

// UncompressedMatcher never matches automatically; profile 0 is only
// selected explicitly (e.g. as a policy fallback when no other profile is
// enabled), mirroring RFC 3095's treatment of the uncompressed profile as
// a last resort rather than something auto-detected from wire shape.
type UncompressedMatcher struct{}

func (UncompressedMatcher) ID() ID { return Uncompressed }

func (UncompressedMatcher) Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, off int, _ map[uint16]bool) (FlowKey, bool) {
	return FlowKey{}, false
}
