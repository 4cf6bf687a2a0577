/*
【ファイル概要: iphdr.go】
IPv4/IPv6ヘッダ（および IPv6拡張ヘッダチェーン）を解析し、次プロトコルの
位置を特定するウォーカーを提供します（C5）。

【設計方針】
ソース実装にあるような生のポインタ演算は、境界チェック付きの
イテレータ（(hdr_type, offset, length)のタプルを返す）に置き換える
（§9設計ノート）。IPv6拡張ヘッダの合計長チェックは、逆参照の前に必ず
行う（§9「IPv6 extension walker does not cross-check cumulative length」
への対応、本仕様では必須境界チェックとする）。

IPv4ヘッダは golang.org/x/net/ipv4 の Header 型で解析する
（_examples/other_examples の netraw パケットビルダーに見られる
 ipv4.Header.Marshal/Parse の使い方に準拠）。IPv6には同等の軽量な
Marshal/Parse型がx/net側に無いため、固定40バイトヘッダを自前で扱う。
*/
package iphdr

import (
	"encoding/binary"
	"errors"
	"net"

	"golang.org/x/net/ipv4"
)

// ErrTruncated is returned whenever a header or extension chain would read
// past the end of the supplied packet buffer.
var ErrTruncated = errors.New("iphdr: truncated packet")

// ErrBadVersion is returned when the first nibble of the packet is
// neither 4 nor 6.
var ErrBadVersion = errors.New("iphdr: unrecognized IP version")

// IANA protocol numbers relevant to the profiles in scope (§6).
const (
	ProtoHopByHop  = 0
	ProtoTCP       = 6
	ProtoUDP       = 17
	ProtoIPv6Route = 43
	ProtoESP       = 50
	ProtoAH        = 51
	ProtoIPv6Frag  = 44
	ProtoIPv6Opts  = 60
	ProtoUDPLite   = 136
	// ProtoROHC is IANA protocol 142, used when ROHC runs directly over IP
	// (ROHC-over-IP) rather than over a link layer that frames it itself.
	// Not dereferenced by the walker (it is a terminal, ROHC is the
	// "next protocol" endpoint here), kept for completeness of the
	// protocol-number table.
	ProtoROHC = 142
)

// Segment describes one header in the walked chain: its protocol number,
// its byte offset from the start of the packet, and its length in bytes.
type Segment struct {
	Proto  int
	Offset int
	Length int
}

// IPv4Info is the subset of an IPv4 header the profiles and CID
// classifier care about.
type IPv4Info struct {
	Src, Dst   net.IP
	TOS        int
	TTL        int
	DF         bool
	ID         int
	Protocol   int
	HeaderLen  int
	TotalLen   int
}

// IPv6Info is the subset of an IPv6 fixed header the profiles care about.
type IPv6Info struct {
	Src, Dst     net.IP
	TrafficClass int
	FlowLabel    int
	HopLimit     int
	NextHeader   int
	PayloadLen   int
}

// Walk parses the outer IP header (v4 or v6, walking any v6 extension
// chain) and returns the ordered list of header segments plus the offset
// at which the transport-layer payload (UDP/ESP/TCP/...) begins. The
// final Segment's Proto is the transport protocol number.
func Walk(packet []byte) (v4 *IPv4Info, v6 *IPv6Info, chain []Segment, payloadOffset int, err error) {
	if len(packet) < 1 {
		return nil, nil, nil, 0, ErrTruncated
	}
	version := packet[0] >> 4
	switch version {
	case 4:
		return walkIPv4(packet)
	case 6:
		return walkIPv6(packet)
	default:
		return nil, nil, nil, 0, ErrBadVersion
	}
}

func walkIPv4(packet []byte) (*IPv4Info, *IPv6Info, []Segment, int, error) {
	h, err := ipv4.ParseHeader(packet)
	if err != nil {
		return nil, nil, nil, 0, ErrTruncated
	}
	if h.Len > len(packet) {
		return nil, nil, nil, 0, ErrTruncated
	}
	info := &IPv4Info{
		Src:       h.Src,
		Dst:       h.Dst,
		TOS:       h.TOS,
		TTL:       h.TTL,
		DF:        h.Flags&ipv4.DontFragment != 0,
		ID:        h.ID,
		Protocol:  h.Protocol,
		HeaderLen: h.Len,
		TotalLen:  h.TotalLen,
	}
	chain := []Segment{{Proto: h.Protocol, Offset: 0, Length: h.Len}}
	return info, nil, chain, h.Len, nil
}

func walkIPv6(packet []byte) (*IPv4Info, *IPv6Info, []Segment, int, error) {
	const fixedLen = 40
	if len(packet) < fixedLen {
		return nil, nil, nil, 0, ErrTruncated
	}
	tcFl := binary.BigEndian.Uint32(packet[0:4])
	payloadLen := int(binary.BigEndian.Uint16(packet[4:6]))
	nextHeader := int(packet[6])
	hopLimit := int(packet[7])
	src := net.IP(append([]byte(nil), packet[8:24]...))
	dst := net.IP(append([]byte(nil), packet[24:40]...))

	info := &IPv6Info{
		Src:          src,
		Dst:          dst,
		TrafficClass: int((tcFl >> 20) & 0xFF),
		FlowLabel:    int(tcFl & 0xFFFFF),
		HopLimit:     hopLimit,
		NextHeader:   nextHeader,
		PayloadLen:   payloadLen,
	}

	totalLen := fixedLen + payloadLen
	if totalLen > len(packet) {
		// Mandatory bounds check (§9): never trust PayloadLen beyond the
		// buffer we actually have.
		totalLen = len(packet)
	}

	chain := []Segment{{Proto: 41 /* IPv6 itself, informational */, Offset: 0, Length: fixedLen}}
	offset := fixedLen
	next := nextHeader

	for {
		switch next {
		case ProtoHopByHop, ProtoIPv6Route, ProtoIPv6Opts:
			if offset+2 > totalLen {
				return nil, nil, nil, 0, ErrTruncated
			}
			extNext := int(packet[offset])
			extLenWords := int(packet[offset+1])
			extLen := (extLenWords + 1) * 8
			if offset+extLen > totalLen {
				return nil, nil, nil, 0, ErrTruncated
			}
			chain = append(chain, Segment{Proto: next, Offset: offset, Length: extLen})
			offset += extLen
			next = extNext
		case ProtoIPv6Frag:
			const fragLen = 8
			if offset+fragLen > totalLen {
				return nil, nil, nil, 0, ErrTruncated
			}
			extNext := int(packet[offset])
			chain = append(chain, Segment{Proto: next, Offset: offset, Length: fragLen})
			offset += fragLen
			next = extNext
		case ProtoAH:
			if offset+2 > totalLen {
				return nil, nil, nil, 0, ErrTruncated
			}
			extNext := int(packet[offset])
			payloadLenWords := int(packet[offset+1])
			ahLen := (payloadLenWords + 2) * 4
			if offset+ahLen > totalLen {
				return nil, nil, nil, 0, ErrTruncated
			}
			chain = append(chain, Segment{Proto: next, Offset: offset, Length: ahLen})
			offset += ahLen
			next = extNext
		default:
			// Terminal protocol (UDP, ESP, TCP, UDP-Lite, ...): the
			// walker stops here and lets the profile-specific codec
			// parse the transport header itself.
			chain = append(chain, Segment{Proto: next, Offset: offset, Length: 0})
			return nil, info, chain, offset, nil
		}
	}
}
