/*
【ファイル概要: wire.go】
復元されたヘッダフィールドから、実際のワイヤ上のIPv4/IPv6ヘッダを
組み立てる。UDP/RTPのチェックサムはROHCでは再計算されず動的チェーン
として運ばれた値をそのまま書き戻す一方、IPヘッダのチェックサムは
（IPスタック側で再計算される前提の）ROHCの通例どおりここで計算し直す。
*/
package rohc

import (
	"encoding/binary"

	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
)

// buildIPv4Header serializes a minimal 20-byte IPv4 header (no options)
// from the reconstructed static/dynamic fields, with totalLen set to
// 20+len(rest) and a freshly computed header checksum.
func buildIPv4Header(static *rohcpkt.StaticChain, dynamic *rohcpkt.DynamicChain, restLen int) []byte {
	h := make([]byte, 20)
	h[0] = 0x45 // version 4, IHL 5
	h[1] = dynamic.TOS
	binary.BigEndian.PutUint16(h[2:4], uint16(20+restLen))
	binary.BigEndian.PutUint16(h[4:6], dynamic.IPID)
	if dynamic.DF {
		h[6] = 0x40
	}
	h[8] = dynamic.TTL
	h[9] = static.Protocol
	copy(h[12:16], static.SrcIP.To4())
	copy(h[16:20], static.DstIP.To4())
	binary.BigEndian.PutUint16(h[10:12], ipv4Checksum(h))
	return h
}

// ipv4Checksum computes the standard one's-complement header checksum
// over hdr with the checksum field itself read as zero.
func ipv4Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		if i == 10 {
			continue // checksum field itself
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}

// buildIPv6Header serializes a fixed 40-byte IPv6 header. Extension
// headers are not reconstructed: the static chain does
// not retain the original extension chain's contents.
func buildIPv6Header(static *rohcpkt.StaticChain, dynamic *rohcpkt.DynamicChain, restLen int) []byte {
	h := make([]byte, 40)
	h[0] = 0x60 | byte(dynamic.TOS>>4)&0x0F
	h[1] = byte(dynamic.TOS<<4)&0xF0 | byte(static.FlowLabel>>16)&0x0F
	h[2] = byte(static.FlowLabel >> 8)
	h[3] = byte(static.FlowLabel)
	binary.BigEndian.PutUint16(h[4:6], uint16(restLen))
	h[6] = static.Protocol
	h[7] = dynamic.TTL
	copy(h[8:24], static.SrcIP.To16())
	copy(h[24:40], static.DstIP.To16())
	return h
}

// buildUDPHeader writes an 8-byte UDP header, carrying forward the
// cached checksum rather than recomputing it (ROHC transmits the UDP
// checksum as a dynamic field instead of recomputing it, per §4/§6's
// DYNAMIC mask).
func buildUDPHeader(srcPort, dstPort uint16, checksum uint16, payloadLen int) []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(8+payloadLen))
	binary.BigEndian.PutUint16(h[6:8], checksum)
	return h
}

// buildESPHeader writes the 8-byte SPI+SN prefix of an ESP packet; the
// remainder (encrypted payload, ICV) is opaque and passed through
// untouched by the caller.
func buildESPHeader(spi, sn uint32) []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint32(h[0:4], spi)
	binary.BigEndian.PutUint32(h[4:8], sn)
	return h
}
