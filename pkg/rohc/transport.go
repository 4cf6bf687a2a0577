/*
【ファイル概要: transport.go】
分類済みパケットからトランスポート層（UDP/RTP/ESP）のフィールドを
取り出すヘルパー。RTPヘッダの解析・再構築には teacherの依存である
github.com/pion/rtp をそのまま使う（teacherがRTPパケットの送受信で
rtp.Packet を使うのと同じ流儀）。
*/
package rohc

import (
	"encoding/binary"
	"errors"

	"github.com/pion/rtp"

	"github.com/hmasataka/rohc-go/pkg/profile"
)

// ErrShortTransportHeader is returned when a classified packet is too
// short to contain the transport header its profile implies.
var ErrShortTransportHeader = errors.New("rohc: transport header truncated")

// transportFields holds everything buildStaticChain/buildSample need
// from the transport layer, extracted once per packet.
type transportFields struct {
	hasPorts         bool
	srcPort, dstPort uint16
	udpChecksum      uint16

	hasRTP bool
	ssrc   uint32
	pt     uint8
	marker bool
	rtpSN  uint16
	rtpTS  uint32

	hasSPI bool
	spi    uint32
	espSN  uint32

	// payloadOffset is the offset into pkt where the transport-independent
	// application payload begins (after UDP/RTP or ESP's SPI+SN fields).
	payloadOffset int
}

func extractTransport(id profile.ID, pkt []byte, off int) (transportFields, error) {
	var t transportFields
	switch id {
	case profile.RTP:
		if off+8 > len(pkt) {
			return t, ErrShortTransportHeader
		}
		t.hasPorts = true
		t.srcPort = binary.BigEndian.Uint16(pkt[off : off+2])
		t.dstPort = binary.BigEndian.Uint16(pkt[off+2 : off+4])
		t.udpChecksum = binary.BigEndian.Uint16(pkt[off+6 : off+8])

		var p rtp.Packet
		if err := p.Unmarshal(pkt[off+8:]); err != nil {
			return t, err
		}
		t.hasRTP = true
		t.ssrc = p.SSRC
		t.pt = p.PayloadType
		t.marker = p.Marker
		t.rtpSN = p.SequenceNumber
		t.rtpTS = p.Timestamp
		t.payloadOffset = len(pkt) - len(p.Payload)
		return t, nil
	case profile.UDP, profile.UDPLite:
		if off+8 > len(pkt) {
			return t, ErrShortTransportHeader
		}
		t.hasPorts = true
		t.srcPort = binary.BigEndian.Uint16(pkt[off : off+2])
		t.dstPort = binary.BigEndian.Uint16(pkt[off+2 : off+4])
		t.udpChecksum = binary.BigEndian.Uint16(pkt[off+6 : off+8])
		t.payloadOffset = off + 8
		return t, nil
	case profile.ESP:
		if off+8 > len(pkt) {
			return t, ErrShortTransportHeader
		}
		t.hasSPI = true
		t.spi = binary.BigEndian.Uint32(pkt[off : off+4])
		t.espSN = binary.BigEndian.Uint32(pkt[off+4 : off+8])
		t.payloadOffset = off + 8
		return t, nil
	default: // profile.IP, profile.Uncompressed
		t.payloadOffset = off
		return t, nil
	}
}

// marshalRTP rebuilds an RTP header + payload using the reconstructed
// dynamic/static fields plus the original application payload.
func marshalRTP(ssrc uint32, pt uint8, marker bool, sn uint16, ts uint32, payload []byte) ([]byte, error) {
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    pt,
			SequenceNumber: sn,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return p.Marshal()
}
