/*
【ファイル概要: uo.go】
UO-0 / UO-1* / UOR-2* パケットのビルド/パース（§4.7）。

【判別子の曖昧性について】
UO-1(IP)の先頭オクテット`10IIIIII`とUO-1-ID/UO-1-TSの`101IIIII`/`101TTTTT`は、
ビットパターンだけでは重複し得る（IPビットの最上位が1の場合）。spec.md
§4.7は「パースは現在のデコンプレッサ状態によって駆動される」と明記して
おり、実際のRFC 3095実装もプロファイルと状態から期待されるパケット種別を
決めた上でパースする。本実装ではこれをそのまま採用し、Parse系関数は
呼び出し側（decompressorのFSM）が期待するKindを明示的に渡す設計とする
（自己記述的なバイトパターンのみからの曖昧な逆引きは行わない）。
なお本モジュールの圧縮器はUO-1-ID/UO-1-TSを生成しないため、復元器
（dispatchKind）は先頭が10で始まるパケットをプロファイルに応じて
UO-1(IP)またはUO-1-RTPとして解釈する。
*/
package rohcpkt

import (
	"errors"

	"github.com/hmasataka/rohc-go/pkg/crc"
)

// Kind identifies which compressed packet shape is in play.
type Kind int

const (
	KindUO0 Kind = iota
	KindUO1IP
	KindUO1RTP
	KindUO1ID
	KindUO1TS
	KindUOR2
	KindUOR2RTP
)

var ErrWrongKind = errors.New("rohcpkt: buffer does not match requested packet kind")

// UO0 is `0SSSSCCC`: 4 bits of SN, 3 bits of CRC-3.
type UO0 struct {
	SN  uint8 // low 4 bits
	CRC uint8 // low 3 bits
}

func BuildUO0(p UO0) []byte {
	return AppendUO0(nil, p)
}

// AppendUO0 appends p's wire form to dst and returns the extended slice,
// the allocation-free counterpart to BuildUO0 (§5: "allocation-free on the
// hot path once contexts exist"). Callers on the compressor's steady-state
// SO path pass a per-context reusable buffer (see compressor.Context).
func AppendUO0(dst []byte, p UO0) []byte {
	return append(dst, (p.SN&0x0F)<<3|(p.CRC&0x07))
}

func ParseUO0(buf []byte) (*UO0, error) {
	if len(buf) < 1 {
		return nil, ErrTruncated
	}
	if buf[0]&0x80 != 0 {
		return nil, ErrWrongKind
	}
	return &UO0{SN: (buf[0] >> 3) & 0x0F, CRC: buf[0] & 0x07}, nil
}

// UO1IP is UO-1 for non-RTP profiles: `10IIIIII` `SSSSSCCC`.
type UO1IP struct {
	IPID uint8 // low 6 bits
	SN   uint8 // low 5 bits
	CRC  uint8 // low 3 bits
}

func BuildUO1IP(p UO1IP) []byte {
	return AppendUO1IP(nil, p)
}

// AppendUO1IP is the allocation-free counterpart to BuildUO1IP.
func AppendUO1IP(dst []byte, p UO1IP) []byte {
	return append(dst, 0x80|(p.IPID&0x3F), (p.SN&0x1F)<<3|(p.CRC&0x07))
}

func ParseUO1IP(buf []byte) (*UO1IP, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	if buf[0]&0xC0 != 0x80 {
		return nil, ErrWrongKind
	}
	return &UO1IP{IPID: buf[0] & 0x3F, SN: (buf[1] >> 3) & 0x1F, CRC: buf[1] & 0x07}, nil
}

// UO1RTP is `10TTTTTT` `MSSSSCCC`.
type UO1RTP struct {
	TS     uint8 // low 6 bits
	Marker bool
	SN     uint8 // low 4 bits
	CRC    uint8 // low 3 bits
}

func BuildUO1RTP(p UO1RTP) []byte {
	return AppendUO1RTP(nil, p)
}

// AppendUO1RTP is the allocation-free counterpart to BuildUO1RTP.
func AppendUO1RTP(dst []byte, p UO1RTP) []byte {
	m := byte(0)
	if p.Marker {
		m = 0x80
	}
	return append(dst, 0x80|(p.TS&0x3F), m|(p.SN&0x0F)<<3|(p.CRC&0x07))
}

func ParseUO1RTP(buf []byte) (*UO1RTP, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	if buf[0]&0xC0 != 0x80 {
		return nil, ErrWrongKind
	}
	return &UO1RTP{
		TS:     buf[0] & 0x3F,
		Marker: buf[1]&0x80 != 0,
		SN:     (buf[1] >> 3) & 0x0F,
		CRC:    buf[1] & 0x07,
	}, nil
}

// UO1ID is `101IIIII` `XMSSSCCC` with an optional extension 0-3 payload.
type UO1ID struct {
	IPID      uint8 // low 5 bits
	Ext       bool
	Marker    bool
	SN        uint8 // low 3 bits
	CRC       uint8 // low 3 bits
	Extension []byte
}

func BuildUO1ID(p UO1ID) []byte {
	x := byte(0)
	if p.Ext {
		x = 0x80
	}
	m := byte(0)
	if p.Marker {
		m = 0x40
	}
	out := []byte{0xA0 | (p.IPID & 0x1F), x | m | (p.SN&0x07)<<3 | (p.CRC & 0x07)}
	if p.Ext {
		out = append(out, p.Extension...)
	}
	return out
}

func ParseUO1ID(buf []byte) (*UO1ID, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	if buf[0]&0xE0 != 0xA0 {
		return nil, ErrWrongKind
	}
	p := &UO1ID{
		IPID:   buf[0] & 0x1F,
		Ext:    buf[1]&0x80 != 0,
		Marker: buf[1]&0x40 != 0,
		SN:     (buf[1] >> 3) & 0x07,
		CRC:    buf[1] & 0x07,
	}
	if p.Ext {
		p.Extension = append([]byte(nil), buf[2:]...)
	}
	return p, nil
}

// UO1TS is `101TTTTT` `XMSSSCCC` with an optional extension.
type UO1TS struct {
	TS        uint8 // low 5 bits
	Ext       bool
	Marker    bool
	SN        uint8 // low 3 bits
	CRC       uint8 // low 3 bits
	Extension []byte
}

func BuildUO1TS(p UO1TS) []byte {
	x := byte(0)
	if p.Ext {
		x = 0x80
	}
	m := byte(0)
	if p.Marker {
		m = 0x40
	}
	out := []byte{0xA0 | (p.TS & 0x1F), x | m | (p.SN&0x07)<<3 | (p.CRC & 0x07)}
	if p.Ext {
		out = append(out, p.Extension...)
	}
	return out
}

func ParseUO1TS(buf []byte) (*UO1TS, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	if buf[0]&0xE0 != 0xA0 {
		return nil, ErrWrongKind
	}
	p := &UO1TS{
		TS:     buf[0] & 0x1F,
		Ext:    buf[1]&0x80 != 0,
		Marker: buf[1]&0x40 != 0,
		SN:     (buf[1] >> 3) & 0x07,
		CRC:    buf[1] & 0x07,
	}
	if p.Ext {
		p.Extension = append([]byte(nil), buf[2:]...)
	}
	return p, nil
}

// UOR2 is `110SSSSS` `XCCCCCCC` with an optional extension.
type UOR2 struct {
	SN        uint8 // low 5 bits
	Ext       bool
	CRC       uint8 // low 7 bits (CRC-7)
	Extension []byte
}

func BuildUOR2(p UOR2) []byte {
	return AppendUOR2(nil, p)
}

// AppendUOR2 is the allocation-free counterpart to BuildUOR2 (dst must
// have spare capacity for the extension bytes if p.Ext is set).
func AppendUOR2(dst []byte, p UOR2) []byte {
	x := byte(0)
	if p.Ext {
		x = 0x80
	}
	out := append(dst, 0xC0|(p.SN&0x1F), x|(p.CRC&0x7F))
	if p.Ext {
		out = append(out, p.Extension...)
	}
	return out
}

func ParseUOR2(buf []byte) (*UOR2, error) {
	if len(buf) < 2 {
		return nil, ErrTruncated
	}
	if buf[0]&0xE0 != 0xC0 {
		return nil, ErrWrongKind
	}
	p := &UOR2{SN: buf[0] & 0x1F, Ext: buf[1]&0x80 != 0, CRC: buf[1] & 0x7F}
	if p.Ext {
		p.Extension = append([]byte(nil), buf[2:]...)
	}
	return p, nil
}

// UOR2RTP is `110SSSSS` `TTTTTTTM` `XCCCCCCC` with an optional extension.
type UOR2RTP struct {
	SN        uint8 // low 5 bits
	TS        uint8 // low 7 bits
	Marker    bool
	Ext       bool
	CRC       uint8 // low 7 bits
	Extension []byte
}

func BuildUOR2RTP(p UOR2RTP) []byte {
	return AppendUOR2RTP(nil, p)
}

// AppendUOR2RTP is the allocation-free counterpart to BuildUOR2RTP (dst
// must have spare capacity for the extension bytes if p.Ext is set).
func AppendUOR2RTP(dst []byte, p UOR2RTP) []byte {
	m := byte(0)
	if p.Marker {
		m = 0x01
	}
	x := byte(0)
	if p.Ext {
		x = 0x80
	}
	out := append(dst, 0xC0|(p.SN&0x1F), (p.TS&0x7F)<<1|m, x|(p.CRC&0x7F))
	if p.Ext {
		out = append(out, p.Extension...)
	}
	return out
}

func ParseUOR2RTP(buf []byte) (*UOR2RTP, error) {
	if len(buf) < 3 {
		return nil, ErrTruncated
	}
	if buf[0]&0xE0 != 0xC0 {
		return nil, ErrWrongKind
	}
	p := &UOR2RTP{
		SN:     buf[0] & 0x1F,
		TS:     (buf[1] >> 1) & 0x7F,
		Marker: buf[1]&0x01 != 0,
		Ext:    buf[2]&0x80 != 0,
		CRC:    buf[2] & 0x7F,
	}
	if p.Ext {
		p.Extension = append([]byte(nil), buf[3:]...)
	}
	return p, nil
}

// crcKindFor returns the CRC engine width used by a given packet kind,
// per the table in §6: CRC-3 for UO-0/UO-1, CRC-7 for UOR-2.
func crcKindFor(k Kind) crc.Kind {
	switch k {
	case KindUOR2, KindUOR2RTP:
		return crc.CRC7
	default:
		return crc.CRC3
	}
}

// CRCKindFor exports crcKindFor for callers outside this package (the
// compressor/decompressor FSMs need it to pick the right CRC width when
// validating a header against a candidate packet kind).
func CRCKindFor(k Kind) crc.Kind { return crcKindFor(k) }

// FixedLen returns the on-wire length of kind's non-extended form. None
// of this module's packet-selection logic emits extensions 0-3, so this
// is always exact for packets this codec itself builds.
func FixedLen(k Kind) int {
	switch k {
	case KindUO0:
		return 1
	case KindUOR2RTP:
		return 3
	default:
		return 2
	}
}
