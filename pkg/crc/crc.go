/*
【ファイル概要: crc.go】
ROHCのCRC-2/3/6/7/8エンジンを提供します。

【主要な役割】
1. 多項式パラメータ表（テーブルの事前計算は行わない）
  - 各CRC幅（2,3,6,7,8ビット）ごとにビット単位で計算（256エントリテーブルは
    幅の広いCRCでのみ有効なため、ここでは共通のビット逐次アルゴリズムを使う）
  - 初期値はKind.Init()が返す（CRC-3=0x7, CRC-7=0x7F, CRC-8=0xFF）

2. フィールドマスク付きCRC計算
  - STATIC/DYNAMICマスクにより、CRC計算に含めるフィールド集合を制御
  - Computeは呼び出し側が既にマスク適用済みのバイト列を渡す前提で動作する
    （マスク適用自体はヘッダビルダー側の責務、§6参照）

【多項式】（RFC 3095 §5.9.1 相当, ビット位置は上位が高次項）
  CRC-2: x^2+x+1     = 0x3
  CRC-3: x^3+x+1      = 0x6
  CRC-6: x^6+x^5+x^2+1 = 0x23 (UOR-2-IDと拡張3で使用)
  CRC-7: x^7+x^6+x^4+x^2+x+1 = 0x79
  CRC-8: x^8+x^7+x^4+x^3+x+1 = 0xE0
*/
package crc

// Kind identifies a CRC width/polynomial pair used somewhere on the wire.
type Kind int

const (
	CRC2 Kind = iota
	CRC3
	CRC6
	CRC7
	CRC8
)

type params struct {
	width int
	poly  uint8
	init  uint8
}

var table = map[Kind]params{
	CRC2: {width: 2, poly: 0x3, init: 0x3},
	CRC3: {width: 3, poly: 0x6, init: 0x7},
	CRC6: {width: 6, poly: 0x23, init: 0x3F},
	CRC7: {width: 7, poly: 0x79, init: 0x7F},
	CRC8: {width: 8, poly: 0xE0, init: 0xFF},
}

// Init returns the conventional initial value for kind, per §6 of the
// specification.
func (k Kind) Init() uint8 {
	return table[k].init
}

// Width returns the CRC width in bits.
func (k Kind) Width() int {
	return table[k].width
}

// Compute runs the bit-reversed (LSB-first) CRC used throughout ROHC (RFC
// 3095 §5.9.1), byte by byte, shifting a width-bit register. init is
// normally Kind.Init(); callers that chain multiple fields through the
// same running CRC (e.g. FEEDBACK-2's CRC option, which covers the whole
// element) pass the prior return value.
func Compute(kind Kind, data []byte, init uint8) uint8 {
	p := table[kind]
	mask := uint8(1)<<uint(p.width) - 1
	polyReflected := reflect(p.poly, p.width) & mask
	crcVal := init & mask
	for _, b := range data {
		for bit := 0; bit < 8; bit++ {
			inBit := (b >> uint(bit)) & 1
			outBit := crcVal & 1
			crcVal >>= 1
			if inBit^outBit != 0 {
				crcVal ^= polyReflected
			}
			crcVal &= mask
		}
	}
	return crcVal & mask
}

// reflect reverses the low n bits of v.
func reflect(v uint8, n int) uint8 {
	var out uint8
	for i := 0; i < n; i++ {
		if v&(1<<uint(i)) != 0 {
			out |= 1 << uint(n-1-i)
		}
	}
	return out
}

// Mask selects which STATIC/DYNAMIC header fields participate in a CRC
// computation. Header builders apply the mask by zeroing or omitting the
// excluded fields before calling Compute; Mask itself carries no state,
// it only documents which of the two field sets is in play so callers
// (pkg/rohcpkt) don't have to duplicate the §6 field lists.
type Mask int

const (
	// MaskStatic covers fields that never change within a flow: IP
	// version, src/dst addresses, protocol, UDP ports, RTP SSRC/PT.
	MaskStatic Mask = iota
	// MaskDynamic covers fields that change packet to packet: TOS/TC,
	// TTL/HL, DF, IP-ID flags, UDP checksum, RTP marker/SN/TS/CSRC list,
	// ESP SN.
	MaskDynamic
	// MaskStaticDynamic is the union, used for UO/UOR packet CRCs which
	// protect the whole reconstructed header chain.
	MaskStaticDynamic
)
