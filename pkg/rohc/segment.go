/*
【ファイル概要: segment.go】
MRRU分割（§6「MRRU segmentation」）。IRなど、リンクMTUを超える出力を
`1111111L` セグメント種別（L=0で非最終、L=1で最終）に分割し、受信側で
`mrru`を上限に再構成する。

スペックはセグメントの多重化（複数フローが同時にセグメント化される
場合の識別子）までは規定していない。本実装はエンドポイントごとに
同時に進行中のセグメント化ストリームは高々1本という単純化を置く
（同時に複数の大きなIRが輻輳することは実運用上まれであり、必要なら
CIDを先頭セグメントに含める拡張は素直に載せられる）。
*/
package rohc

import "errors"

const (
	segmentDiscriminator = 0xFE // 1111111L, L in bit 0
	segmentMask          = 0xFE
)

// ErrSegmentTooLarge is returned when a single segment body would not
// fit the configured MRRU.
var ErrSegmentTooLarge = errors.New("rohc: mrru too small to carry a segment header")

// ErrReassemblyOverflow is returned when accumulated segments would
// exceed the configured MRRU.
var ErrReassemblyOverflow = errors.New("rohc: reassembled packet exceeds mrru")

// Segment splits framed (a complete CID-framed ROHC packet) into MRRU-
// bounded segments if it exceeds mrru, or returns it unchanged (as a
// single-element slice) if segmentation isn't needed or is disabled
// (mrru == 0).
func Segment(framed []byte, mrru int) ([][]byte, error) {
	if mrru <= 0 || len(framed) <= mrru {
		return [][]byte{framed}, nil
	}
	chunkLen := mrru - 1
	if chunkLen <= 0 {
		return nil, ErrSegmentTooLarge
	}
	var out [][]byte
	for len(framed) > 0 {
		n := chunkLen
		if n > len(framed) {
			n = len(framed)
		}
		last := n == len(framed)
		l := byte(0)
		if last {
			l = 1
		}
		seg := append([]byte{segmentDiscriminator | l}, framed[:n]...)
		out = append(out, seg)
		framed = framed[n:]
	}
	return out, nil
}

// IsSegment reports whether buf begins with the segment discriminator.
func IsSegment(buf []byte) bool {
	return len(buf) > 0 && buf[0]&segmentMask == segmentDiscriminator
}

// reassembler accumulates segments for one in-flight oversized packet.
type reassembler struct {
	buf  []byte
	mrru int
}

func newReassembler(mrru int) *reassembler {
	return &reassembler{mrru: mrru}
}

// feed appends one segment's payload. It returns the complete
// reassembled packet once the final (L=1) segment arrives.
func (r *reassembler) feed(seg []byte) ([]byte, bool, error) {
	if len(seg) < 1 {
		return nil, false, ErrMalformedPiggyback
	}
	final := seg[0]&0x01 != 0
	r.buf = append(r.buf, seg[1:]...)
	if r.mrru > 0 && len(r.buf) > r.mrru {
		r.buf = nil
		return nil, false, ErrReassemblyOverflow
	}
	if !final {
		return nil, false, nil
	}
	out := r.buf
	r.buf = nil
	return out, true, nil
}

// Reassemble feeds one received wire chunk through the endpoint's single
// in-flight reassembly buffer (see the file doc comment for the
// one-stream-at-a-time simplification). If buf isn't a segment at all,
// it is returned unchanged with complete=true so callers can treat
// Reassemble as a transparent pass-through in front of Decompress.
func (e *Endpoint) Reassemble(buf []byte) (out []byte, complete bool, err error) {
	if !IsSegment(buf) {
		return buf, true, nil
	}
	e.mu.Lock()
	if e.reasm == nil {
		e.reasm = newReassembler(e.cfg.MRRU)
	}
	r := e.reasm
	e.mu.Unlock()

	out, complete, err = r.feed(buf)
	if complete || err != nil {
		e.mu.Lock()
		e.reasm = nil
		e.mu.Unlock()
	}
	return out, complete, err
}
