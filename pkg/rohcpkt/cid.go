/*
【ファイル概要: cid.go】
add-CIDオクテットと大CID（SDVL）の読み書きを提供します（§4.7）。

すべてのROHCパケットは、小CID（0〜15）が0以外の場合にオプションの
add-CIDオクテット（`1110cccc`）で始まる。大CIDの場合は、パケット種別
判別子の最初のオクテットの直後にSDVL符号化されたCIDが続く。
*/
package rohcpkt

import (
	"github.com/hmasataka/rohc-go/pkg/bitio"
	"github.com/hmasataka/rohc-go/pkg/profile"
)

const addCIDPrefix = 0xE0 // 1110cccc, mask 0xF0

// WriteCIDPrefix appends the add-CID octet (small CID, non-zero) to dst
// and returns the extended slice. For CID 0 or large-CID mode, it is a
// no-op: small CID 0 is implicit, and large CIDs are written after the
// type discriminator instead (see WriteLargeCID).
func WriteCIDPrefix(dst []byte, kind profile.CIDKind, cid int) []byte {
	if kind == SmallCID && cid != 0 {
		return append(dst, byte(addCIDPrefix|cid&0x0F))
	}
	return dst
}

// SmallCID / LargeCID re-export profile.CIDKind values so callers need
// not import both packages for this one enum.
const (
	SmallCID = profile.SmallCID
	LargeCID = profile.LargeCID
)

// ReadCIDPrefix inspects the first octet of buf: if it is an add-CID
// octet, it returns the embedded small CID and the remaining buffer;
// otherwise it returns CID 0 and the buffer unchanged.
func ReadCIDPrefix(buf []byte) (cid int, rest []byte) {
	if len(buf) > 0 && buf[0]&0xF0 == addCIDPrefix {
		return int(buf[0] & 0x0F), buf[1:]
	}
	return 0, buf
}

// WriteLargeCID SDVL-encodes cid and appends it to dst, per large-CID
// mode where the CID follows the type discriminator's first octet.
func WriteLargeCID(dst []byte, cid int) ([]byte, error) {
	var tmp [5]byte
	enc, err := bitio.WriteSdvl(&tmp, uint32(cid))
	if err != nil {
		return nil, err
	}
	return append(dst, enc...), nil
}

// ReadLargeCID decodes an SDVL CID from the start of buf.
func ReadLargeCID(buf []byte) (cid int, rest []byte, err error) {
	r := bitio.NewReader(buf)
	v, err := r.ReadSdvl()
	if err != nil {
		return 0, nil, err
	}
	n := bitio.SdvlLen(v)
	return int(v), buf[n:], nil
}
