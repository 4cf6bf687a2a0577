/*
【ファイル概要: cid.go】
CIDの付与/剥離と、圧縮出力へのフィードバックの便乗（ピギーバック）を
扱うワイヤ形式のラッパー。

spec.md §4.9は「フィードバックは典型的に圧縮出力へ便乗される」とだけ
述べ、正確なオンワイヤ表現は実装詳細として残している（§9 Open
Questions相当）。本実装では、既存の判別子がどれも使っていない先頭
オクテット0xF0を「便乗フィードバックあり」の印として採用する:

  0xF0  count:1byte  (len:1byte elem:len bytes){count}  <CIDつきROHCパケット>

count=0のときはこのプレフィックス自体を省略する。
*/
package rohc

import (
	"errors"

	"github.com/hmasataka/rohc-go/pkg/profile"
	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
)

// addCID attaches the CID to a freshly built ROHC header per §4.7: a
// small CID rides an optional add-CID octet ahead of the header, a
// large CID is SDVL-encoded right after the header's first (type
// discriminator) octet.
func addCID(kind profile.CIDKind, cid int, header []byte) ([]byte, error) {
	if kind == profile.LargeCID {
		out := []byte{header[0]}
		out, err := rohcpkt.WriteLargeCID(out, cid)
		if err != nil {
			return nil, err
		}
		return append(out, header[1:]...), nil
	}
	out := rohcpkt.WriteCIDPrefix(nil, kind, cid)
	return append(out, header...), nil
}

// stripCID is addCID's inverse: it returns the CID and the header bytes
// with any CID framing removed.
func stripCID(kind profile.CIDKind, buf []byte) (cid int, header []byte, err error) {
	if kind == profile.LargeCID {
		if len(buf) < 1 {
			return 0, nil, ErrMalformedPiggyback
		}
		typeOctet := buf[0]
		c, tail, err := rohcpkt.ReadLargeCID(buf[1:])
		if err != nil {
			return 0, nil, err
		}
		return c, append([]byte{typeOctet}, tail...), nil
	}
	c, rest := rohcpkt.ReadCIDPrefix(buf)
	return c, rest, nil
}

const piggybackMarker = 0xF0

// ErrMalformedPiggyback is returned when the feedback piggyback prefix
// cannot be parsed.
var ErrMalformedPiggyback = errors.New("rohc: malformed piggybacked feedback")

// splitPiggyback extracts any piggybacked feedback elements from the
// front of buf, returning them plus the remaining (CID+header) bytes.
func splitPiggyback(buf []byte) (elems [][]byte, rest []byte, err error) {
	if len(buf) == 0 || buf[0] != piggybackMarker {
		return nil, buf, nil
	}
	if len(buf) < 2 {
		return nil, nil, ErrMalformedPiggyback
	}
	count := int(buf[1])
	p := buf[2:]
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(p) < 1 {
			return nil, nil, ErrMalformedPiggyback
		}
		n := int(p[0])
		p = p[1:]
		if len(p) < n {
			return nil, nil, ErrMalformedPiggyback
		}
		out = append(out, append([]byte(nil), p[:n]...))
		p = p[n:]
	}
	return out, p, nil
}

// prependPiggyback prepends the piggyback prefix for elems onto rest,
// or returns rest unchanged if there is nothing to piggyback.
func prependPiggyback(elems [][]byte, rest []byte) []byte {
	if len(elems) == 0 {
		return rest
	}
	out := []byte{piggybackMarker, byte(len(elems))}
	for _, e := range elems {
		out = append(out, byte(len(e)))
		out = append(out, e...)
	}
	return append(out, rest...)
}
