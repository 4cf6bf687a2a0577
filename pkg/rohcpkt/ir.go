/*
【ファイル概要: ir.go】
IRおよびIR-DYNパケットのビルド/パース（§4.7）。

  IR:     1111110D  profile-id  CRC-8  static-chain  [dynamic-chain if D=1]
  IR-DYN: 11111000  profile-id  CRC-8  dynamic-chain
*/
package rohcpkt

import (
	"errors"

	"github.com/hmasataka/rohc-go/pkg/crc"
	"github.com/hmasataka/rohc-go/pkg/profile"
)

// ErrNotIR / ErrNotIRDyn are returned when ParseIR/ParseIRDyn is handed a
// buffer whose first octet isn't the expected discriminator.
var (
	ErrNotIR     = errors.New("rohcpkt: not an IR packet")
	ErrNotIRDyn  = errors.New("rohcpkt: not an IR-DYN packet")
	ErrTruncated = errors.New("rohcpkt: truncated packet")
)

const (
	irDiscriminatorBase = 0xFC // 1111110D with D in bit 0
	irDynDiscriminator  = 0xF8 // 11111000
)

// BuildIR serializes an IR packet. Its CRC-8 field is computed from
// crc.CRC8.Init() over the whole IR header with the CRC byte zeroed.
func BuildIR(profileID profile.ID, static *StaticChain, dynamic *DynamicChain) []byte {
	var body []byte
	d := byte(0)
	if dynamic != nil {
		d = 1
	}
	body = append(body, irDiscriminatorBase|d)
	body = append(body, byte(profileID))
	crcPos := len(body)
	body = append(body, 0) // CRC-8 placeholder
	body = append(body, static.Marshal()...)
	if dynamic != nil {
		body = append(body, dynamic.Marshal()...)
	}
	c := crc.Compute(crc.CRC8, excludeByte(body, crcPos), crc.CRC8.Init())
	body[crcPos] = c
	return body
}

// excludeByte returns a copy of buf with the byte at pos zeroed, used so
// the CRC-8 field covers "the packet itself" (§4.6) without covering its
// own value.
func excludeByte(buf []byte, pos int) []byte {
	out := append([]byte(nil), buf...)
	out[pos] = 0
	return out
}

// ParsedIR is the result of parsing an IR packet.
type ParsedIR struct {
	ProfileID profile.ID
	CRC8      uint8
	Static    *StaticChain
	Dynamic   *DynamicChain // nil if D=0
	Consumed  int           // bytes of buf occupied by the IR header itself
}

// ParseIR parses an IR packet from buf (CID prefix/large-CID already
// stripped by the caller).
func ParseIR(buf []byte) (*ParsedIR, error) {
	if len(buf) < 3 {
		return nil, ErrTruncated
	}
	if buf[0]&0xFE != irDiscriminatorBase {
		return nil, ErrNotIR
	}
	hasDynamic := buf[0]&0x01 != 0
	profileID := profile.ID(buf[1])
	crc8 := buf[2]
	rest := buf[3:]

	static, rest, err := ParseStaticChain(rest)
	if err != nil {
		return nil, err
	}
	consumed := len(buf) - len(rest)
	var dyn *DynamicChain
	if hasDynamic {
		dyn, rest, err = ParseDynamicChain(rest)
		if err != nil {
			return nil, err
		}
		consumed = len(buf) - len(rest)
	}
	return &ParsedIR{ProfileID: profileID, CRC8: crc8, Static: static, Dynamic: dyn, Consumed: consumed}, nil
}

// VerifyIR recomputes the CRC-8 over the IR header (buf[:parsed.Consumed],
// with the CRC byte zeroed; any payload after it is not covered) and
// compares it to the value the packet carried.
func VerifyIR(buf []byte, parsed *ParsedIR) bool {
	if len(buf) < 3 {
		return false
	}
	got := crc.Compute(crc.CRC8, excludeByte(buf[:parsed.Consumed], 2), crc.CRC8.Init())
	return got == parsed.CRC8
}

// BuildIRDyn serializes an IR-DYN packet.
func BuildIRDyn(profileID profile.ID, dynamic *DynamicChain) []byte {
	var body []byte
	body = append(body, irDynDiscriminator)
	body = append(body, byte(profileID))
	crcPos := len(body)
	body = append(body, 0)
	body = append(body, dynamic.Marshal()...)
	c := crc.Compute(crc.CRC8, excludeByte(body, crcPos), crc.CRC8.Init())
	body[crcPos] = c
	return body
}

// ParsedIRDyn is the result of parsing an IR-DYN packet.
type ParsedIRDyn struct {
	ProfileID profile.ID
	CRC8      uint8
	Dynamic   *DynamicChain
	Consumed  int
}

// ParseIRDyn parses an IR-DYN packet from buf.
func ParseIRDyn(buf []byte) (*ParsedIRDyn, error) {
	if len(buf) < 3 {
		return nil, ErrTruncated
	}
	if buf[0] != irDynDiscriminator {
		return nil, ErrNotIRDyn
	}
	profileID := profile.ID(buf[1])
	crc8 := buf[2]
	dyn, rest, err := ParseDynamicChain(buf[3:])
	if err != nil {
		return nil, err
	}
	return &ParsedIRDyn{ProfileID: profileID, CRC8: crc8, Dynamic: dyn, Consumed: len(buf) - len(rest)}, nil
}

// VerifyIRDyn checks the IR-DYN CRC-8 over buf[:parsed.Consumed].
func VerifyIRDyn(buf []byte, parsed *ParsedIRDyn) bool {
	if len(buf) < 3 {
		return false
	}
	got := crc.Compute(crc.CRC8, excludeByte(buf[:parsed.Consumed], 2), crc.CRC8.Init())
	return got == parsed.CRC8
}

// IsIR reports whether buf begins with the IR discriminator.
func IsIR(buf []byte) bool {
	return len(buf) > 0 && buf[0]&0xFE == irDiscriminatorBase
}

// IsIRDyn reports whether buf begins with the IR-DYN discriminator.
func IsIRDyn(buf []byte) bool {
	return len(buf) > 0 && buf[0] == irDynDiscriminator
}
