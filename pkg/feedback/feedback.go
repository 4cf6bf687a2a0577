/*
【ファイル概要: feedback.go】
FEEDBACK-1/FEEDBACK-2の符号化・復号を提供します（spec.md §4.9, §6）。

FEEDBACK-1は1バイト固定（ACKのみ、SN下位8ビット）。FEEDBACK-2は
`AATTMMMM`ヘッダの後にTLVオプション列が続く: CRC(1), REJECT(2),
SN-NOT-VALID(3), SN(4, 1バイトごとに連結して最大36ビットまで拡張), CLOCK(5),
JITTER(6), LOSS(7)。CRCオプションはフィードバック要素全体（自身のデータ
バイトを一時的に0にしたもの）に対するCRC-8で、§6の多項式表に従う。
*/
package feedback

import (
	"errors"

	"github.com/hmasataka/rohc-go/pkg/crc"
)

// ErrMalformed is returned when a feedback element can't be parsed.
var ErrMalformed = errors.New("feedback: malformed feedback element")

// AckType is the AA field of a FEEDBACK-2 header.
type AckType uint8

const (
	Ack AckType = iota
	Nack
	StaticNack
)

// Mode is the TT field of a FEEDBACK-2 header.
type Mode uint8

const (
	ModeU Mode = iota
	ModeO
	ModeR
)

// OptionType identifies a FEEDBACK-2 TLV option.
type OptionType uint8

const (
	OptCRC       OptionType = 1
	OptReject    OptionType = 2
	OptSNNotValid OptionType = 3
	OptSN        OptionType = 4
	OptClock     OptionType = 5
	OptJitter    OptionType = 6
	OptLoss      OptionType = 7
)

// Option is a single TLV entry within a FEEDBACK-2 element.
type Option struct {
	Type OptionType
	Data []byte
}

// Feedback1 builds the 1-byte FEEDBACK-1 element: ACK carrying the low 8
// bits of the sequence number.
func Feedback1(sn uint32) []byte {
	return []byte{byte(sn)}
}

// ParseFeedback1 extracts the low 8 bits of SN carried by a FEEDBACK-1
// element.
func ParseFeedback1(buf []byte) (uint8, error) {
	if len(buf) != 1 {
		return 0, ErrMalformed
	}
	return buf[0], nil
}

// Feedback2 is a parsed/unparsed FEEDBACK-2 element.
type Feedback2 struct {
	Ack     AckType
	Mode    Mode
	SNHigh4 uint8 // top 4 bits of SN, MMMM
	Options []Option
}

// Build serializes a FEEDBACK-2 element, appending a CRC option computed
// over the whole element with the CRC option's own data byte zeroed.
func (f *Feedback2) Build() []byte {
	head := byte(f.Ack)<<6 | byte(f.Mode)<<4 | (f.SNHigh4 & 0x0F)
	buf := []byte{head}
	crcOptPos := -1
	for _, o := range f.Options {
		buf = append(buf, byte(o.Type), byte(len(o.Data)))
		if o.Type == OptCRC {
			crcOptPos = len(buf)
		}
		buf = append(buf, o.Data...)
	}
	if crcOptPos == -1 {
		// always carry a CRC option per §4.9; append one if the caller
		// didn't supply one explicitly.
		crcOptPos = len(buf) + 2
		buf = append(buf, byte(OptCRC), 1, 0)
	}
	zeroed := append([]byte(nil), buf...)
	zeroed[crcOptPos] = 0
	buf[crcOptPos] = crc.Compute(crc.CRC8, zeroed, crc.CRC8.Init())
	return buf
}

// ParseFeedback2 parses a FEEDBACK-2 element from buf (must be exactly the
// element, no trailing bytes).
func ParseFeedback2(buf []byte) (*Feedback2, error) {
	if len(buf) < 1 {
		return nil, ErrMalformed
	}
	f := &Feedback2{
		Ack:     AckType(buf[0] >> 6),
		Mode:    Mode((buf[0] >> 4) & 0x03),
		SNHigh4: buf[0] & 0x0F,
	}
	rest := buf[1:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, ErrMalformed
		}
		typ := OptionType(rest[0])
		length := int(rest[1])
		if len(rest) < 2+length {
			return nil, ErrMalformed
		}
		data := append([]byte(nil), rest[2:2+length]...)
		f.Options = append(f.Options, Option{Type: typ, Data: data})
		rest = rest[2+length:]
	}
	return f, nil
}

// Verify recomputes the CRC-8 over buf (with the CRC option's data byte
// zeroed) and compares it to the value carried in the OptCRC option.
func Verify(buf []byte) bool {
	pos := findCRCOptionDataPos(buf)
	if pos < 0 {
		return false
	}
	want := buf[pos]
	zeroed := append([]byte(nil), buf...)
	zeroed[pos] = 0
	got := crc.Compute(crc.CRC8, zeroed, crc.CRC8.Init())
	return got == want
}

func findCRCOptionDataPos(buf []byte) int {
	if len(buf) < 1 {
		return -1
	}
	rest := buf[1:]
	pos := 1
	for len(rest) >= 2 {
		typ := OptionType(rest[0])
		length := int(rest[1])
		if len(rest) < 2+length {
			return -1
		}
		if typ == OptCRC && length >= 1 {
			return pos + 2
		}
		rest = rest[2+length:]
		pos += 2 + length
	}
	return -1
}

// SNFromOptions reconstructs the full sequence number by chaining MMMM (top
// 4 bits) with zero or more OptSN option bytes, each contributing 8 more
// low-order bits, up to a maximum of 36 bits total (4 + 4*8).
func SNFromOptions(f *Feedback2) uint64 {
	sn := uint64(f.SNHigh4)
	for _, o := range f.Options {
		if o.Type != OptSN {
			continue
		}
		for _, b := range o.Data {
			sn = sn<<8 | uint64(b)
		}
	}
	return sn
}
