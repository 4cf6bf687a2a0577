/*
【ファイル概要: compressor.go】
圧縮側コンテキストの状態機械を提供します（C7, spec.md §4.5）。

【状態】 IR（全ヘッダ送信）→ FO（動的部分の差分送信）→ SO（SN+CRCのみ）。
teacherの buffer.Bucket が持つ「カウンタを見ながら閾値超過で挙動を変える」
スタイル（nackに対するRTX再送カウント等）を、IR/FO/SO遷移カウンタへ
一般化した。

【パケット種別選択】（SO状態、優先順）
1. UO-0: SNが+1で、他の動的フィールドがすべて推測可能かつ（RTPなら）TSが
   SNから推測可能な場合。
2. UO-1系: 追加ビットが必要なフィールドに応じた亜種。
3. UOR-2系: それでも足りない場合（CRC-7）。本実装は拡張0-3を生成しない。
*/
package compressor

import (
	"errors"

	"github.com/hmasataka/rohc-go/pkg/crc"
	"github.com/hmasataka/rohc-go/pkg/feedback"
	"github.com/hmasataka/rohc-go/pkg/profile"
	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
	"github.com/hmasataka/rohc-go/pkg/tsscaled"
	"github.com/hmasataka/rohc-go/pkg/wlsb"
)

// State is one of the three compressor context states.
type State int

const (
	IR State = iota
	FO
	SO
)

func (s State) String() string {
	switch s {
	case IR:
		return "IR"
	case FO:
		return "FO"
	case SO:
		return "SO"
	default:
		return "UNKNOWN"
	}
}

// ErrNoStaticChain is returned when Compress is called before a static
// chain has ever been established for the context.
var ErrNoStaticChain = errors.New("compressor: context has no static chain")

// Params configures the FSM's transition thresholds (§4.5, §6).
type Params struct {
	L                  int // consecutive-packet threshold for IR->FO and FO->SO
	IRTimeoutPackets   uint64
	IRTimeoutFOPackets uint64
	IRTimeoutSeconds   int64
	SNWidth            int
	WindowWidth        int
}

// DefaultParams mirrors §6's defaults.
func DefaultParams() Params {
	return Params{
		L:                  3,
		IRTimeoutPackets:   1700,
		IRTimeoutFOPackets: 700,
		IRTimeoutSeconds:   200,
		SNWidth:            16,
		WindowWidth:        4,
	}
}

// Context is one flow's compressor state, per §3.
type Context struct {
	CID       int
	ProfileID profile.ID
	Mode      feedback.Mode

	params Params

	Static  *rohcpkt.StaticChain
	Dynamic *rohcpkt.DynamicChain // last transmitted dynamic chain

	snWindow  *wlsb.Window
	ipidWin   *wlsb.Window
	tsEncoder *tsscaled.Encoder

	// scratch is the SO-state short-form packet buffer, preallocated once
	// per context (§5: "allocation-free on the hot path once contexts
	// exist (preallocate per MAX_CID)"). selectAndBuildPacket reuses it
	// across calls; this is safe because the caller (rohc.Endpoint)
	// copies its contents into a freshly CID-framed buffer before this
	// context's next Compress call runs (§5's single-threaded-per-context
	// serialization guarantee).
	scratch []byte

	state State

	irCount, foCount, soCount int
	packetsSinceIR            uint64
	packetsSinceFO            uint64
	lastIRWallClock           int64

	// StaticNeedsRefresh forces the next Compress call into IR even if
	// the confidence counters would otherwise keep the context in FO/SO
	// (§4.5 "Any -> IR ... on static-field change").
	StaticNeedsRefresh bool
}

// NewContext creates a compressor context in the IR state for a newly
// classified flow. static must already reflect the first packet's
// invariant fields.
func NewContext(cid int, profileID profile.ID, static *rohcpkt.StaticChain, params Params) *Context {
	c := &Context{
		CID:       cid,
		ProfileID: profileID,
		params:    params,
		Static:    static,
		state:     IR,
		snWindow:  wlsb.NewWindow(params.SNWidth, params.WindowWidth, wlsb.ConstShift(0)),
		scratch:   make([]byte, 0, 8), // largest short form (UOR-2-RTP) is 3 bytes; headroom for its extension
	}
	if profileID == profile.IP || profileID == profile.UDP || profileID == profile.UDPLite {
		c.ipidWin = wlsb.NewWindow(16, params.WindowWidth, wlsb.ConstShift(-1))
	}
	if profileID == profile.RTP {
		c.tsEncoder = tsscaled.NewEncoder()
	}
	return c
}

// State returns the context's current FSM state.
func (c *Context) State() State { return c.state }

// Sample is one uncompressed packet's profile-relevant fields, gathered
// by the caller (pkg/rohc) from the walked IP/UDP/RTP headers.
type Sample struct {
	Dynamic *rohcpkt.DynamicChain
	SN      uint32
	IPID    uint16
	TS      uint32 // meaningful only for RTP
}

// Compress decides the packet type, updates the FSM, and returns the
// serialized ROHC packet body (CID prefix not included; the caller adds
// it via rohcpkt.WriteCIDPrefix/WriteLargeCID).
func (c *Context) Compress(s Sample, packetCounter uint64, wallClockSeconds int64) ([]byte, error) {
	if c.Static == nil {
		return nil, ErrNoStaticChain
	}

	if c.needsIRRefresh(wallClockSeconds) {
		return c.emitIR(s)
	}

	switch c.state {
	case IR:
		return c.emitIR(s)
	case FO:
		return c.emitFOOrAdvance(s)
	case SO:
		return c.emitSOOrFallback(s)
	}
	return c.emitIR(s)
}

func (c *Context) needsIRRefresh(wallClockSeconds int64) bool {
	if c.StaticNeedsRefresh {
		return true
	}
	if c.params.IRTimeoutPackets > 0 && c.packetsSinceIR >= c.params.IRTimeoutPackets {
		return true
	}
	if c.params.IRTimeoutSeconds > 0 && c.lastIRWallClock != 0 &&
		wallClockSeconds-c.lastIRWallClock >= c.params.IRTimeoutSeconds {
		return true
	}
	return false
}

func (c *Context) emitIR(s Sample) ([]byte, error) {
	c.StaticNeedsRefresh = false
	c.Dynamic = s.Dynamic
	c.snWindow.Reset()
	c.snWindow.Add(uint64(s.SN), uint64(s.SN))
	if c.ipidWin != nil {
		c.ipidWin.Reset()
		c.ipidWin.Add(uint64(s.IPID), uint64(s.SN))
	}
	if c.tsEncoder != nil {
		c.tsEncoder = tsscaled.NewEncoder()
		c.tsEncoder.Process(s.TS, s.SN)
	}

	buf := rohcpkt.BuildIR(c.ProfileID, c.Static, s.Dynamic)

	c.state = IR
	c.irCount++
	c.packetsSinceIR = 0
	c.packetsSinceFO = 0
	c.lastIRWallClock = 0
	if c.irCount >= c.params.L {
		c.state = FO
		c.irCount = 0
	}
	return buf, nil
}

func (c *Context) emitFOOrAdvance(s Sample) ([]byte, error) {
	prevRef, havePrevRef := lastRef(c.snWindow)
	c.Dynamic = s.Dynamic
	c.snWindow.Add(uint64(s.SN), uint64(s.SN))
	if c.ipidWin != nil {
		c.ipidWin.Add(uint64(s.IPID), uint64(s.SN))
	}
	var tsResult tsscaled.Result
	if c.tsEncoder != nil {
		tsResult = c.tsEncoder.Process(s.TS, s.SN)
	}

	buf := rohcpkt.BuildIRDyn(c.ProfileID, s.Dynamic)

	c.packetsSinceIR++
	c.packetsSinceFO++

	if c.canUseShortForm(s, prevRef, havePrevRef, tsResult) {
		c.foCount++
	} else {
		c.foCount = 0
	}
	if c.foCount >= c.params.L {
		c.state = SO
		c.foCount = 0
	}
	return buf, nil
}

// canUseShortForm is the FO->SO promotion test of §4.5. It checks the UO-0
// conditions only: SN is the previous reference plus one and, for RTP, TS
// is deducible from SN. A sample that only a UO-1*/UOR-2* packet could
// carry does not count towards promotion.
func (c *Context) canUseShortForm(s Sample, prevRef uint64, havePrevRef bool, ts tsscaled.Result) bool {
	if !havePrevRef {
		return false
	}
	if uint64(s.SN) != prevRef+1 {
		return false
	}
	if c.tsEncoder != nil && !ts.Deducible {
		return false
	}
	return true
}

func (c *Context) emitSOOrFallback(s Sample) ([]byte, error) {
	ref, ok := lastRef(c.snWindow)
	if !ok {
		return c.emitFOOrAdvance(s)
	}

	var tsResult tsscaled.Result
	var tsRef uint32
	var tsSaved tsscaled.Encoder
	if c.tsEncoder != nil {
		tsSaved = *c.tsEncoder
		tsRef = c.tsEncoder.Scaled()
		tsResult = c.tsEncoder.Process(s.TS, s.SN)
	}

	// Both fallbacks below hand the sample to emitFOOrAdvance, which feeds
	// it to tsEncoder itself; the encoder is first restored so it sees the
	// sample once, as the decompressor's shadow encoder does.
	if !c.dynamicFieldsStable(s) {
		if c.tsEncoder != nil {
			*c.tsEncoder = tsSaved
		}
		c.state = FO
		c.soCount = 0
		return c.emitFOOrAdvance(s)
	}

	if !c.shortFormFits(s, ref, tsResult, tsRef) {
		// No UO-0/UO-1*/UOR-2* shape can carry this sample's SN/TS delta
		// without truncation (§4.5/§4.7's "pick the smallest packet that
		// fits all of them" has no candidate left, and this module emits
		// no extensions 0-3 to widen one). Demote to FO so the full-width
		// IR-DYN chain carries the uncompressed SN/TS instead.
		if c.tsEncoder != nil {
			*c.tsEncoder = tsSaved
		}
		c.state = FO
		c.soCount = 0
		return c.emitFOOrAdvance(s)
	}

	c.snWindow.Add(uint64(s.SN), uint64(s.SN))
	if c.ipidWin != nil {
		c.ipidWin.Add(uint64(s.IPID), uint64(s.SN))
	}
	c.Dynamic = s.Dynamic
	c.packetsSinceIR++
	c.soCount++

	buf := c.selectAndBuildPacket(s, ref, tsResult, tsRef)
	return buf, nil
}

// shortFormFits reports whether s's SN and (for RTP) TS_SCALED deltas fit
// within the widest short-form fields this codec emits: a 5-bit SN
// (UO-1-IP/UOR-2/UOR-2-RTP) and, unless the packet will end up being a
// UO-0 (which carries no TS bits at all), a 7-bit TS_SCALED
// (UOR-2-RTP's field; UO-1-RTP's is narrower and is tried first but
// falling short of it just means UOR-2-RTP is attempted next, not that
// the sample is infeasible). rohcpkt.BuildUOR2/BuildUOR2RTP mask their SN
// field to 5 bits and BuildUOR2RTP masks TS to 7 unconditionally, so any
// call to them with a wider-than-fits value would silently transmit a
// truncated field (§4.7's LSB-bound guarantee).
func (c *Context) shortFormFits(s Sample, ref uint64, ts tsscaled.Result, tsRef uint32) bool {
	snK, _ := c.snWindow.Encode(uint64(s.SN))
	if snK > 5 {
		return false
	}
	deducibleTS := c.tsEncoder == nil || ts.Deducible
	willBeUO0 := uint64(s.SN) == ref+1 && snK <= 4 && deducibleTS
	if c.tsEncoder != nil && !willBeUO0 {
		tsK, _ := bitsForScaled(ts.Scaled, tsRef)
		if tsK > 7 {
			return false
		}
	}
	return true
}

// dynamicFieldsStable reports whether dynamic fields that aren't
// expressible in any UO/UOR packet (e.g. IP-ID randomness/NBO flag
// switching) changed since the reference, forcing a return to FO.
func (c *Context) dynamicFieldsStable(s Sample) bool {
	if c.Dynamic == nil {
		return false
	}
	return c.Dynamic.TOS == s.Dynamic.TOS &&
		c.Dynamic.HasUDPChecksum == s.Dynamic.HasUDPChecksum &&
		c.Dynamic.HasRTPDynamic == s.Dynamic.HasRTPDynamic
}

func lastRef(w *wlsb.Window) (uint64, bool) {
	return w.LastValue()
}

// selectAndBuildPacket implements the priority order of §4.5: UO-0, then
// UO-1*, then UOR-2*. Callers must have already confirmed shortFormFits
// for this sample; the terminal UOR-2/UOR-2-RTP branch trusts snK<=5 and
// (when TS is carried) tsK<=7 rather than re-checking, since
// BuildUOR2/BuildUOR2RTP mask their fields to exactly those widths.
// The minimal widths (snK, ipidK, tsK) only choose the packet type: each
// field is filled with the value's low bits at the field's full width
// (the Append functions mask them), the width the decompressor decodes at.
func (c *Context) selectAndBuildPacket(s Sample, ref uint64, ts tsscaled.Result, tsRef uint32) []byte {
	snK, _ := c.snWindow.Encode(uint64(s.SN))
	crcBytes := crcOverChains(c.Static, s.Dynamic, c.ipidWin != nil)

	deducibleTS := c.tsEncoder == nil || ts.Deducible

	if uint64(s.SN) == ref+1 && snK <= 4 && deducibleTS {
		crc3 := crc.Compute(crc.CRC3, crcBytes, crc.CRC3.Init())
		c.scratch = rohcpkt.AppendUO0(c.scratch[:0], rohcpkt.UO0{SN: uint8(s.SN), CRC: crc3})
		return c.scratch
	}

	if c.ipidWin != nil && !c.tsHasRTP() {
		ipidK, _ := c.ipidWin.Encode(uint64(s.IPID))
		if ipidK <= 6 && snK <= 5 {
			crc3 := crc.Compute(crc.CRC3, crcBytes, crc.CRC3.Init())
			c.scratch = rohcpkt.AppendUO1IP(c.scratch[:0], rohcpkt.UO1IP{IPID: uint8(s.IPID), SN: uint8(s.SN), CRC: crc3})
			return c.scratch
		}
	}

	if c.tsEncoder != nil {
		tsK, _ := bitsForScaled(ts.Scaled, tsRef)
		if tsK <= 6 && snK <= 4 {
			crc3 := crc.Compute(crc.CRC3, crcBytes, crc.CRC3.Init())
			c.scratch = rohcpkt.AppendUO1RTP(c.scratch[:0], rohcpkt.UO1RTP{TS: uint8(ts.Scaled), Marker: s.Dynamic.Marker, SN: uint8(s.SN), CRC: crc3})
			return c.scratch
		}
	}

	crc7 := crc.Compute(crc.CRC7, crcBytes, crc.CRC7.Init())
	if c.tsEncoder != nil {
		c.scratch = rohcpkt.AppendUOR2RTP(c.scratch[:0], rohcpkt.UOR2RTP{SN: uint8(s.SN), TS: uint8(ts.Scaled), Marker: s.Dynamic.Marker, CRC: crc7})
		return c.scratch
	}
	c.scratch = rohcpkt.AppendUOR2(c.scratch[:0], rohcpkt.UOR2{SN: uint8(s.SN), CRC: crc7})
	return c.scratch
}

func (c *Context) tsHasRTP() bool { return c.tsEncoder != nil }

// bitsForScaled computes the minimal k such that scaled's low k bits
// round-trip back to scaled when reconstructed against ref via
// wlsb.NearestWithLSB — the Scaled-TS analogue of wlsb.Window.MinK for a
// single running reference (tsscaled.Encoder has no multi-entry Window of
// its own; ref is the encoder's Scaled() as of the prior packet, the same
// value the decompressor's tsShadow holds when the two sides are in
// sync). k=32 (scaled transmitted in full) always round-trips, so the
// loop is guaranteed to terminate.
func bitsForScaled(scaled uint32, ref uint32) (k int, bits uint64) {
	for k = 0; k <= 32; k++ {
		mask := uint64(1)<<uint(k) - 1
		candidate := wlsb.NearestWithLSB(uint64(ref), k, uint64(scaled)&mask)
		if candidate == uint64(scaled) {
			return k, uint64(scaled) & mask
		}
	}
	return 32, uint64(scaled)
}

// crcOverChains computes the byte sequence the STATIC+DYNAMIC CRC mask
// (§6) is taken over: the frozen static chain concatenated with the
// dynamic chain as transmitted for this packet. When the context isn't
// tracking IP-ID (trackIPID false: every profile without an IP-ID W-LSB
// window, i.e. all but IP/UDP/UDP-Lite, whatever the packet type), IP-ID is
// masked to a constant so the compressor and decompressor — which never
// exchange IP-ID for such packets — compute the same bytes; RFC 3095
// does the equivalent by simply excluding untracked fields from the
// mask.
func crcOverChains(static *rohcpkt.StaticChain, dynamic *rohcpkt.DynamicChain, trackIPID bool) []byte {
	d := *dynamic
	if !trackIPID {
		d.IPID = 0
	}
	return append(static.Marshal(), d.Marshal()...)
}

// HandleFeedback applies a received FEEDBACK-2 element per §4.5/§4.6:
// NACK forces a transition to FO, STATIC-NACK forces a transition to IR.
func (c *Context) HandleFeedback(f *feedback.Feedback2) {
	switch f.Ack {
	case feedback.Nack:
		if c.state == SO {
			c.state = FO
			c.soCount = 0
		}
	case feedback.StaticNack:
		c.StaticNeedsRefresh = true
	}
}
