/*
【ファイル概要: decompressor.go】
復元側コンテキストの状態機械を提供します（C8, spec.md §4.6, §4.8）。

【状態】 NC（No Context）→ SC（Static Context）→ FC（Full Context）。
FCでは任意のパケット種別を受理し、CRC失敗が続くとSCへ降格、さらに
続けばNCへ降格する（§4.6）。SCはIR/IR-DYNのみ受理する。

teacherの pkg/buffer 内で使われる「直近の失敗/成功を固定長のウィンドウで
数えて閾値判定する」パターン（NACK生成ロジック相当）を、gammazero/deque
によるk/n失敗率ウィンドウへ一般化した。
*/
package decompressor

import (
	"errors"

	"github.com/gammazero/deque"

	"github.com/hmasataka/rohc-go/pkg/crc"
	"github.com/hmasataka/rohc-go/pkg/feedback"
	"github.com/hmasataka/rohc-go/pkg/profile"
	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
	"github.com/hmasataka/rohc-go/pkg/tsscaled"
	"github.com/hmasataka/rohc-go/pkg/wlsb"
)

// State is one of the three decompressor context states.
type State int

const (
	NC State = iota
	SC
	FC
)

func (s State) String() string {
	switch s {
	case NC:
		return "NC"
	case SC:
		return "SC"
	case FC:
		return "FC"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrNoContext is returned for a non-IR packet on a context still in
	// NC (§7 "NoContext").
	ErrNoContext = errors.New("decompressor: no context established for CID")
	// ErrCrcMismatch is returned when the header CRC fails to validate
	// and repair (if enabled) does not recover it.
	ErrCrcMismatch = errors.New("decompressor: CRC mismatch")
	// ErrRejectedByState is returned when a packet kind isn't accepted
	// in the context's current state (e.g. a UO-0 while still SC).
	ErrRejectedByState = errors.New("decompressor: packet kind not accepted in current state")
)

// Params configures the FSM's failure-rate thresholds (§4.6, §6).
type Params struct {
	K, N      int // k failures out of the last n decompressions downgrades state
	CrcRepair bool
	SNWidth   int
	Window    int
}

// DefaultParams mirrors §6's defaults (k=1, n=16).
func DefaultParams() Params {
	return Params{K: 1, N: 16, CrcRepair: true, SNWidth: 16, Window: 4}
}

// Context is one flow's decompressor state, per §3.
type Context struct {
	CID       int
	ProfileID profile.ID
	Mode      feedback.Mode

	params Params

	Static  *rohcpkt.StaticChain
	Dynamic *rohcpkt.DynamicChain

	snDecoder *wlsb.Decoder
	ipidDec   *wlsb.Decoder
	tsShadow  *tsscaled.Encoder // mirrors the compressor's Scaled-TS FSM

	state State

	failures   deque.Deque[bool]
	CrcRepairs uint64
}

// NewContext creates a decompressor context in NC, awaiting an IR.
func NewContext(cid int, params Params) *Context {
	return &Context{CID: cid, state: NC, params: params}
}

// State returns the context's current FSM state.
func (c *Context) State() State { return c.state }

// Decoded is one successfully decompressed packet's reconstructed fields.
type Decoded struct {
	ProfileID profile.ID
	Static    *rohcpkt.StaticChain
	Dynamic   *rohcpkt.DynamicChain
	SN        uint32
	TS        uint32
	Repaired  bool
	Consumed  int // bytes of the input buffer occupied by the ROHC header
}

// Decompress processes one ROHC packet body (CID prefix already stripped
// by the caller) against ctx, returning the reconstructed header fields
// and any feedback the endpoint should send back (nil in mode U).
func (c *Context) Decompress(buf []byte) (*Decoded, *feedback.Feedback2, error) {
	switch {
	case rohcpkt.IsIR(buf):
		return c.acceptIR(buf)
	case rohcpkt.IsIRDyn(buf):
		return c.acceptIRDyn(buf)
	default:
		return c.acceptShortForm(buf)
	}
}

func (c *Context) acceptIR(buf []byte) (*Decoded, *feedback.Feedback2, error) {
	parsed, err := rohcpkt.ParseIR(buf)
	if err != nil {
		return nil, nil, err
	}
	if !rohcpkt.VerifyIR(buf, parsed) {
		c.recordFailure()
		return nil, c.maybeNack(feedback.StaticNack), ErrCrcMismatch
	}
	c.ProfileID = parsed.ProfileID
	c.Static = parsed.Static
	c.resetDecoders()
	c.recordSuccess()

	if parsed.Dynamic == nil {
		c.state = SC
		return &Decoded{ProfileID: c.ProfileID, Static: c.Static, Consumed: parsed.Consumed}, c.maybeAck(), nil
	}
	c.Dynamic = parsed.Dynamic
	c.establishReferences(parsed.Dynamic)
	c.state = FC
	d := c.decodedFromDynamic(parsed.Dynamic)
	d.Consumed = parsed.Consumed
	return d, c.maybeAck(), nil
}

func (c *Context) acceptIRDyn(buf []byte) (*Decoded, *feedback.Feedback2, error) {
	if c.state == NC {
		return nil, nil, ErrNoContext
	}
	parsed, err := rohcpkt.ParseIRDyn(buf)
	if err != nil {
		return nil, nil, err
	}
	if !rohcpkt.VerifyIRDyn(buf, parsed) {
		c.recordFailure()
		c.maybeDowngrade()
		return nil, c.maybeNack(feedback.Nack), ErrCrcMismatch
	}
	c.Dynamic = parsed.Dynamic
	c.establishReferences(parsed.Dynamic)
	c.state = FC
	c.recordSuccess()
	d := c.decodedFromDynamic(parsed.Dynamic)
	d.Consumed = parsed.Consumed
	return d, c.maybeAck(), nil
}

func (c *Context) resetDecoders() {
	c.snDecoder = wlsb.NewDecoder(c.params.SNWidth, wlsb.ConstShift(0))
	if c.ProfileID == profile.IP || c.ProfileID == profile.UDP || c.ProfileID == profile.UDPLite {
		c.ipidDec = wlsb.NewDecoder(16, wlsb.ConstShift(-1))
	}
	if c.ProfileID == profile.RTP {
		c.tsShadow = tsscaled.NewEncoder()
	}
}

func (c *Context) establishReferences(d *rohcpkt.DynamicChain) {
	if d.HasRTPDynamic {
		c.snDecoder.SetReference(uint64(d.SN))
	} else {
		c.snDecoder.SetReference(uint64(d.GenericSN))
	}
	if c.ipidDec != nil {
		c.ipidDec.SetReference(uint64(d.IPID))
	}
	if c.tsShadow != nil {
		c.tsShadow.Process(d.TS, d.SN)
	}
}

func (c *Context) decodedFromDynamic(d *rohcpkt.DynamicChain) *Decoded {
	sn := d.SN
	if !d.HasRTPDynamic {
		sn = d.GenericSN
	}
	return &Decoded{ProfileID: c.ProfileID, Static: c.Static, Dynamic: d, SN: sn, TS: d.TS}
}

func (c *Context) acceptShortForm(buf []byte) (*Decoded, *feedback.Feedback2, error) {
	if c.state == NC {
		return nil, nil, ErrNoContext
	}
	if c.state == SC {
		c.recordFailure()
		c.maybeDowngrade()
		return nil, c.maybeNack(feedback.StaticNack), ErrRejectedByState
	}

	kind := dispatchKind(buf, c.ProfileID)
	decoded, crcOK, err := c.tryDecode(buf, kind, 0)
	if err != nil {
		return nil, nil, err
	}
	if !crcOK && c.params.CrcRepair {
		for _, delta := range []uint32{1, 2} {
			repaired, ok, rerr := c.tryDecode(buf, kind, delta)
			if rerr == nil && ok {
				decoded, crcOK = repaired, true
				decoded.Repaired = true
				c.CrcRepairs++
				break
			}
		}
	}
	if !crcOK {
		c.recordFailure()
		if newState, downgraded := c.maybeDowngrade(); downgraded {
			if newState == NC {
				return nil, c.maybeNack(feedback.StaticNack), ErrCrcMismatch
			}
		}
		return nil, c.maybeNack(feedback.Nack), ErrCrcMismatch
	}

	c.recordSuccess()
	c.Dynamic = decoded.Dynamic
	c.snDecoder.SetReference(uint64(decoded.SN))
	if c.ipidDec != nil {
		c.ipidDec.SetReference(uint64(decoded.Dynamic.IPID))
	}
	if c.tsShadow != nil {
		c.tsShadow.Process(decoded.TS, decoded.SN)
	}
	return decoded, c.maybeAck(), nil
}

// tryDecode attempts to decode buf as kind, with snOverrideDelta applied
// as a CRC-repair override: 0 means "trust the W-LSB decode", 1/2 mean
// "assume the true SN is ref+1/ref+2" per §4.6's repair algorithm.
func (c *Context) tryDecode(buf []byte, kind rohcpkt.Kind, snOverrideDelta uint32) (*Decoded, bool, error) {
	ref, _ := c.snDecoder.Reference()

	var snBits uint64
	var snK int
	var crcField uint8
	var marker bool
	var haveTS bool
	var scaledBits uint64
	var scaledK int

	switch kind {
	case rohcpkt.KindUO0:
		p, err := rohcpkt.ParseUO0(buf)
		if err != nil {
			return nil, false, err
		}
		snBits, snK, crcField = uint64(p.SN), 4, p.CRC
	case rohcpkt.KindUO1IP:
		p, err := rohcpkt.ParseUO1IP(buf)
		if err != nil {
			return nil, false, err
		}
		snBits, snK, crcField = uint64(p.SN), 5, p.CRC
	case rohcpkt.KindUO1RTP:
		p, err := rohcpkt.ParseUO1RTP(buf)
		if err != nil {
			return nil, false, err
		}
		snBits, snK, crcField, marker = uint64(p.SN), 4, p.CRC, p.Marker
		scaledBits, scaledK, haveTS = uint64(p.TS), 6, true
	case rohcpkt.KindUOR2:
		p, err := rohcpkt.ParseUOR2(buf)
		if err != nil {
			return nil, false, err
		}
		snBits, snK, crcField = uint64(p.SN), 5, p.CRC
	case rohcpkt.KindUOR2RTP:
		p, err := rohcpkt.ParseUOR2RTP(buf)
		if err != nil {
			return nil, false, err
		}
		snBits, snK, crcField, marker = uint64(p.SN), 5, p.CRC, p.Marker
		scaledBits, scaledK, haveTS = uint64(p.TS), 7, true
	default:
		return nil, false, ErrRejectedByState
	}

	var sn uint64
	var err error
	if snOverrideDelta > 0 {
		sn = ref + uint64(snOverrideDelta)
	} else {
		sn, err = c.snDecoder.Decode(snK, snBits)
		if err != nil {
			return nil, false, err
		}
	}

	dyn := *c.Dynamic
	if dyn.HasRTPDynamic {
		dyn.SN = uint32(sn)
		dyn.Marker = marker
	} else {
		dyn.GenericSN = uint32(sn)
	}

	if c.tsShadow != nil {
		switch {
		case haveTS && c.tsShadow.Stride() > 0:
			scaledRef := uint64(c.tsShadow.Scaled())
			scaled, derr := decodeWithinWindow(scaledRef, scaledK, scaledBits)
			if derr == nil {
				dyn.TS = c.tsShadow.Offset() + uint32(scaled)*c.tsShadow.Stride()
			}
		case !haveTS && c.tsShadow.Stride() > 0:
			// UO-0: TS is fully deducible from the SN delta.
			prevSN := uint64(c.Dynamic.SN)
			delta := sn - prevSN
			newScaled := uint64(c.tsShadow.Scaled()) + delta
			dyn.TS = c.tsShadow.Offset() + uint32(newScaled)*c.tsShadow.Stride()
		default:
			dyn.TS = c.Dynamic.TS
		}
	}

	crcBytes := crcOverChains(c.Static, &dyn, c.ipidDec != nil)
	want := crcField
	var got uint8
	switch rohcpkt.CRCKindFor(kind) {
	case crc.CRC3:
		got = crc.Compute(crc.CRC3, crcBytes, crc.CRC3.Init())
	case crc.CRC7:
		got = crc.Compute(crc.CRC7, crcBytes, crc.CRC7.Init())
	}

	decoded := &Decoded{
		ProfileID: c.ProfileID, Static: c.Static, Dynamic: &dyn,
		SN: uint32(sn), TS: dyn.TS, Consumed: rohcpkt.FixedLen(kind),
	}
	return decoded, got == want, nil
}

// decodeWithinWindow recovers a k-bit LSB value m against a single
// reference (no multi-entry wlsb.Window tracked for TS_SCALED on the
// decompress side, see DESIGN.md), via the same reconstruction the
// compressor uses to size TS_SCALED's transmitted width (bitsForScaled in
// pkg/compressor) so the two sides never disagree about what a given k
// decodes to.
func decodeWithinWindow(ref uint64, k int, m uint64) (uint64, error) {
	return wlsb.NearestWithLSB(ref, k, m), nil
}

// dispatchKind decides which packet shape buf's leading bits describe,
// given the profile in play. See the design note in pkg/rohcpkt/uo.go:
// this module's compressor never emits UO-1-ID/UO-1-TS, so no further
// disambiguation of the `101.....` prefix is required here.
func dispatchKind(buf []byte, p profile.ID) rohcpkt.Kind {
	if len(buf) == 0 {
		return rohcpkt.KindUO0
	}
	switch {
	case buf[0]&0x80 == 0:
		return rohcpkt.KindUO0
	case buf[0]&0xE0 == 0xC0:
		if p == profile.RTP {
			return rohcpkt.KindUOR2RTP
		}
		return rohcpkt.KindUOR2
	default:
		if p == profile.RTP {
			return rohcpkt.KindUO1RTP
		}
		return rohcpkt.KindUO1IP
	}
}

// crcOverChains mirrors the compressor's masking of untracked IP-ID (see
// compressor.crcOverChains): trackIPID is false whenever this context
// has no ipidDec, i.e. RTP- and ESP-profile contexts, which never reconstruct an
// IP-ID for short-form packets.
func crcOverChains(static *rohcpkt.StaticChain, dynamic *rohcpkt.DynamicChain, trackIPID bool) []byte {
	d := *dynamic
	if !trackIPID {
		d.IPID = 0
	}
	return append(static.Marshal(), d.Marshal()...)
}

func (c *Context) recordSuccess() { c.pushFailure(false) }
func (c *Context) recordFailure() { c.pushFailure(true) }

func (c *Context) pushFailure(failed bool) {
	c.failures.PushBack(failed)
	for c.failures.Len() > c.params.N {
		c.failures.PopFront()
	}
}

func (c *Context) failureCount() int {
	n := 0
	for i := 0; i < c.failures.Len(); i++ {
		if c.failures.At(i) {
			n++
		}
	}
	return n
}

// maybeDowngrade applies the k/n failure-rate downgrade policy of §4.6:
// FC->SC on threshold breach, SC->NC on a further breach.
func (c *Context) maybeDowngrade() (State, bool) {
	if c.failureCount() < c.params.K {
		return c.state, false
	}
	switch c.state {
	case FC:
		c.state = SC
	case SC:
		c.state = NC
	}
	c.failures.Clear()
	return c.state, true
}

// maybeAck returns an ACK feedback element in bidirectional modes
// (O/R); nil in unidirectional mode, since U-mode has no reverse
// channel to use (§4.6 "Feedback generation").
func (c *Context) maybeAck() *feedback.Feedback2 {
	if c.Mode == feedback.ModeU {
		return nil
	}
	return &feedback.Feedback2{Ack: feedback.Ack, Mode: c.Mode, SNHigh4: uint8(snOf(c.Dynamic) & 0x0F)}
}

func (c *Context) maybeNack(kind feedback.AckType) *feedback.Feedback2 {
	if c.Mode == feedback.ModeU {
		return nil
	}
	return &feedback.Feedback2{Ack: kind, Mode: c.Mode}
}

func snOf(d *rohcpkt.DynamicChain) uint32 {
	if d == nil {
		return 0
	}
	if d.HasRTPDynamic {
		return d.SN
	}
	return d.GenericSN
}
