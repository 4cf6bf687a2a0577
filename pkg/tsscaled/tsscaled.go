/*
【ファイル概要: tsscaled.go】
RTPタイムスタンプのScaled-TS符号化器を提供します（§4.4、RFC 3095 §4.5.3）。

【状態遷移】（一方向、一つの後退辺を持つ）
  INIT_TS -> INIT_STRIDE -> SEND_SCALED
                 ^---------------|  (ストライド不一致/クロック再同期で後退)

【各状態の意味】
  INIT_TS:     TS_STRIDEが未確立。非圧縮のTSをそのまま送る。
  INIT_STRIDE: 候補ストライドを計算し、L回（oa_repetitions、既定3）連続して
               非圧縮のTS_STRIDEを送信する必要がある。ストライドが変化したら
               カウンタをリセットする。
  SEND_SCALED: TS_SCALEDの下位ビットのみをW-LSBで送る。

【推測可能性 (deducibility)】
TS_SCALEDの変化量がSNの変化量と一致する場合、デコンプレッサはSNだけから
TSを導出できる。この場合UO-0はTSビットを完全に省略できる。
*/
package tsscaled

// State is one of the three Scaled-TS encoder states.
type State int

const (
	InitTS State = iota
	InitStride
	SendScaled
)

func (s State) String() string {
	switch s {
	case InitTS:
		return "INIT_TS"
	case InitStride:
		return "INIT_STRIDE"
	case SendScaled:
		return "SEND_SCALED"
	default:
		return "UNKNOWN"
	}
}

// DefaultRepetitions is L, the number of times TS_STRIDE must be sent
// uncompressed before the encoder may enter SEND_SCALED.
const DefaultRepetitions = 3

// Encoder tracks TS_STRIDE/TS_OFFSET/TS_SCALED state for one RTP flow.
type Encoder struct {
	Repetitions int // L

	state State

	haveOldTS  bool
	oldTS      uint32
	oldSN      uint32
	haveOldSN  bool
	stride     uint32
	strideReps int

	scaled uint32 // current TS_SCALED
	offset uint32 // current TS_OFFSET
}

// NewEncoder creates a Scaled-TS encoder with the default repetition
// count.
func NewEncoder() *Encoder {
	return &Encoder{Repetitions: DefaultRepetitions}
}

// State returns the encoder's current state.
func (e *Encoder) State() State {
	return e.state
}

// Result describes what a single Process call decided to transmit.
type Result struct {
	// SendUnscaledTS is true when the raw, uncompressed TS must be sent
	// (INIT_TS, or a stride jump detected in SEND_SCALED).
	SendUnscaledTS bool
	// SendStride is true when TS_STRIDE must additionally be carried
	// uncompressed (INIT_STRIDE).
	SendStride bool
	Stride     uint32
	// Scaled is TS_SCALED, valid once in SEND_SCALED.
	Scaled uint32
	// Deducible is true when TS is fully derivable from the SN delta
	// alone, letting UO-0 omit TS bits entirely.
	Deducible bool
}

// Process feeds a new (ts, sn) sample and returns what must be transmitted
// plus updates internal state. SDVL capacity is 29 bits (§4.1); a delta
// that does not fit forces INIT_TS.
func (e *Encoder) Process(ts uint32, sn uint32) Result {
	defer func() {
		e.haveOldTS, e.oldTS = true, ts
		e.haveOldSN, e.oldSN = true, sn
	}()

	if !e.haveOldTS {
		e.state = InitTS
		return Result{SendUnscaledTS: true}
	}

	delta := int64(ts) - int64(e.oldTS)
	if delta < 0 {
		delta += 1 << 32 // wraparound, §S5
	}

	if delta == 0 || delta > (1<<29)-1 {
		e.state = InitTS
		e.strideReps = 0
		return Result{SendUnscaledTS: true}
	}

	switch e.state {
	case InitTS, InitStride:
		candidate := uint32(delta)
		if e.state == InitTS || candidate != e.stride {
			e.stride = candidate
			e.strideReps = 0
		}
		e.state = InitStride
		e.recomputeScaled(ts)
		e.strideReps++
		if e.strideReps >= e.Repetitions {
			e.state = SendScaled
			return e.sendScaledResult(sn)
		}
		return Result{SendStride: true, Stride: e.stride}

	case SendScaled:
		if e.stride == 0 || uint32(delta)%e.stride != 0 {
			// Delta isn't a multiple of stride: clock resync.
			e.state = InitStride
			e.stride = uint32(delta)
			e.strideReps = 1
			e.recomputeScaled(ts)
			return Result{SendStride: true, Stride: e.stride}
		}
		prevScaled := e.scaled
		e.recomputeScaled(ts)
		if e.haveOldSN && sn > e.oldSN {
			expectedScaledDelta := e.scaled - prevScaled
			snDelta := sn - e.oldSN
			if expectedScaledDelta != snDelta {
				// Stride unchanged but TS jumped in a way SN doesn't
				// explain (e.g. an RTP TS jump): retransmit all TS bits
				// for robustness.
				return Result{SendUnscaledTS: true}
			}
		}
		return e.sendScaledResult(sn)
	}
	return Result{SendUnscaledTS: true}
}

func (e *Encoder) recomputeScaled(ts uint32) {
	if e.stride == 0 {
		e.scaled = 0
		e.offset = ts
		return
	}
	e.offset = ts % e.stride
	e.scaled = (ts - e.offset) / e.stride
}

func (e *Encoder) sendScaledResult(sn uint32) Result {
	deducible := false
	if e.haveOldSN && sn > e.oldSN {
		deducible = (e.scaled - e.priorScaled()) == (sn - e.oldSN)
	}
	return Result{Scaled: e.scaled, Deducible: deducible}
}

// priorScaled recomputes TS_SCALED for the previous sample for the
// deducibility comparison; cheap since stride is already known.
func (e *Encoder) priorScaled() uint32 {
	if e.stride == 0 {
		return 0
	}
	return (e.oldTS - e.oldTS%e.stride) / e.stride
}

// Stride reports the currently established TS_STRIDE (0 if none yet).
func (e *Encoder) Stride() uint32 { return e.stride }

// Offset reports the currently established TS_OFFSET.
func (e *Encoder) Offset() uint32 { return e.offset }

// Scaled reports TS_SCALED as of the last Process call.
func (e *Encoder) Scaled() uint32 { return e.scaled }

// Decoder reconstructs TS from TS_SCALED plus the known stride/offset.
type Decoder struct {
	stride uint32
	offset uint32
	valid  bool
}

// SetStride establishes TS_STRIDE/TS_OFFSET, e.g. after receiving them
// uncompressed during INIT_STRIDE.
func (d *Decoder) SetStride(stride, offset uint32) {
	d.stride = stride
	d.offset = offset
	d.valid = true
}

// Reconstruct computes ts = offset + scaled*stride.
func (d *Decoder) Reconstruct(scaled uint32) (uint32, bool) {
	if !d.valid {
		return 0, false
	}
	return d.offset + scaled*d.stride, true
}
