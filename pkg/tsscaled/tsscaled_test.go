package tsscaled

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColdStartThenSteadyState(t *testing.T) {
	enc := NewEncoder()

	r := enc.Process(2000, 1000)
	require.True(t, r.SendUnscaledTS)
	require.Equal(t, InitTS, enc.State())

	for i := 0; i < DefaultRepetitions; i++ {
		r = enc.Process(uint32(2000+160*(i+1)), uint32(1001+i))
		if i < DefaultRepetitions-1 {
			require.True(t, r.SendStride)
			require.Equal(t, InitStride, enc.State())
		}
	}
	require.Equal(t, SendScaled, enc.State())
	require.Equal(t, uint32(160), enc.Stride())

	r = enc.Process(uint32(2000+160*(DefaultRepetitions+1)), uint32(1000+DefaultRepetitions+1))
	require.Equal(t, SendScaled, enc.State())
	require.True(t, r.Deducible)
}

func TestClockResyncOnNonMultipleDelta(t *testing.T) {
	enc := NewEncoder()
	enc.Process(1000, 1)
	for i := 0; i < DefaultRepetitions; i++ {
		enc.Process(uint32(1000+160*(i+1)), uint32(2+i))
	}
	require.Equal(t, SendScaled, enc.State())

	r := enc.Process(enc.offsetTSFor(t), 99)
	require.Equal(t, InitStride, enc.State())
	require.True(t, r.SendStride)
}

// offsetTSFor returns a TS value whose delta from the last sample is not a
// multiple of the established stride, forcing resync.
func (e *Encoder) offsetTSFor(t *testing.T) uint32 {
	t.Helper()
	return e.oldTS + e.stride + 1
}

func TestDecoderReconstructsFromStrideAndOffset(t *testing.T) {
	var dec Decoder
	_, ok := dec.Reconstruct(5)
	require.False(t, ok)

	dec.SetStride(160, 40)
	ts, ok := dec.Reconstruct(12)
	require.True(t, ok)
	require.Equal(t, uint32(40+12*160), ts)
}
