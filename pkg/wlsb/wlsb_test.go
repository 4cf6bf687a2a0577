package wlsb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripSN(t *testing.T) {
	enc := NewWindow(16, 4, ConstShift(0))
	dec := NewDecoder(16, ConstShift(0))

	sn := uint64(1000)
	enc.Add(sn, sn)
	dec.SetReference(sn)

	for i := 1; i <= 10; i++ {
		sn++
		k, bits := enc.Encode(sn)
		require.LessOrEqual(t, k, 16)

		got, err := dec.Decode(k, bits)
		require.NoError(t, err)
		require.Equal(t, sn, got)

		enc.Add(sn, sn)
		dec.SetReference(got)
	}
}

func TestMinKGrowsWithWindowSpread(t *testing.T) {
	enc := NewWindow(16, 4, ConstShift(0))
	enc.Add(100, 100)
	k1 := enc.MinK(101)

	enc.Add(90, 101) // a much older-looking reference widens the required window
	k2 := enc.MinK(101)

	require.GreaterOrEqual(t, k2, k1)
}

func TestDecodeRequiresReference(t *testing.T) {
	dec := NewDecoder(16, ConstShift(0))
	_, err := dec.Decode(4, 0x3)
	require.Error(t, err)
}

func TestDecodeZeroKIsAmbiguous(t *testing.T) {
	dec := NewDecoder(16, ConstShift(0))
	dec.SetReference(5)
	_, err := dec.Decode(0, 0)
	require.ErrorIs(t, err, ErrAmbiguous)
}

func TestWraparound(t *testing.T) {
	enc := NewWindow(8, 4, ConstShift(0))
	dec := NewDecoder(8, ConstShift(0))

	enc.Add(250, 1)
	dec.SetReference(250)

	// value wraps past 255 back to low numbers mod 2^8
	v := uint64(4) // 250 + 10 mod 256 = 4
	k, bits := enc.Encode(v)
	got, err := dec.Decode(k, bits)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestRTPTimestampShift(t *testing.T) {
	require.Equal(t, int64(0), RTPTimestampShift(0))
	require.Equal(t, int64(0), RTPTimestampShift(2)) // 2^0-1 = 0
	require.Equal(t, int64(1), RTPTimestampShift(3))  // 2^1-1 = 1
	require.Equal(t, int64(3), RTPTimestampShift(4))  // 2^2-1 = 3
}
