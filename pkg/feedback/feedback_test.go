package feedback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedback1RoundTrip(t *testing.T) {
	buf := Feedback1(0x1234)
	sn, err := ParseFeedback1(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x34), sn)
}

func TestFeedback2RoundTripWithCRC(t *testing.T) {
	f := &Feedback2{Ack: Nack, Mode: ModeO, SNHigh4: 0x5}
	buf := f.Build()
	require.True(t, Verify(buf))

	parsed, err := ParseFeedback2(buf)
	require.NoError(t, err)
	require.Equal(t, Nack, parsed.Ack)
	require.Equal(t, ModeO, parsed.Mode)
	require.Equal(t, uint8(0x5), parsed.SNHigh4)
}

func TestFeedback2VerifyRejectsBitFlip(t *testing.T) {
	f := &Feedback2{Ack: Ack, Mode: ModeR, SNHigh4: 0x3}
	buf := f.Build()
	buf[0] ^= 0x01
	require.False(t, Verify(buf))
}

func TestFeedback2SNChaining(t *testing.T) {
	f := &Feedback2{
		Ack: Ack, Mode: ModeO, SNHigh4: 0xA,
		Options: []Option{{Type: OptSN, Data: []byte{0x01, 0x02, 0x03}}},
	}
	buf := f.Build()
	parsed, err := ParseFeedback2(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xA010203), SNFromOptions(parsed))
}

func TestPendingFIFODropsNewestWhenFull(t *testing.T) {
	q := NewPendingFIFO(2)
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3}) // dropped
	require.Equal(t, 2, q.Len())
	require.Equal(t, uint64(1), q.Dropped())

	require.Equal(t, []byte{1}, q.Pop())
	require.Equal(t, []byte{2}, q.Pop())
	require.Nil(t, q.Pop())
}
