package crc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0xAA}
	for _, kind := range []Kind{CRC2, CRC3, CRC6, CRC7, CRC8} {
		a := Compute(kind, data, kind.Init())
		b := Compute(kind, data, kind.Init())
		require.Equal(t, a, b, "kind %v must be deterministic", kind)
		require.Less(t, int(a), 1<<uint(kind.Width()))
	}
}

func TestComputeSensitiveToSingleBitFlip(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30}
	flipped := []byte{0x10, 0x20, 0x31}
	for _, kind := range []Kind{CRC3, CRC7, CRC8} {
		a := Compute(kind, data, kind.Init())
		b := Compute(kind, flipped, kind.Init())
		require.NotEqual(t, a, b, "kind %v should detect a single flipped bit", kind)
	}
}

func TestComputeEmptyInput(t *testing.T) {
	for _, kind := range []Kind{CRC2, CRC3, CRC6, CRC7, CRC8} {
		got := Compute(kind, nil, kind.Init())
		require.Equal(t, kind.Init(), got)
	}
}

func TestWidthAndInit(t *testing.T) {
	require.Equal(t, 3, CRC3.Width())
	require.Equal(t, uint8(0x7), CRC3.Init())
	require.Equal(t, 7, CRC7.Width())
	require.Equal(t, uint8(0x7F), CRC7.Init())
	require.Equal(t, 8, CRC8.Width())
	require.Equal(t, uint8(0xFF), CRC8.Init())
}
