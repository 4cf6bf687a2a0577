package rohcpkt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUO0RoundTrip(t *testing.T) {
	buf := BuildUO0(UO0{SN: 0x0B, CRC: 0x05})
	require.Len(t, buf, 1)
	p, err := ParseUO0(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x0B), p.SN)
	require.Equal(t, uint8(0x05), p.CRC)
}

func TestUO0RejectsUO1Buffer(t *testing.T) {
	buf := BuildUO1IP(UO1IP{IPID: 1, SN: 1, CRC: 1})
	_, err := ParseUO0(buf)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestUO1IPRoundTrip(t *testing.T) {
	buf := BuildUO1IP(UO1IP{IPID: 0x2A, SN: 0x13, CRC: 0x06})
	require.Len(t, buf, 2)
	p, err := ParseUO1IP(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x2A), p.IPID)
	require.Equal(t, uint8(0x13), p.SN)
	require.Equal(t, uint8(0x06), p.CRC)
}

func TestUO1RTPRoundTrip(t *testing.T) {
	buf := BuildUO1RTP(UO1RTP{TS: 0x1F, Marker: true, SN: 0x09, CRC: 0x03})
	p, err := ParseUO1RTP(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x1F), p.TS)
	require.True(t, p.Marker)
	require.Equal(t, uint8(0x09), p.SN)
	require.Equal(t, uint8(0x03), p.CRC)
}

func TestUO1IDRoundTripWithExtension(t *testing.T) {
	ext := []byte{0xAB}
	buf := BuildUO1ID(UO1ID{IPID: 0x11, Ext: true, Marker: true, SN: 0x05, CRC: 0x02, Extension: ext})
	p, err := ParseUO1ID(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x11), p.IPID)
	require.True(t, p.Ext)
	require.True(t, p.Marker)
	require.Equal(t, uint8(0x05), p.SN)
	require.Equal(t, ext, p.Extension)
}

func TestUO1TSRoundTripNoExtension(t *testing.T) {
	buf := BuildUO1TS(UO1TS{TS: 0x0D, Marker: false, SN: 0x03, CRC: 0x01})
	p, err := ParseUO1TS(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x0D), p.TS)
	require.False(t, p.Ext)
	require.Empty(t, p.Extension)
}

func TestUOR2RoundTrip(t *testing.T) {
	buf := BuildUOR2(UOR2{SN: 0x17, CRC: 0x55})
	p, err := ParseUOR2(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x17), p.SN)
	require.Equal(t, uint8(0x55), p.CRC)
}

func TestUOR2RTPRoundTrip(t *testing.T) {
	buf := BuildUOR2RTP(UOR2RTP{SN: 0x09, TS: 0x6A, Marker: true, CRC: 0x41})
	require.Len(t, buf, 3)
	p, err := ParseUOR2RTP(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0x09), p.SN)
	require.Equal(t, uint8(0x6A), p.TS)
	require.True(t, p.Marker)
	require.Equal(t, uint8(0x41), p.CRC)
}

func TestUOR2RejectsWrongKind(t *testing.T) {
	buf := BuildUO0(UO0{SN: 1, CRC: 1})
	_, err := ParseUOR2(buf)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestCRCKindForMatchesTable(t *testing.T) {
	require.Equal(t, crcKindFor(KindUO0), CRCKindFor(KindUO0))
	require.NotEqual(t, CRCKindFor(KindUO0), CRCKindFor(KindUOR2))
}
