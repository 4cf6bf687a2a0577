package rohcpkt

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hmasataka/rohc-go/pkg/profile"
)

func sampleStatic() *StaticChain {
	return &StaticChain{
		Version:           IPv4,
		SrcIP:             net.IPv4(10, 0, 0, 1),
		DstIP:             net.IPv4(10, 0, 0, 2),
		Protocol:          17,
		HasTransportPorts: true,
		SrcPort:           5004,
		DstPort:           5006,
		HasRTP:            true,
		SSRC:              0xCAFEBABE,
		PT:                96,
	}
}

func sampleDynamic() *DynamicChain {
	return &DynamicChain{
		TOS: 0, TTL: 64, DF: true, IPID: 1234,
		HasRTPDynamic: true, Marker: false, SN: 1, TS: 160,
	}
}

func TestBuildParseIRWithDynamic(t *testing.T) {
	buf := BuildIR(profile.RTP, sampleStatic(), sampleDynamic())
	require.True(t, IsIR(buf))
	require.False(t, IsIRDyn(buf))

	parsed, err := ParseIR(buf)
	require.NoError(t, err)
	require.Equal(t, profile.RTP, parsed.ProfileID)
	require.NotNil(t, parsed.Dynamic)
	require.True(t, VerifyIR(buf, parsed))

	require.Equal(t, sampleStatic().SSRC, parsed.Static.SSRC)
	require.Equal(t, sampleDynamic().SN, parsed.Dynamic.SN)
}

func TestBuildParseIRWithoutDynamic(t *testing.T) {
	buf := BuildIR(profile.UDP, sampleStatic(), nil)
	parsed, err := ParseIR(buf)
	require.NoError(t, err)
	require.Nil(t, parsed.Dynamic)
	require.True(t, VerifyIR(buf, parsed))
}

func TestVerifyIRRejectsBitFlip(t *testing.T) {
	buf := BuildIR(profile.RTP, sampleStatic(), sampleDynamic())
	parsed, err := ParseIR(buf)
	require.NoError(t, err)

	flipped := append([]byte(nil), buf...)
	flipped[len(flipped)-1] ^= 0x01
	require.False(t, VerifyIR(flipped, parsed))
}

func TestParseIRRejectsWrongDiscriminator(t *testing.T) {
	buf := BuildIRDyn(profile.RTP, sampleDynamic())
	_, err := ParseIR(buf)
	require.ErrorIs(t, err, ErrNotIR)
}

func TestBuildParseIRDyn(t *testing.T) {
	buf := BuildIRDyn(profile.RTP, sampleDynamic())
	require.True(t, IsIRDyn(buf))
	require.False(t, IsIR(buf))

	parsed, err := ParseIRDyn(buf)
	require.NoError(t, err)
	require.Equal(t, profile.RTP, parsed.ProfileID)
	require.True(t, VerifyIRDyn(buf, parsed))
	require.Equal(t, sampleDynamic().TS, parsed.Dynamic.TS)
}

func TestVerifyIRDynRejectsBitFlip(t *testing.T) {
	buf := BuildIRDyn(profile.RTP, sampleDynamic())
	parsed, err := ParseIRDyn(buf)
	require.NoError(t, err)

	flipped := append([]byte(nil), buf...)
	flipped[len(flipped)-1] ^= 0xFF
	require.False(t, VerifyIRDyn(flipped, parsed))
}

func TestParseIRTruncated(t *testing.T) {
	_, err := ParseIR([]byte{0xFC})
	require.ErrorIs(t, err, ErrTruncated)
}
