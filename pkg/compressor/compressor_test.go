package compressor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hmasataka/rohc-go/pkg/feedback"
	"github.com/hmasataka/rohc-go/pkg/profile"
	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
)

func newRTPStatic() *rohcpkt.StaticChain {
	return &rohcpkt.StaticChain{
		Version:           rohcpkt.IPv4,
		SrcIP:             net.IPv4(10, 0, 0, 1),
		DstIP:             net.IPv4(10, 0, 0, 2),
		Protocol:          17,
		HasTransportPorts: true,
		SrcPort:           5004,
		DstPort:           5006,
		HasRTP:            true,
		SSRC:              0xC0FFEE,
		PT:                96,
	}
}

func sampleAt(sn uint32, ts uint32) Sample {
	return Sample{
		Dynamic: &rohcpkt.DynamicChain{
			TTL: 64, DF: true, IPID: uint16(sn),
			HasRTPDynamic: true, SN: sn, TS: ts,
		},
		SN:   sn,
		IPID: uint16(sn),
		TS:   ts,
	}
}

func TestCompressorColdStartReachesSO(t *testing.T) {
	ctx := NewContext(3, profile.RTP, newRTPStatic(), DefaultParams())

	var states []State
	for i := 0; i < 10; i++ {
		sn := uint32(1000 + i)
		ts := uint32(2000 + i*160)
		buf, err := ctx.Compress(sampleAt(sn, ts), uint64(i), 0)
		require.NoError(t, err)
		require.NotEmpty(t, buf)
		states = append(states, ctx.State())
	}
	require.Equal(t, IR, states[0])
	require.Equal(t, SO, states[len(states)-1])
}

func TestCompressorFirstPacketIsIR(t *testing.T) {
	ctx := NewContext(0, profile.UDP, newRTPStatic(), DefaultParams())
	buf, err := ctx.Compress(sampleAt(1, 0), 0, 0)
	require.NoError(t, err)
	require.True(t, rohcpkt.IsIR(buf))
	require.Equal(t, IR, ctx.State())
}

func TestCompressorStaticNackForcesIR(t *testing.T) {
	ctx := NewContext(1, profile.RTP, newRTPStatic(), DefaultParams())
	for i := 0; i < 8; i++ {
		_, err := ctx.Compress(sampleAt(uint32(1+i), uint32(i*160)), uint64(i), 0)
		require.NoError(t, err)
	}
	require.Equal(t, SO, ctx.State())

	ctx.HandleFeedback(&feedback.Feedback2{Ack: feedback.StaticNack})
	buf, err := ctx.Compress(sampleAt(9, 1280), 8, 0)
	require.NoError(t, err)
	require.True(t, rohcpkt.IsIR(buf))
}

func TestCompressorNackForcesFO(t *testing.T) {
	ctx := NewContext(2, profile.RTP, newRTPStatic(), DefaultParams())
	for i := 0; i < 8; i++ {
		_, err := ctx.Compress(sampleAt(uint32(1+i), uint32(i*160)), uint64(i), 0)
		require.NoError(t, err)
	}
	require.Equal(t, SO, ctx.State())

	ctx.HandleFeedback(&feedback.Feedback2{Ack: feedback.Nack})
	require.Equal(t, FO, ctx.State())
}

func TestCompressorPeriodicIRRefresh(t *testing.T) {
	params := DefaultParams()
	params.IRTimeoutPackets = 5
	ctx := NewContext(4, profile.UDP, newRTPStatic(), params)

	var sawSecondIR bool
	for i := 0; i < 10; i++ {
		buf, err := ctx.Compress(sampleAt(uint32(1+i), 0), uint64(i), 0)
		require.NoError(t, err)
		if i >= params.L && rohcpkt.IsIR(buf) { // past the cold-start IRs
			sawSecondIR = true
		}
	}
	require.True(t, sawSecondIR)
}
