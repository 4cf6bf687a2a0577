package iphdr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	xipv4 "golang.org/x/net/ipv4"
)

func buildIPv4(t *testing.T, proto int, payloadLen int) []byte {
	t.Helper()
	h := &xipv4.Header{
		Version:  xipv4.Version,
		Len:      xipv4.HeaderLen,
		TotalLen: xipv4.HeaderLen + payloadLen,
		TTL:      64,
		Protocol: proto,
		Src:      net.IPv4(10, 0, 0, 1),
		Dst:      net.IPv4(10, 0, 0, 2),
	}
	b, err := h.Marshal()
	require.NoError(t, err)
	return append(b, make([]byte, payloadLen)...)
}

func TestWalkIPv4UDP(t *testing.T) {
	pkt := buildIPv4(t, ProtoUDP, 8)
	v4, v6, chain, off, err := Walk(pkt)
	require.NoError(t, err)
	require.Nil(t, v6)
	require.NotNil(t, v4)
	require.Equal(t, "10.0.0.1", v4.Src.String())
	require.Equal(t, ProtoUDP, v4.Protocol)
	require.Len(t, chain, 1)
	require.Equal(t, xipv4.HeaderLen, off)
}

func buildIPv6(nextHeader byte, payload []byte) []byte {
	pkt := make([]byte, 40+len(payload))
	pkt[0] = 0x60
	pkt[6] = nextHeader
	pkt[7] = 64
	copy(pkt[8:24], net.ParseIP("2001:db8::1").To16())
	copy(pkt[24:40], net.ParseIP("2001:db8::2").To16())
	pkt[4] = byte(len(payload) >> 8)
	pkt[5] = byte(len(payload))
	copy(pkt[40:], payload)
	return pkt
}

func TestWalkIPv6Direct(t *testing.T) {
	pkt := buildIPv6(byte(ProtoUDP), make([]byte, 8))
	v4, v6, chain, off, err := Walk(pkt)
	require.NoError(t, err)
	require.Nil(t, v4)
	require.NotNil(t, v6)
	require.Equal(t, ProtoUDP, v6.NextHeader)
	require.Equal(t, 40, off)
	require.Equal(t, ProtoUDP, chain[len(chain)-1].Proto)
}

func TestWalkIPv6HopByHopThenUDP(t *testing.T) {
	hbh := make([]byte, 8)
	hbh[0] = byte(ProtoUDP) // next header after hop-by-hop
	hbh[1] = 0              // ext len words -> (0+1)*8 = 8 bytes
	payload := append(hbh, make([]byte, 8)...)
	pkt := buildIPv6(byte(ProtoHopByHop), payload)

	_, v6, chain, off, err := Walk(pkt)
	require.NoError(t, err)
	require.Equal(t, ProtoHopByHop, v6.NextHeader)
	require.Len(t, chain, 3) // ipv6 fixed, hop-by-hop, udp terminal
	require.Equal(t, 48, off)
}

func TestWalkTruncatedIPv6Rejected(t *testing.T) {
	pkt := buildIPv6(byte(ProtoHopByHop), nil) // claims hop-by-hop but no bytes for it
	_, _, _, _, err := Walk(pkt)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestWalkBadVersion(t *testing.T) {
	_, _, _, _, err := Walk([]byte{0x00})
	require.ErrorIs(t, err, ErrBadVersion)
}
