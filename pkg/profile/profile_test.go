package profile

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	xipv4 "golang.org/x/net/ipv4"
)

func buildUDPRTP(t *testing.T, srcPort, dstPort uint16, withRTP bool) []byte {
	t.Helper()
	var payload []byte
	if withRTP {
		payload = make([]byte, 12)
		payload[0] = 0x80 // version 2
	} else {
		payload = make([]byte, 4)
	}
	udp := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(len(udp)))
	copy(udp[8:], payload)

	h := &xipv4.Header{
		Version:  xipv4.Version,
		Len:      xipv4.HeaderLen,
		TotalLen: xipv4.HeaderLen + len(udp),
		TTL:      64,
		Protocol: 17,
		Src:      net.IPv4(1, 1, 1, 1),
		Dst:      net.IPv4(2, 2, 2, 2),
	}
	b, err := h.Marshal()
	require.NoError(t, err)
	return append(b, udp...)
}

func newTestRegistry() *Registry {
	r := NewRegistry([]uint16{5004})
	r.Register(RTPMatcher{})
	r.Register(ESPMatcher{})
	r.Register(UDPLiteMatcher{})
	r.Register(UDPMatcher{})
	r.Register(IPMatcher{})
	return r
}

func TestClassifyPrefersRTPOverUDP(t *testing.T) {
	r := newTestRegistry()
	pkt := buildUDPRTP(t, 5004, 6000, true)
	c, err := r.Classify(pkt)
	require.NoError(t, err)
	require.Equal(t, RTP, c.Profile)
}

func TestClassifyFallsBackToUDP(t *testing.T) {
	r := newTestRegistry()
	pkt := buildUDPRTP(t, 7000, 8000, false)
	c, err := r.Classify(pkt)
	require.NoError(t, err)
	require.Equal(t, UDP, c.Profile)
}

func TestContextTableAllocateAndEvict(t *testing.T) {
	tbl := NewContextTable[string](1) // CIDs 0 and 1 only
	cid0, err := tbl.Allocate("a", nil)
	require.NoError(t, err)
	cid1, err := tbl.Allocate("b", nil)
	require.NoError(t, err)
	require.NotEqual(t, cid0, cid1)

	// touch cid1 so cid0 becomes LRU
	_, _ = tbl.Get(cid1)

	var evictedCID int
	var evictedVal string
	cid2, err := tbl.Allocate("c", func(cid int, old string) {
		evictedCID, evictedVal = cid, old
	})
	require.NoError(t, err)
	require.Equal(t, cid0, evictedCID)
	require.Equal(t, "a", evictedVal)
	require.Equal(t, cid0, cid2)
}

func TestContextTablePutRejectsOutOfRange(t *testing.T) {
	tbl := NewContextTable[int](3)
	require.ErrorIs(t, tbl.Put(4, 1), ErrTableFull)
	require.NoError(t, tbl.Put(3, 1))
}
