/*
【ファイル概要: profile.go】
圧縮プロファイルのレジストリと、受信パケットをプロファイルへ
マッチングする分類器を提供します（C6）。

【設計方針】
ソースの「循環する関数ポインタ構造体」（プロファイル→コンテキスト→
ハンドラ群の相互依存）は、1プロファイルIDにつき1つの型が実装する
タグ付きバリアント `Matcher` インターフェースに置き換える（§9設計ノート）。
teacherの buffer.Factory（SSRCごとのBuffer/RTCPReaderをマップで集中管理し、
OnCloseコールバックで自動的に片付ける設計）を一般化し、CIDごとの
コンテキストを保持する ContextTable[T] として実装する。
*/
package profile

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/hmasataka/rohc-go/pkg/iphdr"
)

// ID is an IANA ROHC profile identifier (§6).
type ID uint16

const (
	Uncompressed ID = 0x0000
	RTP          ID = 0x0001
	UDP          ID = 0x0002
	ESP          ID = 0x0003
	IP           ID = 0x0004
	TCP          ID = 0x0006
	UDPLite      ID = 0x0008
)

func (id ID) String() string {
	switch id {
	case Uncompressed:
		return "UNCOMPRESSED"
	case RTP:
		return "RTP"
	case UDP:
		return "UDP"
	case ESP:
		return "ESP"
	case IP:
		return "IP"
	case TCP:
		return "TCP"
	case UDPLite:
		return "UDP-LITE"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownProfile is returned when no registered profile can classify a
// packet, or when an IR names a profile ID the registry doesn't carry.
var ErrUnknownProfile = errors.New("profile: unknown or unsupported profile")

// FlowKey uniquely identifies a compression flow, keyed per §3: outer
// IP src/dst, next protocol, optional inner IP src/dst, optional
// UDP/RTP ports, optional ESP SPI, optional IPv6 flow label.
type FlowKey struct {
	OuterSrc, OuterDst string // net.IP.String(); comparable, stable key material
	NextProto          int
	InnerSrc, InnerDst string
	SrcPort, DstPort   uint16
	SPI                uint32
	FlowLabel          uint32
	ProfileID          ID
}

// hash returns a stable 64-bit digest usable as a map key or CID hint.
func (k FlowKey) hash() uint64 {
	h := sha256.New()
	_, _ = h.Write([]byte(k.OuterSrc))
	_, _ = h.Write([]byte(k.OuterDst))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(k.NextProto))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(k.InnerSrc))
	_, _ = h.Write([]byte(k.InnerDst))
	binary.BigEndian.PutUint32(buf[:], uint32(k.SrcPort)<<16|uint32(k.DstPort))
	_, _ = h.Write(buf[:])
	binary.BigEndian.PutUint32(buf[:], k.SPI)
	_, _ = h.Write(buf[:])
	binary.BigEndian.PutUint32(buf[:], k.FlowLabel)
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Classified is the result of matching a packet against the registry.
type Classified struct {
	Key            FlowKey
	Profile        ID
	V4             *iphdr.IPv4Info
	V6             *iphdr.IPv6Info
	Chain          []iphdr.Segment
	PayloadOffset  int
}

// Registry holds the set of enabled profiles, tried in registration
// order (more specific profiles, e.g. RTP, should be registered before
// more general fallbacks, e.g. plain IP).
type Registry struct {
	mu       sync.RWMutex
	profiles []Matcher
	rtpPorts map[uint16]bool
}

// Matcher is implemented by one type per IANA profile ID; it decides
// whether a walked packet belongs to its profile and extracts the flow
// key if so.
type Matcher interface {
	ID() ID
	Match(pkt []byte, v4 *iphdr.IPv4Info, v6 *iphdr.IPv6Info, chain []iphdr.Segment, payloadOffset int, rtpPorts map[uint16]bool) (FlowKey, bool)
}

// NewRegistry creates an empty registry; rtpPorts hints which UDP ports
// should be tried against the RTP profile before falling back to plain
// UDP (§6 "rtp_ports").
func NewRegistry(rtpPorts []uint16) *Registry {
	set := make(map[uint16]bool, len(rtpPorts))
	for _, p := range rtpPorts {
		set[p] = true
	}
	return &Registry{rtpPorts: set}
}

// Register adds a profile matcher. Order matters: Classify tries
// matchers in registration order and returns the first hit.
func (r *Registry) Register(m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, m)
}

// Classify walks pkt and tries each registered profile in order.
func (r *Registry) Classify(pkt []byte) (Classified, error) {
	v4, v6, chain, off, err := iphdr.Walk(pkt)
	if err != nil {
		return Classified{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.profiles {
		if key, ok := m.Match(pkt, v4, v6, chain, off, r.rtpPorts); ok {
			key.ProfileID = m.ID()
			return Classified{Key: key, Profile: m.ID(), V4: v4, V6: v6, Chain: chain, PayloadOffset: off}, nil
		}
	}
	return Classified{}, ErrUnknownProfile
}

// ByID returns the registered matcher for id, if any.
func (r *Registry) ByID(id ID) (Matcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.profiles {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}
