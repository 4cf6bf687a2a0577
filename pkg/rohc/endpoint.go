/*
【ファイル概要: endpoint.go】
公開API: Endpoint はプロファイルレジストリ・CIDごとの圧縮/復元
コンテキストテーブル・保留フィードバックFIFOを束ねる（C6、§3、§5）。

teacherの sfu.go がSFU全体の設定・セッション管理・ロガーを1つの構造体に
まとめる流儀を踏襲し、ここではROHCエンドポイント1つ分の状態を
Endpointにまとめる。パッケージレベルロガーも teacherの
`var Logger logr.Logger = logr.Discard()` と同じパターンを使う。
*/
package rohc

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/hmasataka/rohc-go/pkg/compressor"
	"github.com/hmasataka/rohc-go/pkg/decompressor"
	"github.com/hmasataka/rohc-go/pkg/feedback"
	"github.com/hmasataka/rohc-go/pkg/profile"
	"github.com/hmasataka/rohc-go/pkg/rohcpkt"
)

// Logger is the package-wide logr.Logger sink; callers wire in a real
// implementation (e.g. logr/zapr) the same way teacher callers replace
// sfu.Logger.
var Logger logr.Logger = logr.Discard()

// Endpoint is one side of a ROHC compressor/decompressor pair bound to a
// single link (§5 "one Endpoint owns one feedback buffer").
type Endpoint struct {
	cfg     Config
	cidKind profile.CIDKind
	mode    feedback.Mode

	registry *profile.Registry

	compCtx   *profile.ContextTable[*compressor.Context]
	decompCtx *profile.ContextTable[*decompressor.Context]

	pending *feedback.PendingFIFO

	mu          sync.Mutex
	flowToCID   map[profile.FlowKey]int
	syntheticSN map[int]uint32 // per-CID synthetic SN for profiles with no wire SN
	reasm       *reassembler
}

// NewEndpoint builds an Endpoint wired with the standard profile set:
// RTP and ESP and UDP-Lite are tried before the generic UDP and IP
// fallbacks (§6 "rtp_ports").
func NewEndpoint(cfg Config) *Endpoint {
	registry := profile.NewRegistry(cfg.RTPPorts)
	registry.Register(profile.RTPMatcher{})
	registry.Register(profile.ESPMatcher{})
	registry.Register(profile.UDPLiteMatcher{})
	registry.Register(profile.UDPMatcher{})
	registry.Register(profile.IPMatcher{})

	cidKind := profile.SmallCID
	if cfg.CIDType == "large" {
		cidKind = profile.LargeCID
	}

	maxCID := profile.MaxCIDFor(cidKind, cfg.MaxCID)

	return &Endpoint{
		cfg:         cfg,
		cidKind:     cidKind,
		mode:        parseMode(cfg.Mode),
		registry:    registry,
		compCtx:     profile.NewContextTable[*compressor.Context](maxCID),
		decompCtx:   profile.NewContextTable[*decompressor.Context](maxCID),
		pending:     feedback.NewPendingFIFO(cfg.PendingFeedbackCap),
		flowToCID:   make(map[profile.FlowKey]int),
		syntheticSN: make(map[int]uint32),
	}
}

func parseMode(m string) feedback.Mode {
	switch m {
	case "O":
		return feedback.ModeO
	case "R":
		return feedback.ModeR
	default:
		return feedback.ModeU
	}
}

func (e *Endpoint) compressorParams() compressor.Params {
	p := compressor.DefaultParams()
	if e.cfg.WLSBWindowWidth > 0 {
		p.WindowWidth = e.cfg.WLSBWindowWidth
	}
	p.IRTimeoutPackets = e.cfg.IRTimeoutPackets
	p.IRTimeoutFOPackets = e.cfg.IRTimeoutFOPackets
	p.IRTimeoutSeconds = e.cfg.IRTimeoutSeconds
	return p
}

func (e *Endpoint) decompressorParams() decompressor.Params {
	p := decompressor.DefaultParams()
	p.CrcRepair = e.cfg.Features.CrcRepair
	if e.cfg.K > 0 {
		p.K = e.cfg.K
	}
	if e.cfg.N > 0 {
		p.N = e.cfg.N
	}
	if e.cfg.WLSBWindowWidth > 0 {
		p.Window = e.cfg.WLSBWindowWidth
	}
	return p
}

// Compress classifies pkt (a full IP packet), routes it through its
// flow's compressor context, and returns the ROHC-framed bytes: CID
// framing, piggybacked feedback (if any is pending for the reverse
// channel), compressed header, and the untouched application payload.
func (e *Endpoint) Compress(pkt []byte, packetCounter uint64, wallClockSeconds int64) ([]byte, error) {
	classified, err := e.registry.Classify(pkt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownProfile, err)
	}

	tf, err := extractTransport(classified.Profile, pkt, classified.PayloadOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	cid, ctx, err := e.compressorContextFor(classified, tf)
	if err != nil {
		return nil, err
	}

	sample := e.buildSample(classified, tf, cid)

	header, err := ctx.Compress(sample, packetCounter, wallClockSeconds)
	if err != nil {
		return nil, err
	}

	framed, err := addCID(e.cidKind, cid, header)
	if err != nil {
		return nil, err
	}

	feedbackElems := e.pending.DrainAll()
	out := prependPiggyback(feedbackElems, framed)
	out = append(out, pkt[tf.payloadOffset:]...)
	return out, nil
}

// compressorContextFor returns the existing compressor context for
// classified.Key, allocating a new one (and a CID) on first sight of the
// flow (§3 CID allocation, §7 TransientResource on table exhaustion).
func (e *Endpoint) compressorContextFor(classified profile.Classified, tf transportFields) (int, *compressor.Context, error) {
	e.mu.Lock()
	cid, ok := e.flowToCID[classified.Key]
	e.mu.Unlock()
	if ok {
		ctx, ok := e.compCtx.Get(cid)
		if ok {
			return cid, ctx, nil
		}
	}

	static := buildStaticChain(classified, tf)
	ctx := compressor.NewContext(0, classified.Profile, static, e.compressorParams())
	newCID, err := e.compCtx.Allocate(ctx, func(evictedCID int, _ *compressor.Context) {
		e.mu.Lock()
		for k, v := range e.flowToCID {
			if v == evictedCID {
				delete(e.flowToCID, k)
			}
		}
		e.mu.Unlock()
	})
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrTransientResource, err)
	}
	ctx.CID = newCID

	e.mu.Lock()
	e.flowToCID[classified.Key] = newCID
	e.mu.Unlock()
	return newCID, ctx, nil
}

// buildSample gathers one packet's dynamic fields into a
// compressor.Sample, assigning a synthetic monotonic sequence number for
// profiles whose wire format carries none (plain IP/UDP/UDP-Lite; see
// DESIGN.md).
func (e *Endpoint) buildSample(classified profile.Classified, tf transportFields, cid int) compressor.Sample {
	dyn := &rohcpkt.DynamicChain{}
	var sn uint32

	if classified.V4 != nil {
		dyn.TOS = uint8(classified.V4.TOS)
		dyn.TTL = uint8(classified.V4.TTL)
		dyn.DF = classified.V4.DF
		dyn.IPID = uint16(classified.V4.ID)
	} else if classified.V6 != nil {
		dyn.TOS = uint8(classified.V6.TrafficClass)
		dyn.TTL = uint8(classified.V6.HopLimit)
	}

	switch classified.Profile {
	case profile.RTP:
		dyn.HasUDPChecksum = true
		dyn.UDPChecksum = tf.udpChecksum
		dyn.HasRTPDynamic = true
		dyn.Marker = tf.marker
		dyn.SN = uint32(tf.rtpSN)
		dyn.TS = tf.rtpTS
		sn = dyn.SN
	case profile.UDP, profile.UDPLite:
		dyn.HasUDPChecksum = true
		dyn.UDPChecksum = tf.udpChecksum
		sn = e.nextSyntheticSN(cid)
		dyn.GenericSN = sn
	case profile.ESP:
		sn = tf.espSN
		dyn.GenericSN = sn
	default: // profile.IP
		sn = e.nextSyntheticSN(cid)
		dyn.GenericSN = sn
	}

	return compressor.Sample{Dynamic: dyn, SN: sn, IPID: dyn.IPID, TS: dyn.TS}
}

func (e *Endpoint) nextSyntheticSN(cid int) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.syntheticSN[cid]
	e.syntheticSN[cid] = n + 1
	return n
}

// buildStaticChain freezes the fields that never change for the
// lifetime of classified.Key's flow (§3).
func buildStaticChain(classified profile.Classified, tf transportFields) *rohcpkt.StaticChain {
	s := &rohcpkt.StaticChain{Protocol: uint8(classified.Key.NextProto)}
	if classified.V4 != nil {
		s.Version = rohcpkt.IPv4
		s.SrcIP = classified.V4.Src
		s.DstIP = classified.V4.Dst
	} else {
		s.Version = rohcpkt.IPv6
		s.SrcIP = classified.V6.Src
		s.DstIP = classified.V6.Dst
		s.FlowLabel = uint32(classified.V6.FlowLabel) & 0xFFFFF
	}
	if tf.hasPorts {
		s.HasTransportPorts = true
		s.SrcPort = tf.srcPort
		s.DstPort = tf.dstPort
	}
	if tf.hasRTP {
		s.HasRTP = true
		s.SSRC = tf.ssrc
		s.PT = tf.pt
	}
	if tf.hasSPI {
		s.HasSPI = true
		s.SPI = tf.spi
	}
	return s
}

// Decompress reverses Compress: it strips any piggybacked feedback
// (forwarding it to this flow's compressor context, since a bidirectional
// endpoint's compressor and decompressor share the same CID for a flow),
// decodes the ROHC header, and reconstructs the original wire packet.
func (e *Endpoint) Decompress(buf []byte) ([]byte, error) {
	elems, rest, err := splitPiggyback(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	cid, header, err := stripCID(e.cidKind, rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, elem := range elems {
		e.applyIncomingFeedback(cid, elem)
	}

	ctx, ok := e.decompCtx.Get(cid)
	if !ok {
		if !rohcpkt.IsIR(header) {
			return nil, ErrNoContext
		}
		ctx = decompressor.NewContext(cid, e.decompressorParams())
		ctx.Mode = e.mode
		if err := e.decompCtx.Put(cid, ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientResource, err)
		}
	}

	decoded, fb, err := ctx.Decompress(header)
	if err != nil {
		if err == decompressor.ErrCrcMismatch {
			return nil, ErrCrcMismatch
		}
		if err == decompressor.ErrNoContext {
			return nil, ErrNoContext
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fb != nil {
		e.pending.Push(fb.Build())
	}

	if decoded.Consumed > len(header) {
		return nil, ErrMalformed
	}
	payload := header[decoded.Consumed:]
	return e.rebuildPacket(decoded, payload)
}

// CompressSegmented is Compress followed by MRRU segmentation (§6): when
// cfg.MRRU is 0 or the output already fits, it returns a single-element
// slice.
func (e *Endpoint) CompressSegmented(pkt []byte, packetCounter uint64, wallClockSeconds int64) ([][]byte, error) {
	out, err := e.Compress(pkt, packetCounter, wallClockSeconds)
	if err != nil {
		return nil, err
	}
	return Segment(out, e.cfg.MRRU)
}

func (e *Endpoint) applyIncomingFeedback(cid int, elem []byte) {
	fb, err := feedback.ParseFeedback2(elem)
	if err != nil {
		return
	}
	if cctx, ok := e.compCtx.Get(cid); ok {
		cctx.HandleFeedback(fb)
	}
}

// rebuildPacket serializes the reconstructed static/dynamic header
// fields plus the trailing application payload back into wire bytes.
func (e *Endpoint) rebuildPacket(d *decompressor.Decoded, payload []byte) ([]byte, error) {
	switch d.ProfileID {
	case profile.RTP:
		rtpBytes, err := marshalRTP(d.Static.SSRC, d.Static.PT, d.Dynamic.Marker, uint16(d.SN), d.TS, payload)
		if err != nil {
			return nil, err
		}
		udp := buildUDPHeader(d.Static.SrcPort, d.Static.DstPort, d.Dynamic.UDPChecksum, len(rtpBytes))
		rest := append(udp, rtpBytes...)
		return prependIPHeader(d, rest), nil
	case profile.UDP, profile.UDPLite:
		udp := buildUDPHeader(d.Static.SrcPort, d.Static.DstPort, d.Dynamic.UDPChecksum, len(payload))
		rest := append(udp, payload...)
		return prependIPHeader(d, rest), nil
	case profile.ESP:
		esp := buildESPHeader(d.Static.SPI, d.Dynamic.GenericSN)
		rest := append(esp, payload...)
		return prependIPHeader(d, rest), nil
	default: // profile.IP
		return prependIPHeader(d, payload), nil
	}
}

func prependIPHeader(d *decompressor.Decoded, rest []byte) []byte {
	var hdr []byte
	if d.Static.Version == rohcpkt.IPv4 {
		hdr = buildIPv4Header(d.Static, d.Dynamic, len(rest))
	} else {
		hdr = buildIPv6Header(d.Static, d.Dynamic, len(rest))
	}
	return append(hdr, rest...)
}
