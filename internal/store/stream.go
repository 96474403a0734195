package store

import (
	"time"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// StreamType distinguishes an RTP media flow from its RTCP control channel.
type StreamType int

const (
	StreamRTP StreamType = iota
	StreamRTCP
)

func (t StreamType) String() string {
	if t == StreamRTCP {
		return "RTCP"
	}
	return "RTP"
}

// Stream is a mutable record of one RTP or RTCP flow. Identity for index
// lookup is (Src, Dst, Type); a variant "exact" lookup additionally
// requires a matching FmtCode.
type Stream struct {
	Call  *Call // non-owning
	Msg   *Message
	Media proto.SdpMedia
	Type  StreamType

	Src, Dst proto.Endpoint

	FmtCode    uint8
	FormatSet  bool
	Encoding   string
	Complete   bool // true once Src has been observed (not pre-registration)

	PacketCount uint64
	FirstTS     time.Time
	LastTS      time.Time
	// packetTimes records arrival order for the non-decreasing-timestamp
	// iteration property; it gains one entry per observed packet for as
	// long as the stream exists. capture.limit bounds the number of calls,
	// not the number of packets per stream.
	packetTimes []time.Time
}

// newStream creates a Stream from an SDP media description. src may be
// the zero Endpoint for the pre-registration case (dst known, source not
// yet observed).
func newStream(call *Call, msg *Message, media proto.SdpMedia, src, dst proto.Endpoint, typ StreamType) *Stream {
	s := &Stream{
		Call:   call,
		Msg:    msg,
		Media:  media,
		Type:   typ,
		Src:    src,
		Dst:    dst,
	}
	if !src.IsZero() {
		s.Complete = true
	}
	return s
}

// complete is idempotent: it sets Src and flips Complete to true only on
// the first call.
func (s *Stream) complete(src proto.Endpoint) {
	if s.Complete {
		return
	}
	s.Src = src
	s.Complete = true
}

func (s *Stream) setFormat(code uint8, encoding string) {
	s.FmtCode = code
	s.Encoding = encoding
	s.FormatSet = true
}

// addPacket updates counters and timestamps for one observed packet.
func (s *Stream) addPacket(ts time.Time) {
	s.PacketCount++
	if s.FirstTS.IsZero() || ts.Before(s.FirstTS) {
		s.FirstTS = ts
	}
	if ts.After(s.LastTS) {
		s.LastTS = ts
	}
	s.packetTimes = append(s.packetTimes, ts)
}

// Packets returns packet arrival timestamps in ingestion order.
func (s *Stream) Packets() []time.Time {
	out := make([]time.Time, len(s.packetTimes))
	copy(out, s.packetTimes)
	return out
}

// streamKey is the (src, dst, type) identity used by Call's per-call index.
type streamKey struct {
	src, dst proto.Endpoint
	typ      StreamType
}

func (s *Stream) key() streamKey {
	return streamKey{s.Src, s.Dst, s.Type}
}
