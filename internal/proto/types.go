// Package proto defines the wire-level contract between a packet dissector
// and the correlation core: the already-parsed SIP/SDP/RTP/RTCP values the
// core ingests. It has zero external dependencies.
package proto

import (
	"net/netip"
	"time"
)

// Endpoint is an (ip, port) pair, used both for packet source/destination
// and for Stream identity.
type Endpoint struct {
	IP   netip.Addr
	Port uint16
}

// IsZero reports whether the endpoint carries no address information
// yet — the pre-registration state where a stream's destination is
// known from SDP but its source has not yet been observed on the wire.
func (e Endpoint) IsZero() bool {
	return !e.IP.IsValid() && e.Port == 0
}

func (e Endpoint) String() string {
	if !e.IP.IsValid() {
		return "0.0.0.0:0"
	}
	return netip.AddrPortFrom(e.IP, e.Port).String()
}

// Equal compares two endpoints for exact address+port equality.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.IP == o.IP && e.Port == o.Port
}

// RawFrame is the raw captured frame a Message takes ownership of, kept for
// later display/export by an external UI or exporter.
type RawFrame struct {
	Data      []byte
	Timestamp time.Time
}

// FormatDescriptor is one RTP payload-format entry from an SDP m= line's
// format list (the numeric payload type plus its optional rtpmap name).
type FormatDescriptor struct {
	ID        uint8
	Name      string
	ClockRate uint32
}

// SdpMedia is one SDP `m=` media descriptor, carrying the address and
// port(s) a signaling message negotiated for a stream.
type SdpMedia struct {
	MediaType  string // "audio", "video", ...
	Address    netip.Addr
	RTPPort    uint16
	RTCPPort   uint16 // 0 means "derive from RTPPort+1"
	FormatList []FormatDescriptor
}

// PacketSdp is the SDP body attached to a SIP packet that carries one.
type PacketSdp struct {
	Medias []SdpMedia
}

// PacketSip is a fully dissected SIP packet.
type PacketSip struct {
	CallID    string
	XCallID   string
	From      string
	To        string
	CSeq      int
	ReqResp   ReqResp
	RespStr   string
	Payload   []byte // raw SIP payload, used by the match filter
	Timestamp time.Time
	Src, Dst  Endpoint
	Transport string // "UDP", "TCP", "TLS", "WS", ...

	SDP   *PacketSdp // nil when no application/sdp body was present
	Frame RawFrame
}

// PacketRtp is a dissected RTP packet.
type PacketRtp struct {
	Src, Dst  Endpoint
	Timestamp time.Time
	Encoding  RtpEncoding
	Frame     RawFrame
}

// RtpEncoding describes the payload format carried by an RTP packet.
type RtpEncoding struct {
	ID        uint8 // 7-bit RTP payload type
	Name      string
	ClockRate uint32
}

// PacketRtcp is a dissected RTCP packet (SR/RR/XR reports collapsed to the
// fields the correlation core actually needs).
type PacketRtcp struct {
	Src, Dst  Endpoint
	Timestamp time.Time
	Frame     RawFrame
}
