package dissect

import (
	"fmt"
	"time"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// RTCP payload-type range per RFC 5761/RFC 3550 (SR, RR, SDES, BYE, APP...).
const (
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209

	rtpMinLength  = 12 // fixed RTP header size, RFC 3550 §5.1
	rtcpMinLength = 8  // fixed RTCP common header + sender SSRC
)

// IsRTCP reports whether payload's byte 1 (unmasked) falls in the RTCP
// payload-type range.
func IsRTCP(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}
	pt := payload[1]
	return pt >= rtcpPayloadTypeMin && pt <= rtcpPayloadTypeMax
}

// LooksLikeRTPOrRTCP applies a lightweight header heuristic: version
// bits == 2, plus a plausible length for whichever PT range byte 1 falls
// into.
func LooksLikeRTPOrRTCP(payload []byte) bool {
	if len(payload) < rtcpMinLength {
		return false
	}
	if (payload[0]>>6)&0x3 != 2 {
		return false
	}
	if IsRTCP(payload) {
		return len(payload) >= rtcpMinLength
	}
	return payload[1]&0x7F < 128 && len(payload) >= rtpMinLength
}

// DecodeRTP parses the 12-byte fixed RTP header and returns a PacketRtp.
func DecodeRTP(payload []byte, src, dst proto.Endpoint, ts time.Time) (*proto.PacketRtp, error) {
	if len(payload) < rtpMinLength {
		return nil, fmt.Errorf("dissect: %w", proto.ErrPayloadTooShort)
	}
	if version := (payload[0] >> 6) & 0x3; version != 2 {
		return nil, fmt.Errorf("dissect: rtp version %d: %w", version, proto.ErrUnsupportedVersion)
	}
	pt := payload[1] & 0x7F

	return &proto.PacketRtp{
		Src:       src,
		Dst:       dst,
		Timestamp: ts,
		Encoding:  proto.RtpEncoding{ID: pt},
		Frame:     proto.RawFrame{Data: payload, Timestamp: ts},
	}, nil
}

// DecodeRTCP parses the 8-byte fixed RTCP common header and returns a
// PacketRtcp.
func DecodeRTCP(payload []byte, src, dst proto.Endpoint, ts time.Time) (*proto.PacketRtcp, error) {
	if len(payload) < rtcpMinLength {
		return nil, fmt.Errorf("dissect: %w", proto.ErrPayloadTooShort)
	}
	if version := (payload[0] >> 6) & 0x3; version != 2 {
		return nil, fmt.Errorf("dissect: rtcp version %d: %w", version, proto.ErrUnsupportedVersion)
	}
	return &proto.PacketRtcp{
		Src:       src,
		Dst:       dst,
		Timestamp: ts,
		Frame:     proto.RawFrame{Data: payload, Timestamp: ts},
	}, nil
}
