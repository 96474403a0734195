package proto

import "errors"

// Sentinel errors surfaced by the dissector boundary. Callers wrap them
// with %w and match with errors.Is.
var (
	// ErrMissingCallID is a dissector-inconsistency error: a SIP packet
	// arrived with no Call-ID header.
	ErrMissingCallID = errors.New("otuscorr: sip packet missing call-id")

	// ErrPayloadTooShort flags a packet too small to carry the protocol
	// header it claims to.
	ErrPayloadTooShort = errors.New("otuscorr: payload too short")

	// ErrUnsupportedVersion flags an RTP/RTCP packet whose version field
	// is not 2.
	ErrUnsupportedVersion = errors.New("otuscorr: unsupported protocol version")
)
