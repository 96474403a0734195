// Package dissect turns raw captured bytes into the internal/proto DTOs
// internal/store ingests: SIP header/SDP parsing and RTP/RTCP
// classification, kept separate from correlation itself.
package dissect

import (
	"bytes"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// DecodeSIPPacket parses a SIP message's headers and, if present, its SDP
// body. It does not itself correlate offer/answer SDP across messages —
// that correlation is internal/store's job.
func DecodeSIPPacket(payload []byte, src, dst proto.Endpoint, transport string, ts time.Time) (*proto.PacketSip, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("dissect: sip payload too short: %w", proto.ErrPayloadTooShort)
	}

	headerEnd := bytes.Index(payload, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		headerEnd = bytes.Index(payload, []byte("\n\n"))
		if headerEnd == -1 {
			headerEnd = len(payload)
		}
	}
	headerData := payload[:headerEnd]
	lines := bytes.Split(headerData, []byte("\n"))
	if len(lines) == 0 {
		return nil, fmt.Errorf("dissect: empty sip message")
	}

	pkt := &proto.PacketSip{
		Timestamp: ts,
		Src:       src,
		Dst:       dst,
		Transport: transport,
		Payload:   payload,
		Frame:     proto.RawFrame{Data: payload, Timestamp: ts},
	}

	firstLine := string(bytes.TrimSpace(lines[0]))
	if strings.HasPrefix(firstLine, "SIP/2.0 ") {
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) >= 2 {
			code, _ := strconv.Atoi(parts[1])
			pkt.ReqResp = proto.ResponseCode(code)
			if len(parts) == 3 {
				pkt.RespStr = parts[2]
			}
		}
	} else {
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) == 0 {
			return nil, fmt.Errorf("dissect: malformed request line")
		}
		method, ok := proto.MethodFromName(parts[0])
		if !ok {
			return nil, fmt.Errorf("dissect: unrecognized sip method %q", parts[0])
		}
		pkt.ReqResp = method
	}

	var cseqValue string
	for i := 1; i < len(lines); i++ {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		for i+1 < len(lines) && len(lines[i+1]) > 0 && (lines[i+1][0] == ' ' || lines[i+1][0] == '\t') {
			i++
			line = append(line, ' ')
			line = append(line, bytes.TrimSpace(lines[i])...)
		}

		colonIdx := bytes.IndexByte(line, ':')
		if colonIdx == -1 {
			continue
		}
		name := string(bytes.TrimSpace(line[:colonIdx]))
		value := string(bytes.TrimSpace(line[colonIdx+1:]))

		switch strings.ToLower(name) {
		case "call-id", "i":
			pkt.CallID = value
		case "x-call-id", "x-cid":
			pkt.XCallID = value
		case "from", "f":
			pkt.From = extractURI(value)
		case "to", "t":
			pkt.To = extractURI(value)
		case "cseq":
			cseqValue = value
		}
	}

	if pkt.CallID == "" {
		return nil, fmt.Errorf("dissect: %w", proto.ErrMissingCallID)
	}
	if cseqValue != "" {
		fields := strings.Fields(cseqValue)
		if len(fields) > 0 {
			n, _ := strconv.Atoi(fields[0])
			pkt.CSeq = n
		}
	}

	bodyStart := headerEnd + 4
	if bodyStart < len(payload) && bytes.Contains(headerData, []byte("application/sdp")) {
		if sdp, err := parseSDPBody(payload[bodyStart:]); err == nil {
			pkt.SDP = sdp
		}
	}

	return pkt, nil
}

// extractURI extracts the bracketed or bare URI from a From/To header
// value, e.g. `"Alice" <sip:alice@example.com>;tag=1234` -> "sip:alice@example.com".
func extractURI(value string) string {
	start := strings.IndexByte(value, '<')
	if start == -1 {
		parts := strings.Fields(value)
		if len(parts) == 0 {
			return ""
		}
		uri := parts[0]
		if semi := strings.IndexByte(uri, ';'); semi != -1 {
			uri = uri[:semi]
		}
		return uri
	}
	end := strings.IndexByte(value[start:], '>')
	if end == -1 {
		return ""
	}
	return value[start+1 : start+end]
}

// parseSDPBody parses c=/m=/a= lines into proto.SdpMedia descriptors.
func parseSDPBody(body []byte) (*proto.PacketSdp, error) {
	sdp := &proto.PacketSdp{}

	lines := bytes.Split(body, []byte("\n"))
	var sessionIP netip.Addr
	var current *proto.SdpMedia

	flush := func() {
		if current != nil {
			sdp.Medias = append(sdp.Medias, *current)
		}
	}

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		typ := line[0]
		value := string(bytes.TrimSpace(line[2:]))

		switch typ {
		case 'c':
			ip := parseConnectionLine(value)
			if ip.IsValid() {
				if current != nil {
					current.Address = ip
				} else {
					sessionIP = ip
				}
			}
		case 'm':
			flush()
			parts := strings.Fields(value)
			if len(parts) < 3 {
				current = nil
				continue
			}
			port, err := strconv.ParseUint(parts[1], 10, 16)
			if err != nil {
				current = nil
				continue
			}
			current = &proto.SdpMedia{
				MediaType: parts[0],
				RTPPort:   uint16(port),
			}
			current.FormatList = parseFormatList(parts[2:])
		case 'a':
			if current == nil {
				continue
			}
			if value == "rtcp-mux" {
				current.RTCPPort = current.RTPPort
				continue
			}
			if strings.HasPrefix(value, "rtcp:") {
				if port, err := strconv.ParseUint(value[5:], 10, 16); err == nil {
					current.RTCPPort = uint16(port)
				}
				continue
			}
			if strings.HasPrefix(value, "rtpmap:") {
				applyRtpmap(current, value[len("rtpmap:"):])
			}
		}
	}
	flush()

	if len(sdp.Medias) == 0 {
		return nil, fmt.Errorf("dissect: no media descriptors in sdp body")
	}

	if sessionIP.IsValid() {
		for i := range sdp.Medias {
			if !sdp.Medias[i].Address.IsValid() {
				sdp.Medias[i].Address = sessionIP
			}
		}
	}

	return sdp, nil
}

// parseFormatList builds the numeric-ID-only FormatDescriptor list from an
// m= line's trailing payload-type tokens; rtpmap attributes fill in Name
// and ClockRate afterward.
func parseFormatList(tokens []string) []proto.FormatDescriptor {
	out := make([]proto.FormatDescriptor, 0, len(tokens))
	for _, t := range tokens {
		id, err := strconv.ParseUint(t, 10, 8)
		if err != nil {
			continue
		}
		out = append(out, proto.FormatDescriptor{ID: uint8(id)})
	}
	return out
}

// applyRtpmap fills in Name/ClockRate for the matching FormatDescriptor
// from an `a=rtpmap:<id> <name>/<clockrate>` attribute.
func applyRtpmap(media *proto.SdpMedia, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return
	}
	namePart := strings.SplitN(parts[1], "/", 2)
	name := namePart[0]
	var clock uint64
	if len(namePart) == 2 {
		clock, _ = strconv.ParseUint(namePart[1], 10, 32)
	}
	for i := range media.FormatList {
		if media.FormatList[i].ID == uint8(id) {
			media.FormatList[i].Name = name
			media.FormatList[i].ClockRate = uint32(clock)
			return
		}
	}
}

// parseConnectionLine extracts the IP address from a c= line, e.g.
// "IN IP4 192.168.1.100".
func parseConnectionLine(value string) netip.Addr {
	parts := strings.Fields(value)
	if len(parts) < 3 {
		return netip.Addr{}
	}
	ip, err := netip.ParseAddr(parts[2])
	if err != nil {
		return netip.Addr{}
	}
	return ip
}

// LooksLikeSIP is a fast prefix check for demultiplexing a UDP payload.
func LooksLikeSIP(payload []byte) bool {
	if len(payload) < 8 {
		return false
	}
	prefix := string(payload[:8])
	switch {
	case strings.HasPrefix(prefix, "SIP/2.0 "),
		strings.HasPrefix(prefix, "INVITE "),
		strings.HasPrefix(prefix, "REGISTER"),
		strings.HasPrefix(prefix, "BYE "),
		strings.HasPrefix(prefix, "CANCEL "),
		strings.HasPrefix(prefix, "ACK "),
		strings.HasPrefix(prefix, "OPTIONS "),
		strings.HasPrefix(prefix, "SUBSCRI"),
		strings.HasPrefix(prefix, "NOTIFY "):
		return true
	default:
		return false
	}
}
