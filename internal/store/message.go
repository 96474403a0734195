package store

import (
	"crypto/sha256"
	"time"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// Message is an immutable record of one parsed SIP packet, with a
// non-owning back-reference to its owning Call. Construction takes
// already-dissected fields and takes ownership of the raw frame buffer.
type Message struct {
	CSeq      int
	From      string
	To        string
	ReqResp   proto.ReqResp
	RespStr   string
	Timestamp time.Time
	Src, Dst  proto.Endpoint
	Transport string
	Medias    []proto.SdpMedia
	Frame     proto.RawFrame

	// Retrans is set by Call.addMessage's retransmission check: true when
	// the previously inserted Message with the same (CSeq, ReqResp)
	// carries an identical payload hash.
	Retrans bool

	call        *Call
	payloadHash [sha256.Size]byte
}

// newMessage builds a tentative Message from a dissected SIP packet. The
// Message is not yet attached to a Call; Call.addMessage does that.
func newMessage(p *proto.PacketSip) *Message {
	return &Message{
		CSeq:        p.CSeq,
		From:        p.From,
		To:          p.To,
		ReqResp:     p.ReqResp,
		RespStr:     p.RespStr,
		Timestamp:   p.Timestamp,
		Src:         p.Src,
		Dst:         p.Dst,
		Transport:   p.Transport,
		Frame:       p.Frame,
		payloadHash: sha256.Sum256(p.Payload),
	}
}

// Call returns the owning Call, or nil if the Message has not been
// inserted yet.
func (m *Message) Call() *Call { return m.call }

// msgKey identifies a retransmission-check bucket: (cseq, reqresp).
type msgKey struct {
	cseq    int
	reqresp proto.ReqResp
}

func (m *Message) key() msgKey { return msgKey{m.CSeq, m.ReqResp} }
