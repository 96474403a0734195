package store

import (
	"time"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// CallState is the INVITE dialog state machine's current state.
// StateNone applies to calls whose first message was not INVITE; such
// calls never enter the state machine and are never "active".
type CallState int

const (
	StateNone CallState = iota
	StateCallSetup
	StateInCall
	StateCompleted
	StateCancelled
	StateRejected
	StateBusy
	StateDiverted
)

func (s CallState) String() string {
	switch s {
	case StateCallSetup:
		return "CALL_SETUP"
	case StateInCall:
		return "IN_CALL"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	case StateRejected:
		return "REJECTED"
	case StateBusy:
		return "BUSY"
	case StateDiverted:
		return "DIVERTED"
	default:
		return "NONE"
	}
}

// terminal reports whether s is sticky: once reached, later messages never
// regress it.
func (s CallState) terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateRejected, StateBusy, StateDiverted:
		return true
	default:
		return false
	}
}

// Call aggregates the Messages and Streams for one Call-ID.
type Call struct {
	Index   uint64
	CallID  string
	XCallID string
	Locked  bool

	State    CallState
	Messages []*Message
	Streams  []*Stream

	Parent   *Call // non-owning; set the first time this call links to a known xcallid
	Children []*Call

	firstSeen time.Time
	lastSeen  time.Time
	convStart time.Time // timestamp of the 200 to INVITE, zero until IN_CALL
	convEnd   time.Time // timestamp of the message that made the state terminal

	streamsByKey map[streamKey]*Stream
	retransIndex map[msgKey]*Message
}

func newCall(index uint64, callID, xcallID string) *Call {
	return &Call{
		Index:        index,
		CallID:       callID,
		XCallID:      xcallID,
		streamsByKey: make(map[streamKey]*Stream),
		retransIndex: make(map[msgKey]*Message),
	}
}

// addMessage appends m in arrival order, sets m.call, runs the
// retransmission check, and feeds m through the INVITE state machine.
func (c *Call) addMessage(m *Message) {
	m.call = c
	c.msgRetransCheck(m)
	c.Messages = append(c.Messages, m)

	if c.firstSeen.IsZero() {
		c.firstSeen = m.Timestamp
	}
	c.lastSeen = m.Timestamp

	if c.isInvite() {
		c.advanceState(m)
	}
}

// msgRetransCheck marks m as a retransmission if the previously inserted
// Message with the same (cseq, reqresp) carries an identical payload hash;
// otherwise clears the flag. The index is updated to m regardless, so a
// later message compares against the most recent prior one.
func (c *Call) msgRetransCheck(m *Message) {
	key := m.key()
	if prev, ok := c.retransIndex[key]; ok && prev.payloadHash == m.payloadHash {
		m.Retrans = true
	}
	c.retransIndex[key] = m
}

// isInvite reports whether the first accepted message is INVITE.
func (c *Call) isInvite() bool {
	if len(c.Messages) == 0 {
		return false
	}
	return c.Messages[0].ReqResp == proto.MethodInvite
}

// isActive reports whether this call belongs in the active-call list.
// Membership is purely state-based: no recency grace window.
func (c *Call) isActive() bool {
	return c.State == StateCallSetup || c.State == StateInCall
}

// advanceState runs the INVITE dialog state machine for one newly-added
// message. Only ever called for calls where isInvite() is true.
func (c *Call) advanceState(m *Message) {
	if c.State.terminal() {
		return
	}

	if m.ReqResp == proto.MethodInvite {
		if c.State == StateNone {
			c.State = StateCallSetup
		}
		return
	}

	if m.ReqResp.IsResponse() {
		switch {
		case c.State == StateCallSetup && m.ReqResp.StatusClass() == 1:
			// stays CALL_SETUP
		case m.ReqResp == 200 && c.wasInviteTransaction():
			c.State = StateInCall
			c.convStart = m.Timestamp
		case m.ReqResp.StatusClass() == 3:
			c.State = StateDiverted
			c.convEnd = m.Timestamp
		case m.ReqResp == 486:
			c.State = StateBusy
			c.convEnd = m.Timestamp
		case m.ReqResp.StatusClass() == 4:
			c.State = StateRejected
			c.convEnd = m.Timestamp
		}
		return
	}

	switch m.ReqResp {
	case proto.MethodBye:
		if c.State == StateInCall {
			c.State = StateCompleted
			c.convEnd = m.Timestamp
		}
	case proto.MethodCancel:
		if c.State == StateCallSetup {
			c.State = StateCancelled
			c.convEnd = m.Timestamp
		}
	}
}

// wasInviteTransaction reports whether the last non-ACK request seen so
// far in this dialog was the initial INVITE, so a bare "200" (no method
// context in the Message itself) can be attributed to the INVITE
// transaction rather than some other 200 (e.g. to a later BYE, which
// would otherwise already be terminal and short-circuited above).
func (c *Call) wasInviteTransaction() bool {
	if c.State != StateCallSetup {
		return false
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		rr := c.Messages[i].ReqResp
		if rr.IsRequest() && rr != proto.MethodAck {
			return rr == proto.MethodInvite
		}
	}
	return false
}

// addXCall links child as this call's child, recording the parent
// back-reference on child. Called exactly once per child, the first time
// it receives a message, provided it carries a known xcallid.
func (c *Call) addXCall(child *Call) {
	child.Parent = c
	c.Children = append(c.Children, child)
}

// addStream indexes s under its current (src, dst, type) key.
func (c *Call) addStream(s *Stream) {
	s.Call = c
	c.Streams = append(c.Streams, s)
	c.streamsByKey[s.key()] = s
}

// completeStream completes s with src, reindexing it under its new key
// (the pre-registration key had a zero Src).
func (c *Call) completeStream(s *Stream, src proto.Endpoint) {
	if s.Complete {
		return
	}
	delete(c.streamsByKey, s.key())
	s.complete(src)
	c.streamsByKey[s.key()] = s
}

// hasStreamTo reports whether this call already owns any stream (at any
// source endpoint, pre-registered or complete) to dst of the given type.
func (c *Call) hasStreamTo(dst proto.Endpoint, typ StreamType) bool {
	for _, s := range c.Streams {
		if s.Dst.Equal(dst) && s.Type == typ {
			return true
		}
	}
	return false
}

// findStream looks up a Stream by (src, dst, type) exactly, ignoring
// format. dst (or src) may be the zero Endpoint, matching the
// pre-registration state.
func (c *Call) findStream(src, dst proto.Endpoint, typ StreamType) *Stream {
	return c.streamsByKey[streamKey{src, dst, typ}]
}

// findStreamExact additionally requires a matching format code.
func (c *Call) findStreamExact(src, dst proto.Endpoint, typ StreamType, fmt uint8) *Stream {
	s := c.findStream(src, dst, typ)
	if s == nil || !s.FormatSet || s.FmtCode != fmt {
		return nil
	}
	return s
}

// --- attr.CallView implementation ---

func (c *Call) AttrIndex() uint64  { return c.Index }
func (c *Call) AttrCallID() string { return c.CallID }
func (c *Call) AttrXCallID() string { return c.XCallID }

func (c *Call) AttrSrc() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Src.String()
}

func (c *Call) AttrDst() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Dst.String()
}

func (c *Call) AttrFrom() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].From
}

func (c *Call) AttrTo() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].To
}

func (c *Call) AttrMethod() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].ReqResp.String()
}

func (c *Call) AttrState() string { return c.State.String() }

func (c *Call) AttrConvDur() time.Duration {
	if c.convStart.IsZero() {
		return 0
	}
	end := c.convEnd
	if end.IsZero() {
		end = c.lastSeen
	}
	if end.Before(c.convStart) {
		return 0
	}
	return end.Sub(c.convStart)
}

func (c *Call) AttrTotalDur() time.Duration {
	if c.firstSeen.IsZero() || c.lastSeen.Before(c.firstSeen) {
		return 0
	}
	return c.lastSeen.Sub(c.firstSeen)
}

func (c *Call) AttrMsgCnt() int { return len(c.Messages) }

func (c *Call) AttrStartTime() time.Time { return c.firstSeen }

func (c *Call) AttrTransport() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Transport
}
