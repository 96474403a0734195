package store

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipcorrelator/otuscorr/internal/config"
	"github.com/sipcorrelator/otuscorr/internal/proto"
)

func ep(ip string, port uint16) proto.Endpoint {
	return proto.Endpoint{IP: netip.MustParseAddr(ip), Port: port}
}

func newTestStore(t *testing.T, capture config.CaptureOpts) *Store {
	t.Helper()
	st, err := Init(capture, config.MatchOpts{}, config.SortOpts{By: "CALLINDEX", Asc: true})
	require.NoError(t, err)
	return st
}

func sipPacket(callID string, rr proto.ReqResp, ts time.Time) *proto.PacketSip {
	return &proto.PacketSip{
		CallID:    callID,
		From:      "sip:a@example.com",
		To:        "sip:b@example.com",
		CSeq:      1,
		ReqResp:   rr,
		Timestamp: ts,
		Src:       ep("10.0.0.1", 5060),
		Dst:       ep("10.0.0.2", 5060),
		Transport: "UDP",
		Payload:   []byte("payload"),
	}
}

// TestBasicDialog walks a full INVITE transaction through provisional,
// final, BYE and its 200, checking state progression and message count.
func TestBasicDialog(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(1000, 0)

	seq := []struct {
		rr   proto.ReqResp
		want CallState
	}{
		{proto.MethodInvite, StateCallSetup},
		{proto.ResponseCode(100), StateCallSetup},
		{proto.ResponseCode(180), StateCallSetup},
		{proto.ResponseCode(200), StateInCall},
		{proto.MethodAck, StateInCall},
		{proto.MethodBye, StateCompleted},
		{proto.ResponseCode(200), StateCompleted},
	}

	var call *Call
	for i, step := range seq {
		m := st.IngestSIP(sipPacket("X", step.rr, base.Add(time.Duration(i)*time.Second)))
		require.NotNil(t, m)
		call = st.FindByCallID("X")
		require.NotNil(t, call)
		assert.Equal(t, step.want, call.State, "after step %d (%v)", i, step.rr)
	}

	assert.Equal(t, 1, st.CallsCount())
	assert.Len(t, call.Messages, 7)
	assert.False(t, call.isActive())
}

// TestRotationUnderLock checks that hitting the capture limit evicts the
// oldest unlocked call and leaves locked calls untouched.
func TestRotationUnderLock(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 2})
	base := time.Unix(2000, 0)

	st.IngestSIP(sipPacket("A", proto.MethodInvite, base))
	st.IngestSIP(sipPacket("B", proto.MethodInvite, base.Add(time.Second)))

	a := st.FindByCallID("A")
	require.NotNil(t, a)
	a.Locked = true

	st.IngestSIP(sipPacket("C", proto.MethodInvite, base.Add(2*time.Second)))

	assert.Nil(t, st.FindByCallID("B"))
	assert.NotNil(t, st.FindByCallID("A"))
	assert.NotNil(t, st.FindByCallID("C"))
	assert.Equal(t, 2, st.CallsCount())
}

func TestRotationAllLockedDropsPacket(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 1})
	base := time.Unix(3000, 0)

	st.IngestSIP(sipPacket("A", proto.MethodInvite, base))
	st.FindByCallID("A").Locked = true

	m := st.IngestSIP(sipPacket("B", proto.MethodInvite, base.Add(time.Second)))
	assert.Nil(t, m)
	assert.Equal(t, 1, st.CallsCount())
	assert.Equal(t, uint64(1), st.Counters().AllLockedFIFOFull)
}

// TestReverseRTPStream checks that an RTP packet echoed back toward the
// signaling source creates a second, reverse-direction stream.
func TestReverseRTPStream(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(4000, 0)

	invite := sipPacket("X", proto.MethodInvite, base)
	invite.Src = ep("10.0.0.1", 5060)
	invite.SDP = &proto.PacketSdp{Medias: []proto.SdpMedia{
		{
			MediaType: "audio",
			Address:   netip.MustParseAddr("10.0.0.1"),
			RTPPort:   16000,
			FormatList: []proto.FormatDescriptor{{ID: 0, Name: "PCMU"}},
		},
	}}
	m := st.IngestSIP(invite)
	require.NotNil(t, m)

	rtp := &proto.PacketRtp{
		Src:       ep("10.0.0.2", 24000),
		Dst:       ep("10.0.0.1", 16000),
		Timestamp: base.Add(time.Second),
		Encoding:  proto.RtpEncoding{ID: 0, Name: "PCMU"},
	}
	s := st.IngestRTP(rtp)
	require.NotNil(t, s)
	assert.True(t, s.Complete)
	assert.Equal(t, uint8(0), s.FmtCode)

	call := st.FindByCallID("X")
	require.NotNil(t, call)

	forward := call.findStream(ep("10.0.0.2", 24000), ep("10.0.0.1", 16000), StreamRTP)
	reverse := call.findStream(ep("10.0.0.1", 16000), ep("10.0.0.2", 24000), StreamRTP)
	require.NotNil(t, forward)
	require.NotNil(t, reverse)
	assert.True(t, forward.Complete)
	assert.True(t, reverse.Complete)
	assert.Equal(t, uint8(0), forward.FmtCode)
	assert.Equal(t, uint8(0), reverse.FmtCode)
}

// TestMatchInvert checks that an inverted match expression admits calls
// it would otherwise reject and rejects calls it would otherwise admit.
func TestMatchInvert(t *testing.T) {
	st, err := Init(
		config.CaptureOpts{Limit: 10},
		config.MatchOpts{Expr: "sip:alice@", Invert: true},
		config.SortOpts{By: "CALLINDEX", Asc: true},
	)
	require.NoError(t, err)

	dropped := sipPacket("X", proto.MethodInvite, time.Unix(5000, 0))
	dropped.Payload = []byte("INVITE sip:alice@example.com SIP/2.0")
	m := st.IngestSIP(dropped)
	assert.Nil(t, m)
	assert.Nil(t, st.FindByCallID("X"))

	accepted := sipPacket("Y", proto.MethodInvite, time.Unix(5001, 0))
	accepted.Payload = []byte("INVITE sip:bob@example.com SIP/2.0")
	m = st.IngestSIP(accepted)
	assert.NotNil(t, m)
	assert.NotNil(t, st.FindByCallID("Y"))
}

// TestXCallLinkage checks that a call carrying an X-Call-Id referencing
// an already-seen call is linked to it as a child.
func TestXCallLinkage(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(6000, 0)

	st.IngestSIP(sipPacket("P", proto.MethodInvite, base))

	child := sipPacket("C", proto.MethodInvite, base.Add(time.Second))
	child.XCallID = "P"
	st.IngestSIP(child)

	parent := st.FindByCallID("P")
	require.NotNil(t, parent)
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "C", parent.Children[0].CallID)
}

// TestSortChange checks that changing sort options re-sorts the call
// list in place and that direction toggling reverses the order.
func TestSortChange(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(7000, 0)

	pb := sipPacket("B", proto.MethodInvite, base)
	pb.From = "b"
	st.IngestSIP(pb)

	pa := sipPacket("A", proto.MethodInvite, base.Add(time.Second))
	pa.From = "a"
	st.IngestSIP(pa)

	st.SetSortOptions(config.SortOpts{By: "FROM", Asc: true})
	calls := st.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].AttrFrom())
	assert.Equal(t, "b", calls[1].AttrFrom())

	st.SetSortOptions(config.SortOpts{By: "FROM", Asc: false})
	calls = st.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "b", calls[0].AttrFrom())
	assert.Equal(t, "a", calls[1].AttrFrom())
}

func TestMessageRetransmission(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(8000, 0)

	p1 := sipPacket("X", proto.MethodInvite, base)
	p1.Payload = []byte("INVITE sip:x SIP/2.0\r\nCSeq: 1 INVITE\r\n")
	m1 := st.IngestSIP(p1)
	require.NotNil(t, m1)
	assert.False(t, m1.Retrans)

	p2 := sipPacket("X", proto.MethodInvite, base.Add(time.Second))
	p2.Payload = p1.Payload
	m2 := st.IngestSIP(p2)
	require.NotNil(t, m2)
	assert.True(t, m2.Retrans)

	p3 := sipPacket("X", proto.MethodInvite, base.Add(2*time.Second))
	p3.Payload = []byte("different payload bytes")
	m3 := st.IngestSIP(p3)
	require.NotNil(t, m3)
	assert.False(t, m3.Retrans)
}

func TestIndexStrictlyIncreasing(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 100})
	base := time.Unix(9000, 0)
	for i := 0; i < 5; i++ {
		st.IngestSIP(sipPacket(string(rune('A'+i)), proto.MethodInvite, base.Add(time.Duration(i)*time.Second)))
	}
	var last uint64
	for _, c := range st.Calls() {
		assert.Greater(t, c.Index, last)
		last = c.Index
	}
}

func TestClearAndClearSoft(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(10000, 0)
	st.IngestSIP(sipPacket("A", proto.MethodInvite, base))
	st.IngestSIP(sipPacket("B", proto.MethodInvite, base.Add(time.Second)))

	st.ClearSoft(func(c *Call) bool { return c.CallID == "A" })
	assert.Equal(t, 1, st.CallsCount())
	assert.NotNil(t, st.FindByCallID("A"))
	assert.Nil(t, st.FindByCallID("B"))

	st.Clear()
	assert.Equal(t, 0, st.CallsCount())
}

func TestCallsChangedCoalesces(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	assert.False(t, st.CallsChanged())

	st.IngestSIP(sipPacket("A", proto.MethodInvite, time.Unix(11000, 0)))
	assert.True(t, st.CallsChanged())
	assert.False(t, st.CallsChanged())
}

func TestStatsDisplayedFilter(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(12000, 0)
	st.IngestSIP(sipPacket("A", proto.MethodInvite, base))
	st.IngestSIP(sipPacket("B", proto.MethodInvite, base.Add(time.Second)))

	stats := st.ComputeStats(func(c *Call) bool { return c.CallID == "A" })
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Displayed)
}

func TestCompleteOnlyDropsResponseFirstMessage(t *testing.T) {
	st, err := Init(
		config.CaptureOpts{Limit: 10},
		config.MatchOpts{CompleteOnly: true},
		config.SortOpts{By: "CALLINDEX", Asc: true},
	)
	require.NoError(t, err)

	m := st.IngestSIP(sipPacket("X", proto.ResponseCode(200), time.Unix(13000, 0)))
	assert.Nil(t, m)

	m = st.IngestSIP(sipPacket("Y", proto.MethodAck, time.Unix(13001, 0)))
	assert.Nil(t, m)

	m = st.IngestSIP(sipPacket("Z", proto.MethodInvite, time.Unix(13002, 0)))
	assert.NotNil(t, m)
}

func TestInviteOnlyDropsNonInviteFirstMessage(t *testing.T) {
	st, err := Init(
		config.CaptureOpts{Limit: 10},
		config.MatchOpts{InviteOnly: true},
		config.SortOpts{By: "CALLINDEX", Asc: true},
	)
	require.NoError(t, err)

	m := st.IngestSIP(sipPacket("X", proto.MethodRegister, time.Unix(14000, 0)))
	assert.Nil(t, m)
	assert.Equal(t, uint64(1), st.Counters().AdmissionInviteOnly)
}

func TestRTCPIndependentFromRTPBranch(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(15000, 0)

	invite := sipPacket("X", proto.MethodInvite, base)
	invite.Src = ep("10.0.0.1", 5060)
	invite.SDP = &proto.PacketSdp{Medias: []proto.SdpMedia{
		{Address: netip.MustParseAddr("10.0.0.1"), RTPPort: 16000},
	}}
	st.IngestSIP(invite)

	rtcp := &proto.PacketRtcp{
		Src:       ep("10.0.0.2", 24001),
		Dst:       ep("10.0.0.1", 16001),
		Timestamp: base.Add(time.Second),
	}
	s := st.IngestRTCP(rtcp)
	require.NotNil(t, s)
	assert.Equal(t, StreamRTCP, s.Type)
}

func TestStreamLimitPerCall(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(16000, 0)

	invite := sipPacket("X", proto.MethodInvite, base)
	invite.Src = ep("10.0.0.1", 5060)
	medias := make([]proto.SdpMedia, 0, 40)
	for i := 0; i < 40; i++ {
		medias = append(medias, proto.SdpMedia{
			Address: netip.MustParseAddr("10.0.0.1"),
			RTPPort: uint16(16000 + i*2),
		})
	}
	invite.SDP = &proto.PacketSdp{Medias: medias}
	st.IngestSIP(invite)

	call := st.FindByCallID("X")
	require.NotNil(t, call)
	assert.LessOrEqual(t, len(call.Streams), maxStreamsPerCall)
}

// TestStreamPacketOrder checks that a stream's packet timestamps iterate
// in ingestion order and that the first/last markers track them.
func TestStreamPacketOrder(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(18000, 0)

	invite := sipPacket("X", proto.MethodInvite, base)
	invite.Src = ep("10.0.0.1", 5060)
	invite.SDP = &proto.PacketSdp{Medias: []proto.SdpMedia{
		{Address: netip.MustParseAddr("10.0.0.1"), RTPPort: 16000},
	}}
	require.NotNil(t, st.IngestSIP(invite))

	var s *Stream
	for i := 0; i < 3; i++ {
		s = st.IngestRTP(&proto.PacketRtp{
			Src:       ep("10.0.0.2", 24000),
			Dst:       ep("10.0.0.1", 16000),
			Timestamp: base.Add(time.Duration(i+1) * time.Second),
			Encoding:  proto.RtpEncoding{ID: 0, Name: "PCMU"},
		})
		require.NotNil(t, s)
	}

	assert.Equal(t, uint64(3), s.PacketCount)
	pkts := s.Packets()
	require.Len(t, pkts, 3)
	for i := 1; i < len(pkts); i++ {
		assert.False(t, pkts[i].Before(pkts[i-1]))
	}
	assert.Equal(t, pkts[0], s.FirstTS)
	assert.Equal(t, pkts[2], s.LastTS)
}

// TestCodecSwitchClonesStream checks that a mid-call codec switch (a
// second RTP packet at the same src/dst carrying a different payload
// type) clones a new Stream for the new format rather than being
// dropped as an unmatched packet.
func TestCodecSwitchClonesStream(t *testing.T) {
	st := newTestStore(t, config.CaptureOpts{Limit: 10})
	base := time.Unix(17000, 0)

	invite := sipPacket("X", proto.MethodInvite, base)
	invite.Src = ep("10.0.0.1", 5060)
	invite.SDP = &proto.PacketSdp{Medias: []proto.SdpMedia{
		{
			MediaType: "audio",
			Address:   netip.MustParseAddr("10.0.0.1"),
			RTPPort:   16000,
			FormatList: []proto.FormatDescriptor{
				{ID: 0, Name: "PCMU"},
				{ID: 8, Name: "PCMA"},
			},
		},
	}}
	m := st.IngestSIP(invite)
	require.NotNil(t, m)

	first := &proto.PacketRtp{
		Src:       ep("10.0.0.2", 24000),
		Dst:       ep("10.0.0.1", 16000),
		Timestamp: base.Add(time.Second),
		Encoding:  proto.RtpEncoding{ID: 0, Name: "PCMU"},
	}
	s1 := st.IngestRTP(first)
	require.NotNil(t, s1)
	assert.True(t, s1.Complete)
	assert.Equal(t, uint8(0), s1.FmtCode)

	second := &proto.PacketRtp{
		Src:       ep("10.0.0.2", 24000),
		Dst:       ep("10.0.0.1", 16000),
		Timestamp: base.Add(2 * time.Second),
		Encoding:  proto.RtpEncoding{ID: 8, Name: "PCMA"},
	}
	s2 := st.IngestRTP(second)
	require.NotNil(t, s2)
	assert.NotSame(t, s1, s2)
	assert.True(t, s2.Complete)
	assert.Equal(t, uint8(8), s2.FmtCode)

	assert.Equal(t, uint64(0), st.Counters().CorrelationMiss)

	call := st.FindByCallID("X")
	require.NotNil(t, call)
	count := 0
	for _, st := range call.Streams {
		if st.Dst.Equal(ep("10.0.0.1", 16000)) && st.Type == StreamRTP {
			count++
		}
	}
	assert.Equal(t, 2, count)
}
