package dissect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipcorrelator/otuscorr/internal/proto"
)

func TestDecodeSIPPacketRequestLine(t *testing.T) {
	raw := "INVITE sip:bob@example.com SIP/2.0\r\n" +
		"Call-ID: abc123\r\n" +
		"From: \"Alice\" <sip:alice@example.com>;tag=1\r\n" +
		"To: <sip:bob@example.com>\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"\r\n"

	p, err := DecodeSIPPacket([]byte(raw), proto.Endpoint{}, proto.Endpoint{}, "UDP", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "abc123", p.CallID)
	assert.Equal(t, "sip:alice@example.com", p.From)
	assert.Equal(t, "sip:bob@example.com", p.To)
	assert.Equal(t, 1, p.CSeq)
	assert.Equal(t, proto.MethodInvite, p.ReqResp)
}

func TestDecodeSIPPacketResponseLine(t *testing.T) {
	raw := "SIP/2.0 180 Ringing\r\n" +
		"Call-ID: abc123\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"\r\n"

	p, err := DecodeSIPPacket([]byte(raw), proto.Endpoint{}, proto.Endpoint{}, "UDP", time.Now())
	require.NoError(t, err)
	assert.Equal(t, proto.ResponseCode(180), p.ReqResp)
	assert.Equal(t, "Ringing", p.RespStr)
}

func TestDecodeSIPPacketMissingCallIDIsError(t *testing.T) {
	raw := "INVITE sip:bob@example.com SIP/2.0\r\nCSeq: 1 INVITE\r\n\r\n"
	_, err := DecodeSIPPacket([]byte(raw), proto.Endpoint{}, proto.Endpoint{}, "UDP", time.Now())
	assert.ErrorIs(t, err, proto.ErrMissingCallID)
}

func TestDecodeSIPPacketWithSDPBody(t *testing.T) {
	raw := "INVITE sip:bob@example.com SIP/2.0\r\n" +
		"Call-ID: withsdp\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Type: application/sdp\r\n" +
		"\r\n" +
		"v=0\r\n" +
		"o=- 0 0 IN IP4 10.0.0.1\r\n" +
		"c=IN IP4 10.0.0.1\r\n" +
		"m=audio 16000 RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n"

	p, err := DecodeSIPPacket([]byte(raw), proto.Endpoint{}, proto.Endpoint{}, "UDP", time.Now())
	require.NoError(t, err)
	require.NotNil(t, p.SDP)
	require.Len(t, p.SDP.Medias, 1)
	media := p.SDP.Medias[0]
	assert.Equal(t, "audio", media.MediaType)
	assert.Equal(t, uint16(16000), media.RTPPort)
	assert.Equal(t, "10.0.0.1", media.Address.String())
	require.Len(t, media.FormatList, 1)
	assert.Equal(t, uint8(0), media.FormatList[0].ID)
	assert.Equal(t, "PCMU", media.FormatList[0].Name)
	assert.Equal(t, uint32(8000), media.FormatList[0].ClockRate)
}

func TestLooksLikeSIP(t *testing.T) {
	assert.True(t, LooksLikeSIP([]byte("INVITE sip:bob@example.com SIP/2.0")))
	assert.True(t, LooksLikeSIP([]byte("SIP/2.0 200 OK")))
	assert.False(t, LooksLikeSIP([]byte{0x80, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}))
}
