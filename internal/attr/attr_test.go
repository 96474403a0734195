package attr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCall struct {
	index     uint64
	callID    string
	xcallID   string
	from, to  string
	method    string
	state     string
	convDur   time.Duration
	totalDur  time.Duration
	msgCnt    int
	startTime time.Time
	transport string
}

func (f fakeCall) AttrIndex() uint64            { return f.index }
func (f fakeCall) AttrCallID() string           { return f.callID }
func (f fakeCall) AttrXCallID() string          { return f.xcallID }
func (f fakeCall) AttrSrc() string              { return "" }
func (f fakeCall) AttrDst() string              { return "" }
func (f fakeCall) AttrFrom() string             { return f.from }
func (f fakeCall) AttrTo() string                { return f.to }
func (f fakeCall) AttrMethod() string           { return f.method }
func (f fakeCall) AttrState() string            { return f.state }
func (f fakeCall) AttrConvDur() time.Duration   { return f.convDur }
func (f fakeCall) AttrTotalDur() time.Duration  { return f.totalDur }
func (f fakeCall) AttrMsgCnt() int              { return f.msgCnt }
func (f fakeCall) AttrStartTime() time.Time     { return f.startTime }
func (f fakeCall) AttrTransport() string        { return f.transport }

func TestFromNameKnown(t *testing.T) {
	assert.Equal(t, CallIndex, FromName("CALLINDEX"))
	assert.Equal(t, CallIndex, FromName("callindex"))
	assert.Equal(t, From, FromName("FROM"))
	assert.Equal(t, Transport, FromName("TRANSPORT"))
}

func TestFromNameUnknownFallsBackToSentinel(t *testing.T) {
	assert.Equal(t, Unknown, FromName("NOT_A_REAL_ATTRIBUTE"))
}

func TestCompareCallIndex(t *testing.T) {
	a := fakeCall{index: 1}
	b := fakeCall{index: 2}
	assert.Negative(t, Compare(a, b, CallIndex))
	assert.Positive(t, Compare(b, a, CallIndex))
	assert.Zero(t, Compare(a, a, CallIndex))
}

func TestCompareFromLexicographic(t *testing.T) {
	a := fakeCall{from: "alice"}
	b := fakeCall{from: "bob"}
	assert.Negative(t, Compare(a, b, From))
	assert.Positive(t, Compare(b, a, From))
}

func TestCompareUnknownFallsBackToIndex(t *testing.T) {
	a := fakeCall{index: 1}
	b := fakeCall{index: 2}
	assert.Negative(t, Compare(a, b, Unknown))
}

func TestCompareDurationAttributes(t *testing.T) {
	a := fakeCall{convDur: 1 * time.Second}
	b := fakeCall{convDur: 2 * time.Second}
	assert.Negative(t, Compare(a, b, ConvDur))
}

func TestCompareStartDateAndStartTimeUseSameInstant(t *testing.T) {
	now := time.Now()
	a := fakeCall{startTime: now}
	b := fakeCall{startTime: now.Add(time.Hour)}
	assert.Negative(t, Compare(a, b, StartDate))
	assert.Negative(t, Compare(a, b, StartTime))
}
