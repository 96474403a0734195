// Package store implements the correlation core: the bounded, ordered,
// indexed collection of Calls a passive SIP/RTP analyzer builds from
// decoded packets.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sipcorrelator/otuscorr/internal/attr"
	"github.com/sipcorrelator/otuscorr/internal/config"
	"github.com/sipcorrelator/otuscorr/internal/log"
	"github.com/sipcorrelator/otuscorr/internal/matchfilter"
	"github.com/sipcorrelator/otuscorr/internal/proto"
)

// maxStreamsPerCall bounds the format-mismatch stream cloning in IngestRTP:
// a peer that toggles payload type every packet must not grow a call's
// stream set without bound.
const maxStreamsPerCall = 64

// dstKey is the global stream index key: every pre-registered or completed
// Stream is reachable by its destination endpoint and type, regardless of
// which Call owns it. Keeping this index means a cross-call lookup by
// destination is O(1) in the number of distinct destinations, rather than
// a scan over every call's stream set.
type dstKey struct {
	dst proto.Endpoint
	typ StreamType
}

// Store is the call store. Each Init returns an independent Store; the
// zero Store is not usable.
type Store struct {
	mu sync.RWMutex

	calls    []*Call          // kept sorted by the current comparator
	active   []*Call          // subset of calls, kept in insertion order
	byCallID map[string]*Call

	streamsByDst map[dstKey][]*Stream

	lastIndex uint64
	changed   bool

	capture config.CaptureOpts
	match   *matchfilter.Filter
	sortBy  attr.Attribute
	sortAsc bool

	counters DropCounters
	diag     *diagnosticLog
	log      log.Logger
}

// Init constructs a Store from its three option structs. Regex compilation
// failure is a configuration error and is fatal; an unrecognized sort
// attribute name is not fatal — it falls back to CALLINDEX ascending.
func Init(capture config.CaptureOpts, match config.MatchOpts, sort config.SortOpts) (*Store, error) {
	f, err := matchfilter.Compile(match)
	if err != nil {
		return nil, fmt.Errorf("store: init: %w", err)
	}

	s := &Store{
		byCallID:     make(map[string]*Call),
		streamsByDst: make(map[dstKey][]*Stream),
		capture:      capture,
		match:        f,
		log:          log.GetLogger(),
	}
	s.diag = newDiagnosticLog(s.log)
	s.sortBy, s.sortAsc = resolveSortOpts(sort)
	return s, nil
}

// resolveSortOpts applies the sort fallback: an unresolved attribute name
// forces CALLINDEX ascending, ignoring the configured Asc value.
func resolveSortOpts(opts config.SortOpts) (attr.Attribute, bool) {
	by := attr.FromName(opts.By)
	if by == attr.Unknown {
		return attr.CallIndex, true
	}
	return by, opts.Asc
}

func (s *Store) view(c *Call) attr.CallView { return c }

func (s *Store) less(a, b *Call) bool {
	cmp := attr.Compare(s.view(a), s.view(b), s.sortBy)
	if s.sortAsc {
		return cmp < 0
	}
	return cmp > 0
}

// insertSorted inserts c into s.calls at its sorted position via binary
// search — a new call is placed immediately, not appended then re-sorted.
func (s *Store) insertSorted(c *Call) {
	i := sort.Search(len(s.calls), func(i int) bool { return !s.less(s.calls[i], c) })
	s.calls = append(s.calls, nil)
	copy(s.calls[i+1:], s.calls[i:])
	s.calls[i] = c
}

// IngestSIP admits a dissected SIP packet into the store, creating or
// locating its Call, appending a Message, and updating dialog state. It
// returns the accepted Message, or nil if the packet was dropped.
func (s *Store) IngestSIP(p *proto.PacketSip) *Message {
	if p.CallID == "" {
		s.counters.DissectorInconsistency.Add(1)
		s.diag.once("sip packet missing call-id")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMessage(p)

	call, ok := s.byCallID[p.CallID]
	if !ok {
		if dropped := s.admit(p); dropped {
			return nil
		}
		if uint32(len(s.calls)) >= s.capture.Limit && s.capture.Limit > 0 {
			if !s.rotateLocked() {
				s.counters.AllLockedFIFOFull.Add(1)
				return nil
			}
		}
		s.lastIndex++
		call = newCall(s.lastIndex, p.CallID, p.XCallID)
		s.byCallID[p.CallID] = call
		s.insertSorted(call)
	}

	if len(call.Messages) == 0 && call.XCallID != "" {
		if parent, ok := s.byCallID[call.XCallID]; ok && parent != call {
			parent.addXCall(call)
		}
	}

	call.addMessage(m)

	if call.isInvite() {
		if p.SDP != nil {
			s.registerStreams(call, m, p)
		}
		s.syncActive(call)
	}

	s.changed = true
	return m
}

// admit evaluates the admission checks applied to a not-yet-seen Call-ID:
// the match filter, invite-only capture, and complete-only capture. It
// returns true when the packet must be dropped.
func (s *Store) admit(p *proto.PacketSip) bool {
	if !s.match.Match(p.Payload) {
		s.counters.AdmissionFilter.Add(1)
		return true
	}
	if s.match.InviteOnly() && p.ReqResp != proto.MethodInvite {
		s.counters.AdmissionInviteOnly.Add(1)
		return true
	}
	if s.match.CompleteOnly() && !isDialogInitiating(p.ReqResp) {
		s.counters.AdmissionCompleteOnly.Add(1)
		return true
	}
	return false
}

// isDialogInitiating reports whether rr is a request other than ACK — the
// predicate complete_only capture uses to decide whether a call's first
// observed message may start a new dialog.
func isDialogInitiating(rr proto.ReqResp) bool {
	return rr.IsRequest() && rr != proto.MethodAck
}

// syncActive recomputes call's membership in the active-call list by
// comparing isActive() to its current presence in s.active.
func (s *Store) syncActive(call *Call) {
	idx := -1
	for i, c := range s.active {
		if c == call {
			idx = i
			break
		}
	}
	switch {
	case call.isActive() && idx < 0:
		s.active = append(s.active, call)
	case !call.isActive() && idx >= 0:
		s.active = append(s.active[:idx], s.active[idx+1:]...)
	}
}

// registerStreams pre-registers up to three Streams for each SDP media
// descriptor attached to msg, skipping any already present for this
// (call, dst).
func (s *Store) registerStreams(call *Call, msg *Message, p *proto.PacketSip) {
	for _, media := range p.SDP.Medias {
		msg.Medias = append(msg.Medias, media)

		rtcpPort := media.RTCPPort
		if rtcpPort == 0 {
			rtcpPort = media.RTPPort + 1
		}

		dstMedia := proto.Endpoint{IP: media.Address, Port: media.RTPPort}
		dstRTCP := proto.Endpoint{IP: media.Address, Port: rtcpPort}
		dstBackToSrc := proto.Endpoint{IP: p.Src.IP, Port: media.RTPPort}

		s.preRegister(call, msg, media, dstMedia, StreamRTP)
		s.preRegister(call, msg, media, dstRTCP, StreamRTCP)
		s.preRegister(call, msg, media, dstBackToSrc, StreamRTP)
	}
}

func (s *Store) preRegister(call *Call, msg *Message, media proto.SdpMedia, dst proto.Endpoint, typ StreamType) {
	if call.hasStreamTo(dst, typ) {
		return
	}
	if !call.canAddMoreStreams() {
		s.counters.StreamLimitExceeded.Add(1)
		return
	}
	st := newStream(call, msg, media, proto.Endpoint{}, dst, typ)
	call.addStream(st)
	s.indexGlobal(st)
}

func (s *Store) indexGlobal(st *Stream) {
	k := dstKey{st.Dst, st.Type}
	s.streamsByDst[k] = append(s.streamsByDst[k], st)
}

func (c *Call) canAddMoreStreams() bool { return len(c.Streams) < maxStreamsPerCall }

// findStreamByFormat is the cross-call lookup by destination endpoint: a
// stream at dst, matching src exactly if already complete, otherwise
// still open for completion. An exact format match (or a stream with no
// format tagged yet) is preferred and returned immediately; a stream
// whose tagged format differs from fmtCode is kept as a fallback so the
// caller can still find it and decide whether to clone a new Stream for
// the new format, rather than treating a format change as no match at
// all.
func (s *Store) findStreamByFormat(src, dst proto.Endpoint, typ StreamType, fmtCode uint8) *Stream {
	var mismatched *Stream
	for _, st := range s.streamsByDst[dstKey{dst, typ}] {
		if st.Complete && !st.Src.Equal(src) {
			continue
		}
		if st.FormatSet && st.FmtCode != fmtCode {
			if mismatched == nil {
				mismatched = st
			}
			continue
		}
		return st
	}
	return mismatched
}

// IngestRTP correlates a dissected RTP packet with a pre-registered or
// already-observed Stream, completing it, tagging its format, cloning a
// new Stream if the peer switched codec mid-stream, and applying the
// reverse-stream heuristic on first completion.
func (s *Store) IngestRTP(p *proto.PacketRtp) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.findStreamByFormat(p.Src, p.Dst, StreamRTP, p.Encoding.ID)
	if st == nil {
		s.counters.CorrelationMiss.Add(1)
		return nil
	}

	if st.Complete && st.FormatSet && st.FmtCode != p.Encoding.ID {
		if !st.Call.canAddMoreStreams() {
			s.counters.StreamLimitExceeded.Add(1)
		} else {
			clone := newStream(st.Call, st.Msg, st.Media, p.Src, st.Dst, StreamRTP)
			clone.setFormat(p.Encoding.ID, p.Encoding.Name)
			st.Call.addStream(clone)
			s.indexGlobal(clone)
			st = clone
		}
	} else if !st.Complete {
		st.Call.completeStream(st, p.Src)
		st.setFormat(p.Encoding.ID, p.Encoding.Name)
		s.applyReverseHeuristic(st, p.Encoding.ID, p.Encoding.Name)
	}

	st.addPacket(p.Timestamp)
	s.changed = true
	return st
}

// applyReverseHeuristic creates a second Stream with src/dst swapped for
// peers that echo RTP back to the signaling source rather than the
// SDP-advertised endpoint.
func (s *Store) applyReverseHeuristic(st *Stream, fmtCode uint8, encoding string) {
	call := st.Call
	r := call.findStream(st.Dst, st.Src, StreamRTP)
	if r == nil {
		s.createReverse(call, st, fmtCode, encoding)
		return
	}
	if r.FormatSet && r.FmtCode != fmtCode {
		if call.findStreamExact(st.Dst, st.Src, StreamRTP, fmtCode) == nil {
			s.createReverse(call, st, fmtCode, encoding)
		}
	}
}

func (s *Store) createReverse(call *Call, st *Stream, fmtCode uint8, encoding string) {
	if !call.canAddMoreStreams() {
		s.counters.StreamLimitExceeded.Add(1)
		return
	}
	rev := newStream(call, st.Msg, st.Media, st.Dst, st.Src, StreamRTP)
	rev.setFormat(fmtCode, encoding)
	call.addStream(rev)
	s.indexGlobal(rev)
}

// IngestRTCP correlates a dissected RTCP packet with its Stream. This
// resolution is entirely independent of IngestRTP: it looks up the RTCP
// stream index on its own and never inherits a Stream resolved for RTP.
func (s *Store) IngestRTCP(p *proto.PacketRtcp) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.findStreamByFormat(p.Src, p.Dst, StreamRTCP, 0)
	if st == nil {
		s.counters.CorrelationMiss.Add(1)
		return nil
	}
	if !st.Complete {
		st.Call.completeStream(st, p.Src)
	}
	st.addPacket(p.Timestamp)
	s.changed = true
	return st
}

// FindByCallID looks up a Call by its Call-ID, or nil if absent.
func (s *Store) FindByCallID(callID string) *Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byCallID[callID]
}

// CallsCount returns the number of calls currently held.
func (s *Store) CallsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// Calls returns a snapshot slice of all calls in current sort order. The
// slice is safe to iterate after the lock is released: rotation/clear
// never mutate a Call already copied out, only the Store's own slices.
func (s *Store) Calls() []*Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ActiveCalls returns a snapshot slice of the active calls in insertion
// order.
func (s *Store) ActiveCalls() []*Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Call, len(s.active))
	copy(out, s.active)
	return out
}

// CallsChanged is a read-and-reset operation: it returns whether the call
// list, the active list, or any Call mutated since the last call, then
// clears the flag.
func (s *Store) CallsChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.changed
	s.changed = false
	return changed
}

// SetSortOptions assigns the new sort attribute/direction and re-sorts
// the call list stably.
func (s *Store) SetSortOptions(opts config.SortOpts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortBy, s.sortAsc = resolveSortOpts(opts)
	sort.SliceStable(s.calls, func(i, j int) bool { return s.less(s.calls[i], s.calls[j]) })
	s.changed = true
}

// SortOptions returns the currently active sort attribute/direction.
func (s *Store) SortOptions() (attr.Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortBy, s.sortAsc
}

// CaptureOptions returns the configured capture options.
func (s *Store) CaptureOptions() config.CaptureOpts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capture
}

// MatchExpr returns the configured match expression string.
func (s *Store) MatchExpr() string {
	return s.match.Expr()
}

// Counters returns a point-in-time snapshot of the drop counters.
func (s *Store) Counters() Snapshot {
	return s.counters.snapshot()
}

// Deinit releases every Call the store holds. Go's garbage collector
// reclaims Calls, Messages and Streams once the store's own slices and
// maps stop referencing them; Deinit exists to give callers an explicit
// end-of-use point.
func (s *Store) Deinit() {
	s.Clear()
}
