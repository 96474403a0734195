package store

// DisplayFilter is the display-filter predicate ClearSoft and ComputeStats apply
// to each Call. It is supplied by the caller (a UI or CLI collaborator)
// rather than owned by the store — filter-expression evaluation beyond
// the single capture-time match regex is not this package's concern.
type DisplayFilter func(*Call) bool

// rotateLocked scans the call list in order and removes the first
// unlocked Call, cascading the removal to the active list, the Call-ID
// index and the global stream index. Callers must already hold s.mu for
// writing. It returns false if every call is locked, in which case the
// call list is left unchanged.
func (s *Store) rotateLocked() bool {
	for i, c := range s.calls {
		if c.Locked {
			continue
		}
		s.removeCallAt(i)
		return true
	}
	return false
}

// removeCallAt deletes s.calls[i] and all of its index entries. Go's
// garbage collector reclaims the Call's Messages and Streams once the
// last reference (the Call itself) is dropped; no explicit destructor
// bookkeeping is needed.
func (s *Store) removeCallAt(i int) {
	c := s.calls[i]

	s.calls = append(s.calls[:i], s.calls[i+1:]...)
	delete(s.byCallID, c.CallID)

	for j, a := range s.active {
		if a == c {
			s.active = append(s.active[:j], s.active[j+1:]...)
			break
		}
	}

	for _, st := range c.Streams {
		s.unindexGlobal(st)
	}
}

func (s *Store) unindexGlobal(st *Stream) {
	k := dstKey{st.Dst, st.Type}
	list := s.streamsByDst[k]
	for i, cand := range list {
		if cand == st {
			s.streamsByDst[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.streamsByDst[k]) == 0 {
		delete(s.streamsByDst, k)
	}
}

// Clear truncates the call list, the active list and the Call-ID index.
// All Calls are destroyed.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.active = nil
	s.byCallID = make(map[string]*Call)
	s.streamsByDst = make(map[dstKey][]*Stream)
	s.changed = true
}

// ClearSoft produces a fresh call list and active list containing only
// Calls that satisfy filter, rebuilding the Call-ID index from them.
// Calls filter rejects are destroyed. The active list is rebuilt by
// filtering the existing active list rather than rederiving it from the
// (possibly differently sorted) call list, so its insertion order is
// preserved.
func (s *Store) ClearSoft(filter DisplayFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.calls[:0:0]
	byCallID := make(map[string]*Call, len(s.calls))

	for _, c := range s.calls {
		if !filter(c) {
			continue
		}
		kept = append(kept, c)
		byCallID[c.CallID] = c
	}

	active := s.active[:0:0]
	for _, c := range s.active {
		if filter(c) {
			active = append(active, c)
		}
	}

	s.calls = kept
	s.byCallID = byCallID
	s.active = active

	streamsByDst := make(map[dstKey][]*Stream)
	for _, c := range s.calls {
		for _, st := range c.Streams {
			k := dstKey{st.Dst, st.Type}
			streamsByDst[k] = append(streamsByDst[k], st)
		}
	}
	s.streamsByDst = streamsByDst

	s.changed = true
}
