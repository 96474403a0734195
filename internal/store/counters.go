package store

import (
	"sync"
	"sync/atomic"

	"github.com/sipcorrelator/otuscorr/internal/log"
)

// DropCounters tallies every admission/correlation/dissector drop path.
// Ingestion never logs per-packet, so these counters are the only record
// of what got dropped and why. Each field is independently atomic; Store
// never holds its write lock just to bump a counter.
type DropCounters struct {
	AdmissionFilter        atomic.Uint64 // match.expr rejected the payload
	AdmissionInviteOnly    atomic.Uint64 // match.invite_only dropped a non-INVITE first message
	AdmissionCompleteOnly  atomic.Uint64 // match.complete_only dropped a response/ACK-first message
	AllLockedFIFOFull      atomic.Uint64 // capture.limit reached and every call is locked
	CorrelationMiss        atomic.Uint64 // RTP/RTCP packet with no matching stream
	StreamLimitExceeded    atomic.Uint64 // per-call stream cap reached
	DissectorInconsistency atomic.Uint64 // malformed/incomplete dissected packet
}

// Snapshot is a point-in-time copy of DropCounters suitable for display.
type Snapshot struct {
	AdmissionFilter        uint64
	AdmissionInviteOnly    uint64
	AdmissionCompleteOnly  uint64
	AllLockedFIFOFull      uint64
	CorrelationMiss        uint64
	StreamLimitExceeded    uint64
	DissectorInconsistency uint64
}

func (c *DropCounters) snapshot() Snapshot {
	return Snapshot{
		AdmissionFilter:        c.AdmissionFilter.Load(),
		AdmissionInviteOnly:    c.AdmissionInviteOnly.Load(),
		AdmissionCompleteOnly:  c.AdmissionCompleteOnly.Load(),
		AllLockedFIFOFull:      c.AllLockedFIFOFull.Load(),
		CorrelationMiss:        c.CorrelationMiss.Load(),
		StreamLimitExceeded:    c.StreamLimitExceeded.Load(),
		DissectorInconsistency: c.DissectorInconsistency.Load(),
	}
}

// diagnosticLog logs a dissector-inconsistency reason at most once per
// distinct reason string, so a flood of malformed packets produces one
// log line, not one per packet.
type diagnosticLog struct {
	mu     sync.Mutex
	seen   map[string]bool
	logger log.Logger
}

func newDiagnosticLog(logger log.Logger) *diagnosticLog {
	return &diagnosticLog{seen: make(map[string]bool), logger: logger}
}

func (d *diagnosticLog) once(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[reason] {
		return
	}
	d.seen[reason] = true
	d.logger.WithField("reason", reason).Warn("dissector inconsistency, suppressing further occurrences of this reason")
}
