package model

import "time"

// CauseMask is a set of simultaneously-active send-blocking causes attached
// to one event, using the trace encoding of the flags.
type CauseMask uint32

// Individual blocking-cause flags as they appear in trace data.
const (
	CauseScheduling              CauseMask = 0x01
	CausePacing                  CauseMask = 0x02
	CauseAmplificationProtection CauseMask = 0x04
	CauseCongestionControl       CauseMask = 0x08
	CauseConnectionFlowControl   CauseMask = 0x10
	CauseStreamIDFlowControl     CauseMask = 0x20
	CauseStreamFlowControl       CauseMask = 0x40
	CauseApp                     CauseMask = 0x80
)

// Has reports whether the mask contains the given cause flag.
func (m CauseMask) Has(flag CauseMask) bool { return m&flag != 0 }

// Reason is the canonical label reported for a blocking event. Exactly one
// reason is reported per event even when several cause bits are set.
type Reason string

const (
	ReasonNone                    Reason = "None"
	ReasonScheduling              Reason = "Scheduling"
	ReasonPacing                  Reason = "Pacing"
	ReasonAmplificationProtection Reason = "AmplificationProtection"
	ReasonCongestionControl       Reason = "CongestionControl"
	ReasonConnectionFlowControl   Reason = "ConnectionFlowControl"
	ReasonStreamFlowControl       Reason = "StreamFlowControl"
	ReasonApp                     Reason = "App"
	ReasonStreamIDFlowControl     Reason = "StreamIdFlowControl"
)

// BlockingEvent is one recorded interval during which a connection could not
// send. Duration is never negative in well-formed input.
type BlockingEvent struct {
	Timestamp time.Time
	Duration  time.Duration
	Causes    CauseMask
}

// Connection is one traced connection with its ordered blocking events.
// Start and End bound the connection's observed lifetime; End is not before
// Start in well-formed input. Connections are owned by the upstream
// extractor and never mutated here.
type Connection struct {
	ID        uint64
	ProcessID uint32
	Start     time.Time
	End       time.Time
	Events    []BlockingEvent
}

// Lifetime is the duration between the connection's first and last observed
// activity.
func (c Connection) Lifetime() time.Duration { return c.End.Sub(c.Start) }

// AnalysisRow is one classified, duration-weighted blocking interval.
// Rows are immutable once built; Reason is never None and Percent is the
// event duration as a percentage of the owning connection's lifetime
// (0 for a zero-length lifetime).
type AnalysisRow struct {
	ConnectionID uint64
	ProcessID    uint32
	Reason       Reason
	Timestamp    time.Time
	Duration     time.Duration
	Percent      float64
	Count        int // always 1; kept explicit so consumers can SUM it
}
