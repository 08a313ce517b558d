package analyze

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/tracekit/blockscope/internal/model"
)

var traceEpoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// conn builds a test connection with the given lifetime and events.
func conn(id uint64, pid uint32, lifetime time.Duration, events ...model.BlockingEvent) model.Connection {
	return model.Connection{
		ID:        id,
		ProcessID: pid,
		Start:     traceEpoch,
		End:       traceEpoch.Add(lifetime),
		Events:    events,
	}
}

func TestTransformNilInput(t *testing.T) {
	t.Parallel()

	if _, err := Transform(nil); !errors.Is(err, ErrNoConnections) {
		t.Fatalf("Transform(nil) error = %v, want ErrNoConnections", err)
	}
}

func TestTransformEmptyInput(t *testing.T) {
	t.Parallel()

	rows, err := Transform([]model.Connection{})
	if err != nil {
		t.Fatalf("Transform(empty): %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("Transform(empty) produced %d rows, want 0", len(rows))
	}
}

func TestTransformDropsNoCauseEvents(t *testing.T) {
	t.Parallel()

	c := conn(1, 100, time.Second,
		model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Millisecond, Causes: 0},
		model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Millisecond, Causes: model.CausePacing},
		model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Millisecond, Causes: 0},
	)

	rows, err := Transform([]model.Connection{c})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}
	if rows[0].Reason != model.ReasonPacing {
		t.Errorf("reason = %q, want %q", rows[0].Reason, model.ReasonPacing)
	}
}

func TestTransformRowCountMatchesBlockedEvents(t *testing.T) {
	t.Parallel()

	conns := []model.Connection{
		conn(1, 100, time.Second,
			model.BlockingEvent{Duration: time.Millisecond, Causes: model.CauseScheduling},
			model.BlockingEvent{Duration: time.Millisecond, Causes: 0},
			model.BlockingEvent{Duration: time.Millisecond, Causes: model.CauseApp | model.CausePacing},
		),
		conn(2, 100, time.Second),
		conn(3, 200, time.Second,
			model.BlockingEvent{Duration: time.Millisecond, Causes: model.CauseCongestionControl},
		),
	}

	rows, err := Transform(conns)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want 3 (one per non-zero-mask event)", len(rows))
	}
}

func TestTransformEndToEndWeight(t *testing.T) {
	t.Parallel()

	// Lifetime 1,000,000 time units with one 250,000-unit pacing block.
	c := conn(7, 42, 1_000_000*time.Microsecond,
		model.BlockingEvent{
			Timestamp: traceEpoch.Add(100 * time.Microsecond),
			Duration:  250_000 * time.Microsecond,
			Causes:    model.CausePacing,
		},
	)

	rows, err := Transform([]model.Connection{c})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.ConnectionID != 7 || row.ProcessID != 42 {
		t.Errorf("row identity = (%d, %d), want (7, 42)", row.ConnectionID, row.ProcessID)
	}
	if row.Reason != model.ReasonPacing {
		t.Errorf("reason = %q, want %q", row.Reason, model.ReasonPacing)
	}
	if row.Duration != 250_000*time.Microsecond {
		t.Errorf("duration = %s, want 250ms", row.Duration)
	}
	if math.Abs(row.Percent-25.0) > 1e-9 {
		t.Errorf("percent = %v, want 25.0", row.Percent)
	}
	if row.Count != 1 {
		t.Errorf("count = %d, want 1", row.Count)
	}
}

func TestTransformPercentNeverExceedsHundred(t *testing.T) {
	t.Parallel()

	c := conn(1, 1, time.Second,
		model.BlockingEvent{Duration: time.Second, Causes: model.CauseApp},
		model.BlockingEvent{Duration: 300 * time.Millisecond, Causes: model.CauseScheduling},
	)

	rows, err := Transform([]model.Connection{c})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	for _, row := range rows {
		if row.Percent < 0 || row.Percent > 100 {
			t.Errorf("percent = %v for reason %q, want within [0, 100]", row.Percent, row.Reason)
		}
	}
}

func TestTransformZeroLifetimePolicy(t *testing.T) {
	t.Parallel()

	c := conn(9, 1, 0,
		model.BlockingEvent{Duration: time.Millisecond, Causes: model.CauseCongestionControl},
	)

	rows, err := Transform([]model.Connection{c})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}
	if rows[0].Percent != 0 {
		t.Errorf("zero-lifetime percent = %v, want 0", rows[0].Percent)
	}
}

func TestTransformRejectsEndBeforeStart(t *testing.T) {
	t.Parallel()

	bad := model.Connection{
		ID:    3,
		Start: traceEpoch,
		End:   traceEpoch.Add(-time.Second),
	}

	_, err := Transform([]model.Connection{bad})
	if !errors.Is(err, ErrInconsistentInput) {
		t.Fatalf("Transform error = %v, want ErrInconsistentInput", err)
	}
}

func TestTransformRejectsNegativeDuration(t *testing.T) {
	t.Parallel()

	bad := conn(4, 1, time.Second,
		model.BlockingEvent{Duration: -time.Millisecond, Causes: model.CausePacing},
	)

	_, err := Transform([]model.Connection{bad})
	if !errors.Is(err, ErrInconsistentInput) {
		t.Fatalf("Transform error = %v, want ErrInconsistentInput", err)
	}
}

func TestTransformNoPartialOutputOnError(t *testing.T) {
	t.Parallel()

	good := conn(1, 1, time.Second,
		model.BlockingEvent{Duration: time.Millisecond, Causes: model.CauseApp},
	)
	bad := conn(2, 1, time.Second,
		model.BlockingEvent{Duration: -time.Millisecond, Causes: model.CauseApp},
	)

	rows, err := Transform([]model.Connection{good, bad})
	if err == nil {
		t.Fatal("expected error for inconsistent input")
	}
	if rows != nil {
		t.Fatalf("got %d partial rows, want none", len(rows))
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	t.Parallel()

	conns := []model.Connection{
		conn(1, 10, 3*time.Second,
			model.BlockingEvent{Timestamp: traceEpoch, Duration: 100 * time.Millisecond, Causes: model.CauseScheduling},
			model.BlockingEvent{Timestamp: traceEpoch.Add(time.Second), Duration: 700 * time.Millisecond, Causes: model.CauseConnectionFlowControl | model.CauseApp},
		),
		conn(2, 20, 5*time.Second,
			model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Second, Causes: model.CauseAmplificationProtection},
		),
	}

	first, err := Transform(conns)
	if err != nil {
		t.Fatalf("Transform (first run): %v", err)
	}
	second, err := Transform(conns)
	if err != nil {
		t.Fatalf("Transform (second run): %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated Transform runs produced different row sequences")
	}
}

func TestTransformParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	conns := make([]model.Connection, 0, 50)
	for i := uint64(1); i <= 50; i++ {
		conns = append(conns, conn(i, uint32(i%5), time.Duration(i)*time.Second,
			model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Duration(i) * time.Millisecond, Causes: model.CausePacing},
			model.BlockingEvent{Timestamp: traceEpoch, Duration: time.Millisecond, Causes: 0},
			model.BlockingEvent{Timestamp: traceEpoch, Duration: 2 * time.Millisecond, Causes: model.CauseStreamFlowControl},
		))
	}

	sequential, err := Transform(conns)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	parallel, err := TransformParallel(context.Background(), conns, 8)
	if err != nil {
		t.Fatalf("TransformParallel: %v", err)
	}
	if !reflect.DeepEqual(sequential, parallel) {
		t.Fatal("parallel transform differs from sequential transform")
	}
}

func TestTransformParallelNilInput(t *testing.T) {
	t.Parallel()

	if _, err := TransformParallel(context.Background(), nil, 4); !errors.Is(err, ErrNoConnections) {
		t.Fatalf("TransformParallel(nil) error = %v, want ErrNoConnections", err)
	}
}

func TestTransformDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	events := []model.BlockingEvent{
		{Timestamp: traceEpoch, Duration: time.Millisecond, Causes: model.CausePacing},
	}
	c := conn(1, 1, time.Second, events...)
	before := c

	if _, err := Transform([]model.Connection{c}); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !reflect.DeepEqual(before, c) || !reflect.DeepEqual(before.Events, events) {
		t.Fatal("Transform mutated its input")
	}
}
