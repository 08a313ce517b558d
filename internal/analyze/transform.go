package analyze

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracekit/blockscope/internal/model"
	"golang.org/x/sync/errgroup"
)

// ErrNoConnections reports an absent (nil) connection collection. An empty
// collection is valid input and yields zero rows.
var ErrNoConnections = errors.New("analyze: connection collection is nil")

// ErrInconsistentInput reports trace data that violates the extraction
// contract (a connection ending before it starts, or a negative event
// duration). The transform rejects the whole input rather than clamping.
var ErrInconsistentInput = errors.New("analyze: inconsistent trace input")

// connEvent pairs one connection with one of its blocking events so the
// per-event expansion below stays self-documenting.
type connEvent struct {
	conn  *model.Connection
	event model.BlockingEvent
}

// Transform expands every (connection, event) pair into classified,
// duration-weighted analysis rows. Events with no active cause produce no
// row; everything else produces exactly one, in source order. The input is
// never mutated and the result is deterministic: the same input always
// yields an identical row sequence.
func Transform(conns []model.Connection) ([]model.AnalysisRow, error) {
	if conns == nil {
		return nil, ErrNoConnections
	}

	var rows []model.AnalysisRow
	for i := range conns {
		connRows, err := rowsForConnection(&conns[i])
		if err != nil {
			return nil, err
		}
		rows = append(rows, connRows...)
	}
	return rows, nil
}

// TransformParallel is Transform with per-connection fan-out. Connections
// are independent, so each worker builds one connection's rows in isolation
// and the results are stitched back together in source order. Output is
// identical to Transform for the same input.
func TransformParallel(ctx context.Context, conns []model.Connection, workers int) ([]model.AnalysisRow, error) {
	if conns == nil {
		return nil, ErrNoConnections
	}
	if workers <= 1 || len(conns) < 2 {
		return Transform(conns)
	}

	perConn := make([][]model.AnalysisRow, len(conns))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range conns {
		g.Go(func() error {
			connRows, err := rowsForConnection(&conns[i])
			if err != nil {
				return err
			}
			perConn[i] = connRows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []model.AnalysisRow
	for _, connRows := range perConn {
		rows = append(rows, connRows...)
	}
	return rows, nil
}

// rowsForConnection validates one connection and expands its events into
// rows. Classification drops no-cause events; the weight step attributes
// each remaining event's duration against the connection lifetime.
func rowsForConnection(conn *model.Connection) ([]model.AnalysisRow, error) {
	if err := validateConnection(conn); err != nil {
		return nil, err
	}

	lifetime := conn.Lifetime()
	var rows []model.AnalysisRow
	for _, event := range conn.Events {
		pair := connEvent{conn: conn, event: event}
		reason := Classify(pair.event.Causes)
		if reason == model.ReasonNone {
			continue
		}
		rows = append(rows, model.AnalysisRow{
			ConnectionID: pair.conn.ID,
			ProcessID:    pair.conn.ProcessID,
			Reason:       reason,
			Timestamp:    pair.event.Timestamp,
			Duration:     pair.event.Duration,
			Percent:      percentOfLifetime(lifetime, pair.event.Duration),
			Count:        1,
		})
	}
	return rows, nil
}

func validateConnection(conn *model.Connection) error {
	if conn.End.Before(conn.Start) {
		return fmt.Errorf("%w: connection %d ends %s before it starts",
			ErrInconsistentInput, conn.ID, conn.Start.Sub(conn.End))
	}
	for i, event := range conn.Events {
		if event.Duration < 0 {
			return fmt.Errorf("%w: connection %d event %d has negative duration %s",
				ErrInconsistentInput, conn.ID, i, event.Duration)
		}
	}
	return nil
}
