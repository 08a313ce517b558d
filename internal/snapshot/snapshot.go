// Package snapshot decodes materialized connection snapshots produced by the
// upstream trace extractor. It handles serialization of the input contract
// only; parsing raw trace buffers stays upstream.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tracekit/blockscope/internal/model"
)

// wireEvent is one blocking event as serialized by the extractor.
// Offsets are microseconds, matching the trace clock resolution.
type wireEvent struct {
	TimestampUs int64  `json:"timestamp_us"`
	DurationUs  int64  `json:"duration_us"`
	Causes      uint32 `json:"causes"`
}

// wireConnection is one connection as serialized by the extractor.
type wireConnection struct {
	ID        uint64      `json:"id"`
	ProcessID uint32      `json:"process_id"`
	StartUs   int64       `json:"start_us"`
	EndUs     int64       `json:"end_us"`
	Events    []wireEvent `json:"events"`
}

// envelope is the snapshot document shape. A bare top-level array of
// connections is also accepted.
type envelope struct {
	Connections []wireConnection `json:"connections"`
}

// Decode reads one snapshot document from r. Both the envelope form
// {"connections": [...]} and a bare connection array are accepted. The
// result is never nil on success: an empty document decodes to an empty,
// valid collection.
func Decode(r io.Reader) ([]model.Connection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return decodeDocument(data)
}

// DecodeFile reads one snapshot document from the given path.
func DecodeFile(path string) ([]model.Connection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()

	conns, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return conns, nil
}

func decodeDocument(data []byte) ([]model.Connection, error) {
	var wrapped envelope
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Connections != nil {
		return convert(wrapped.Connections), nil
	}

	var bare []wireConnection
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("snapshot is neither a connection envelope nor a connection array: %w", err)
	}
	return convert(bare), nil
}

func convert(wire []wireConnection) []model.Connection {
	conns := make([]model.Connection, 0, len(wire))
	for _, wc := range wire {
		conn := model.Connection{
			ID:        wc.ID,
			ProcessID: wc.ProcessID,
			Start:     time.UnixMicro(wc.StartUs).UTC(),
			End:       time.UnixMicro(wc.EndUs).UTC(),
		}
		if len(wc.Events) > 0 {
			conn.Events = make([]model.BlockingEvent, 0, len(wc.Events))
			for _, we := range wc.Events {
				conn.Events = append(conn.Events, model.BlockingEvent{
					Timestamp: time.UnixMicro(we.TimestampUs).UTC(),
					Duration:  time.Duration(we.DurationUs) * time.Microsecond,
					Causes:    model.CauseMask(we.Causes),
				})
			}
		}
		conns = append(conns, conn)
	}
	return conns
}
