package model

// QueryOpts holds optional filters applied to most queries.
type QueryOpts struct {
	Reason    string // empty = all reasons
	ProcessID uint32 // 0 = all processes
}

// ReasonStat is the aggregate weight of one blocking reason.
type ReasonStat struct {
	Reason        Reason
	TotalDuration int64 // nanoseconds
	Count         int64
}

// ProcessStat is the aggregate blocked time attributed to one process.
type ProcessStat struct {
	ProcessID     uint32
	TotalDuration int64 // nanoseconds
	Count         int64
}

// ConnectionStat is the aggregate blocked share of one connection.
type ConnectionStat struct {
	ConnectionID  uint64
	ProcessID     uint32
	TotalDuration int64 // nanoseconds
	TotalPercent  float64
	Count         int64
}

// RowQuerier provides read-only queries on stored analysis rows.
type RowQuerier interface {
	TotalRowCount(opts QueryOpts) (int64, error)
	TotalBlockedTime(opts QueryOpts) (int64, error)
	ReasonBreakdown(opts QueryOpts) ([]ReasonStat, error)
	TopProcesses(limit int, opts QueryOpts) ([]ProcessStat, error)
	TopConnections(limit int, opts QueryOpts) ([]ConnectionStat, error)
	RowsFiltered(limit int, opts QueryOpts) ([]AnalysisRow, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// RowWriter provides append-oriented write operations for analysis rows.
type RowWriter interface {
	InsertRowBatch(rows []*AnalysisRow) error
}

// RowReader is the unified read-side query contract.
type RowReader interface {
	RowQuerier
	SchemaQuerier
}
