package duckdb

import "github.com/tracekit/blockscope/internal/model"

// Type aliases re-export model types so Store method signatures stay terse
// at the call sites that already import this package.
type AnalysisRow = model.AnalysisRow
type QueryOpts = model.QueryOpts
type ReasonStat = model.ReasonStat
type ProcessStat = model.ProcessStat
type ConnectionStat = model.ConnectionStat
type RowQuerier = model.RowQuerier
type SchemaQuerier = model.SchemaQuerier
type RowWriter = model.RowWriter
type RowReader = model.RowReader
