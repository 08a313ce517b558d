package duckdb

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/tracekit/blockscope/internal/model"
)

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
// Used as defense-in-depth after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// rowFilter returns a WHERE clause and args for the optional query filters.
func rowFilter(opts QueryOpts) (clause string, args []interface{}) {
	var conditions []string
	if opts.Reason != "" {
		conditions = append(conditions, "reason = ?")
		args = append(args, opts.Reason)
	}
	if opts.ProcessID != 0 {
		conditions = append(conditions, "process_id = ?")
		args = append(args, opts.ProcessID)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// TotalRowCount returns the number of stored analysis rows.
func (s *Store) TotalRowCount(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM block_rows %s`, where)

	var count int64
	err := s.db.QueryRowContext(ctx, query, wArgs...).Scan(&count)
	return count, err
}

// TotalBlockedTime returns the summed blocked duration in nanoseconds.
func (s *Store) TotalBlockedTime(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`SELECT COALESCE(SUM(duration_ns), 0) FROM block_rows %s`, where)

	var total int64
	err := s.db.QueryRowContext(ctx, query, wArgs...).Scan(&total)
	return total, err
}

// ReasonBreakdown returns per-reason blocked time and row counts, heaviest
// reason first.
func (s *Store) ReasonBreakdown(opts QueryOpts) ([]ReasonStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`
		SELECT reason, SUM(duration_ns) AS blocked_ns, COUNT(*) AS count
		FROM block_rows %s
		GROUP BY reason
		ORDER BY blocked_ns DESC, reason ASC`, where)

	rows, err := s.db.QueryContext(ctx, query, wArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ReasonStat
	for rows.Next() {
		var stat ReasonStat
		var reason string
		if err := rows.Scan(&reason, &stat.TotalDuration, &stat.Count); err != nil {
			log.Printf("duckdb scan error (ReasonBreakdown): %v", err)
			continue
		}
		stat.Reason = model.Reason(reason)
		results = append(results, stat)
	}
	return results, rows.Err()
}

// TopProcesses returns processes by descending blocked time.
func (s *Store) TopProcesses(limit int, opts QueryOpts) ([]ProcessStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`
		SELECT process_id, SUM(duration_ns) AS blocked_ns, COUNT(*) AS count
		FROM block_rows %s
		GROUP BY process_id
		ORDER BY blocked_ns DESC, process_id ASC
		LIMIT ?`, where)

	args := append(wArgs, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ProcessStat
	for rows.Next() {
		var stat ProcessStat
		if err := rows.Scan(&stat.ProcessID, &stat.TotalDuration, &stat.Count); err != nil {
			log.Printf("duckdb scan error (TopProcesses): %v", err)
			continue
		}
		results = append(results, stat)
	}
	return results, rows.Err()
}

// TopConnections returns connections by descending blocked time, with the
// summed percent-of-lifetime weight for each.
func (s *Store) TopConnections(limit int, opts QueryOpts) ([]ConnectionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`
		SELECT connection_id, process_id,
		       SUM(duration_ns) AS blocked_ns,
		       SUM(percent) AS blocked_pct,
		       COUNT(*) AS count
		FROM block_rows %s
		GROUP BY connection_id, process_id
		ORDER BY blocked_ns DESC, connection_id ASC
		LIMIT ?`, where)

	args := append(wArgs, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ConnectionStat
	for rows.Next() {
		var stat ConnectionStat
		if err := rows.Scan(&stat.ConnectionID, &stat.ProcessID, &stat.TotalDuration, &stat.TotalPercent, &stat.Count); err != nil {
			log.Printf("duckdb scan error (TopConnections): %v", err)
			continue
		}
		results = append(results, stat)
	}
	return results, rows.Err()
}

// RowsFiltered returns stored rows matching the filters, most recent interval
// first, capped at limit.
func (s *Store) RowsFiltered(limit int, opts QueryOpts) ([]AnalysisRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := rowFilter(opts)
	query := fmt.Sprintf(`
		SELECT connection_id, process_id, reason, timestamp, duration_ns, percent, count
		FROM block_rows %s
		ORDER BY timestamp DESC, connection_id ASC
		LIMIT ?`, where)

	args := append(wArgs, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AnalysisRow
	for rows.Next() {
		var r AnalysisRow
		var reason string
		var durationNs int64
		if err := rows.Scan(&r.ConnectionID, &r.ProcessID, &reason, &r.Timestamp, &durationNs, &r.Percent, &r.Count); err != nil {
			log.Printf("duckdb scan error (RowsFiltered): %v", err)
			continue
		}
		r.Reason = model.Reason(reason)
		r.Duration = time.Duration(durationNs)
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteBefore removes rows persisted before the cutoff and returns the
// number deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM block_rows WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	// Reject semicolons to prevent statement chaining.
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Strip SQL comments so keywords hidden in comments are still caught.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	// Defense-in-depth: reject dangerous keywords after comment stripping.
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := 1000

	for rows.Next() && len(results) < maxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description for
// query consumers.
func (s *Store) GetSchemaDescription() string {
	return `Table 'block_rows': connection_id (UBIGINT), process_id (UINTEGER), ` +
		`reason (VARCHAR: Scheduling/Pacing/AmplificationProtection/CongestionControl/` +
		`ConnectionFlowControl/StreamFlowControl/App/StreamIdFlowControl), ` +
		`timestamp (TIMESTAMP), duration_ns (BIGINT), percent (DOUBLE), ` +
		`count (INTEGER, always 1), created_at (TIMESTAMP).`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"block_rows"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}
