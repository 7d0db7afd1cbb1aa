package duckdb

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// dangerousKeywordPattern matches dangerous SQL keywords at word boundaries.
// This avoids false positives like "RESET" matching "SET".
// Applied after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// QueryOpts restricts store queries. Zero values mean unbounded.
type QueryOpts struct {
	FromMillis int64 // inclusive
	ToMillis   int64 // inclusive
	IP         string
}

// where returns a WHERE clause and args for opts.
func (o QueryOpts) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if o.FromMillis != 0 {
		conds = append(conds, "timestamp_ms >= ?")
		args = append(args, o.FromMillis)
	}
	if o.ToMillis != 0 {
		conds = append(conds, "timestamp_ms <= ?")
		args = append(args, o.ToMillis)
	}
	if o.IP != "" {
		conds = append(conds, "ip = ?")
		args = append(args, o.IP)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

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

// TotalRequests returns the number of mirrored records matching opts.
func (s *Store) TotalRequests(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := opts.where()
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM access_logs %s`, where), args...).Scan(&count)
	return count, err
}

// TotalBytes sums response sizes of records matching opts.
func (s *Store) TotalBytes(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := opts.where()
	var total int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT CAST(COALESCE(SUM(size), 0) AS BIGINT) FROM access_logs %s`, where), args...).Scan(&total)
	return total, err
}

// UniqueVisitors counts distinct client IPs matching opts. The empty IP
// counts as one visitor.
func (s *Store) UniqueVisitors(opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := opts.where()
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(DISTINCT ip) FROM access_logs %s`, where), args...).Scan(&count)
	return count, err
}

// TopPaths returns paths by descending request count. Ties are broken by
// the first record that requested the path.
func (s *Store) TopPaths(limit int, opts QueryOpts) ([]model.PathCount, error) {
	if limit <= 0 {
		limit = model.DefaultTopPathsLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := opts.where()
	query := fmt.Sprintf(`
		SELECT path, COUNT(*) AS cnt
		FROM access_logs %s
		GROUP BY path
		ORDER BY cnt DESC, MIN(id) ASC
		LIMIT ?`, where)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.PathCount
	for rows.Next() {
		var pc model.PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			s.log.Warn().Err(err).Msg("duckdb scan error (TopPaths)")
			continue
		}
		result = append(result, pc)
	}
	return result, rows.Err()
}

// StatusDistribution counts matching records per status class.
func (s *Store) StatusDistribution(opts QueryOpts) (model.StatusDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := opts.where()
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE status BETWEEN 200 AND 299),
			COUNT(*) FILTER (WHERE status BETWEEN 300 AND 399),
			COUNT(*) FILTER (WHERE status BETWEEN 400 AND 499),
			COUNT(*) FILTER (WHERE status BETWEEN 500 AND 599)
		FROM access_logs %s`, where)

	var d model.StatusDistribution
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&d.Success, &d.Redirection, &d.ClientError, &d.ServerError)
	return d, err
}

// AnomalyEvidence returns the stored evidence records of an anomaly in
// evidence order.
func (s *Store) AnomalyEvidence(anomalyID string) ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.ip, l.timestamp_ms, l.method, l.path, l.protocol_version,
			l.status, l.size, l.user_agent, l.is_anomaly, l.note
		FROM anomaly_evidence e
		JOIN access_logs l ON l.id = e.record_id
		WHERE e.anomaly_id = ?
		ORDER BY e.position`, anomalyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.LogRecord
	for rows.Next() {
		var r model.LogRecord
		if err := rows.Scan(&r.ID, &r.IP, &r.Timestamp, &r.Request.Method, &r.Request.Path,
			&r.Request.ProtocolVersion, &r.Status, &r.Size, &r.UserAgent, &r.IsAnomaly, &r.Note); err != nil {
			s.log.Warn().Err(err).Msg("duckdb scan error (AnomalyEvidence)")
			continue
		}
		result = append(result, r)
	}
	return result, rows.Err()
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
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.log.Warn().Err(err).Msg("duckdb scan error (ExecuteQuery)")
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description.
func (s *Store) GetSchemaDescription() string {
	return `Table 'access_logs': id (BIGINT, load order), ip (VARCHAR), ts (TIMESTAMP, UTC), ` +
		`timestamp_ms (BIGINT), method (VARCHAR), path (VARCHAR), protocol_version (VARCHAR), ` +
		`status (INTEGER), size (BIGINT), user_agent (VARCHAR), is_anomaly (BOOLEAN), note (VARCHAR). ` +
		`Table 'anomalies': id (VARCHAR), rule (VARCHAR), subject (VARCHAR), reason (VARCHAR), ` +
		`note (VARCHAR), evidence_count (INTEGER), detected_at (TIMESTAMP). ` +
		`Table 'anomaly_evidence': anomaly_id (VARCHAR), record_id (BIGINT), position (INTEGER).`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"access_logs", "anomalies", "anomaly_evidence"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("duckdb: count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
