package duckdb

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// InsertRecords appends records in a single transaction. If the batch
// fails it is retried record by record and failing records are dropped.
func (s *Store) InsertRecords(records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, records)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("duckdb: insert records: %w", err)
	}

	var failed int
	for _, r := range records {
		if rerr := s.insertBatchTx(ctx, []model.LogRecord{r}); rerr != nil {
			failed++
			s.log.Warn().Err(rerr).Int("id", r.ID).Str("path", r.Request.Path).Msg("duckdb: dropping record")
		}
	}
	if failed > 0 {
		s.log.Warn().Int("failed", failed).Int("total", len(records)).Msg("duckdb: batch partially failed")
	}
	return nil
}

// insertBatchTx inserts records in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, records []model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO access_logs
		(id, ip, ts, timestamp_ms, method, path, protocol_version, status, size, user_agent, is_anomaly, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.IP, time.UnixMilli(r.Timestamp).UTC(), r.Timestamp,
			r.Request.Method, r.Request.Path, r.Request.ProtocolVersion,
			r.Status, r.Size, r.UserAgent, r.IsAnomaly, r.Note,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// InsertAnomalies replaces the stored anomalies and their evidence links
// and marks evidence records as anomalous. Records keep the first note
// they were flagged with.
func (s *Store) InsertAnomalies(anomalies []model.Anomaly) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: insert anomalies: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{`DELETE FROM anomaly_evidence`, `DELETE FROM anomalies`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("duckdb: clear anomalies: %w", err)
		}
	}

	for _, a := range anomalies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO anomalies (id, rule, subject, reason, note, evidence_count) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Rule, a.Subject, a.Reason, a.Note, len(a.RelatedLogs),
		); err != nil {
			return fmt.Errorf("duckdb: insert anomaly %s: %w", a.ID, err)
		}
		for pos, r := range a.RelatedLogs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO anomaly_evidence (anomaly_id, record_id, position) VALUES (?, ?, ?)`,
				a.ID, r.ID, pos,
			); err != nil {
				return fmt.Errorf("duckdb: link evidence %s/%d: %w", a.ID, r.ID, err)
			}
			note := r.Note
			if note == "" {
				note = a.Reason
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE access_logs SET is_anomaly = true, note = ? WHERE id = ? AND NOT is_anomaly`,
				note, r.ID,
			); err != nil {
				return fmt.Errorf("duckdb: flag record %d: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit anomalies: %w", err)
	}
	committed = true
	return nil
}

// Reset deletes every mirrored row so a new record set can be loaded.
func (s *Store) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"anomaly_evidence", "anomalies", "access_logs"} {
		// Table names are hardcoded constants, not user input.
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("duckdb: reset %s: %w", table, err)
		}
	}
	return nil
}
