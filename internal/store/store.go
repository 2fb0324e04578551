// Package store persists normalized permit records. The SQLite store is the
// cross-run dedup ledger keyed by fingerprint; the file exporter writes
// per-run JSON and CSV snapshots for downstream consumers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"permitwatch/internal/permit"
)

const schema = `
CREATE TABLE IF NOT EXISTS permits (
	fingerprint  TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	issued_date  TEXT NOT NULL,
	permit_no    TEXT,
	permit_type  TEXT,
	status       TEXT,
	site_apn     TEXT,
	site_address TEXT,
	score        INTEGER NOT NULL,
	tier         TEXT NOT NULL,
	reason       TEXT NOT NULL,
	provenance   TEXT NOT NULL,
	first_seen   TEXT NOT NULL,
	last_seen    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permits_issued ON permits(issued_date);
CREATE INDEX IF NOT EXISTS idx_permits_tier ON permits(tier);
`

// SQLite is the durable record store. Re-observing a known fingerprint
// refreshes its mutable columns and last_seen instead of inserting a
// duplicate.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates or opens the database at path, applying the schema and the
// WAL pragmas suited to a single-writer batch workload.
func Open(path string, log *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Persist upserts the batch in one transaction. The fingerprint is the
// identity; status, classification, and last_seen refresh on conflict
// because the portal can amend a permit after first observation.
func (s *SQLite) Persist(ctx context.Context, records []permit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO permits (
			fingerprint, source, jurisdiction, issued_date,
			permit_no, permit_type, status, site_apn, site_address,
			score, tier, reason, provenance, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			status     = excluded.status,
			score      = excluded.score,
			tier       = excluded.tier,
			reason     = excluded.reason,
			provenance = excluded.provenance,
			last_seen  = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		seen := rec.ScrapedAt.UTC().Format(time.RFC3339)
		_, err := stmt.ExecContext(ctx,
			rec.Fingerprint, rec.Source, rec.Jurisdiction, rec.IssuedDate,
			nullString(rec.PermitID), nullString(rec.Category), nullString(rec.Status),
			nullString(rec.ParcelID), nullString(rec.Address),
			rec.Classification.Score, rec.Classification.Tier, rec.Classification.Reason,
			string(rec.Provenance), seen, seen)
		if err != nil {
			return fmt.Errorf("upsert permit %s: %w", rec.Fingerprint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.log.Debug("batch persisted", zap.Int("records", len(records)))
	return nil
}

// ByIssuedDate returns the stored records for one issued date in
// insertion order.
func (s *SQLite) ByIssuedDate(ctx context.Context, date string) ([]permit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, source, jurisdiction, issued_date,
			permit_no, permit_type, status, site_apn, site_address,
			score, tier, reason, provenance, last_seen
		FROM permits WHERE issued_date = ? ORDER BY rowid`, date)
	if err != nil {
		return nil, fmt.Errorf("query permits for %s: %w", date, err)
	}
	defer rows.Close()

	var records []permit.Record
	for rows.Next() {
		var rec permit.Record
		var permitNo, permitType, status, apn, address sql.NullString
		var provenance, lastSeen string
		err := rows.Scan(
			&rec.Fingerprint, &rec.Source, &rec.Jurisdiction, &rec.IssuedDate,
			&permitNo, &permitType, &status, &apn, &address,
			&rec.Classification.Score, &rec.Classification.Tier, &rec.Classification.Reason,
			&provenance, &lastSeen)
		if err != nil {
			return nil, fmt.Errorf("scan permit row: %w", err)
		}
		rec.PermitID = fromNull(permitNo)
		rec.Category = fromNull(permitType)
		rec.Status = fromNull(status)
		rec.ParcelID = fromNull(apn)
		rec.Address = fromNull(address)
		rec.Provenance = permit.Provenance(provenance)
		if ts, err := time.Parse(time.RFC3339, lastSeen); err == nil {
			rec.ScrapedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
