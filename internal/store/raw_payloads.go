package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// RawPayload is a stored copy of an imported source file.
type RawPayload struct {
	ID                int64
	ImportRunID       sql.NullInt64
	FetchedAt         time.Time
	Kind              string
	Location          string
	PayloadCompressed []byte
	PayloadHash       string
}

// PayloadHash returns the hex sha256 of payload, the identity used to
// detect re-imports of unchanged files.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreRawPayload stores a compressed copy of an imported file and returns
// its ID. Storing content that is already present refreshes the existing
// row so it becomes the latest payload of its kind again.
func (s *Store) StoreRawPayload(ctx context.Context, runID *int64, kind, location string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	var importRunID sql.NullInt64
	if runID != nil {
		importRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	hash := PayloadHash(payload)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (import_run_id, fetched_at, kind, location, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, payload_hash) DO UPDATE SET
			import_run_id = excluded.import_run_id,
			fetched_at = excluded.fetched_at,
			location = excluded.location
	`, importRunID, time.Now().UTC(), kind, location, buf.Bytes(), hash); err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM raw_payloads WHERE kind = ? AND payload_hash = ?`, kind, hash).Scan(&id)
	return id, err
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payload %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// LatestRawPayload returns the most recently stored payload of kind, or
// nil if none has been stored.
func (s *Store) LatestRawPayload(ctx context.Context, kind string) (*RawPayload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, import_run_id, fetched_at, kind, location, payload_compressed, payload_hash
		FROM raw_payloads WHERE kind = ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1
	`, kind)

	var p RawPayload
	err := row.Scan(&p.ID, &p.ImportRunID, &p.FetchedAt, &p.Kind, &p.Location,
		&p.PayloadCompressed, &p.PayloadHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CleanupOldRawPayloads deletes raw payloads older than the specified number
// of days. Returns the number of deleted records.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_payloads
		WHERE fetched_at < ?
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
