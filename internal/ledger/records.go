package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordColumns = "id, chat_id, message_id, caption, requester_name, catalog_ref, product_label, enrichment, enrichment_detail, replies, created_at, updated_at, resolved_at"

// Insert records a newly dispatched request.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("ledger insert: missing id")
	}
	ts := s.timestamp()
	enrichment := rec.Enrichment
	if enrichment == "" {
		enrichment = EnrichmentPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (
            id, chat_id, message_id, caption, requester_name, catalog_ref,
            product_label, enrichment, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.MessageID, rec.Caption, rec.RequesterName,
		rec.CatalogRef, rec.ProductLabel, string(enrichment), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert request %s: %w", rec.ID, err)
	}
	return nil
}

// MarkEnrichment stores the outcome of the secondary catalog message.
func (s *Store) MarkEnrichment(ctx context.Context, id string, state Enrichment, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET enrichment = ?, enrichment_detail = ?, updated_at = ? WHERE id = ?`,
		string(state), nullableString(detail), s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("mark enrichment %s: %w", id, err)
	}
	return nil
}

// MarkResolved counts an accepted operator reply for id. The first reply sets
// resolved_at; later ones only bump the counter.
func (s *Store) MarkResolved(ctx context.Context, id string) error {
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests
            SET replies = replies + 1,
                resolved_at = COALESCE(resolved_at, ?),
                updated_at = ?
          WHERE id = ?`,
		ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("mark resolved %s: %w", id, err)
	}
	return nil
}

// Get returns the record for id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM requests WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return rec, nil
}

// Recent lists the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM requests ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec        Record
		enrichment string
		detail     sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
		resolved   sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.ChatID,
		&rec.MessageID,
		&rec.Caption,
		&rec.RequesterName,
		&rec.CatalogRef,
		&rec.ProductLabel,
		&enrichment,
		&detail,
		&rec.Replies,
		&createdRaw,
		&updatedRaw,
		&resolved,
	); err != nil {
		return nil, err
	}
	rec.Enrichment = Enrichment(enrichment)
	rec.EnrichmentDetail = detail.String
	rec.CreatedAt = parseTime(createdRaw)
	rec.UpdatedAt = parseTime(updatedRaw)
	if t := parseTime(resolved); !t.IsZero() {
		rec.ResolvedAt = &t
	}
	return &rec, nil
}

// FirstSeen records a webhook update id and reports whether it was new.
func (s *Store) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seen_updates (update_id, seen_at) VALUES (?, ?)",
		updateID, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("record update %d: %w", updateID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record update %d: %w", updateID, err)
	}
	return n == 1, nil
}

// PruneSeen forgets update ids recorded before cutoff.
func (s *Store) PruneSeen(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM seen_updates WHERE seen_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune seen updates: %w", err)
	}
	return res.RowsAffected()
}
