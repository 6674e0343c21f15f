package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
)

// finishedStatuses lists statuses that no longer change
var finishedStatuses = []any{
	string(domain.PhaseCompleted),
	string(domain.PhaseCancelled),
	string(domain.PhaseFailed),
	domain.HistoryStatusCleared,
}

const transferColumns = `session_key, transfer_id, url, dest_dir, file_name, status,
	last_error, bytes_received, total_bytes, created_at, updated_at`

// UpsertTransfer inserts or replaces a transfer record
func (s *Store) UpsertTransfer(rec *domain.TransferRecord) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key, transfer_id) DO UPDATE SET
			url = excluded.url,
			dest_dir = excluded.dest_dir,
			file_name = excluded.file_name,
			status = excluded.status,
			last_error = excluded.last_error,
			bytes_received = excluded.bytes_received,
			total_bytes = excluded.total_bytes,
			updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query,
		rec.SessionKey, rec.TransferID, rec.URL, rec.DestDir, rec.FileName, rec.Status,
		rec.LastError, rec.BytesReceived, rec.TotalBytes,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transfer: %w", err)
	}
	return nil
}

// GetTransfer retrieves one record
func (s *Store) GetTransfer(sessionKey string, transferID int64) (*domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE session_key = ? AND transfer_id = ?`

	rec, err := scanTransfer(s.db.QueryRow(query, sessionKey, transferID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListTransfers returns the most recently updated records first
func (s *Store) ListTransfers(limit int) ([]*domain.TransferRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY updated_at DESC, transfer_id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TransferRecord
	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSessionCleared marks every unfinished record of the session as cleared
func (s *Store) MarkSessionCleared(sessionKey string) (int, error) {
	query := `
		UPDATE transfers SET status = ?, updated_at = ?
		WHERE session_key = ? AND status NOT IN (?, ?, ?, ?)
	`
	args := append([]any{domain.HistoryStatusCleared, toMillis(time.Now()), sessionKey}, finishedStatuses...)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark session cleared: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DeleteFinishedBefore removes finished records last updated before the given time
func (s *Store) DeleteFinishedBefore(before time.Time) (int, error) {
	query := `DELETE FROM transfers WHERE updated_at < ? AND status IN (?, ?, ?, ?)`
	args := append([]any{toMillis(before)}, finishedStatuses...)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished transfers: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountByStatus returns record counts grouped by status
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM transfers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row scanner) (*domain.TransferRecord, error) {
	rec := &domain.TransferRecord{}
	var createdAt, updatedAt int64
	err := row.Scan(
		&rec.SessionKey, &rec.TransferID, &rec.URL, &rec.DestDir, &rec.FileName, &rec.Status,
		&rec.LastError, &rec.BytesReceived, &rec.TotalBytes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
