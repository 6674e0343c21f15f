package repository

import (
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
)

// TransferHistoryRepository persists transfer history across sessions
type TransferHistoryRepository interface {
	// UpsertTransfer inserts or replaces the record keyed by (SessionKey, TransferID)
	UpsertTransfer(rec *domain.TransferRecord) error

	// GetTransfer returns domain.ErrTransferNotFound when no record exists
	GetTransfer(sessionKey string, transferID int64) (*domain.TransferRecord, error)

	// ListTransfers returns the most recently updated records first
	ListTransfers(limit int) ([]*domain.TransferRecord, error)

	// MarkSessionCleared sets every unfinished record of the session to cleared
	MarkSessionCleared(sessionKey string) (int, error)

	// DeleteFinishedBefore removes finished records last updated before the given time
	DeleteFinishedBefore(before time.Time) (int, error)

	// CountByStatus returns record counts grouped by status
	CountByStatus() (map[string]int, error)

	// Close releases the underlying storage
	Close() error
}
