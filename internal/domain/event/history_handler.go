package event

import (
	"fmt"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/repository"
)

// HistoryHandler persists the state carried by notifications
type HistoryHandler struct {
	repo       repository.TransferHistoryRepository
	sessionKey string
}

// NewHistoryHandler creates a handler recording transfers under the given session key
func NewHistoryHandler(repo repository.TransferHistoryRepository, sessionKey string) *HistoryHandler {
	return &HistoryHandler{repo: repo, sessionKey: sessionKey}
}

// SessionKey returns the key records are stored under
func (h *HistoryHandler) SessionKey() string {
	return h.sessionKey
}

// Handle records the event
func (h *HistoryHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadsCleared:
		if _, err := h.repo.MarkSessionCleared(h.sessionKey); err != nil {
			return fmt.Errorf("failed to mark session cleared: %w", err)
		}
		return nil
	case TransferNotification:
		rec := h.record(e)
		if rec == nil {
			return nil
		}
		if err := h.repo.UpsertTransfer(rec); err != nil {
			return fmt.Errorf("failed to record transfer %d: %w", rec.TransferID, err)
		}
	}
	return nil
}

func (h *HistoryHandler) record(e TransferNotification) *domain.TransferRecord {
	tr, ok := e.TransferHandle().Snapshot()
	if !ok {
		return nil
	}

	rec := &domain.TransferRecord{
		SessionKey:    h.sessionKey,
		TransferID:    tr.ID,
		URL:           tr.URL,
		DestDir:       tr.DestDir,
		FileName:      tr.FileName,
		Status:        string(statusFor(e, tr.Phase)),
		BytesReceived: tr.BytesReceived,
		TotalBytes:    tr.TotalBytes,
		CreatedAt:     tr.CreatedAt,
		UpdatedAt:     e.OccurredAt(),
	}
	if f, ok := e.(FailureNotification); ok {
		rec.LastError = f.ErrorToken()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.OccurredAt()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	return rec
}

// statusFor maps a notification to the recorded status; current is the fallback.
func statusFor(e DomainEvent, current domain.Phase) domain.Phase {
	switch e.(type) {
	case DownloadCreated:
		return domain.PhaseCreated
	case DownloadStarted:
		return domain.PhaseStarted
	case DownloadHeaderReceived:
		return domain.PhaseHeaderReceived
	case DownloadProgress:
		return domain.PhaseInProgress
	case DownloadFinished:
		return domain.PhaseCompleted
	case DownloadPaused:
		return domain.PhasePaused
	case DownloadCancelled:
		return domain.PhaseCancelled
	case DownloadFailed:
		return domain.PhaseFailed
	case DownloadNetworkLoss:
		return domain.PhaseNetworkLoss
	case DownloadError:
		return domain.PhaseError
	}
	return current
}

// HandledEvents returns the events this handler handles
func (h *HistoryHandler) HandledEvents() []string {
	return []string{
		NameDownloadCreated,
		NameDownloadsCleared,
		NameDownloadStarted,
		NameDownloadHeaderReceived,
		NameDownloadProgress,
		NameDownloadFinished,
		NameDownloadPaused,
		NameDownloadCancelled,
		NameDownloadFailed,
		NameDownloadNetworkLoss,
		NameDownloadError,
	}
}
