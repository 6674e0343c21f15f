package event

import (
	"errors"
	"testing"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func liveHandle(tr domain.Transfer) domain.Handle {
	return domain.NewHandle(tr.ID, func(id int64) (domain.Transfer, bool) {
		if id != tr.ID {
			return domain.Transfer{}, false
		}
		return tr, true
	})
}

func staleHandle(id int64) domain.Handle {
	return domain.NewHandle(id, func(int64) (domain.Transfer, bool) {
		return domain.Transfer{}, false
	})
}

func TestLoggingHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLoggingHandler(zap.New(core))

	tr := domain.Transfer{ID: 4, URL: "http://example.com/f.iso", DestDir: "/dl", FileName: "f.iso",
		Phase: domain.PhaseFailed, BytesReceived: 2048, TotalBytes: 4096}
	_ = h.Handle(NewDownloadFailed(liveHandle(tr), "TimeoutError"))
	_ = h.Handle(NewDownloadProgress(staleHandle(9)))
	_ = h.Handle(NewUnsupportedDownload("http://example.com/x"))

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d log entries, want 3", len(entries))
	}

	failed := entries[0]
	if failed.Level != zapcore.WarnLevel || failed.Message != "download failed" {
		t.Errorf("unexpected entry %v %q", failed.Level, failed.Message)
	}
	fields := failed.ContextMap()
	if fields["error"] != "TimeoutError" {
		t.Errorf("error field = %v", fields["error"])
	}
	if fields["received"] != "2.0 KiB" || fields["total"] != "4.0 KiB" {
		t.Errorf("byte fields = %v / %v", fields["received"], fields["total"])
	}

	if stale := entries[1].ContextMap(); stale["stale"] != true {
		t.Errorf("stale handle should be marked, got %v", stale)
	}
	if entries[2].ContextMap()["url"] != "http://example.com/x" {
		t.Errorf("unsupported url field = %v", entries[2].ContextMap()["url"])
	}
}

func TestMetricsHandler(t *testing.T) {
	h := NewMetricsHandler()
	tr := domain.Transfer{ID: 1, BytesReceived: 100, TotalBytes: 100}

	events := []DomainEvent{
		NewDownloadCreated(liveHandle(tr)),
		NewDownloadCreated(liveHandle(tr)),
		NewDownloadFinished(liveHandle(tr)),
		NewDownloadFailed(liveHandle(tr), "TimeoutError"),
		NewUnsupportedDownload("http://x"),
		NewDownloadsCleared(),
		NewDownloadStarted(liveHandle(tr)),
	}
	for _, e := range events {
		if err := h.Handle(e); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	m := h.GetMetrics()
	want := map[string]int64{
		"downloads_created":     2,
		"downloads_finished":    1,
		"downloads_failed":      1,
		"downloads_unsupported": 1,
		"downloads_cleared":     1,
		"bytes_downloaded":      100,
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %d, want %d", k, m[k], v)
		}
	}
}

type mockHistoryRepository struct {
	upserts   []*domain.TransferRecord
	cleared   []string
	upsertErr error
}

func (m *mockHistoryRepository) UpsertTransfer(rec *domain.TransferRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, rec)
	return nil
}
func (m *mockHistoryRepository) GetTransfer(string, int64) (*domain.TransferRecord, error) {
	return nil, domain.ErrTransferNotFound
}
func (m *mockHistoryRepository) ListTransfers(int) ([]*domain.TransferRecord, error) {
	return m.upserts, nil
}
func (m *mockHistoryRepository) MarkSessionCleared(key string) (int, error) {
	m.cleared = append(m.cleared, key)
	return 0, nil
}
func (m *mockHistoryRepository) DeleteFinishedBefore(time.Time) (int, error) { return 0, nil }
func (m *mockHistoryRepository) CountByStatus() (map[string]int, error)     { return nil, nil }
func (m *mockHistoryRepository) Close() error                               { return nil }

func TestHistoryHandler(t *testing.T) {
	repo := &mockHistoryRepository{}
	h := NewHistoryHandler(repo, "session-1")

	tr := domain.Transfer{ID: 7, URL: "http://example.com/a.zip", DestDir: "/dl", FileName: "a.zip",
		Phase: domain.PhaseInProgress, BytesReceived: 10, TotalBytes: -1}

	tests := []struct {
		event      DomainEvent
		wantStatus domain.Phase
		wantErr    string
	}{
		{NewDownloadCreated(liveHandle(tr)), domain.PhaseCreated, ""},
		{NewDownloadProgress(liveHandle(tr)), domain.PhaseInProgress, ""},
		{NewDownloadNetworkLoss(liveHandle(tr), "RemoteHostClosedError"), domain.PhaseNetworkLoss, "RemoteHostClosedError"},
		{NewDownloadFinished(liveHandle(tr)), domain.PhaseCompleted, ""},
	}
	for _, tt := range tests {
		if err := h.Handle(tt.event); err != nil {
			t.Fatalf("Handle(%s) error = %v", tt.event.EventName(), err)
		}
		rec := repo.upserts[len(repo.upserts)-1]
		if rec.Status != string(tt.wantStatus) {
			t.Errorf("%s: status = %q, want %q", tt.event.EventName(), rec.Status, tt.wantStatus)
		}
		if rec.LastError != tt.wantErr {
			t.Errorf("%s: last error = %q, want %q", tt.event.EventName(), rec.LastError, tt.wantErr)
		}
		if rec.SessionKey != "session-1" || rec.TransferID != 7 || rec.URL != tr.URL {
			t.Errorf("%s: unexpected record %+v", tt.event.EventName(), rec)
		}
	}

	before := len(repo.upserts)
	if err := h.Handle(NewDownloadStarted(staleHandle(8))); err != nil {
		t.Fatalf("Handle(stale) error = %v", err)
	}
	if len(repo.upserts) != before {
		t.Error("stale handle should not be recorded")
	}

	if err := h.Handle(NewDownloadsCleared()); err != nil {
		t.Fatalf("Handle(cleared) error = %v", err)
	}
	if len(repo.cleared) != 1 || repo.cleared[0] != "session-1" {
		t.Errorf("cleared = %v", repo.cleared)
	}

	repo.upsertErr = errors.New("disk full")
	if err := h.Handle(NewDownloadStarted(liveHandle(tr))); !errors.Is(err, repo.upsertErr) {
		t.Errorf("Handle() error = %v, want wrapped disk full", err)
	}
}
