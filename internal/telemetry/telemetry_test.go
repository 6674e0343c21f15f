package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
)

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func handle(id int64) domain.Handle {
	return domain.NewHandle(id, func(id int64) (domain.Transfer, bool) {
		return domain.Transfer{ID: id, BytesReceived: 2048}, true
	})
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}

	// recording on a disabled instance is a no-op
	tel.RecordNotification("x")
	tel.RecordUnhandled("k", "r")
	tel.AddActiveTransfers(1)
	tel.RecordHTTPRequest(http.MethodGet, "/", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404", rec.Code)
	}
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	tel.RecordNotification("x")
	tel.RecordBytes(10)
	if tel.Enabled() {
		t.Error("nil telemetry reports enabled")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestEventHandler_RecordsMetrics(t *testing.T) {
	tel, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tel.Shutdown(context.Background())

	h := NewEventHandler(tel)
	h.Handle(event.NewDownloadCreated(handle(1)))
	h.Handle(event.NewDownloadStarted(handle(1)))
	h.Handle(event.NewDownloadStarted(handle(2)))
	h.Handle(event.NewDownloadStarted(handle(2)))

	if got := h.Active(); got != 2 {
		t.Errorf("Active() = %d, want 2", got)
	}

	h.Handle(event.NewDownloadFinished(handle(1)))
	if got := h.Active(); got != 1 {
		t.Errorf("Active() after finish = %d, want 1", got)
	}

	h.Handle(event.NewDownloadsCleared())
	if got := h.Active(); got != 0 {
		t.Errorf("Active() after clear = %d, want 0", got)
	}

	h.RecordUnhandled(domain.NewUnhandledEventError(
		domain.NewTransferEvent(domain.KindProgress, 9), domain.ReasonTransferNotFound, nil))
	tel.RecordHTTPRequest(http.MethodGet, "/downloads", 200, time.Millisecond)

	body := scrape(t, tel)
	for _, want := range []string{
		"download_notifications",
		`event="download.started"`,
		"download_unhandled_events",
		`reason="transfer_not_found"`,
		"download_transfers_active",
		"download_bytes",
		"http_requests",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.status); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
