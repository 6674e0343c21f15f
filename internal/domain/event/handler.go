package event

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoggingHandler logs all notifications
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadCreated:
		h.logger.Info("download created", transferFields(e)...)
	case DownloadStarted:
		h.logger.Debug("download started", transferFields(e)...)
	case DownloadHeaderReceived:
		h.logger.Debug("download header received", transferFields(e)...)
	case DownloadProgress:
		h.logger.Debug("download progress", transferFields(e)...)
	case DownloadFinished:
		h.logger.Info("download finished", transferFields(e)...)
	case DownloadPaused:
		h.logger.Info("download paused", failureFields(e)...)
	case DownloadCancelled:
		h.logger.Info("download cancelled", failureFields(e)...)
	case DownloadFailed:
		h.logger.Warn("download failed", failureFields(e)...)
	case DownloadNetworkLoss:
		h.logger.Warn("download network loss", failureFields(e)...)
	case DownloadError:
		h.logger.Warn("download error", failureFields(e)...)
	case DownloadsCleared:
		h.logger.Info("downloads cleared")
	case UnsupportedDownload:
		h.logger.Warn("download unsupported, no session manager", zap.String("url", e.URL))
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

func transferFields(e TransferNotification) []zap.Field {
	fields := []zap.Field{zap.Int64("transfer_id", e.TransferHandle().ID())}
	tr, ok := e.TransferHandle().Snapshot()
	if !ok {
		return append(fields, zap.Bool("stale", true))
	}
	fields = append(fields,
		zap.String("url", tr.URL),
		zap.String("phase", string(tr.Phase)),
		zap.String("received", humanize.IBytes(uint64(max(tr.BytesReceived, 0)))),
	)
	if tr.TotalBytes >= 0 {
		fields = append(fields, zap.String("total", humanize.IBytes(uint64(tr.TotalBytes))))
	}
	if tr.FileName != "" {
		fields = append(fields, zap.String("file", tr.Path()))
	}
	return fields
}

func failureFields(e FailureNotification) []zap.Field {
	fields := transferFields(e)
	if tok := e.ErrorToken(); tok != "" {
		fields = append(fields, zap.String("error", tok))
	}
	return fields
}

// MetricsHandler collects counters from notifications
type MetricsHandler struct {
	mu              sync.Mutex
	created         int64
	finished        int64
	failed          int64
	cancelled       int64
	networkLosses   int64
	unsupported     int64
	cleared         int64
	bytesDownloaded int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := event.(type) {
	case DownloadCreated:
		h.created++
	case DownloadFinished:
		h.finished++
		if tr, ok := e.Handle.Snapshot(); ok {
			h.bytesDownloaded += tr.BytesReceived
		}
	case DownloadFailed:
		h.failed++
	case DownloadCancelled:
		h.cancelled++
	case DownloadNetworkLoss:
		h.networkLosses++
	case UnsupportedDownload:
		h.unsupported++
	case DownloadsCleared:
		h.cleared++
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameDownloadCreated,
		NameDownloadFinished,
		NameDownloadFailed,
		NameDownloadCancelled,
		NameDownloadNetworkLoss,
		NameUnsupportedDownload,
		NameDownloadsCleared,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]int64{
		"downloads_created":     h.created,
		"downloads_finished":    h.finished,
		"downloads_failed":      h.failed,
		"downloads_cancelled":   h.cancelled,
		"network_losses":        h.networkLosses,
		"downloads_unsupported": h.unsupported,
		"downloads_cleared":     h.cleared,
		"bytes_downloaded":      h.bytesDownloaded,
	}
}
