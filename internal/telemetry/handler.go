package telemetry

import (
	"sync"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
)

// EventHandler feeds notifications into the telemetry instruments
type EventHandler struct {
	telemetry *Telemetry

	mu     sync.Mutex
	active map[int64]struct{}
}

// NewEventHandler creates a handler recording into t
func NewEventHandler(t *Telemetry) *EventHandler {
	return &EventHandler{
		telemetry: t,
		active:    make(map[int64]struct{}),
	}
}

// Handle records the notification
func (h *EventHandler) Handle(e event.DomainEvent) error {
	h.telemetry.RecordNotification(e.EventName())

	switch ev := e.(type) {
	case event.DownloadStarted:
		h.setActive(ev.Handle.ID(), true)
	case event.DownloadFinished:
		h.setActive(ev.Handle.ID(), false)
		if tr, ok := ev.Handle.Snapshot(); ok {
			h.telemetry.RecordBytes(tr.BytesReceived)
		}
	case event.DownloadPaused:
		h.setActive(ev.Handle.ID(), false)
	case event.DownloadCancelled:
		h.setActive(ev.Handle.ID(), false)
	case event.DownloadFailed:
		h.setActive(ev.Handle.ID(), false)
	case event.DownloadNetworkLoss:
		h.setActive(ev.Handle.ID(), false)
	case event.DownloadError:
		h.setActive(ev.Handle.ID(), false)
	case event.DownloadsCleared:
		h.mu.Lock()
		n := len(h.active)
		h.active = make(map[int64]struct{})
		h.mu.Unlock()
		h.telemetry.AddActiveTransfers(-int64(n))
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *EventHandler) HandledEvents() []string {
	return []string{event.AllEvents}
}

// Active returns the number of transfers currently counted as active
func (h *EventHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// RecordUnhandled is a hook for controller.WithUnhandledHook
func (h *EventHandler) RecordUnhandled(ue *domain.UnhandledEventError) {
	h.telemetry.RecordUnhandled(ue.Event.Kind.String(), ue.Reason)
}

func (h *EventHandler) setActive(id int64, active bool) {
	h.mu.Lock()
	_, was := h.active[id]
	if active {
		h.active[id] = struct{}{}
	} else {
		delete(h.active, id)
	}
	h.mu.Unlock()

	switch {
	case active && !was:
		h.telemetry.AddActiveTransfers(1)
	case !active && was:
		h.telemetry.AddActiveTransfers(-1)
	}
}
