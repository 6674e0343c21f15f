package event

import (
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
)

// Notification names
const (
	NameDownloadCreated        = "download.created"
	NameDownloadsCleared       = "downloads.cleared"
	NameDownloadStarted        = "download.started"
	NameDownloadHeaderReceived = "download.header_received"
	NameDownloadProgress       = "download.progress"
	NameDownloadFinished       = "download.finished"
	NameDownloadPaused         = "download.paused"
	NameDownloadCancelled      = "download.cancelled"
	NameDownloadFailed         = "download.failed"
	NameDownloadNetworkLoss    = "download.network_loss"
	NameDownloadError          = "download.error"
	NameUnsupportedDownload    = "download.unsupported"

	// AllEvents subscribes a handler to every notification
	AllEvents = "*"
)

// DomainEvent is the interface for all notifications
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// TransferNotification is a notification about one transfer
type TransferNotification interface {
	DomainEvent
	TransferHandle() domain.Handle
}

// FailureNotification is a transfer notification carrying an error token
type FailureNotification interface {
	TransferNotification
	ErrorToken() string
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func now() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// TransferEvent carries the handle of the transfer a notification is about
type TransferEvent struct {
	BaseEvent
	Handle domain.Handle
}

// TransferHandle returns the transfer handle
func (e TransferEvent) TransferHandle() domain.Handle {
	return e.Handle
}

// FailureEvent is a TransferEvent with the formatted last error.
// Error is empty when the transfer has no error code.
type FailureEvent struct {
	TransferEvent
	Error string
}

// ErrorToken returns the formatted error
func (e FailureEvent) ErrorToken() string {
	return e.Error
}

func transferEvent(h domain.Handle) TransferEvent {
	return TransferEvent{BaseEvent: now(), Handle: h}
}

func failureEvent(h domain.Handle, errToken string) FailureEvent {
	return FailureEvent{TransferEvent: transferEvent(h), Error: errToken}
}

// DownloadCreated is raised when a transfer is created, before it starts
type DownloadCreated struct{ TransferEvent }

// EventName returns the event name
func (e DownloadCreated) EventName() string { return NameDownloadCreated }

// NewDownloadCreated creates a new DownloadCreated event
func NewDownloadCreated(h domain.Handle) DownloadCreated {
	return DownloadCreated{transferEvent(h)}
}

// DownloadsCleared is raised when the session manager drops all transfers
type DownloadsCleared struct{ BaseEvent }

// EventName returns the event name
func (e DownloadsCleared) EventName() string { return NameDownloadsCleared }

// NewDownloadsCleared creates a new DownloadsCleared event
func NewDownloadsCleared() DownloadsCleared {
	return DownloadsCleared{now()}
}

// DownloadStarted is raised when a transfer begins
type DownloadStarted struct{ TransferEvent }

// EventName returns the event name
func (e DownloadStarted) EventName() string { return NameDownloadStarted }

// NewDownloadStarted creates a new DownloadStarted event
func NewDownloadStarted(h domain.Handle) DownloadStarted {
	return DownloadStarted{transferEvent(h)}
}

// DownloadHeaderReceived is raised once response headers are known
type DownloadHeaderReceived struct{ TransferEvent }

// EventName returns the event name
func (e DownloadHeaderReceived) EventName() string { return NameDownloadHeaderReceived }

// NewDownloadHeaderReceived creates a new DownloadHeaderReceived event
func NewDownloadHeaderReceived(h domain.Handle) DownloadHeaderReceived {
	return DownloadHeaderReceived{transferEvent(h)}
}

// DownloadProgress is raised as bytes arrive
type DownloadProgress struct{ TransferEvent }

// EventName returns the event name
func (e DownloadProgress) EventName() string { return NameDownloadProgress }

// NewDownloadProgress creates a new DownloadProgress event
func NewDownloadProgress(h domain.Handle) DownloadProgress {
	return DownloadProgress{transferEvent(h)}
}

// DownloadFinished is raised when a transfer completes
type DownloadFinished struct{ TransferEvent }

// EventName returns the event name
func (e DownloadFinished) EventName() string { return NameDownloadFinished }

// NewDownloadFinished creates a new DownloadFinished event
func NewDownloadFinished(h domain.Handle) DownloadFinished {
	return DownloadFinished{transferEvent(h)}
}

// DownloadPaused is raised when a transfer is paused
type DownloadPaused struct{ FailureEvent }

// EventName returns the event name
func (e DownloadPaused) EventName() string { return NameDownloadPaused }

// NewDownloadPaused creates a new DownloadPaused event
func NewDownloadPaused(h domain.Handle, errToken string) DownloadPaused {
	return DownloadPaused{failureEvent(h, errToken)}
}

// DownloadCancelled is raised when a transfer is cancelled
type DownloadCancelled struct{ FailureEvent }

// EventName returns the event name
func (e DownloadCancelled) EventName() string { return NameDownloadCancelled }

// NewDownloadCancelled creates a new DownloadCancelled event
func NewDownloadCancelled(h domain.Handle, errToken string) DownloadCancelled {
	return DownloadCancelled{failureEvent(h, errToken)}
}

// DownloadFailed is raised when a transfer fails
type DownloadFailed struct{ FailureEvent }

// EventName returns the event name
func (e DownloadFailed) EventName() string { return NameDownloadFailed }

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(h domain.Handle, errToken string) DownloadFailed {
	return DownloadFailed{failureEvent(h, errToken)}
}

// DownloadNetworkLoss is raised when connectivity drops mid-transfer
type DownloadNetworkLoss struct{ FailureEvent }

// EventName returns the event name
func (e DownloadNetworkLoss) EventName() string { return NameDownloadNetworkLoss }

// NewDownloadNetworkLoss creates a new DownloadNetworkLoss event
func NewDownloadNetworkLoss(h domain.Handle, errToken string) DownloadNetworkLoss {
	return DownloadNetworkLoss{failureEvent(h, errToken)}
}

// DownloadError is raised for a generic transfer error
type DownloadError struct{ FailureEvent }

// EventName returns the event name
func (e DownloadError) EventName() string { return NameDownloadError }

// NewDownloadError creates a new DownloadError event
func NewDownloadError(h domain.Handle, errToken string) DownloadError {
	return DownloadError{failureEvent(h, errToken)}
}

// UnsupportedDownload is raised instead of a transfer when no session manager is available
type UnsupportedDownload struct {
	BaseEvent
	URL string
}

// EventName returns the event name
func (e UnsupportedDownload) EventName() string { return NameUnsupportedDownload }

// NewUnsupportedDownload creates a new UnsupportedDownload event
func NewUnsupportedDownload(url string) UnsupportedDownload {
	return UnsupportedDownload{BaseEvent: now(), URL: url}
}
