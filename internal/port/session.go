package port

import (
	"net/http"

	"github.com/vertextoedge/download-controller/internal/domain"
)

// EventSink receives lifecycle events from a session manager.
// HandleEvent reports whether the event was recognized and handled.
type EventSink interface {
	HandleEvent(ev domain.LifecycleEvent) bool
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ev domain.LifecycleEvent) bool

// HandleEvent calls f(ev)
func (f EventSinkFunc) HandleEvent(ev domain.LifecycleEvent) bool {
	return f(ev)
}

// Download is one transfer owned by a SessionManager
type Download interface {
	// ID returns the identity assigned by the session manager
	ID() int64

	// URL returns the source URL
	URL() string

	// SetDestPath sets the destination directory
	SetDestPath(dir string)

	// SetFileName overrides the file name chosen by the session manager
	SetFileName(name string)

	DestPath() string
	FileName() string

	// LastError returns the most recent error code, NoError if none
	LastError() domain.NetworkError

	// Snapshot returns a copy of the transfer state
	Snapshot() domain.Transfer

	// Start begins or resumes the transfer without blocking on I/O
	Start() error

	// Pause stops the transfer keeping received data
	Pause() error

	// Cancel stops the transfer and discards received data
	Cancel() error

	// RegisterEventReceiver adds a receiver for this transfer's events
	RegisterEventReceiver(sink EventSink)
}

// SessionManager owns network transfers and emits their lifecycle events
type SessionManager interface {
	// CreateDownload creates a transfer for rawURL without starting it
	CreateDownload(rawURL string) (Download, error)

	// CreateDownloadFromReply adopts an in-flight response
	CreateDownloadFromReply(resp *http.Response) (Download, error)

	// FindDownload looks up a live transfer by identity
	FindDownload(id int64) (Download, bool)

	// RegisterEventReceiver adds a receiver for manager events
	RegisterEventReceiver(sink EventSink)

	// SetProxy routes new transfers through host:port
	SetProxy(host string, port int)

	// Downloads returns the live transfers ordered by id
	Downloads() []Download

	// RemoveAll cancels and forgets every transfer
	RemoveAll()

	// Close tears the session down
	Close() error
}

// SessionFactory creates a session manager for a client id
type SessionFactory func(clientID string) (SessionManager, error)
