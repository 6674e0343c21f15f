package domain

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Phase is the advisory lifecycle phase of a transfer.
// The session manager is authoritative; phases only mirror the events it raised.
type Phase string

// Phase constants
const (
	PhaseCreated        Phase = "created"
	PhaseStarted        Phase = "started"
	PhaseHeaderReceived Phase = "header_received"
	PhaseInProgress     Phase = "in_progress"
	PhaseCompleted      Phase = "completed"
	PhasePaused         Phase = "paused"
	PhaseCancelled      Phase = "cancelled"
	PhaseFailed         Phase = "failed"
	PhaseNetworkLoss    Phase = "network_loss"
	PhaseError          Phase = "error"
)

// String returns the phase name
func (p Phase) String() string {
	return string(p)
}

// IsActive returns true while bytes may still be moving
func (p Phase) IsActive() bool {
	return p == PhaseStarted || p == PhaseHeaderReceived || p == PhaseInProgress
}

// IsTerminal returns true for phases no further transfer event can leave,
// except an explicit restart from PhaseFailed.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// CanStart returns true if a transfer in this phase may be (re)started
func (p Phase) CanStart() bool {
	switch p {
	case PhaseCreated, PhasePaused, PhaseNetworkLoss, PhaseError, PhaseFailed:
		return true
	}
	return false
}

// Next returns the phase reached by applying kind.
// Descriptor and DRM kinds leave the phase unchanged.
func (p Phase) Next(kind EventKind) (Phase, error) {
	switch kind {
	case KindStarted:
		if p.CanStart() {
			return PhaseStarted, nil
		}
	case KindHeaderReceived:
		if p == PhaseStarted {
			return PhaseHeaderReceived, nil
		}
	case KindProgress:
		if p == PhaseHeaderReceived || p == PhaseInProgress {
			return PhaseInProgress, nil
		}
	case KindCompleted:
		if p == PhaseHeaderReceived || p == PhaseInProgress {
			return PhaseCompleted, nil
		}
	case KindPaused:
		if p.IsActive() {
			return PhasePaused, nil
		}
	case KindCancelled:
		if !p.IsTerminal() {
			return PhaseCancelled, nil
		}
	case KindFailed:
		if p.IsActive() || p == PhaseError || p == PhaseNetworkLoss {
			return PhaseFailed, nil
		}
	case KindNetworkLoss:
		if p.IsActive() {
			return PhaseNetworkLoss, nil
		}
	case KindError:
		if p.IsActive() {
			return PhaseError, nil
		}
	case KindDescriptorUpdated, KindDescriptorReady, KindLicenseAcquiring:
		return p, nil
	}
	return p, fmt.Errorf("%w: %s on %s", ErrInvalidStateTransition, kind, p)
}

// Transfer is a point-in-time view of one download owned by the session manager.
type Transfer struct {
	ID        int64
	URL       string
	DestDir   string
	FileName  string // empty means the session manager picks the name
	LastError NetworkError
	Phase     Phase

	BytesReceived int64
	TotalBytes    int64 // -1 when the size is unknown

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Path returns the destination file path, or "" while the name is undecided
func (t Transfer) Path() string {
	if t.FileName == "" {
		return ""
	}
	return filepath.Join(t.DestDir, t.FileName)
}

// Percent returns completion in percent, or -1 if the total is unknown
func (t Transfer) Percent() float64 {
	if t.TotalBytes <= 0 {
		return -1
	}
	return float64(t.BytesReceived) * 100 / float64(t.TotalBytes)
}

// Resolver looks up a live transfer by identity
type Resolver func(id int64) (Transfer, bool)

// Handle is a lightweight, copyable reference to a transfer.
// It owns no state; Snapshot fails once the session manager drops the transfer.
type Handle struct {
	id      int64
	resolve Resolver
}

// NewHandle creates a handle for id resolved through resolve
func NewHandle(id int64, resolve Resolver) Handle {
	return Handle{id: id, resolve: resolve}
}

// ID returns the transfer identity
func (h Handle) ID() int64 {
	return h.id
}

// IsZero returns true for the zero Handle
func (h Handle) IsZero() bool {
	return h.resolve == nil
}

// Snapshot returns the current state of the transfer if it is still tracked
func (h Handle) Snapshot() (Transfer, bool) {
	if h.resolve == nil {
		return Transfer{}, false
	}
	return h.resolve(h.id)
}

// Valid returns true while the underlying transfer exists
func (h Handle) Valid() bool {
	_, ok := h.Snapshot()
	return ok
}

// Destination is the directory and file name hint for a new transfer
type Destination struct {
	Dir      string
	FileName string
}

// DestinationFromPath splits a destination path into directory and file name.
// A path ending in a separator names a directory only.
func DestinationFromPath(path string) Destination {
	if path == "" {
		return Destination{}
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return Destination{Dir: absDir(path)}
	}
	return Destination{
		Dir:      absDir(filepath.Dir(path)),
		FileName: filepath.Base(path),
	}
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}

// Proxy is the host/port pair applied to the session manager
type Proxy struct {
	Host string
	Port int
}

// String returns host:port
func (p Proxy) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}
