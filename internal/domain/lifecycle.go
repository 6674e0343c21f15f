package domain

import "strconv"

// EventKind identifies a lifecycle event raised by the session manager.
type EventKind int

// KindUnknown and any value not listed below are the forward-compatible
// unknown variant. Receivers must report them as unhandled.
const (
	KindUnknown EventKind = iota

	// Manager-level kinds
	KindDownloadCreated
	KindDownloadsCleared
	KindConnectedToServer
	KindDisconnectedFromServer
	KindServerError

	// Transfer-level kinds
	KindStarted
	KindHeaderReceived
	KindProgress
	KindCompleted
	KindPaused
	KindCancelled
	KindFailed
	KindDescriptorUpdated
	KindNetworkLoss
	KindError
	KindDescriptorReady
	KindLicenseAcquiring
)

// EventFamily groups event kinds by what they refer to
type EventFamily int

const (
	FamilyUnknown EventFamily = iota
	FamilyManager
	FamilyTransfer
)

var eventKindNames = map[EventKind]string{
	KindDownloadCreated:        "DownloadManager:DownloadCreated",
	KindDownloadsCleared:       "DownloadManager:DownloadsCleared",
	KindConnectedToServer:      "DownloadManager:ConnectedToServer",
	KindDisconnectedFromServer: "DownloadManager:DisconnectedFromServer",
	KindServerError:            "DownloadManager:ServerError",
	KindStarted:                "Download:Started",
	KindHeaderReceived:         "Download:HeaderReceived",
	KindProgress:               "Download:Progress",
	KindCompleted:              "Download:Completed",
	KindPaused:                 "Download:Paused",
	KindCancelled:              "Download:Cancelled",
	KindFailed:                 "Download:Failed",
	KindDescriptorUpdated:      "Download:DescriptorUpdated",
	KindNetworkLoss:            "Download:NetworkLoss",
	KindError:                  "Download:Error",
	KindDescriptorReady:        "Download:OMADownloadDescriptorReady",
	KindLicenseAcquiring:       "Download:WMDRMLicenseAcquiring",
}

// String returns the event name, or "Unknown(<n>)" for unlisted kinds
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "Unknown(" + strconv.Itoa(int(k)) + ")"
}

// Family classifies the kind as manager-level, transfer-level or unknown
func (k EventKind) Family() EventFamily {
	switch k {
	case KindDownloadCreated, KindDownloadsCleared, KindConnectedToServer,
		KindDisconnectedFromServer, KindServerError:
		return FamilyManager
	case KindStarted, KindHeaderReceived, KindProgress, KindCompleted,
		KindPaused, KindCancelled, KindFailed, KindDescriptorUpdated,
		KindNetworkLoss, KindError, KindDescriptorReady, KindLicenseAcquiring:
		return FamilyTransfer
	default:
		return FamilyUnknown
	}
}

// LifecycleEvent is an immutable event delivered by the session manager.
// TransferID is zero for manager-level events.
type LifecycleEvent struct {
	Kind       EventKind
	TransferID int64
}

// NewManagerEvent creates a manager-level event
func NewManagerEvent(kind EventKind) LifecycleEvent {
	return LifecycleEvent{Kind: kind}
}

// NewTransferEvent creates a transfer-level event
func NewTransferEvent(kind EventKind, transferID int64) LifecycleEvent {
	return LifecycleEvent{Kind: kind, TransferID: transferID}
}
