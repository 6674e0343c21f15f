package controller

import (
	"fmt"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
)

// Adapter translates session manager lifecycle events into notifications
type Adapter struct {
	manager     port.SessionManager
	dispatcher  event.EventDispatcher
	logger      *zap.Logger
	onUnhandled func(*domain.UnhandledEventError)
}

// Ensure Adapter implements port.EventSink
var _ port.EventSink = (*Adapter)(nil)

// NewAdapter creates the session manager for clientID and registers itself as its receiver
func NewAdapter(clientID string, proxy *domain.Proxy, factory port.SessionFactory, dispatcher event.EventDispatcher, logger *zap.Logger) (*Adapter, error) {
	if factory == nil {
		return nil, domain.ErrUnavailable
	}
	manager, err := factory(clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	a := &Adapter{
		manager:    manager,
		dispatcher: dispatcher,
		logger:     logger,
	}
	manager.RegisterEventReceiver(a)
	if proxy != nil {
		manager.SetProxy(proxy.Host, proxy.Port)
	}
	return a, nil
}

// Handle returns a handle for transfer id resolved through the session manager
func (a *Adapter) Handle(id int64) domain.Handle {
	return domain.NewHandle(id, a.resolve)
}

func (a *Adapter) resolve(id int64) (domain.Transfer, bool) {
	d, ok := a.manager.FindDownload(id)
	if !ok {
		return domain.Transfer{}, false
	}
	return d.Snapshot(), true
}

// HandleEvent emits the notification for ev and reports whether ev was handled
func (a *Adapter) HandleEvent(ev domain.LifecycleEvent) bool {
	switch ev.Kind.Family() {
	case domain.FamilyManager:
		return a.handleManagerEvent(ev)
	case domain.FamilyTransfer:
		return a.handleTransferEvent(ev)
	}
	a.unhandled(ev, domain.ReasonUnknownKind, nil)
	return false
}

func (a *Adapter) handleManagerEvent(ev domain.LifecycleEvent) bool {
	switch ev.Kind {
	case domain.KindDownloadsCleared:
		a.dispatcher.Dispatch(event.NewDownloadsCleared())
	case domain.KindDownloadCreated:
		// the facade already announced it
	case domain.KindConnectedToServer, domain.KindDisconnectedFromServer, domain.KindServerError:
		a.logger.Debug("server event", zap.Stringer("kind", ev.Kind))
	}
	return true
}

func (a *Adapter) handleTransferEvent(ev domain.LifecycleEvent) bool {
	d, ok := a.manager.FindDownload(ev.TransferID)
	if !ok {
		a.unhandled(ev, domain.ReasonTransferNotFound, domain.ErrTransferNotFound)
		return false
	}

	errToken := domain.ErrorString(d.LastError())
	h := a.Handle(d.ID())

	switch ev.Kind {
	case domain.KindStarted:
		a.dispatcher.Dispatch(event.NewDownloadStarted(h))
	case domain.KindHeaderReceived:
		a.dispatcher.Dispatch(event.NewDownloadHeaderReceived(h))
	case domain.KindProgress:
		a.dispatcher.Dispatch(event.NewDownloadProgress(h))
	case domain.KindCompleted:
		a.dispatcher.Dispatch(event.NewDownloadFinished(h))
	case domain.KindPaused:
		a.dispatcher.Dispatch(event.NewDownloadPaused(h, errToken))
	case domain.KindCancelled:
		a.dispatcher.Dispatch(event.NewDownloadCancelled(h, errToken))
	case domain.KindFailed:
		a.dispatcher.Dispatch(event.NewDownloadFailed(h, errToken))
	case domain.KindNetworkLoss:
		a.dispatcher.Dispatch(event.NewDownloadNetworkLoss(h, errToken))
	case domain.KindError:
		a.dispatcher.Dispatch(event.NewDownloadError(h, errToken))
	case domain.KindDescriptorUpdated, domain.KindDescriptorReady, domain.KindLicenseAcquiring:
		// DRM and descriptor events carry nothing to report
	}
	return true
}

func (a *Adapter) unhandled(ev domain.LifecycleEvent, reason string, err error) {
	ue := domain.NewUnhandledEventError(ev, reason, err)
	a.logger.Warn("lifecycle event dropped", zap.Error(ue))
	if a.onUnhandled != nil {
		a.onUnhandled(ue)
	}
}

// Close tears down the session manager
func (a *Adapter) Close() error {
	return a.manager.Close()
}
