package controller

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
)

// Option configures a Controller
type Option func(*options)

type options struct {
	dispatcher  event.EventDispatcher
	onUnhandled func(*domain.UnhandledEventError)
}

// WithDispatcher sets the notification dispatcher; the default is a synchronous InMemoryDispatcher
func WithDispatcher(d event.EventDispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithUnhandledHook is called for every lifecycle event the adapter drops
func WithUnhandledHook(fn func(*domain.UnhandledEventError)) Option {
	return func(o *options) { o.onUnhandled = fn }
}

// Controller is the single entry point for starting downloads and
// subscribing to their notifications.
type Controller struct {
	backend    Backend
	adapter    *Adapter
	dispatcher event.EventDispatcher
	logger     *zap.Logger
}

// New creates a controller on the given backend
func New(backend Backend, logger *zap.Logger, opts ...Option) (*Controller, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dispatcher == nil {
		o.dispatcher = event.NewInMemoryDispatcher(false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("controller")

	c := &Controller{
		backend:    backend,
		dispatcher: o.dispatcher,
		logger:     logger,
	}

	if backend.available() {
		a, err := NewAdapter(backend.clientID, backend.proxy, backend.factory, o.dispatcher, logger.Named("adapter"))
		if err != nil {
			return nil, err
		}
		a.onUnhandled = o.onUnhandled
		c.adapter = a
	}

	logger.Info("download controller ready", zap.String("backend", backend.Name()))
	return c, nil
}

// Available reports whether a session manager backs the controller
func (c *Controller) Available() bool {
	return c.adapter != nil
}

// Backend returns the backend name
func (c *Controller) Backend() string {
	return c.backend.Name()
}

// StartDownload creates and starts a transfer of u into dest.
// It returns false if nothing was created.
func (c *Controller) StartDownload(u *url.URL, dest domain.Destination) (domain.Handle, bool) {
	if u == nil {
		c.logger.Warn("start download ignored", zap.Error(domain.ErrInvalidURL))
		return domain.Handle{}, false
	}
	if c.adapter == nil {
		c.unsupported(u.String())
		return domain.Handle{}, false
	}

	d, err := c.adapter.manager.CreateDownload(u.String())
	if err != nil {
		c.logger.Warn("failed to create download", zap.String("url", u.String()), zap.Error(err))
		return domain.Handle{}, false
	}

	d.SetDestPath(dest.Dir)
	if dest.FileName != "" {
		d.SetFileName(dest.FileName)
	}
	// the scheme hint is applied last and wins over dest
	if name := downloadFileName(u); name != "" {
		d.SetFileName(name)
	}
	return c.start(d), true
}

// StartDownloadFromReply hands an in-flight response to the session manager.
// The controller owns resp.Body from here on.
func (c *Controller) StartDownloadFromReply(resp *http.Response) (domain.Handle, bool) {
	if resp == nil {
		c.logger.Warn("start download ignored", zap.Error(domain.ErrNilReply))
		return domain.Handle{}, false
	}
	var u *url.URL
	if resp.Request != nil {
		u = resp.Request.URL
	}

	if c.adapter == nil {
		closeBody(resp)
		c.unsupported(urlString(u))
		return domain.Handle{}, false
	}

	d, err := c.adapter.manager.CreateDownloadFromReply(resp)
	if err != nil {
		closeBody(resp)
		c.logger.Warn("failed to adopt reply", zap.String("url", urlString(u)), zap.Error(err))
		return domain.Handle{}, false
	}

	if name := downloadFileName(u); name != "" {
		d.SetFileName(name)
	}
	return c.start(d), true
}

// StartDownloadFromRequest starts a download of req's URL
func (c *Controller) StartDownloadFromRequest(req *http.Request) (domain.Handle, bool) {
	if req == nil {
		c.logger.Warn("start download ignored", zap.Error(domain.ErrNilRequest))
		return domain.Handle{}, false
	}
	return c.StartDownload(req.URL, domain.Destination{})
}

// start announces the transfer, attaches the adapter and starts it
func (c *Controller) start(d port.Download) domain.Handle {
	h := c.adapter.Handle(d.ID())
	c.dispatcher.Dispatch(event.NewDownloadCreated(h))

	d.RegisterEventReceiver(c.adapter)
	if err := d.Start(); err != nil {
		c.logger.Warn("failed to start download", zap.Int64("transfer_id", d.ID()), zap.Error(err))
	}
	return h
}

func (c *Controller) unsupported(rawURL string) {
	c.logger.Debug("no session manager, download unsupported", zap.String("url", rawURL))
	c.dispatcher.Dispatch(event.NewUnsupportedDownload(rawURL))
}

// HandlePage routes host's unsupported content and save requests into downloads.
// It returns false if either subscription failed; successful ones stay in place.
func (c *Controller) HandlePage(host port.PageHost) bool {
	if host == nil {
		return false
	}
	host.SetForwardUnsupportedContent(true)

	succeeded := true
	if err := host.OnUnsupportedContent(func(resp *http.Response) {
		c.StartDownloadFromReply(resp)
	}); err != nil {
		c.logger.Warn("failed to subscribe to unsupported content", zap.Error(err))
		succeeded = false
	}
	if err := host.OnDownloadRequested(func(req *http.Request) {
		c.StartDownloadFromRequest(req)
	}); err != nil {
		c.logger.Warn("failed to subscribe to download requests", zap.Error(err))
		succeeded = false
	}
	return succeeded
}

// Subscribe registers a notification handler
func (c *Controller) Subscribe(handler event.EventHandler) {
	c.dispatcher.Subscribe(handler)
}

// Unsubscribe removes a notification handler
func (c *Controller) Unsubscribe(handler event.EventHandler) {
	c.dispatcher.Unsubscribe(handler)
}

// Transfers returns snapshots of all live transfers ordered by id
func (c *Controller) Transfers() []domain.Transfer {
	if c.adapter == nil {
		return nil
	}
	downloads := c.adapter.manager.Downloads()
	out := make([]domain.Transfer, len(downloads))
	for i, d := range downloads {
		out[i] = d.Snapshot()
	}
	return out
}

// Transfer returns a snapshot of one live transfer
func (c *Controller) Transfer(id int64) (domain.Transfer, bool) {
	if c.adapter == nil {
		return domain.Transfer{}, false
	}
	return c.adapter.resolve(id)
}

// Pause pauses a running transfer
func (c *Controller) Pause(id int64) error {
	return c.withDownload(id, func(d port.Download) error { return d.Pause() })
}

// Resume restarts a paused, interrupted or failed transfer
func (c *Controller) Resume(id int64) error {
	return c.withDownload(id, func(d port.Download) error { return d.Start() })
}

// Cancel cancels a transfer
func (c *Controller) Cancel(id int64) error {
	return c.withDownload(id, func(d port.Download) error { return d.Cancel() })
}

// RemoveAll drops every transfer
func (c *Controller) RemoveAll() error {
	if c.adapter == nil {
		return domain.ErrUnavailable
	}
	c.adapter.manager.RemoveAll()
	return nil
}

func (c *Controller) withDownload(id int64, fn func(port.Download) error) error {
	if c.adapter == nil {
		return domain.ErrUnavailable
	}
	d, ok := c.adapter.manager.FindDownload(id)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrTransferNotFound, id)
	}
	return fn(d)
}

// Close tears the backend down
func (c *Controller) Close() error {
	if c.adapter == nil {
		return nil
	}
	if err := c.adapter.Close(); err != nil {
		return fmt.Errorf("failed to close session manager: %w", err)
	}
	c.logger.Info("download controller closed")
	return nil
}

func closeBody(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
