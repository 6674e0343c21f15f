package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Manager is an in-process session manager over net/http.
// All lifecycle events are delivered from one goroutine in raise order.
type Manager struct {
	config *Config
	fs     port.FileSystem
	logger *zap.Logger

	limiter *rate.Limiter
	slots   chan struct{}
	queue   *eventQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu        sync.Mutex
	client    *http.Client
	transport *http.Transport
	proxy     *url.URL
	nextID    int64
	downloads map[int64]*Download
	receivers []port.EventSink
	closed    bool
}

// Ensure Manager implements port.SessionManager
var _ port.SessionManager = (*Manager)(nil)

// NewManager creates a session manager writing into fs
func NewManager(cfg *Config, fs port.FileSystem, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:    cfg,
		fs:        fs,
		logger:    logger.Named("session").With(zap.String("client", cfg.ClientID)),
		slots:     make(chan struct{}, cfg.ConcurrentDownloads),
		queue:     newEventQueue(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		downloads: make(map[int64]*Download),
	}
	if cfg.RateLimitKBps > 0 {
		bps := cfg.RateLimitKBps * 1024
		m.limiter = rate.NewLimiter(rate.Limit(bps), max(bps, cfg.ReadBufferSize))
	}
	m.transport = m.newTransport(nil)
	m.client = &http.Client{Transport: m.transport}

	go m.deliver()
	return m
}

// Factory returns a port.SessionFactory building managers from a base config
func Factory(base *Config, fs port.FileSystem, logger *zap.Logger) port.SessionFactory {
	return func(clientID string) (port.SessionManager, error) {
		cfg := DefaultConfig()
		if base != nil {
			c := *base
			cfg = &c
		}
		if clientID != "" {
			cfg.ClientID = clientID
		}
		if fs == nil {
			return nil, fmt.Errorf("session manager requires a filesystem")
		}
		return NewManager(cfg, fs, logger), nil
	}
}

func (m *Manager) newTransport(proxy *url.URL) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   m.config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   m.config.ConnectTimeout,
		ResponseHeaderTimeout: m.config.ResponseHeaderTimeout,
		MaxIdleConnsPerHost:   m.config.ConcurrentDownloads,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

// deliver runs the single delivery goroutine
func (m *Manager) deliver() {
	defer close(m.done)
	for {
		item, ok := m.queue.pop()
		if !ok {
			return
		}
		for _, sink := range item.sinks {
			if !sink.HandleEvent(item.ev) {
				m.logger.Debug("lifecycle event not handled",
					zap.Stringer("kind", item.ev.Kind),
					zap.Int64("transfer_id", item.ev.TransferID))
			}
		}
	}
}

func (m *Manager) raise(ev domain.LifecycleEvent, sinks []port.EventSink) {
	if len(sinks) == 0 {
		return
	}
	if !m.queue.push(queuedEvent{ev: ev, sinks: sinks}) {
		m.logger.Debug("dropping event after close", zap.Stringer("kind", ev.Kind))
	}
}

func (m *Manager) raiseManager(kind domain.EventKind, id int64) {
	m.mu.Lock()
	sinks := append([]port.EventSink(nil), m.receivers...)
	m.mu.Unlock()
	m.raise(domain.LifecycleEvent{Kind: kind, TransferID: id}, sinks)
}

// CreateDownload creates a transfer for rawURL without starting it
func (m *Manager) CreateDownload(rawURL string) (port.Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme in %q", domain.ErrInvalidURL, rawURL)
	}
	d, err := m.create(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDownloadFromReply adopts an in-flight response; its body becomes the first run's data
func (m *Manager) CreateDownloadFromReply(resp *http.Response) (port.Download, error) {
	if resp == nil {
		return nil, domain.ErrNilReply
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return nil, fmt.Errorf("%w: reply has no request url", domain.ErrInvalidURL)
	}
	d, err := m.create(resp.Request.URL.String(), resp)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Manager) create(rawURL string, reply *http.Response) (*Download, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	m.nextID++
	d := newDownload(m, m.nextID, rawURL, reply)
	m.downloads[d.id] = d
	m.mu.Unlock()

	m.logger.Debug("download created", zap.Int64("transfer_id", d.id), zap.String("url", rawURL))
	m.raiseManager(domain.KindDownloadCreated, d.id)
	return d, nil
}

// FindDownload looks up a live transfer
func (m *Manager) FindDownload(id int64) (port.Download, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[id]
	if !ok {
		return nil, false
	}
	return d, true
}

// RegisterEventReceiver adds a receiver for manager events
func (m *Manager) RegisterEventReceiver(sink port.EventSink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	m.receivers = append(m.receivers, sink)
	m.mu.Unlock()
}

// SetProxy routes transfers started from now on through host:port.
// An empty host restores the environment proxy settings.
func (m *Manager) SetProxy(host string, port int) {
	var proxy *url.URL
	if host != "" {
		proxy = &url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	}

	m.mu.Lock()
	old := m.transport
	m.proxy = proxy
	m.transport = m.newTransport(proxy)
	m.client = &http.Client{Transport: m.transport}
	m.mu.Unlock()

	old.CloseIdleConnections()
	m.logger.Info("proxy configured", zap.String("proxy", proxyString(proxy)))
}

// Proxy returns the configured proxy URL, nil when unset
func (m *Manager) Proxy() *url.URL {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proxy
}

func proxyString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func (m *Manager) httpClient() *http.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// Downloads returns the live transfers ordered by id
func (m *Manager) Downloads() []port.Download {
	m.mu.Lock()
	list := make([]*Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		list = append(list, d)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	out := make([]port.Download, len(list))
	for i, d := range list {
		out[i] = d
	}
	return out
}

// RemoveAll stops and forgets every transfer, discarding partial data
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	removed := m.downloads
	m.downloads = make(map[int64]*Download)
	m.mu.Unlock()

	for _, d := range removed {
		d.halt(stopRemove)
	}
	m.logger.Info("downloads cleared", zap.Int("count", len(removed)))
	m.raiseManager(domain.KindDownloadsCleared, 0)
}

// Close stops all transfers, delivers queued events and releases connections
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		live = append(live, d)
	}
	transport := m.transport
	m.mu.Unlock()

	for _, d := range live {
		d.halt(stopShutdown)
	}
	m.cancel()
	m.wg.Wait()
	m.queue.close()
	<-m.done
	transport.CloseIdleConnections()

	m.logger.Info("session manager closed")
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// waitBandwidth blocks until n bytes may be consumed
func (m *Manager) waitBandwidth(ctx context.Context, n int) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.WaitN(ctx, n)
}
