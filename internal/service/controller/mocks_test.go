package controller

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/domain/event"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
)

// callLog records the order of interesting calls across mocks and handlers
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type mockDownload struct {
	id        int64
	url       string
	destDir   string
	fileName  string
	lastError domain.NetworkError
	phase     domain.Phase
	startErr  error
	receivers []port.EventSink
	starts    int
	log       *callLog
}

var _ port.Download = (*mockDownload)(nil)

func (d *mockDownload) ID() int64                      { return d.id }
func (d *mockDownload) URL() string                    { return d.url }
func (d *mockDownload) SetDestPath(dir string)         { d.destDir = dir }
func (d *mockDownload) SetFileName(name string)        { d.fileName = name }
func (d *mockDownload) DestPath() string               { return d.destDir }
func (d *mockDownload) FileName() string               { return d.fileName }
func (d *mockDownload) LastError() domain.NetworkError { return d.lastError }

func (d *mockDownload) Snapshot() domain.Transfer {
	return domain.Transfer{
		ID:        d.id,
		URL:       d.url,
		DestDir:   d.destDir,
		FileName:  d.fileName,
		LastError: d.lastError,
		Phase:     d.phase,
	}
}

func (d *mockDownload) Start() error {
	d.starts++
	if d.log != nil {
		d.log.add("start")
	}
	return d.startErr
}

func (d *mockDownload) Pause() error {
	d.phase = domain.PhasePaused
	return nil
}

func (d *mockDownload) Cancel() error {
	d.phase = domain.PhaseCancelled
	return nil
}

func (d *mockDownload) RegisterEventReceiver(sink port.EventSink) {
	d.receivers = append(d.receivers, sink)
}

type mockManager struct {
	nextID    int64
	downloads map[int64]*mockDownload
	receivers []port.EventSink
	proxies   []domain.Proxy
	createErr error
	removed   int
	closed    bool
	lastReply *http.Response
	log       *callLog
}

var _ port.SessionManager = (*mockManager)(nil)

func newMockManager() *mockManager {
	return &mockManager{downloads: make(map[int64]*mockDownload), log: &callLog{}}
}

func (m *mockManager) add(rawURL string) *mockDownload {
	m.nextID++
	d := &mockDownload{id: m.nextID, url: rawURL, phase: domain.PhaseCreated, log: m.log}
	m.downloads[d.id] = d
	return d
}

func (m *mockManager) CreateDownload(rawURL string) (port.Download, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.add(rawURL), nil
}

func (m *mockManager) CreateDownloadFromReply(resp *http.Response) (port.Download, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.lastReply = resp
	return m.add(resp.Request.URL.String()), nil
}

func (m *mockManager) FindDownload(id int64) (port.Download, bool) {
	d, ok := m.downloads[id]
	if !ok {
		return nil, false
	}
	return d, true
}

func (m *mockManager) RegisterEventReceiver(sink port.EventSink) {
	m.receivers = append(m.receivers, sink)
}

func (m *mockManager) SetProxy(host string, port int) {
	m.proxies = append(m.proxies, domain.Proxy{Host: host, Port: port})
}

func (m *mockManager) Downloads() []port.Download {
	out := make([]port.Download, 0, len(m.downloads))
	for id := int64(1); id <= m.nextID; id++ {
		if d, ok := m.downloads[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (m *mockManager) RemoveAll() {
	m.removed++
	m.downloads = make(map[int64]*mockDownload)
}

func (m *mockManager) Close() error {
	m.closed = true
	return nil
}

func factoryFor(m *mockManager) port.SessionFactory {
	return func(clientID string) (port.SessionManager, error) {
		return m, nil
	}
}

// recorder collects every notification it receives
type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
	log    *callLog
}

func (r *recorder) Handle(e event.DomainEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.log != nil {
		r.log.add(e.EventName())
	}
	return nil
}

func (r *recorder) HandledEvents() []string {
	return []string{event.AllEvents}
}

func (r *recorder) all() []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DomainEvent(nil), r.events...)
}

func (r *recorder) names() []string {
	var names []string
	for _, e := range r.all() {
		names = append(names, e.EventName())
	}
	return names
}

func newTestController(t interface{ Fatalf(string, ...any) }, m *mockManager, proxy *domain.Proxy) (*Controller, *recorder) {
	c, err := New(Active(factoryFor(m), "test-client", proxy), zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{log: m.log}
	c.Subscribe(rec)
	return c, rec
}

type mockPageHost struct {
	forward        bool
	unsupportedErr error
	requestErr     error
	onUnsupported  func(*http.Response)
	onRequested    func(*http.Request)
}

var _ port.PageHost = (*mockPageHost)(nil)

func (h *mockPageHost) SetForwardUnsupportedContent(forward bool) {
	h.forward = forward
}

func (h *mockPageHost) OnUnsupportedContent(fn func(*http.Response)) error {
	if h.unsupportedErr != nil {
		return h.unsupportedErr
	}
	h.onUnsupported = fn
	return nil
}

func (h *mockPageHost) OnDownloadRequested(fn func(*http.Request)) error {
	if h.requestErr != nil {
		return h.requestErr
	}
	h.onRequested = fn
	return nil
}

// trackingBody reports whether it was closed
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

var errSubscribe = errors.New("subscription refused")
