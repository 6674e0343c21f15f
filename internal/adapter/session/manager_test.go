package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
)

func TestManager_CompletedDownload(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	m, _ := newTestManager(t, nil)
	managerEvents := newRecorder()
	m.RegisterEventReceiver(managerEvents)

	d, err := m.CreateDownload(srv.URL + "/files/data.bin")
	if err != nil {
		t.Fatalf("CreateDownload() error = %v", err)
	}
	if ev := <-managerEvents.ch; ev.Kind != domain.KindDownloadCreated || ev.TransferID != d.ID() {
		t.Errorf("manager event = %+v", ev)
	}

	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	kinds := rec.waitFor(t, domain.KindCompleted)
	want := []domain.EventKind{domain.KindStarted, domain.KindHeaderReceived, domain.KindCompleted}
	if !equalKinds(withoutProgress(kinds), want) {
		t.Errorf("events = %v, want %v with progress", kinds, want)
	}
	if len(kinds) == len(want) {
		t.Error("expected at least one Progress event")
	}

	snap := d.Snapshot()
	if snap.Phase != domain.PhaseCompleted || snap.LastError != domain.NoError {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.FileName != "data.bin" || snap.BytesReceived != int64(len(body)) || snap.TotalBytes != int64(len(body)) {
		t.Errorf("snapshot = %+v", snap)
	}
	got, err := os.ReadFile(snap.Path())
	if err != nil || !bytes.Equal(got, body) {
		t.Errorf("file content mismatch, err = %v", err)
	}
}

func TestManager_FileNameHintAndCollision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="server.txt"`)
		io.WriteString(w, "x")
	}))
	defer srv.Close()

	m, fs := newTestManager(t, nil)
	dir := filepath.Join(fs.RootDir(), "sub")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "hint.txt"), []byte("old"), 0644)

	run := func(hint string) domain.Transfer {
		d, err := m.CreateDownload(srv.URL + "/dl")
		if err != nil {
			t.Fatal(err)
		}
		d.SetDestPath(dir)
		d.SetFileName(hint)
		rec := newRecorder()
		d.RegisterEventReceiver(rec)
		if err := d.Start(); err != nil {
			t.Fatal(err)
		}
		rec.waitFor(t, domain.KindCompleted)
		return d.Snapshot()
	}

	if got := run("hint.txt"); got.FileName != "hint(1).txt" || got.DestDir != dir {
		t.Errorf("hinted download = %s in %s", got.FileName, got.DestDir)
	}
	if got := run(""); got.FileName != "server.txt" {
		t.Errorf("content-disposition download = %s", got.FileName)
	}
}

func TestManager_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m, _ := newTestManager(t, nil)
	d, _ := m.CreateDownload(srv.URL + "/missing")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()

	kinds := rec.waitFor(t, domain.KindFailed)
	want := []domain.EventKind{domain.KindStarted, domain.KindError, domain.KindFailed}
	if !equalKinds(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
	if got := d.LastError(); got != domain.ContentNotFoundError {
		t.Errorf("LastError() = %s, want ContentNotFoundError", got)
	}
}

func TestManager_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m, _ := newTestManager(t, nil)
	d, _ := m.CreateDownload("http://" + addr + "/x")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()

	kinds := rec.waitFor(t, domain.KindFailed)
	if !equalKinds(kinds, []domain.EventKind{domain.KindStarted, domain.KindFailed}) {
		t.Errorf("events = %v", kinds)
	}
	if got := d.LastError(); got != domain.ConnectionRefusedError {
		t.Errorf("LastError() = %s, want ConnectionRefusedError", got)
	}
}

func TestManager_UnsupportedScheme(t *testing.T) {
	m, _ := newTestManager(t, nil)
	d, err := m.CreateDownload("ftp://example.com/file")
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindFailed)
	if got := d.LastError(); got != domain.ProtocolUnknownError {
		t.Errorf("LastError() = %s", got)
	}
}

func TestManager_NetworkLoss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	m, _ := newTestManager(t, nil)
	d, _ := m.CreateDownload(srv.URL + "/big.iso")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()

	kinds := rec.waitFor(t, domain.KindNetworkLoss)
	if kinds[0] != domain.KindStarted || kinds[1] != domain.KindHeaderReceived {
		t.Errorf("events = %v", kinds)
	}
	snap := d.Snapshot()
	if snap.Phase != domain.PhaseNetworkLoss || snap.LastError != domain.RemoteHostClosedError {
		t.Errorf("snapshot = %+v", snap)
	}
}

// pausingServer sends half the body, then blocks until the client goes away.
// Range requests are answered with the remainder.
type pausingServer struct {
	full []byte

	mu     sync.Mutex
	ranges []string
}

func (s *pausingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rg := r.Header.Get("Range")
	s.mu.Lock()
	s.ranges = append(s.ranges, rg)
	s.mu.Unlock()

	if rg == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.full)))
		w.WriteHeader(http.StatusOK)
		w.Write(s.full[:len(s.full)/2])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		return
	}

	var start int
	fmt.Sscanf(rg, "bytes=%d-", &start)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(s.full)-1, len(s.full)))
	w.Header().Set("Content-Length", strconv.Itoa(len(s.full)-start))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(s.full[start:])
}

func TestManager_PauseResume(t *testing.T) {
	ps := &pausingServer{full: bytes.Repeat([]byte("abcdefgh"), 4096)}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	m, fs := newTestManager(t, nil)
	d, _ := m.CreateDownload(srv.URL + "/resumable.bin")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, domain.KindProgress)

	if err := d.Start(); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := d.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	rec.waitFor(t, domain.KindPaused)
	if err := d.(*Download).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Pause(); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("Pause() on paused = %v, want ErrNotRunning", err)
	}

	partial := filepath.Join(fs.RootDir(), "resumable.bin") + ".downloading"
	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		t.Fatalf("partial file missing: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("resume Start() error = %v", err)
	}
	rec.waitFor(t, domain.KindCompleted)

	got, _ := os.ReadFile(filepath.Join(fs.RootDir(), "resumable.bin"))
	if !bytes.Equal(got, ps.full) {
		t.Errorf("resumed content length = %d, want %d", len(got), len(ps.full))
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.ranges) != 2 || ps.ranges[1] != fmt.Sprintf("bytes=%d-", info.Size()) {
		t.Errorf("range headers = %v, partial size %d", ps.ranges, info.Size())
	}
}

func TestManager_CancelRunning(t *testing.T) {
	ps := &pausingServer{full: bytes.Repeat([]byte("z"), 8192)}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	m, fs := newTestManager(t, nil)
	d, _ := m.CreateDownload(srv.URL + "/gone.bin")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindProgress)

	if err := d.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	rec.waitFor(t, domain.KindCancelled)
	d.(*Download).Wait(context.Background())

	if got := d.LastError(); got != domain.OperationCanceledError {
		t.Errorf("LastError() = %s", got)
	}
	if _, err := os.Stat(filepath.Join(fs.RootDir(), "gone.bin.downloading")); !os.IsNotExist(err) {
		t.Errorf("partial file should be removed, stat err = %v", err)
	}
	if err := d.Cancel(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("Cancel() twice = %v", err)
	}
	if err := d.Start(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("Start() after cancel = %v", err)
	}
}

func TestManager_CancelBeforeStart(t *testing.T) {
	m, _ := newTestManager(t, nil)
	d, _ := m.CreateDownload("http://example.invalid/never")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)

	if err := d.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if kinds := rec.waitFor(t, domain.KindCancelled); len(kinds) != 1 {
		t.Errorf("events = %v", kinds)
	}
}

func TestManager_DataURL(t *testing.T) {
	m, _ := newTestManager(t, nil)
	d, err := m.CreateDownload("data:text/plain,hello%20data")
	if err != nil {
		t.Fatal(err)
	}
	d.SetFileName("note.txt")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindCompleted)

	got, err := os.ReadFile(d.Snapshot().Path())
	if err != nil || string(got) != "hello data" {
		t.Errorf("content = %q, err = %v", got, err)
	}
}

func TestManager_AdoptReply(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, "adopted body")
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/page.bin")
	if err != nil {
		t.Fatal(err)
	}

	m, _ := newTestManager(t, nil)
	d, err := m.CreateDownloadFromReply(resp)
	if err != nil {
		t.Fatalf("CreateDownloadFromReply() error = %v", err)
	}
	if d.URL() != srv.URL+"/page.bin" {
		t.Errorf("URL() = %q", d.URL())
	}
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindCompleted)

	got, _ := os.ReadFile(d.Snapshot().Path())
	if string(got) != "adopted body" {
		t.Errorf("content = %q", got)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}

	if _, err := m.CreateDownloadFromReply(nil); !errors.Is(err, domain.ErrNilReply) {
		t.Errorf("nil reply error = %v", err)
	}
	if _, err := m.CreateDownloadFromReply(&http.Response{}); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("reply without request error = %v", err)
	}
}

func TestManager_SetProxy(t *testing.T) {
	var seen atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.String())
		io.WriteString(w, "via proxy")
	}))
	defer proxy.Close()

	pu, _ := url.Parse(proxy.URL)
	port, _ := strconv.Atoi(pu.Port())

	m, _ := newTestManager(t, nil)
	m.SetProxy(pu.Hostname(), port)
	if m.Proxy() == nil || m.Proxy().Host != pu.Host {
		t.Fatalf("Proxy() = %v", m.Proxy())
	}

	d, _ := m.CreateDownload("http://origin.invalid/file.txt")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindCompleted)

	if got, _ := seen.Load().(string); got != "http://origin.invalid/file.txt" {
		t.Errorf("proxy saw %q", got)
	}

	m.SetProxy("", 0)
	if m.Proxy() != nil {
		t.Error("empty host should clear the proxy")
	}
}

func TestManager_RemoveAll(t *testing.T) {
	m, _ := newTestManager(t, nil)
	managerEvents := newRecorder()
	m.RegisterEventReceiver(managerEvents)

	a, _ := m.CreateDownload("http://example.invalid/a")
	b, _ := m.CreateDownload("http://example.invalid/b")
	if a.ID() >= b.ID() {
		t.Errorf("ids not increasing: %d, %d", a.ID(), b.ID())
	}
	if list := m.Downloads(); len(list) != 2 || list[0].ID() != a.ID() {
		t.Errorf("Downloads() = %v", list)
	}

	m.RemoveAll()
	kinds := managerEvents.waitFor(t, domain.KindDownloadsCleared)
	if len(kinds) != 3 {
		t.Errorf("manager events = %v", kinds)
	}
	if _, ok := m.FindDownload(a.ID()); ok {
		t.Error("FindDownload() should fail after RemoveAll")
	}
	if len(m.Downloads()) != 0 {
		t.Error("Downloads() should be empty")
	}
}

func TestManager_Close(t *testing.T) {
	ps := &pausingServer{full: bytes.Repeat([]byte("q"), 4096)}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	m, _ := newTestManager(t, nil)
	d, _ := m.CreateDownload(srv.URL + "/x")
	rec := newRecorder()
	d.RegisterEventReceiver(rec)
	d.Start()
	rec.waitFor(t, domain.KindProgress)

	done := make(chan error, 1)
	go func() { done <- m.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}

	if _, err := m.CreateDownload("http://example.com/y"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("CreateDownload() after close = %v", err)
	}
	if err := d.Start(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Start() after close = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestManager_InvalidURL(t *testing.T) {
	m, _ := newTestManager(t, nil)
	for _, raw := range []string{"", "no-scheme", "http://[::1"} {
		if _, err := m.CreateDownload(raw); !errors.Is(err, domain.ErrInvalidURL) {
			t.Errorf("CreateDownload(%q) error = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestFactory(t *testing.T) {
	_, fs := newTestManager(t, nil)
	factory := Factory(&Config{RateLimitKBps: 64}, fs, nil)
	sm, err := factory("browser-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sm.Close()

	m := sm.(*Manager)
	if m.config.ClientID != "browser-1" || m.config.UserAgent != "browser-1" {
		t.Errorf("config = %+v", m.config)
	}
	if m.limiter == nil || m.limiter.Burst() < m.config.ReadBufferSize {
		t.Error("rate limiter should allow a full read buffer per wait")
	}

	if _, err := Factory(nil, nil, nil)("x"); err == nil {
		t.Error("factory without filesystem should fail")
	}
}
