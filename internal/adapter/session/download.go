package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/port"
	"github.com/vertextoedge/download-controller/internal/util/throttle"
	"go.uber.org/zap"
)

// stopReason records why a run was interrupted
type stopReason int

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
	stopRemove
	stopShutdown
)

// Download is one transfer owned by a Manager
type Download struct {
	m         *Manager
	id        int64
	rawURL    string
	createdAt time.Time

	mu        sync.Mutex
	destDir   string
	fileName  string
	finalPath string
	lastErr   domain.NetworkError
	phase     domain.Phase
	received  int64
	total     int64
	updatedAt time.Time
	reply     *http.Response
	receivers []port.EventSink
	running   bool
	stop      stopReason
	cancel    context.CancelFunc
	done      chan struct{}
}

// Ensure Download implements port.Download
var _ port.Download = (*Download)(nil)

func newDownload(m *Manager, id int64, rawURL string, reply *http.Response) *Download {
	now := time.Now()
	return &Download{
		m:         m,
		id:        id,
		rawURL:    rawURL,
		createdAt: now,
		updatedAt: now,
		destDir:   m.fs.RootDir(),
		phase:     domain.PhaseCreated,
		total:     -1,
		reply:     reply,
	}
}

// ID returns the transfer identity
func (d *Download) ID() int64 { return d.id }

// URL returns the source URL
func (d *Download) URL() string { return d.rawURL }

// SetDestPath sets the destination directory; empty keeps the default
func (d *Download) SetDestPath(dir string) {
	if dir == "" {
		return
	}
	d.mu.Lock()
	d.destDir = dir
	d.mu.Unlock()
}

// SetFileName sets the file name used once headers arrive
func (d *Download) SetFileName(name string) {
	d.mu.Lock()
	d.fileName = name
	d.mu.Unlock()
}

// DestPath returns the destination directory
func (d *Download) DestPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destDir
}

// FileName returns the file name, empty while undecided
func (d *Download) FileName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fileName
}

// LastError returns the most recent error code
func (d *Download) LastError() domain.NetworkError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Snapshot returns a copy of the transfer state
func (d *Download) Snapshot() domain.Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.Transfer{
		ID:            d.id,
		URL:           d.rawURL,
		DestDir:       d.destDir,
		FileName:      d.fileName,
		LastError:     d.lastErr,
		Phase:         d.phase,
		BytesReceived: d.received,
		TotalBytes:    d.total,
		CreatedAt:     d.createdAt,
		UpdatedAt:     d.updatedAt,
	}
}

// RegisterEventReceiver adds a receiver for this transfer's events
func (d *Download) RegisterEventReceiver(sink port.EventSink) {
	if sink == nil {
		return
	}
	d.mu.Lock()
	d.receivers = append(d.receivers, sink)
	d.mu.Unlock()
}

// Start begins the transfer, or resumes it from the partial file.
// Started is raised before any I/O; the transfer itself runs in the background.
func (d *Download) Start() error {
	if d.m.isClosed() {
		return domain.ErrSessionClosed
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if !d.phase.CanStart() {
		phase := d.phase
		d.mu.Unlock()
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidStateTransition, phase)
	}
	resume := d.phase != domain.PhaseCreated
	reply := d.reply
	d.reply = nil
	ctx, cancel := context.WithCancel(d.m.ctx)
	d.running = true
	d.stop = stopNone
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	d.transition(domain.KindStarted, domain.NoError)

	d.m.wg.Add(1)
	go d.run(ctx, resume, reply)
	return nil
}

// Pause interrupts a running transfer keeping the partial file
func (d *Download) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.stop != stopNone {
		return domain.ErrNotRunning
	}
	d.stop = stopPause
	d.cancel()
	return nil
}

// Cancel stops the transfer and discards its partial file
func (d *Download) Cancel() error {
	d.mu.Lock()
	if d.running {
		if d.stop == stopNone || d.stop == stopPause {
			d.stop = stopCancel
			d.cancel()
		}
		d.mu.Unlock()
		return nil
	}
	if d.phase.IsTerminal() {
		phase := d.phase
		d.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", domain.ErrInvalidStateTransition, phase)
	}
	d.mu.Unlock()

	d.discard()
	d.transition(domain.KindCancelled, domain.OperationCanceledError)
	return nil
}

// Wait blocks until the current run, if any, has exited
func (d *Download) Wait(ctx context.Context) error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// halt interrupts the download for removal or shutdown
func (d *Download) halt(reason stopReason) {
	d.mu.Lock()
	if d.running {
		d.stop = reason
		d.cancel()
		d.mu.Unlock()
		return
	}
	reply := d.reply
	d.reply = nil
	d.mu.Unlock()

	if reply != nil && reply.Body != nil {
		reply.Body.Close()
	}
	if reason == stopRemove {
		d.discard()
	}
}

// transition applies kind to the phase and raises the event.
// Events that do not fit the current phase are dropped.
func (d *Download) transition(kind domain.EventKind, code domain.NetworkError) bool {
	d.mu.Lock()
	next, err := d.phase.Next(kind)
	if err != nil {
		d.mu.Unlock()
		d.m.logger.Debug("transition skipped", zap.Int64("transfer_id", d.id), zap.Error(err))
		return false
	}
	d.phase = next
	switch kind {
	case domain.KindStarted:
		d.lastErr = domain.NoError
	case domain.KindPaused, domain.KindCancelled, domain.KindFailed, domain.KindNetworkLoss, domain.KindError:
		d.lastErr = code
	}
	d.updatedAt = time.Now()
	sinks := append([]port.EventSink(nil), d.receivers...)
	d.mu.Unlock()

	d.m.raise(domain.NewTransferEvent(kind, d.id), sinks)
	return true
}

func (d *Download) run(ctx context.Context, resume bool, reply *http.Response) {
	defer d.m.wg.Done()
	defer d.exit()

	select {
	case d.m.slots <- struct{}{}:
		defer func() { <-d.m.slots }()
	case <-ctx.Done():
		if reply != nil && reply.Body != nil {
			reply.Body.Close()
		}
		d.stopped()
		return
	}

	err := d.transfer(ctx, resume, reply)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		d.stopped()
	default:
		d.fail(err)
	}
}

func (d *Download) exit() {
	d.mu.Lock()
	d.running = false
	d.cancel()
	close(d.done)
	d.mu.Unlock()
}

// stopped handles a run interrupted through its context
func (d *Download) stopped() {
	d.mu.Lock()
	reason := d.stop
	d.mu.Unlock()

	switch reason {
	case stopPause:
		d.transition(domain.KindPaused, domain.NoError)
	case stopCancel:
		d.discard()
		d.transition(domain.KindCancelled, domain.OperationCanceledError)
	case stopRemove:
		d.discard()
	}
}

func (d *Download) fail(err error) {
	code := classify(err)
	d.m.logger.Warn("download failed",
		zap.Int64("transfer_id", d.id),
		zap.String("url", d.rawURL),
		zap.Stringer("code", code),
		zap.Error(err))

	var se *statusError
	var be *bodyError
	switch {
	case errors.As(err, &se):
		d.transition(domain.KindError, code)
		d.transition(domain.KindFailed, code)
	case errors.As(err, &be):
		d.transition(domain.KindNetworkLoss, code)
	default:
		d.transition(domain.KindFailed, code)
	}
}

// discard removes the partial file and the name reservation
func (d *Download) discard() {
	d.mu.Lock()
	final := d.finalPath
	d.finalPath = ""
	d.received = 0
	d.mu.Unlock()

	if final == "" {
		return
	}
	if err := d.m.fs.DeleteTempFile(d.m.fs.TempPath(final)); err != nil {
		d.m.logger.Warn("failed to delete partial file", zap.Int64("transfer_id", d.id), zap.Error(err))
	}
	d.m.fs.Release(final)
}

func (d *Download) transfer(ctx context.Context, resume bool, reply *http.Response) error {
	u, err := url.Parse(d.rawURL)
	if err != nil {
		return domain.NewTransferError(domain.ProtocolUnknownError, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "data":
		return d.transferData(ctx)
	case "http", "https":
	default:
		if reply == nil {
			return domain.NewTransferError(domain.ProtocolUnknownError,
				fmt.Errorf("unsupported scheme %q", u.Scheme))
		}
	}

	var offset int64
	resp := reply
	if resp == nil {
		if resume {
			offset = d.partialSize()
		}
		resp, err = d.request(ctx, offset)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()
	stopBody := context.AfterFunc(ctx, func() { resp.Body.Close() })
	defer stopBody()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	appendMode := offset > 0 && resp.StatusCode == http.StatusPartialContent
	if !appendMode {
		offset = 0
	}
	total := resp.ContentLength
	if total >= 0 {
		total += offset
	}

	if err := d.prepareDestination(suggestedFileName(resp, u)); err != nil {
		return err
	}
	d.headerReceived(offset, total)
	return d.receive(ctx, resp.Body, appendMode)
}

func (d *Download) transferData(ctx context.Context) error {
	payload, err := decodeDataURL(d.rawURL)
	if err != nil {
		return domain.NewTransferError(domain.ProtocolFailure, err)
	}
	if err := d.prepareDestination(dataFileName(payload.MediaType)); err != nil {
		return err
	}
	d.headerReceived(0, int64(len(payload.Data)))
	return d.receive(ctx, bytes.NewReader(payload.Data), false)
}

func (d *Download) request(ctx context.Context, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.rawURL, nil)
	if err != nil {
		return nil, domain.NewTransferError(domain.ProtocolUnknownError, err)
	}
	req.Header.Set("User-Agent", d.m.config.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.m.httpClient().Do(req)
	if err != nil {
		return nil, domain.NewTransferError(classify(err), err)
	}
	return resp, nil
}

func (d *Download) partialSize() int64 {
	d.mu.Lock()
	final := d.finalPath
	d.mu.Unlock()
	if final == "" {
		return 0
	}
	size, _, err := d.m.fs.GetTempFileInfo(d.m.fs.TempPath(final))
	if err != nil {
		return 0
	}
	return size
}

// prepareDestination reserves the final path on the first run
func (d *Download) prepareDestination(suggested string) error {
	d.mu.Lock()
	if d.finalPath != "" {
		d.mu.Unlock()
		return nil
	}
	name := d.fileName
	if name == "" {
		name = suggested
	}
	dir := d.destDir
	d.mu.Unlock()

	if err := d.m.fs.EnsureDir(dir); err != nil {
		return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
	}
	p, err := d.m.fs.UniquePath(dir, name)
	if err != nil {
		return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
	}

	d.mu.Lock()
	d.finalPath = p
	d.destDir = filepath.Dir(p)
	d.fileName = filepath.Base(p)
	d.mu.Unlock()
	return nil
}

func (d *Download) headerReceived(offset, total int64) {
	d.mu.Lock()
	d.received = offset
	d.total = total
	d.mu.Unlock()
	d.transition(domain.KindHeaderReceived, domain.NoError)
}

func (d *Download) addBytes(n int) {
	d.mu.Lock()
	d.received += int64(n)
	d.mu.Unlock()
}

func (d *Download) receive(ctx context.Context, body io.Reader, appendMode bool) error {
	d.mu.Lock()
	final := d.finalPath
	d.mu.Unlock()
	tmp := d.m.fs.TempPath(final)

	w, _, err := d.m.fs.OpenTemp(tmp, appendMode)
	if err != nil {
		return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
	}

	gate := throttle.New(d.m.config.ProgressInterval)
	buf := make([]byte, d.m.config.ReadBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := d.m.waitBandwidth(ctx, n); err != nil {
				w.Close()
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				w.Close()
				return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
			}
			d.addBytes(n)
			if gate.Allow() {
				d.transition(domain.KindProgress, domain.NoError)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.Close()
			return &bodyError{err: rerr}
		}
	}

	if err := w.Close(); err != nil {
		return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
	}
	if gate.Flush() {
		d.transition(domain.KindProgress, domain.NoError)
	}

	written, err := d.m.fs.Commit(tmp, final)
	if err != nil {
		return domain.NewTransferError(domain.ContentOperationNotPermittedError, err)
	}

	d.mu.Lock()
	d.finalPath = ""
	d.destDir = filepath.Dir(written)
	d.fileName = filepath.Base(written)
	if d.total < 0 {
		d.total = d.received
	}
	d.mu.Unlock()

	d.transition(domain.KindCompleted, domain.NoError)
	return nil
}
