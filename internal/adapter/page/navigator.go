package page

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
)

// Config contains navigator configuration
type Config struct {
	// RenderableTypes are media types the host displays itself; "type/*" matches a whole family
	RenderableTypes []string

	// MaxPageBytes caps how much of a rendered page is read
	MaxPageBytes int64

	// UserAgent is sent with page requests
	UserAgent string

	// HeaderTimeout bounds the wait for response headers; zero means no limit
	HeaderTimeout time.Duration
}

// DefaultConfig returns default navigator configuration
func DefaultConfig() *Config {
	return &Config{
		RenderableTypes: []string{"text/html", "text/plain", "application/xhtml+xml", "image/*"},
		MaxPageBytes:    8 * 1024 * 1024,
		UserAgent:       "download-controller",
		HeaderTimeout:   time.Minute,
	}
}

// Outcome says what Open did with a response
type Outcome string

// Outcomes
const (
	OutcomeRendered  Outcome = "rendered"
	OutcomeForwarded Outcome = "forwarded"
	OutcomeIgnored   Outcome = "ignored"
)

// Result describes an opened page
type Result struct {
	URL         string  `json:"url"`
	StatusCode  int     `json:"status_code"`
	ContentType string  `json:"content_type"`
	Outcome     Outcome `json:"outcome"`
	Bytes       int64   `json:"bytes"`
}

// Navigator is a headless content host. Renderable responses are consumed;
// anything else is forwarded as unsupported content when forwarding is on.
type Navigator struct {
	config *Config
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	forward     bool
	unsupported []func(*http.Response)
	requested   []func(*http.Request)
	closed      bool
}

// Ensure Navigator implements port.PageHost
var _ port.PageHost = (*Navigator)(nil)

// NewNavigator creates a navigator; a nil client uses http.DefaultClient
func NewNavigator(cfg *Config, client *http.Client, logger *zap.Logger) *Navigator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.RenderableTypes) == 0 {
		cfg.RenderableTypes = DefaultConfig().RenderableTypes
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = DefaultConfig().MaxPageBytes
	}
	if cfg.HeaderTimeout < 0 {
		cfg.HeaderTimeout = 0
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		config: cfg,
		client: client,
		logger: logger.Named("page"),
	}
}

// SetForwardUnsupportedContent controls forwarding of non-renderable responses
func (n *Navigator) SetForwardUnsupportedContent(forward bool) {
	n.mu.Lock()
	n.forward = forward
	n.mu.Unlock()
}

// ForwardsUnsupportedContent reports the forwarding flag
func (n *Navigator) ForwardsUnsupportedContent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.forward
}

// OnUnsupportedContent subscribes to forwarded responses.
// The subscriber owns the response body.
func (n *Navigator) OnUnsupportedContent(fn func(resp *http.Response)) error {
	if fn == nil {
		return domain.ErrNilCallback
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrHostClosed
	}
	n.unsupported = append(n.unsupported, fn)
	return nil
}

// OnDownloadRequested subscribes to save requests
func (n *Navigator) OnDownloadRequested(fn func(req *http.Request)) error {
	if fn == nil {
		return domain.ErrNilCallback
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return domain.ErrHostClosed
	}
	n.requested = append(n.requested, fn)
	return nil
}

// Open fetches rawURL and renders, forwards or drops the response.
// ctx only bounds the wait for headers: a forwarded body is read after Open
// returns and lives until its new owner closes it.
func (n *Navigator) Open(ctx context.Context, rawURL string) (*Result, error) {
	if n.isClosed() {
		return nil, domain.ErrHostClosed
	}

	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if n.config.UserAgent != "" {
		req.Header.Set("User-Agent", n.config.UserAgent)
	}

	resp, err := n.fetch(ctx, req, cancel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open %s: %w", rawURL, err)
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: cancel}

	res := &Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if n.renderable(resp) {
		defer resp.Body.Close()
		read, err := io.Copy(io.Discard, io.LimitReader(resp.Body, n.config.MaxPageBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read page: %w", err)
		}
		res.Outcome = OutcomeRendered
		res.Bytes = read
		n.logger.Debug("page rendered", zap.String("url", res.URL), zap.Int64("bytes", read))
		return res, nil
	}

	n.mu.Lock()
	forward := n.forward
	subscribers := slices.Clone(n.unsupported)
	n.mu.Unlock()

	if !forward || len(subscribers) == 0 {
		resp.Body.Close()
		res.Outcome = OutcomeIgnored
		n.logger.Info("unsupported content dropped", zap.String("url", res.URL), zap.String("content_type", res.ContentType))
		return res, nil
	}

	res.Outcome = OutcomeForwarded
	n.logger.Debug("unsupported content forwarded", zap.String("url", res.URL), zap.String("content_type", res.ContentType))
	for _, fn := range subscribers {
		fn(resp)
	}
	return res, nil
}

// RequestSave raises a download request for rawURL
func (n *Navigator) RequestSave(rawURL string) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return domain.ErrHostClosed
	}
	subscribers := slices.Clone(n.requested)
	n.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	for _, fn := range subscribers {
		fn(req)
	}
	return nil
}

// Close drops all subscriptions; later subscriptions fail
func (n *Navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.unsupported = nil
	n.requested = nil
	return nil
}

// fetch sends req, aborting through cancel if ctx ends or the header
// timeout passes before the response arrives
func (n *Navigator) fetch(ctx context.Context, req *http.Request, cancel context.CancelFunc) (*http.Response, error) {
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if n.config.HeaderTimeout > 0 {
		timer := time.AfterFunc(n.config.HeaderTimeout, cancel)
		defer timer.Stop()
	}
	return n.client.Do(req)
}

// releasingBody cancels the request context once the body is closed
type releasingBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

func (n *Navigator) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// renderable reports whether the host displays resp itself.
// Attachments and unknown types are not renderable; error pages always are.
func (n *Navigator) renderable(resp *http.Response) bool {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if disposition, _, err := mime.ParseMediaType(cd); err == nil && strings.EqualFold(disposition, "attachment") {
			return false
		}
	}
	if resp.StatusCode >= 400 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return matchesAny(mediaType, n.config.RenderableTypes)
}

func matchesAny(mediaType string, patterns []string) bool {
	mediaType = strings.ToLower(mediaType)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == mediaType {
			return true
		}
		if family, ok := strings.CutSuffix(p, "/*"); ok && strings.HasPrefix(mediaType, family+"/") {
			return true
		}
	}
	return false
}
