package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/vertextoedge/download-controller/internal/domain"
	"go.uber.org/zap"
)

// DownloadHandler serves the /downloads routes
type DownloadHandler struct {
	controller  DownloadController
	downloadDir string
	logger      *zap.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(controller DownloadController, downloadDir string, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		controller:  controller,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

type createRequest struct {
	URL string `json:"url"`
	// Path is a destination file or, with a trailing slash, a directory
	Path     string `json:"path,omitempty"`
	Dir      string `json:"dir,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type transferView struct {
	ID            int64     `json:"id"`
	URL           string    `json:"url"`
	DestDir       string    `json:"dest_dir"`
	FileName      string    `json:"file_name,omitempty"`
	Path          string    `json:"path,omitempty"`
	Phase         string    `json:"phase"`
	LastError     string    `json:"last_error,omitempty"`
	BytesReceived int64     `json:"bytes_received"`
	TotalBytes    int64     `json:"total_bytes"`
	Received      string    `json:"received"`
	Percent       float64   `json:"percent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newTransferView(t domain.Transfer) transferView {
	return transferView{
		ID:            t.ID,
		URL:           t.URL,
		DestDir:       t.DestDir,
		FileName:      t.FileName,
		Path:          t.Path(),
		Phase:         t.Phase.String(),
		LastError:     domain.ErrorString(t.LastError),
		BytesReceived: t.BytesReceived,
		TotalBytes:    t.TotalBytes,
		Received:      humanize.IBytes(uint64(max(t.BytesReceived, 0))),
		Percent:       t.Percent(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// HandleCreate starts a download: POST /downloads
func (h *DownloadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	dest := h.destination(req)
	handle, ok := h.controller.StartDownload(u, dest)
	if !ok {
		if !h.controller.Available() {
			writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "download not created")
		return
	}

	h.logger.Info("download requested", zap.Int64("transfer_id", handle.ID()), zap.String("url", u.String()))

	tr, ok := handle.Snapshot()
	if !ok {
		tr = domain.Transfer{ID: handle.ID(), URL: u.String()}
	}
	writeJSON(w, http.StatusCreated, newTransferView(tr))
}

func (h *DownloadHandler) destination(req createRequest) domain.Destination {
	if req.Path != "" {
		return domain.DestinationFromPath(req.Path)
	}
	dest := domain.Destination{Dir: req.Dir, FileName: req.FileName}
	if dest.Dir == "" {
		dest.Dir = h.downloadDir
	}
	return dest
}

// HandleList lists live transfers: GET /downloads
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	transfers := h.controller.Transfers()
	views := make([]transferView, len(transfers))
	for i, t := range transfers {
		views[i] = newTransferView(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend":   h.controller.Backend(),
		"transfers": views,
	})
}

// HandleGet returns one transfer: GET /downloads/{id}
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	tr, found := h.controller.Transfer(id)
	if !found {
		writeError(w, http.StatusNotFound, domain.ErrTransferNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, newTransferView(tr))
}

// HandlePause pauses a transfer: POST /downloads/{id}/pause
func (h *DownloadHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "pause", h.controller.Pause)
}

// HandleResume resumes a transfer: POST /downloads/{id}/resume
func (h *DownloadHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "resume", h.controller.Resume)
}

// HandleCancel cancels a transfer: POST /downloads/{id}/cancel
func (h *DownloadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "cancel", h.controller.Cancel)
}

func (h *DownloadHandler) act(w http.ResponseWriter, r *http.Request, action string, fn func(int64) error) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	if err := fn(id); err != nil {
		h.logger.Debug("transfer action rejected",
			zap.String("action", action),
			zap.Int64("transfer_id", id),
			zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	tr, found := h.controller.Transfer(id)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusAccepted, newTransferView(tr))
}

// HandleRemoveAll drops every transfer: DELETE /downloads
func (h *DownloadHandler) HandleRemoveAll(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.RemoveAll(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func transferID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid transfer id")
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrNotRunning),
		errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidURL):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
