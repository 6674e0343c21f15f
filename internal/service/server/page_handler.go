package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// PageHandler serves the /page routes
type PageHandler struct {
	pages  PageOpener
	logger *zap.Logger
}

// NewPageHandler creates a new PageHandler; pages may be nil
func NewPageHandler(pages PageOpener, logger *zap.Logger) *PageHandler {
	return &PageHandler{pages: pages, logger: logger}
}

type pageRequest struct {
	URL string `json:"url"`
}

func (h *PageHandler) decode(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page host disabled")
		return "", false
	}
	var req pageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.URL, true
}

// HandleOpen opens a page: POST /page/open.
// Unsupported content is forwarded to the download controller.
func (h *PageHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.pages.Open(r.Context(), rawURL)
	if err != nil {
		h.logger.Warn("failed to open page", zap.String("url", rawURL), zap.Error(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSave raises a save request: POST /page/save
func (h *PageHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.pages.RequestSave(rawURL); err != nil {
		h.logger.Warn("save request failed", zap.String("url", rawURL), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
