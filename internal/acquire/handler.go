package acquire

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Lynam2022/y2tubex/internal/platform/metrics"
	"github.com/Lynam2022/y2tubex/internal/source"
	"github.com/Lynam2022/y2tubex/internal/timedtext"
)

// Handler exposes the acquisition HTTP endpoints using go-chi.
type Handler struct {
	orch    *Orchestrator
	meta    MetadataFetcher
	tempDir string
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(orch *Orchestrator, meta MetadataFetcher, tempDir string, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{orch: orch, meta: meta, tempDir: tempDir, log: log, metrics: m}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Metadata handles POST /api/metadata.
// Body: { "url": "...", "platform": "youtube" }.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL      string `json:"url"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	ref, err := source.Resolve(body.URL, body.Platform)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	meta, err := h.meta.Fetch(r.Context(), ref)
	switch {
	case errors.Is(err, source.ErrUnavailable):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.log.Error("metadata fetch failed",
			slog.String("source", ref.ID),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "metadata fetch failed"})
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// Download handles POST /api/download.
// Body: { "url": "...", "platform": "youtube", "type": "video|audio", "quality": "high|medium|low" }.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL      string `json:"url"`
		Platform string `json:"platform"`
		Type     string `json:"type"`
		Quality  string `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if body.Type != "video" && body.Type != "audio" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `type must be "video" or "audio"`})
		return
	}
	if body.Quality == "" {
		body.Quality = "medium"
	}
	if !ValidQuality(body.Quality) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `quality must be "high", "medium", or "low"`})
		return
	}

	ref, err := source.Resolve(body.URL, body.Platform)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	h.submit(w, Request{
		ID:        uuid.NewString(),
		Source:    ref,
		Kind:      KindMedia,
		MediaType: body.Type,
		Quality:   body.Quality,
		TempDir:   h.tempDir,
	})
}

// DownloadSubtitle handles POST /api/download-subtitle.
// Body: { "url": "...", "platform": "youtube", "targetLanguage": "en", "formatPreference": "srt|vtt|txt" }.
func (h *Handler) DownloadSubtitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL              string `json:"url"`
		Platform         string `json:"platform"`
		TargetLanguage   string `json:"targetLanguage"`
		FormatPreference string `json:"formatPreference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if body.TargetLanguage == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "targetLanguage is required"})
		return
	}
	format := timedtext.OutputFormat(body.FormatPreference)
	if body.FormatPreference == "" {
		format = timedtext.FormatSRT
	}
	if !format.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `formatPreference must be "srt", "vtt", or "txt"`})
		return
	}

	ref, err := source.Resolve(body.URL, body.Platform)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	h.submit(w, Request{
		ID:       uuid.NewString(),
		Source:   ref,
		Kind:     KindSubtitle,
		Language: body.TargetLanguage,
		Format:   format,
		TempDir:  h.tempDir,
	})
}

func (h *Handler) submit(w http.ResponseWriter, req Request) {
	if err := h.orch.Submit(req); err != nil {
		if errors.Is(err, ErrAlreadyInProgress) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "request already in progress"})
			return
		}
		h.log.Error("submit failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not accept request"})
		return
	}

	h.log.Info("acquisition accepted",
		slog.String("download_id", req.ID),
		slog.String("source", req.Source.ID),
		slog.String("kind", string(req.Kind)))
	writeJSON(w, http.StatusAccepted, map[string]string{"downloadId": req.ID})
}

// CancelDownload handles POST /api/cancel-download/{downloadId}. Best
// effort: the in-flight acquisition is not preempted, only its progress
// record is dropped.
func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "downloadId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing download id"})
		return
	}

	h.orch.Cancel(id)
	h.log.Info("download cancelled", slog.String("download_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
