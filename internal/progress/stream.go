package progress

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// DefaultPollInterval is how often the stream handler polls the store for a
// fresh record.
const DefaultPollInterval = 300 * time.Millisecond

// StreamHandler exposes progress records as a server-sent event stream.
type StreamHandler struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
}

// NewStreamHandler returns a handler polling store every interval. An
// interval <= 0 falls back to DefaultPollInterval.
func NewStreamHandler(store Store, interval time.Duration, log *slog.Logger) *StreamHandler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &StreamHandler{store: store, interval: interval, log: log}
}

// ServeProgress handles GET /api/download-progress/{downloadId}. Each event
// is the JSON-encoded record. The stream closes immediately after a terminal
// record is pushed, and the record is removed from the store once observed.
// A client disconnect also tears down the stream and its store entry; the
// underlying acquisition keeps running either way.
func (h *StreamHandler) ServeProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "downloadId")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if _, ok := h.store.Get(id); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.log.Error("response writer does not support flushing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		rec, ok := h.store.Get(id)
		if !ok {
			// Cancelled out from under us.
			return
		}

		if err := writeEvent(w, rec); err != nil {
			h.log.Debug("progress stream write failed",
				slog.String("download_id", id),
				slog.String("error", err.Error()))
			h.store.Remove(id)
			return
		}
		flusher.Flush()

		if rec.Terminal() {
			h.store.Remove(id)
			return
		}

		select {
		case <-r.Context().Done():
			h.log.Debug("progress stream client disconnected", slog.String("download_id", id))
			h.store.Remove(id)
			return
		case <-ticker.C:
		}
	}
}

func writeEvent(w http.ResponseWriter, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
