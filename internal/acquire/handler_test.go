package acquire

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Lynam2022/y2tubex/internal/source"
)

func newTestHandler(t *testing.T, fx *fixture) http.Handler {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(fx.orch, fx.orch.opts.Metadata, fx.dirs.Temp, log, nil)

	r := chi.NewRouter()
	r.Post("/api/metadata", h.Metadata)
	r.Post("/api/download", h.Download)
	r.Post("/api/download-subtitle", h.DownloadSubtitle)
	r.Post("/api/cancel-download/{downloadId}", h.CancelDownload)
	return r
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandler_Metadata(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	h := newTestHandler(t, fx)

	rr := postJSON(t, h, "/api/metadata", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	var meta source.Metadata
	if err := json.Unmarshal(rr.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Title != "My Video" {
		t.Errorf("title = %q", meta.Title)
	}
}

func TestHandler_MetadataUnavailable(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	fx.orch.opts.Metadata = fakeMetadata{err: source.ErrUnavailable}
	h := newTestHandler(t, fx)

	rr := postJSON(t, h, "/api/metadata", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandler_MetadataBadURL(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	h := newTestHandler(t, fx)

	rr := postJSON(t, h, "/api/metadata", `{"url":"not a url"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandler_DownloadAccepted(t *testing.T) {
	s1 := &fakeStrategy{name: "s1", outcomes: []Outcome{NotAvailable("skip")}}
	fx := newFixture(t, nil, []Strategy{s1}, nil)
	h := newTestHandler(t, fx)

	rr := postJSON(t, h, "/api/download",
		`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","type":"audio","quality":"medium"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	id := resp["downloadId"]
	if id == "" {
		t.Fatal("no downloadId in response")
	}
	waitTerminal(t, fx.store, id)
}

func TestHandler_DownloadValidation(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	h := newTestHandler(t, fx)

	cases := []struct {
		name string
		body string
	}{
		{"bad type", `{"url":"https://youtu.be/dQw4w9WgXcQ","type":"gif"}`},
		{"bad quality", `{"url":"https://youtu.be/dQw4w9WgXcQ","type":"video","quality":"ultra"}`},
		{"bad url", `{"url":"://","type":"video"}`},
		{"not json", `type=video`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, h, "/api/download", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body %s", rr.Code, rr.Body)
			}
		})
	}
}

func TestHandler_DownloadSubtitleValidation(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	h := newTestHandler(t, fx)

	rr := postJSON(t, h, "/api/download-subtitle", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing targetLanguage: status = %d", rr.Code)
	}

	rr = postJSON(t, h, "/api/download-subtitle",
		`{"url":"https://youtu.be/dQw4w9WgXcQ","targetLanguage":"en","formatPreference":"doc"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad format: status = %d", rr.Code)
	}
}

func TestHandler_DuplicateSubtitleRequestConflicts(t *testing.T) {
	block := make(chan struct{})
	s1 := &fakeStrategy{name: "s1", block: block, outcomes: []Outcome{SucceededRaw([]byte(sampleVTT))}}
	fx := newFixture(t, []Strategy{s1}, nil, nil)
	h := newTestHandler(t, fx)

	body := `{"url":"https://youtu.be/dQw4w9WgXcQ","targetLanguage":"en","formatPreference":"srt"}`

	first := postJSON(t, h, "/api/download-subtitle", body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, body %s", first.Code, first.Body)
	}

	second := postJSON(t, h, "/api/download-subtitle", body)
	if second.Code != http.StatusConflict {
		t.Errorf("second status = %d, want 409", second.Code)
	}

	close(block)
	var resp map[string]string
	json.Unmarshal(first.Body.Bytes(), &resp)
	waitTerminal(t, fx.store, resp["downloadId"])
}

func TestHandler_CancelDownload(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)
	h := newTestHandler(t, fx)

	fx.store.Create("d1")
	rr := postJSON(t, h, "/api/cancel-download/d1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if _, ok := fx.store.Get("d1"); ok {
		t.Error("record still present after cancel")
	}
}
