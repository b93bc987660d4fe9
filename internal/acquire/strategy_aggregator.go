package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// AggregatorStrategy drives the key-authenticated third-party extraction
// API. Non-primary-platform URLs route here directly; for the primary
// platform it is the last resort in the media chain.
type AggregatorStrategy struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewAggregatorStrategy builds the strategy. An empty baseURL yields a
// strategy that reports itself not applicable, so wiring stays unconditional.
func NewAggregatorStrategy(baseURL, apiKey string, log *slog.Logger) *AggregatorStrategy {
	return &AggregatorStrategy{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		log:        log,
	}
}

func (s *AggregatorStrategy) Name() string { return "aggregator-api" }

type aggregatorExtractRequest struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Quality  string `json:"quality,omitempty"`
	Language string `json:"language,omitempty"`
}

type aggregatorExtractResponse struct {
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error,omitempty"`
}

// Attempt implements Strategy.
func (s *AggregatorStrategy) Attempt(ctx context.Context, req Request) Outcome {
	if s.baseURL == "" {
		return NotAvailable("aggregator API not configured")
	}

	payload, err := json.Marshal(aggregatorExtractRequest{
		URL:      req.Source.URL,
		Kind:     string(req.Kind),
		Quality:  req.Quality,
		Language: req.Language,
	})
	if err != nil {
		return Fatal(fmt.Errorf("encode aggregator request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/extract", bytes.NewReader(payload))
	if err != nil {
		return Fatal(fmt.Errorf("build aggregator request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Transient(fmt.Errorf("aggregator API: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return NotAvailable("aggregator has no extractor for this source")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Transient(fmt.Errorf("aggregator API: status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Fatal(fmt.Errorf("aggregator API rejected credentials: status %d", resp.StatusCode))
	default:
		return NotAvailable("aggregator refused: status %d", resp.StatusCode)
	}

	var body aggregatorExtractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Transient(fmt.Errorf("decode aggregator response: %w", err))
	}
	if body.DownloadURL == "" {
		reason := body.Error
		if reason == "" {
			reason = "aggregator returned no download URL"
		}
		return NotAvailable("%s", reason)
	}

	if req.Kind == KindSubtitle {
		raw, out, ok := s.fetchBytes(ctx, body.DownloadURL)
		if !ok {
			return out
		}
		return SucceededRaw(raw)
	}

	ext := ".mp4"
	if req.MediaType == "audio" {
		ext = ".m4a"
	}
	path := filepath.Join(req.TempDir, req.ID+ext)
	if out, ok := s.fetchFile(ctx, body.DownloadURL, path); !ok {
		return out
	}
	return Succeeded(path)
}

func (s *AggregatorStrategy) fetchBytes(ctx context.Context, downloadURL string) ([]byte, Outcome, bool) {
	resp, out, ok := s.open(ctx, downloadURL)
	if !ok {
		return nil, out, false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Transient(fmt.Errorf("read aggregator artifact: %w", err)), false
	}
	return raw, Outcome{}, true
}

func (s *AggregatorStrategy) fetchFile(ctx context.Context, downloadURL, path string) (Outcome, bool) {
	resp, out, ok := s.open(ctx, downloadURL)
	if !ok {
		return out, false
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return Fatal(fmt.Errorf("create temp file: %w", err)), false
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return Transient(fmt.Errorf("download aggregator artifact: %w", err)), false
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Transient(fmt.Errorf("finish aggregator artifact: %w", err)), false
	}
	return Outcome{}, true
}

func (s *AggregatorStrategy) open(ctx context.Context, downloadURL string) (*http.Response, Outcome, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, Fatal(fmt.Errorf("build artifact request: %w", err)), false
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("fetch aggregator artifact: %w", err)), false
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, Transient(fmt.Errorf("aggregator artifact: status %d", resp.StatusCode)), false
	}
	return resp, Outcome{}, true
}
