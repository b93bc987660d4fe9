package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Metadata is the title/thumbnail pair returned to clients and used to derive
// canonical artifact filenames.
type Metadata struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// ErrUnavailable is returned when the platform reports the content missing,
// private, or not yet processed. Acquisition is not attempted for such
// sources.
var ErrUnavailable = errors.New("source content unavailable")

const defaultMetadataTimeout = 15 * time.Second

// MetadataClient fetches metadata, doubling as the availability check: a
// resolvable reference whose metadata fetch fails with ErrUnavailable is
// never handed to the acquisition strategies.
type MetadataClient struct {
	httpClient        *http.Client
	apiKey            string
	aggregatorBaseURL string
	aggregatorKey     string
	log               *slog.Logger
}

// NewMetadataClient builds a client. apiKey authenticates against the primary
// platform's metadata API and may be empty for the public endpoint;
// aggregatorBaseURL/aggregatorKey cover non-primary platforms.
func NewMetadataClient(apiKey, aggregatorBaseURL, aggregatorKey string, log *slog.Logger) *MetadataClient {
	return &MetadataClient{
		httpClient:        &http.Client{Timeout: defaultMetadataTimeout},
		apiKey:            apiKey,
		aggregatorBaseURL: aggregatorBaseURL,
		aggregatorKey:     aggregatorKey,
		log:               log,
	}
}

// Fetch returns metadata for ref, routing YouTube references to the oEmbed
// endpoint and everything else to the aggregator API.
func (c *MetadataClient) Fetch(ctx context.Context, ref Reference) (Metadata, error) {
	if ref.Platform == PlatformYouTube {
		return c.fetchOEmbed(ctx, ref)
	}
	return c.fetchAggregator(ctx, ref)
}

func (c *MetadataClient) fetchOEmbed(ctx context.Context, ref Reference) (Metadata, error) {
	endpoint := "https://www.youtube.com/oembed?format=json&url=" + url.QueryEscape(ref.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return Metadata{}, fmt.Errorf("%w: video %s (status %d)", ErrUnavailable, ref.ID, resp.StatusCode)
	default:
		return Metadata{}, fmt.Errorf("metadata fetch: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Metadata{}, fmt.Errorf("metadata decode: %w", err)
	}
	return Metadata{Title: body.Title, Thumbnail: body.ThumbnailURL}, nil
}

func (c *MetadataClient) fetchAggregator(ctx context.Context, ref Reference) (Metadata, error) {
	if c.aggregatorBaseURL == "" {
		return Metadata{}, fmt.Errorf("%w: no aggregator configured for platform %s", ErrUnavailable, ref.Platform)
	}

	endpoint := c.aggregatorBaseURL + "/api/info?url=" + url.QueryEscape(ref.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, err
	}
	if c.aggregatorKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.aggregatorKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("aggregator metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnavailable, ref.ID)
	}
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("aggregator metadata: status %d", resp.StatusCode)
	}

	var body struct {
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Metadata{}, fmt.Errorf("aggregator metadata decode: %w", err)
	}
	return Metadata{Title: body.Title, Thumbnail: body.Thumbnail}, nil
}
