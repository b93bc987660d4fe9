// Package source resolves user-supplied content URLs into platform
// references and fetches title/thumbnail metadata for them.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies where a piece of content lives.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformOther   Platform = "other"
)

// Reference is a resolved (platform, content-id) pair. For YouTube the ID is
// the 11-character video id; for other platforms it is the normalized URL
// itself, handed to the aggregator as-is.
type Reference struct {
	Platform Platform
	ID       string
	URL      string
}

// ErrInvalidURL is returned when a URL cannot be resolved to any platform
// reference.
var ErrInvalidURL = errors.New("unrecognized media URL")

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Resolve maps a raw URL (plus the client's declared platform) to a
// Reference. Resolution is pure string matching; availability is checked
// separately over the network by the metadata client.
func Resolve(rawURL, platform string) (Reference, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Reference{}, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return Reference{}, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	if id, ok := youtubeVideoID(u); ok {
		return Reference{
			Platform: PlatformYouTube,
			ID:       id,
			URL:      "https://www.youtube.com/watch?v=" + id,
		}, nil
	}

	if strings.EqualFold(platform, string(PlatformYouTube)) || isYouTubeHost(u.Host) {
		return Reference{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)
	}

	return Reference{Platform: PlatformOther, ID: u.String(), URL: u.String()}, nil
}

func isYouTubeHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")
	return host == "youtube.com" || host == "youtu.be" || host == "youtube-nocookie.com"
}

// youtubeVideoID extracts an 11-character video id from the known YouTube
// URL shapes: watch?v=, youtu.be/, /shorts/, /embed/, /live/.
func youtubeVideoID(u *url.URL) (string, bool) {
	if !isYouTubeHost(u.Host) {
		return "", false
	}

	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	if host == "youtu.be" {
		id := strings.Trim(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		return id, videoIDRe.MatchString(id)
	}

	if id := u.Query().Get("v"); id != "" {
		return id, videoIDRe.MatchString(id)
	}

	for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
		if strings.HasPrefix(u.Path, prefix) {
			id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
			if i := strings.IndexByte(id, '/'); i >= 0 {
				id = id[:i]
			}
			return id, videoIDRe.MatchString(id)
		}
	}

	return "", false
}
