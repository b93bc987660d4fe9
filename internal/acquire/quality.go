package acquire

import (
	"strings"

	"github.com/kkdai/youtube/v2"
)

// qualityLadders maps a requested tier to the resolution labels acceptable
// for it, best first.
var qualityLadders = map[string][]string{
	"high":   {"1080p", "720p"},
	"medium": {"720p", "480p", "360p"},
	"low":    {"360p", "240p", "144p"},
}

// maxHeights clamp the external downloader's format selector per tier.
var maxHeights = map[string]int{
	"high":   1080,
	"medium": 720,
	"low":    360,
}

// ValidQuality reports whether tier is a known quality tier.
func ValidQuality(tier string) bool {
	_, ok := qualityLadders[tier]
	return ok
}

func isVideoFormat(f youtube.Format) bool {
	return strings.HasPrefix(f.MimeType, "video/")
}

func isAudioCapable(f youtube.Format) bool {
	return f.AudioChannels > 0
}

func isProgressive(f youtube.Format) bool {
	return isVideoFormat(f) && isAudioCapable(f)
}

// pickProgressive selects a single stream carrying both audio and video for
// the tier: first label match wins, then any progressive format, then nil.
func pickProgressive(formats []youtube.Format, tier string) *youtube.Format {
	for _, label := range qualityLadders[tier] {
		for i := range formats {
			if isProgressive(formats[i]) && formats[i].QualityLabel == label {
				return &formats[i]
			}
		}
	}
	for i := range formats {
		if isProgressive(formats[i]) {
			return &formats[i]
		}
	}
	return nil
}

// pickVideoOnly selects a video-only stream for the tier, falling back to
// any video-capable format when no tier label matches. Returns nil only if
// no video-capable format exists at all.
func pickVideoOnly(formats []youtube.Format, tier string) *youtube.Format {
	for _, label := range qualityLadders[tier] {
		for i := range formats {
			if isVideoFormat(formats[i]) && !isAudioCapable(formats[i]) && formats[i].QualityLabel == label {
				return &formats[i]
			}
		}
	}
	for i := range formats {
		if isVideoFormat(formats[i]) && !isAudioCapable(formats[i]) {
			return &formats[i]
		}
	}
	for i := range formats {
		if isVideoFormat(formats[i]) {
			return &formats[i]
		}
	}
	return nil
}

// pickAudioOnly prefers a format whose container already matches the target
// encoding so transcoding can be skipped, then falls back to any
// audio-capable format.
func pickAudioOnly(formats []youtube.Format, targetContainer string) *youtube.Format {
	if targetContainer != "" {
		for i := range formats {
			if isAudioCapable(formats[i]) && !isVideoFormat(formats[i]) &&
				strings.Contains(formats[i].MimeType, "audio/"+targetContainer) {
				return &formats[i]
			}
		}
	}
	for i := range formats {
		if isAudioCapable(formats[i]) && !isVideoFormat(formats[i]) {
			return &formats[i]
		}
	}
	for i := range formats {
		if isAudioCapable(formats[i]) {
			return &formats[i]
		}
	}
	return nil
}
