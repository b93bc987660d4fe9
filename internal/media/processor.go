package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Processor runs mux and transcode operations through the external encoder.
// Encoder failures are not retried: if the encoder rejects the input, the
// same bytes will be rejected again.
type Processor struct {
	ffmpegPath string
	log        *slog.Logger
}

// NewProcessor returns a Processor. ffmpegPath may be empty to use whatever
// ffmpeg is on PATH.
func NewProcessor(ffmpegPath string, log *slog.Logger) *Processor {
	return &Processor{ffmpegPath: ffmpegPath, log: log}
}

// Mux merges a video-only and an audio-only stream into outPath, copying the
// video track and encoding audio to AAC. Both inputs are removed afterward,
// on success or failure.
func (p *Processor) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	defer os.Remove(videoPath)
	defer os.Remove(audioPath)

	p.log.Info("muxing streams",
		slog.String("video", videoPath),
		slog.String("audio", audioPath),
		slog.String("out", outPath))

	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(audioPath)
	stream := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      "aac",
		"shortest": "",
	}).OverWriteOutput()
	if p.ffmpegPath != "" {
		stream = stream.SetFfmpegPath(p.ffmpegPath)
	}

	if err := stream.Run(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	return nil
}

// TranscodeAudio converts inPath to the given codec and bitrate, writing
// outPath. The input is removed afterward, on success or failure.
func (p *Processor) TranscodeAudio(ctx context.Context, inPath, outPath, codec, bitrate string) error {
	defer os.Remove(inPath)

	p.log.Info("transcoding audio",
		slog.String("in", inPath),
		slog.String("out", outPath),
		slog.String("codec", codec),
		slog.String("bitrate", bitrate))

	kwargs := ffmpeg.KwArgs{
		"vn":     "",
		"acodec": codec,
	}
	if bitrate != "" {
		kwargs["b:a"] = bitrate
	}

	stream := ffmpeg.Input(inPath).Output(outPath, kwargs).OverWriteOutput()
	if p.ffmpegPath != "" {
		stream = stream.SetFfmpegPath(p.ffmpegPath)
	}

	if err := stream.Run(); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w", err)
	}
	return nil
}
