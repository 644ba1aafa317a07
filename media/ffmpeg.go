package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Tools bundles the configured binary paths with the runner that invokes them.
type Tools struct {
	Runner  Runner
	FFmpeg  string
	FFprobe string
}

// ProbeDuration returns the container duration of a media file in seconds.
func (t Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := t.Runner.Output(ctx, t.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: bad duration %q", path, strings.TrimSpace(string(out)))
	}
	return dur, nil
}

// MergeAV muxes a video-only and an audio-only stream into one MP4,
// stream-copying video and encoding audio to AAC.
func (t Tools) MergeAV(ctx context.Context, videoPath, audioPath, outPath string) error {
	err := t.Runner.Run(ctx, t.FFmpeg,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("merge streams: %w", err)
	}
	return nil
}

// TranscodeMP3 re-encodes any audio input to MP3. The raw stream a YouTube
// audio itag delivers is webm/m4a; serving those bytes with an .mp3 name
// breaks most players, so audio-only downloads go through here.
func (t Tools) TranscodeMP3(ctx context.Context, inPath, outPath string) error {
	err := t.Runner.Run(ctx, t.FFmpeg,
		"-y",
		"-i", inPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("transcode mp3: %w", err)
	}
	return nil
}
