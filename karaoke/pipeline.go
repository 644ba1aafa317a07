package karaoke

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fernandomxwell/youtube-downloader/job"
	"github.com/fernandomxwell/youtube-downloader/media"
)

// Pipeline turns uploaded images, an audio track and lyric timings into one
// muxed MP4. Stages run in strict order: subtitles and per-image clips first
// (clips fan out in parallel), then concatenation, then the final mux.
type Pipeline struct {
	Tools      media.Tools
	MaxWorkers int // cap on concurrent encoder processes per request
}

// Generate runs the full pipeline inside the job's directory and returns the
// path of the finished video. Any stage failure aborts the rest; the caller
// owns job cleanup and must run it whether or not this succeeds.
func (p *Pipeline) Generate(ctx context.Context, j *job.Job, imagePaths []string, audioPath string, lines []LyricLine, audioDuration float64) (string, error) {
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("no images to render")
	}
	if audioDuration <= 0 {
		return "", fmt.Errorf("invalid audio duration %f", audioDuration)
	}

	// Stage A: subtitle track from lyric timings.
	srtPath := j.Path("lyrics.srt")
	if err := os.WriteFile(srtPath, []byte(BuildSRT(lines)), 0o644); err != nil {
		return "", fmt.Errorf("write subtitles: %w", err)
	}

	// Stage B: each image becomes a fixed-duration clip. Conversions run
	// concurrently but clip naming follows input order, which is what the
	// concat stage consumes. First failure cancels the rest.
	slideDuration := audioDuration / float64(len(imagePaths))
	clipPaths := make([]string, len(imagePaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers())
	for i, imagePath := range imagePaths {
		clipPath := j.Path(fmt.Sprintf("clip_%d.ts", i))
		clipPaths[i] = clipPath
		g.Go(func() error {
			return p.convertImage(gctx, imagePath, clipPath, slideDuration)
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("convert images: %w", err)
	}

	// Stage C: concatenate the clips into a silent slideshow, stream copy.
	slideshowPath := j.Path("slideshow.mp4")
	if err := p.concatClips(ctx, j, clipPaths, slideshowPath); err != nil {
		return "", fmt.Errorf("concatenate clips: %w", err)
	}

	// Stage D: mux slideshow with audio, burn in the subtitles.
	outputPath := j.Path("output.mp4")
	if err := p.mux(ctx, slideshowPath, audioPath, srtPath, outputPath); err != nil {
		return "", fmt.Errorf("mux output: %w", err)
	}
	return outputPath, nil
}

func (p *Pipeline) maxWorkers() int {
	if p.MaxWorkers < 1 {
		return 1
	}
	return p.MaxWorkers
}

// convertImage holds a single image for slideDuration seconds as a 1280x720
// 30 fps clip, letterboxed to preserve aspect ratio.
func (p *Pipeline) convertImage(ctx context.Context, imagePath, clipPath string, slideDuration float64) error {
	return p.Tools.Runner.Run(ctx, p.Tools.FFmpeg,
		"-y",
		"-loop", "1",
		"-t", fmt.Sprintf("%.3f", slideDuration),
		"-i", imagePath,
		"-vf", strings.Join([]string{
			"scale=1280:720:force_original_aspect_ratio=decrease",
			"pad=1280:720:(ow-iw)/2:(oh-ih)/2",
			"format=yuv420p",
			"fps=30",
		}, ","),
		"-c:v", "libx264",
		clipPath,
	)
}

func (p *Pipeline) concatClips(ctx context.Context, j *job.Job, clipPaths []string, outPath string) error {
	var list strings.Builder
	for _, clip := range clipPaths {
		fmt.Fprintf(&list, "file '%s'\n", clip)
	}
	listPath := j.Path("concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	return p.Tools.Runner.Run(ctx, p.Tools.FFmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
}

func (p *Pipeline) mux(ctx context.Context, videoPath, audioPath, srtPath, outPath string) error {
	return p.Tools.Runner.Run(ctx, p.Tools.FFmpeg,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-vf", fmt.Sprintf("subtitles='%s'", srtPath),
		"-shortest",
		outPath,
	)
}
