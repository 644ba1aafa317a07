package bpm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fernandomxwell/youtube-downloader/media"
)

// DecodeSampleRate is the rate audio is resampled to before analysis.
// 44.1 kHz keeps the 100 ms refractory window at a round 4410 samples.
const DecodeSampleRate = 44100

// DecodePCM decodes any audio file ffmpeg understands into mono float64
// samples on a [-1, 1] scale, resampled to DecodeSampleRate.
func DecodePCM(ctx context.Context, tools media.Tools, path string) ([]float64, int, error) {
	out, err := tools.Runner.Output(ctx, tools.FFmpeg,
		"-v", "error",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", DecodeSampleRate),
		"-",
	)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	n := len(out) / 4
	if n == 0 {
		return nil, 0, fmt.Errorf("decode %s: no audio data", path)
	}

	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(out[i*4 : i*4+4])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples, DecodeSampleRate, nil
}
