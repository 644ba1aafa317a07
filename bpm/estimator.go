// Package bpm estimates the tempo of a music track from decoded PCM samples.
//
// The approach is peak-interval detection on low-pass filtered audio: kick
// drum transients survive the filter, melodic content does not, so the
// spacing of amplitude peaks tracks the beat.
package bpm

import (
	"errors"
	"math"
)

var ErrNoConfidentTempo = errors.New("no confident tempo")

const (
	// peakThreshold is applied to the filtered signal on the decoder's
	// normalized [-1, 1] scale.
	peakThreshold = 0.6
	// refractorySec is the minimum gap between accepted peaks. A single
	// kick transient can ring for tens of milliseconds; anything inside
	// this window is the same hit.
	refractorySec = 0.1
	// cutoffHz is the low-pass corner isolating bass/kick energy.
	cutoffHz = 140.0

	minBPM = 70
	maxBPM = 180
)

// Estimate returns the tempo of a mono track in beats per minute.
// It returns ErrNoConfidentTempo when the signal has fewer than two
// detectable peaks (silence, speech, sustained pads).
func Estimate(samples []float64, sampleRate int) (int, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0, ErrNoConfidentTempo
	}

	filtered := lowPass(samples, sampleRate)
	peaks := detectPeaks(filtered, sampleRate)
	if len(peaks) < 2 {
		return 0, ErrNoConfidentTempo
	}

	counts := histogramTempos(peaks, sampleRate)
	if len(counts) == 0 {
		return 0, ErrNoConfidentTempo
	}

	// Highest support wins; strict > keeps the first-seen bucket on ties.
	best := counts[0]
	for _, c := range counts[1:] {
		if c.count > best.count {
			best = c
		}
	}
	return best.bpm, nil
}

// lowPass applies a single-pole IIR filter with a ~140 Hz corner.
func lowPass(samples []float64, sampleRate int) []float64 {
	dt := 1.0 / float64(sampleRate)
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	alpha := dt / (rc + dt)

	out := make([]float64, len(samples))
	prev := 0.0
	for i, s := range samples {
		prev += alpha * (s - prev)
		out[i] = prev
	}
	return out
}

// detectPeaks scans once left to right for strict local maxima above the
// threshold, enforcing the refractory window between accepted peaks.
func detectPeaks(samples []float64, sampleRate int) []int {
	refractory := int(float64(sampleRate) * refractorySec)
	last := -refractory - 1

	var peaks []int
	for i := 1; i < len(samples)-1; i++ {
		if samples[i] <= peakThreshold {
			continue
		}
		if samples[i] <= samples[i-1] || samples[i] <= samples[i+1] {
			continue
		}
		if i-last <= refractory {
			continue
		}
		peaks = append(peaks, i)
		last = i
	}
	return peaks
}

type tempoCandidate struct {
	bpm   int
	count int
}

// histogramTempos converts inter-peak intervals to normalized integer BPM
// values and counts support per value. Buckets keep encounter order.
func histogramTempos(peaks []int, sampleRate int) []tempoCandidate {
	var counts []tempoCandidate
	for k := 0; k+1 < len(peaks); k++ {
		interval := float64(peaks[k+1]-peaks[k]) / float64(sampleRate)
		if interval <= 0 {
			continue
		}
		raw := 60.0 / interval
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			continue
		}
		bpm, ok := normalizeTempo(raw)
		if !ok {
			continue
		}

		found := false
		for i := range counts {
			if counts[i].bpm == bpm {
				counts[i].count++
				found = true
				break
			}
		}
		if !found {
			counts = append(counts, tempoCandidate{bpm: bpm, count: 1})
		}
	}
	return counts
}

// normalizeTempo folds a raw BPM into [70, 180] by octave doubling/halving.
// Half- and double-tempo readings of the same track land in the same bucket.
func normalizeTempo(raw float64) (int, bool) {
	for i := 0; i < 20; i++ {
		switch {
		case raw < minBPM:
			raw *= 2
		case raw > maxBPM:
			raw /= 2
		default:
			return int(math.Round(raw)), true
		}
	}
	return 0, false
}
