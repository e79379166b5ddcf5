// Package resampler wraps a sample-rate converter behind the buffer-oriented
// shape the original firmware's input/reference/output resamplers use
// (Configure once, then Process fixed-size int16 blocks), rather than the
// io.Reader-streaming shape used elsewhere in the teacher's audio stack.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono 16-bit PCM between sample rates. Configure must be
// called before Process; calling it again reconfigures in place. A zero
// ratio (src == dst) makes Process a passthrough copy.
type Resampler interface {
	// Configure sets the source and destination sample rates in Hz.
	Configure(srcRate, dstRate int) error

	// GetOutputSamples returns how many output samples Process will produce
	// for the given number of input samples at the configured rates.
	GetOutputSamples(inputSamples int) int

	// Process resamples in and returns the resampled samples. The returned
	// slice may alias an internal buffer and is only valid until the next
	// call to Process.
	Process(in []int16) ([]int16, error)
}

// Soxr is a pure-Go resampler backed by go-audio-resampling's high-quality
// sinc filters. It is the default Resampler for the input, reference, and
// output legs of the audio pipeline.
type Soxr struct {
	srcRate, dstRate int
	needsResample    bool
	r                resampling.Resampler
	out              []int16
}

// New returns an unconfigured Soxr resampler. Call Configure before Process.
func New() *Soxr {
	return &Soxr{}
}

// Configure implements Resampler.
func (s *Soxr) Configure(srcRate, dstRate int) error {
	s.srcRate = srcRate
	s.dstRate = dstRate
	s.needsResample = srcRate != dstRate
	if !s.needsResample {
		s.r = nil
		return nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return fmt.Errorf("resampler: configure %d->%d: %w", srcRate, dstRate, err)
	}
	s.r = r
	return nil
}

// GetOutputSamples implements Resampler.
func (s *Soxr) GetOutputSamples(inputSamples int) int {
	if !s.needsResample || s.srcRate == 0 {
		return inputSamples
	}
	return inputSamples * s.dstRate / s.srcRate
}

// Process implements Resampler.
func (s *Soxr) Process(in []int16) ([]int16, error) {
	if !s.needsResample {
		return in, nil
	}
	if s.r == nil {
		return nil, fmt.Errorf("resampler: not configured")
	}
	input := make([]float64, len(in))
	for i, v := range in {
		input[i] = float64(v) / 32768.0
	}
	output, err := s.r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	if cap(s.out) < len(output) {
		s.out = make([]int16, len(output))
	}
	s.out = s.out[:len(output)]
	for i, v := range output {
		switch {
		case v > 1.0:
			s.out[i] = 32767
		case v < -1.0:
			s.out[i] = -32768
		default:
			s.out[i] = int16(v * 32767.0)
		}
	}
	return s.out, nil
}
