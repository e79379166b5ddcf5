// Package audiopipeline implements the audio pipeline controller (C3): a
// fixed-parameter capture encoder, a negotiated-parameter playback decoder
// swapped atomically on renegotiation, input/reference/output resamplers,
// and the decode-side jitter buffer and idle-output timeout that the
// original firmware drives from its audio output tick.
package audiopipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/audio/opusrt"
	"github.com/haivivi/chatgear-orchestrator/pkg/audio/resampler"
	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// CaptureSampleRate and CaptureFrameMs are fixed for the whole session: the
// capture encoder never renegotiates, unlike the decoder.
const (
	CaptureSampleRate = 16000
	CaptureFrameMs    = 60
)

// DefaultDecodeSampleRate and DefaultDecodeFrameMs are the decoder's
// parameters until the server negotiates something else.
const (
	DefaultDecodeSampleRate = 16000
	DefaultDecodeFrameMs    = 60
)

// MaxSilence is how long the decode queue may sit empty in Idle before
// output is auto-disabled, unless an alarm prelude is playing.
const MaxSilence = 10 * time.Second

// Encoder is the capture-side Opus encoder surface the controller drives.
// opus.Encoder satisfies this.
type Encoder interface {
	FrameSize() int
	Encode(pcm []int16) ([]byte, error)
	Close()
}

// Decoder is the playback-side Opus decoder surface the controller drives.
// opus.Decoder satisfies this.
type Decoder interface {
	SampleRate() int
	FrameMs() int
	FrameSize() int
	Decode(packet []byte) ([]int16, error)
	Close()
}

// EncoderFactory constructs a fresh capture encoder, used whenever the
// encoder must be reset.
type EncoderFactory func(sampleRate, frameMs int) (Encoder, error)

// DecoderFactory constructs a fresh playback decoder at the given
// sample rate and frame duration, used on renegotiation.
type DecoderFactory func(sampleRate, frameMs int) (Decoder, error)

// Options configures a Controller.
type Options struct {
	Logger         logging.Logger
	NewEncoder     EncoderFactory
	NewDecoder     DecoderFactory
	NewResampler   func() resampler.Resampler
	OutputRate     int           // the device's fixed output sample rate
	MaxBuffered    time.Duration // jitter buffer bound, 0 = package default
	AlarmPrelude   func() bool   // reports whether an alarm prelude is playing
	EnableOutputFn func(bool)    // hardware hook invoked on output enable/disable
	Now            func() time.Time
}

// Controller owns the encoder, decoder, resamplers, and decode queue for one
// device session.
type Controller struct {
	logger         logging.Logger
	newEncoder     EncoderFactory
	newDecoder     DecoderFactory
	alarmPrelude   func() bool
	enableOutputFn func(bool)
	now            func() time.Time

	mu             sync.Mutex
	encoder        Encoder
	decoder        Decoder
	inputResampler resampler.Resampler
	refResampler   resampler.Resampler
	outResampler   resampler.Resampler
	outputRate     int
	decodeQueue    *opusrt.AudioFrameQueue
	encodeQueue    [][]byte
	capturing      bool
	outputEnabled  bool
	lastOutputTime time.Time
}

// New constructs a Controller with a freshly created encoder and decoder at
// their defaults. It fails if either factory is missing or returns an
// error.
func New(opts Options) (*Controller, error) {
	if opts.NewEncoder == nil || opts.NewDecoder == nil {
		return nil, fmt.Errorf("audiopipeline: NewEncoder and NewDecoder are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("audiopipeline")
	}
	if opts.NewResampler == nil {
		opts.NewResampler = func() resampler.Resampler { return resampler.New() }
	}
	if opts.OutputRate == 0 {
		opts.OutputRate = DefaultDecodeSampleRate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	enc, err := opts.NewEncoder(CaptureSampleRate, CaptureFrameMs)
	if err != nil {
		return nil, fmt.Errorf("audiopipeline: create encoder: %w", err)
	}
	dec, err := opts.NewDecoder(DefaultDecodeSampleRate, DefaultDecodeFrameMs)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("audiopipeline: create decoder: %w", err)
	}

	c := &Controller{
		logger:         opts.Logger,
		newEncoder:     opts.NewEncoder,
		newDecoder:     opts.NewDecoder,
		alarmPrelude:   opts.AlarmPrelude,
		enableOutputFn: opts.EnableOutputFn,
		now:            opts.Now,
		encoder:        enc,
		decoder:        dec,
		inputResampler: opts.NewResampler(),
		refResampler:   opts.NewResampler(),
		outResampler:   opts.NewResampler(),
		outputRate:     opts.OutputRate,
		decodeQueue:    opusrt.NewAudioFrameQueue(opts.MaxBuffered),
		outputEnabled:  true,
		lastOutputTime: opts.Now(),
	}
	if dec.SampleRate() != c.outputRate {
		if err := c.outResampler.Configure(dec.SampleRate(), c.outputRate); err != nil {
			c.logger.WarnPrintf("configure output resampler: %v", err)
		}
	}
	return c, nil
}

// ConfigureCapture sets up the input and reference resamplers for a
// capture device whose native rate differs from the fixed 16 kHz the
// encoder expects.
func (c *Controller) ConfigureCapture(deviceInputRate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deviceInputRate == CaptureSampleRate {
		return nil
	}
	if err := c.inputResampler.Configure(deviceInputRate, CaptureSampleRate); err != nil {
		return fmt.Errorf("audiopipeline: configure input resampler: %w", err)
	}
	if err := c.refResampler.Configure(deviceInputRate, CaptureSampleRate); err != nil {
		return fmt.Errorf("audiopipeline: configure reference resampler: %w", err)
	}
	return nil
}

// ResetDecoder clears the decode queue, resets last-output bookkeeping, and
// re-enables output, mirroring Application::ResetDecoder.
func (c *Controller) ResetDecoder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decodeQueue.Clear()
	c.lastOutputTime = c.now()
	c.setOutputEnabledLocked(true)
}

// SetDecodeSampleRate recreates the decoder at the given sample rate and
// frame duration if they differ from the current decoder, and reconfigures
// the output resampler if the new decoder rate no longer matches the
// device's fixed output rate. A no-op if the parameters already match.
func (c *Controller) SetDecodeSampleRate(sampleRate, frameMs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.decoder.SampleRate() == sampleRate && c.decoder.FrameMs() == frameMs {
		return nil
	}

	next, err := c.newDecoder(sampleRate, frameMs)
	if err != nil {
		return fmt.Errorf("audiopipeline: recreate decoder: %w", err)
	}
	c.decoder.Close()
	c.decoder = next

	if sampleRate != c.outputRate {
		if err := c.outResampler.Configure(sampleRate, c.outputRate); err != nil {
			return fmt.Errorf("audiopipeline: configure output resampler: %w", err)
		}
	}
	return nil
}

// DiscardPendingCapture stops capture, clears the background-encode queue,
// resets encoder state, and clears the decode queue — the full teardown
// used before an upgrade or a protocol timeout.
func (c *Controller) DiscardPendingCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capturing = false
	c.encodeQueue = nil
	c.decodeQueue.Clear()
	return c.resetEncoderLocked()
}

func (c *Controller) resetEncoderLocked() error {
	next, err := c.newEncoder(CaptureSampleRate, CaptureFrameMs)
	if err != nil {
		return fmt.Errorf("audiopipeline: recreate encoder: %w", err)
	}
	c.encoder.Close()
	c.encoder = next
	return nil
}

// EnterListening applies the Listening-entry invariants: the encoder is
// reset unless the device is already in Listening (fast re-entry retains
// encoder state), and pending decoded audio is always cleared since the
// user is about to speak and stale TTS must not play.
func (c *Controller) EnterListening(from gearstate.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.decodeQueue.Clear()
	c.capturing = true
	if from == gearstate.Listening {
		return nil
	}
	return c.resetEncoderLocked()
}

// StopCapture marks capture stopped without touching encoder state or the
// decode queue, used when leaving an active state for Idle under normal
// (non-forced) circumstances.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capturing = false
}

// EnableOutput enables or disables hardware audio output.
func (c *Controller) EnableOutput(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOutputEnabledLocked(enabled)
}

func (c *Controller) setOutputEnabledLocked(enabled bool) {
	if c.outputEnabled == enabled {
		return
	}
	c.outputEnabled = enabled
	if c.enableOutputFn != nil {
		c.enableOutputFn(enabled)
	}
}

// KeepAlive refreshes the last-output bookkeeping without touching the
// decode queue or enabling/disabling output itself, used while an alarm
// prelude is playing so the idle-output timeout doesn't fire mid-prelude.
func (c *Controller) KeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOutputTime = c.now()
}

// OutputIsIdle reports whether the decode queue is currently empty.
func (c *Controller) OutputIsIdle() bool {
	return c.decodeQueue.Empty()
}

// Tick implements the periodic idle-output check: when in Idle with an
// empty decode queue for longer than MaxSilence, output is disabled, unless
// an alarm preemption prelude is playing.
func (c *Controller) Tick(state gearstate.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.decodeQueue.Empty() {
		return
	}
	if state == gearstate.Listening {
		// Any buffered TTS audio is stale the moment listening starts.
		return
	}
	if state != gearstate.Idle {
		return
	}
	if c.alarmPrelude != nil && c.alarmPrelude() {
		return
	}
	if c.now().Sub(c.lastOutputTime) > MaxSilence {
		c.setOutputEnabledLocked(false)
	}
}

// EncodePCM encodes one fixed-size capture frame (after resampling to 16
// kHz if the input resampler is configured) to an Opus packet.
func (c *Controller) EncodePCM(pcm []int16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resampled, err := c.inputResampler.Process(pcm)
	if err != nil {
		return nil, fmt.Errorf("audiopipeline: resample capture: %w", err)
	}
	return c.encoder.Encode(resampled)
}

// DecodePacket decodes one Opus packet, resamples it to the device's output
// rate if necessary, pushes the result onto the decode queue, and marks the
// last-output time.
func (c *Controller) DecodePacket(packet []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pcm, err := c.decoder.Decode(packet)
	if err != nil {
		return fmt.Errorf("audiopipeline: decode: %w", err)
	}
	if c.decoder.SampleRate() != c.outputRate {
		pcm, err = c.outResampler.Process(pcm)
		if err != nil {
			return fmt.Errorf("audiopipeline: resample output: %w", err)
		}
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	c.decodeQueue.Push(out, time.Duration(c.decoder.FrameMs())*time.Millisecond)
	c.lastOutputTime = c.now()
	return nil
}

// PopDecoded returns the next decoded PCM frame for playback.
func (c *Controller) PopDecoded() ([]byte, time.Duration, error) {
	return c.decodeQueue.Pop()
}

// Close releases the encoder and decoder.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Close()
	c.decoder.Close()
}
