package protocol

import (
	"sync"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// AudioReset is the subset of audiopipeline.Controller the watchdog needs to
// tear down on a silent timeout: clear the decode queue and reset the
// encoder/decoder, mirroring HandleProtocolTimeout's queue-clear and
// ResetState calls.
type AudioReset interface {
	DiscardPendingCapture() error
	ResetDecoder()
}

// WatchdogOptions configures a Watchdog.
type WatchdogOptions struct {
	Transport Transport
	Audio     AudioReset
	Logger    logging.Logger
	// EnterIdle is invoked once timeout handling completes, so the caller's
	// device state machine can perform the Idle transition; required.
	EnterIdle func()
}

// Watchdog implements the clock-tick silent-timeout detector and
// handle_protocol_timeout recovery sequence (C4), grounded on
// Application::OnClockTimer and Application::HandleProtocolTimeout.
type Watchdog struct {
	transport Transport
	audio     AudioReset
	logger    logging.Logger
	enterIdle func()

	mu          sync.Mutex
	wasOpen     bool
	handling    bool
	invalidated bool
}

// NewWatchdog constructs a Watchdog.
func NewWatchdog(opts WatchdogOptions) *Watchdog {
	if opts.Logger == nil {
		opts.Logger = logging.Default("watchdog")
	}
	return &Watchdog{
		transport: opts.Transport,
		audio:     opts.Audio,
		logger:    opts.Logger,
		enterIdle: opts.EnterIdle,
	}
}

// Tick samples the transport's channel state once per clock tick (1 Hz) and
// triggers timeout handling on an undetected open→closed edge while the
// device is in a watchdog-subject state. A locally-initiated close must
// call NotifyLocalClose first so this edge is not mistaken for a timeout.
func (w *Watchdog) Tick(state gearstate.State) {
	isOpen := w.transport.IsChannelOpen()

	w.mu.Lock()
	wasOpen := w.wasOpen
	w.wasOpen = isOpen
	handling := w.handling
	w.mu.Unlock()

	if state == gearstate.Idle {
		// Mirrors the original's reset of was_channel_opened_last_check on
		// Idle, preventing a false positive on the next connection attempt.
		w.mu.Lock()
		w.wasOpen = false
		w.mu.Unlock()
		return
	}

	if wasOpen && !isOpen && state.SubjectToWatchdog() && !handling {
		w.logger.WarnPrintf("protocol timeout detected (channel closed unexpectedly) in state %s", state)
		w.HandleProtocolTimeout(state)
	}
}

// HandleProtocolTimeout runs the six-step silent-timeout recovery sequence.
// It is idempotent: a call while handling is already in progress, or while
// state is one of the critical states that must not be disturbed, is a
// no-op.
func (w *Watchdog) HandleProtocolTimeout(state gearstate.State) {
	w.mu.Lock()
	if w.handling {
		w.mu.Unlock()
		return
	}
	w.handling = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.handling = false
		w.mu.Unlock()
	}()

	if state.CriticalForTimeout() {
		w.logger.InfoPrintf("device in critical state %s, skipping timeout handling", state)
		return
	}

	if w.transport.IsChannelOpen() {
		w.logger.InfoPrintf("closing audio channel due to timeout")
		w.transport.CloseAudioChannel()
	}

	if w.audio != nil {
		if err := w.audio.DiscardPendingCapture(); err != nil {
			w.logger.ErrorPrintf("discard pending capture during timeout handling: %v", err)
		}
		w.audio.ResetDecoder()
	}

	w.mu.Lock()
	w.invalidated = true
	w.mu.Unlock()

	if w.enterIdle != nil {
		w.enterIdle()
	}
	w.logger.InfoPrintf("protocol timeout handling completed, device returned to idle")
}

// Invalidated reports whether the protocol has been marked invalid by a
// past timeout, so that can_enter_sleep() need not probe the channel again.
func (w *Watchdog) Invalidated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.invalidated
}

// ClearInvalidated resets the invalidated flag, called once a fresh channel
// has been opened successfully.
func (w *Watchdog) ClearInvalidated() {
	w.mu.Lock()
	w.invalidated = false
	w.mu.Unlock()
}

// NotifyLocalClose tells the watchdog the channel was closed deliberately
// (toggle_chat's "stop fast" path, a facade-driven close), so the next Tick
// does not mistake the resulting open→closed edge for a silent timeout.
func (w *Watchdog) NotifyLocalClose() {
	w.mu.Lock()
	w.wasOpen = false
	w.mu.Unlock()
}
