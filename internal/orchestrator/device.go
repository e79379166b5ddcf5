package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/audiopipeline"
	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
	"github.com/haivivi/chatgear-orchestrator/pkg/protocol"
)

// Device implements the ten-state Device State Machine (C6): the canonical
// transitions and their side effects, grounded 1:1 on
// original_source/main/application.cc's SetDeviceState and
// original_source/main/application.h's DeviceState enum. Every exported
// Enter*/ToggleChat method must be called from the Serializer's drain
// loop — Device itself does no synchronization beyond the state field,
// matching the teacher's "one owner, no locks" design for single-goroutine
// state.
type Device struct {
	audio      *audiopipeline.Controller
	transport  protocol.Transport
	dispatcher iot.Dispatcher
	display    Display
	wakeword   WakeWordDetector
	logger     logging.Logger
	now        func() time.Time

	// onStateChange, if set, fires after every state transition with the
	// new state and its cause (nil where the entry method takes none).
	// Device has no notion of Preemption; Orchestrator wires this to
	// Preemption.Reset per spec.md §4.7's Reset rule.
	onStateChange func(gearstate.State, *gearstate.Cause)

	mu             sync.Mutex
	state          gearstate.State
	mode           gearstate.ListeningMode
	lastButtonWake time.Time
}

// DeviceOptions configures a Device. Logger defaults to logging.Noop(),
// Now to time.Now. Display and WakeWordDetector may be nil (hooks simply
// aren't called).
type DeviceOptions struct {
	Audio      *audiopipeline.Controller
	Transport  protocol.Transport
	Dispatcher iot.Dispatcher
	Display    Display
	WakeWord   WakeWordDetector
	Logger     logging.Logger
	Now        func() time.Time

	OnStateChange func(gearstate.State, *gearstate.Cause)
}

// NewDevice constructs a Device starting in Starting.
func NewDevice(opts DeviceOptions) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Device{
		audio:         opts.Audio,
		transport:     opts.Transport,
		dispatcher:    opts.Dispatcher,
		display:       opts.Display,
		wakeword:      opts.WakeWord,
		logger:        logger,
		now:           now,
		onStateChange: opts.OnStateChange,
		state:         gearstate.Starting,
	}
}

// State returns the current device state.
func (d *Device) State() gearstate.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Mode returns the listening mode of the current (or most recent)
// Listening/Speaking session.
func (d *Device) Mode() gearstate.ListeningMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Device) setStatus(s string) {
	if d.display != nil {
		d.display.SetStatus(s)
	}
}

func (d *Device) clearChat() {
	if d.display != nil {
		d.display.ClearChat()
	}
}

func (d *Device) startWakeWord() {
	if d.wakeword != nil {
		d.wakeword.Start()
	}
}

func (d *Device) stopWakeWord() {
	if d.wakeword != nil {
		d.wakeword.Stop()
	}
}

func (d *Device) notifyStateChange(state gearstate.State, cause *gearstate.Cause) {
	if d.onStateChange != nil {
		d.onStateChange(state, cause)
	}
}

// schedule runs task on a real-time timer and, when it fires, hands it back
// to the caller to enqueue onto the Serializer — Device never spawns work
// that mutates state off the serialized loop.
func (d *Device) schedule(delay time.Duration, enqueue func(func()), task func()) {
	if delay <= 0 {
		task()
		return
	}
	time.AfterFunc(delay, func() { enqueue(task) })
}

// EnterIdle applies the Idle-entry side effects: standby display, cleared
// chat, capture stopped (force-reset if arriving from Connecting, Upgrading,
// or Activating), and wake-word detection (re)started. A no-op when the
// device is already Idle (spec.md §8: "no idempotent transitions").
func (d *Device) EnterIdle(cause *gearstate.Cause) {
	d.mu.Lock()
	if d.state == gearstate.Idle {
		d.mu.Unlock()
		return
	}
	from := d.state
	d.state = gearstate.Idle
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Idle, cause)

	d.setStatus("standby")
	d.clearChat()
	if d.audio != nil {
		d.audio.StopCapture()
		if from == gearstate.Connecting || from == gearstate.Upgrading || from == gearstate.Activating {
			if err := d.audio.DiscardPendingCapture(); err != nil {
				d.logger.ErrorPrintf("enter idle: discard pending capture: %v", err)
			}
		}
	}
	d.startWakeWord()
}

// EnterConnecting applies the Connecting-entry side effects. A no-op when
// the device is already Connecting.
func (d *Device) EnterConnecting() {
	d.mu.Lock()
	if d.state == gearstate.Connecting {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.Connecting
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Connecting, nil)

	d.setStatus("connecting")
	d.clearChat()
}

// EnterListening applies the Listening-entry side effects: display,
// pushed IoT state snapshot, encoder reset (unless fast re-entry from
// Listening), decode-queue clear, and the start_listening send — delayed
// 800ms if a button wake was just sent, and with a 10ms capture delay when
// resuming from Speaking in AutoStop mode to avoid clipping.
// enqueue hands any delayed follow-up work back onto the Serializer. A
// no-op when the device is already Listening (spec.md §8: "no idempotent
// transitions").
func (d *Device) EnterListening(mode gearstate.ListeningMode, cause *gearstate.Cause, enqueue func(func())) {
	d.mu.Lock()
	if d.state == gearstate.Listening {
		d.mu.Unlock()
		return
	}
	from := d.state
	d.state = gearstate.Listening
	d.mode = mode
	wasButtonWake := !d.lastButtonWake.IsZero() && d.now().Sub(d.lastButtonWake) < time.Second
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Listening, cause)

	d.setStatus("listening")
	if d.dispatcher != nil && d.transport != nil {
		if err := d.transport.SendIotStates([]byte(d.dispatcher.StatesJSON())); err != nil {
			d.logger.WarnPrintf("enter listening: send iot states: %v", err)
		}
	}
	d.stopWakeWord()

	startCapture := func() {
		if d.audio == nil {
			return
		}
		if err := d.audio.EnterListening(from); err != nil {
			d.logger.ErrorPrintf("enter listening: %v", err)
		}
	}
	if mode == gearstate.AutoStop && from == gearstate.Speaking {
		d.schedule(10*time.Millisecond, enqueue, startCapture)
	} else {
		startCapture()
	}

	sendStart := func() {
		if d.transport == nil {
			return
		}
		if err := d.transport.SendStartListening(mode); err != nil {
			d.logger.WarnPrintf("enter listening: send start_listening: %v", err)
		}
	}
	if wasButtonWake {
		d.schedule(800*time.Millisecond, enqueue, sendStart)
	} else {
		sendStart()
	}
}

// EnterSpeaking applies the Speaking-entry side effects: display, decoder
// reset, and — unless the mode is Realtime — capture stopped with
// wake-word re-armed 100ms later (only if still Speaking by then). A no-op
// when the device is already Speaking.
func (d *Device) EnterSpeaking(mode gearstate.ListeningMode, enqueue func(func())) {
	d.mu.Lock()
	if d.state == gearstate.Speaking {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.Speaking
	d.mode = mode
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Speaking, nil)

	d.setStatus("speaking")
	if d.audio != nil {
		d.audio.ResetDecoder()
	}
	if mode == gearstate.Realtime {
		return
	}
	if d.audio != nil {
		d.audio.StopCapture()
	}
	d.schedule(100*time.Millisecond, enqueue, func() {
		if d.State() == gearstate.Speaking {
			d.startWakeWord()
		}
	})
}

// EnterUpgrading, EnterActivating, EnterConfiguring, and EnterFatalError
// set the display and state for their respective phases. None is subject
// to watchdog or alarm preemption (gearstate.State.CriticalForTimeout).
// Each is a no-op when the device is already in its target state.
func (d *Device) EnterUpgrading() {
	d.mu.Lock()
	if d.state == gearstate.Upgrading {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.Upgrading
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Upgrading, nil)
	d.setStatus("upgrading")
}

func (d *Device) EnterActivating() {
	d.mu.Lock()
	if d.state == gearstate.Activating {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.Activating
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Activating, nil)
	d.setStatus("activating")
}

func (d *Device) EnterConfiguring() {
	d.mu.Lock()
	if d.state == gearstate.Configuring {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.Configuring
	d.mu.Unlock()
	d.notifyStateChange(gearstate.Configuring, nil)
	d.setStatus("configuring")
}

func (d *Device) EnterFatalError() {
	d.mu.Lock()
	if d.state == gearstate.FatalError {
		d.mu.Unlock()
		return
	}
	d.state = gearstate.FatalError
	d.mu.Unlock()
	d.notifyStateChange(gearstate.FatalError, nil)
	d.setStatus("fatal_error")
}

// ToggleChat implements the toggle_chat rule (spec.md §4.6): the single
// user-facing action a button press maps to, dependent on current state.
// enqueue hands delayed Listening-entry follow-up work back onto the
// Serializer, exactly as EnterListening expects.
func (d *Device) ToggleChat(ctx context.Context, enqueue func(func())) {
	switch d.State() {
	case gearstate.Activating:
		d.EnterIdle(nil)

	case gearstate.Idle:
		// Idle -> Connecting -> Listening is the only legal path
		// (spec.md §4.6); a channel-open failure is a TransportFailure
		// (spec.md §7) and returns the device to Idle.
		d.EnterConnecting()
		if d.transport != nil {
			if _, err := d.transport.OpenAudioChannel(ctx); err != nil {
				d.logger.ErrorPrintf("toggle_chat: open channel: %v", err)
				d.EnterIdle(nil)
				return
			}
			d.mu.Lock()
			d.lastButtonWake = d.now()
			d.mu.Unlock()
			if err := d.transport.SendWakeWordDetected("button"); err != nil {
				d.logger.WarnPrintf("toggle_chat: send wake word: %v", err)
			}
		}
		d.EnterListening(gearstate.AutoStop, &gearstate.Cause{ButtonWake: true}, enqueue)

	case gearstate.Speaking:
		if d.transport != nil {
			if err := d.transport.SendAbortSpeaking(""); err != nil {
				d.logger.WarnPrintf("toggle_chat: abort speaking: %v", err)
			}
		}

	case gearstate.Listening:
		// Stop fast: switch the UI to Idle immediately; close the channel in
		// the background so a slow transport teardown never blocks the user
		// from seeing the device return to standby.
		d.EnterIdle(nil)
		if d.transport != nil {
			transport := d.transport
			go transport.CloseAudioChannel()
		}
	}
}

// The methods below give the Alarm Pre-emption Protocol (C7) the narrow
// slice of Device's transport/audio access it needs, without exposing the
// unexported fields themselves.

// AbortSpeaking sends abort_speaking with no reason, used when an alarm
// preempts an in-flight Speaking session.
func (d *Device) AbortSpeaking() {
	if d.transport == nil {
		return
	}
	if err := d.transport.SendAbortSpeaking(""); err != nil {
		d.logger.WarnPrintf("abort speaking: %v", err)
	}
}

// DiscardPendingCapture tears down in-flight capture, used when an alarm
// preempts an in-flight Listening session.
func (d *Device) DiscardPendingCapture() {
	if d.audio == nil {
		return
	}
	if err := d.audio.DiscardPendingCapture(); err != nil {
		d.logger.ErrorPrintf("discard pending capture: %v", err)
	}
}

// CloseChannelIfOpen closes the protocol channel if it is currently open.
func (d *Device) CloseChannelIfOpen() {
	if d.transport != nil && d.transport.IsChannelOpen() {
		d.transport.CloseAudioChannel()
	}
}

// OpenChannelIfClosed opens the protocol channel if it is not already open,
// passing through Connecting first (spec.md §4.6: Idle -> Connecting ->
// Listening is the only legal path into Listening). Used by the alarm
// fire handoff (Preemption.HandleFire), which may need to reopen a channel
// the preemption itself just closed.
func (d *Device) OpenChannelIfClosed(ctx context.Context) error {
	if d.transport == nil || d.transport.IsChannelOpen() {
		return nil
	}
	d.EnterConnecting()
	_, err := d.transport.OpenAudioChannel(ctx)
	return err
}

// SendWakeWordDetected announces a wake-word (or wake-word-equivalent)
// event over the protocol channel.
func (d *Device) SendWakeWordDetected(tag string) error {
	if d.transport == nil {
		return nil
	}
	return d.transport.SendWakeWordDetected(tag)
}

// EnsureOutputEnabled re-enables codec output, used when an alarm
// preemption must play a prelude even though output was auto-disabled.
func (d *Device) EnsureOutputEnabled() {
	if d.audio != nil {
		d.audio.EnableOutput(true)
	}
}

// KeepAlive refreshes the audio pipeline's last-output bookkeeping so the
// 10s idle-output timeout does not fire mid-prelude.
func (d *Device) KeepAlive() {
	if d.audio != nil {
		d.audio.KeepAlive()
	}
}
