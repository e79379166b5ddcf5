package protocol

import (
	"context"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
)

// Facade presents the single protocol surface the rest of the orchestrator
// consumes, hiding which concrete Transport backs it and driving the
// Watchdog from the caller's clock tick.
type Facade struct {
	transport Transport
	watchdog  *Watchdog
}

// NewFacade builds a Facade over an already-constructed Transport and an
// AudioReset implementation for watchdog recovery. enterIdle is invoked by
// the watchdog once timeout handling completes.
func NewFacade(transport Transport, audio AudioReset, enterIdle func()) *Facade {
	wd := NewWatchdog(WatchdogOptions{Transport: transport, Audio: audio, EnterIdle: enterIdle})
	return &Facade{transport: transport, watchdog: wd}
}

func (f *Facade) OpenAudioChannel(ctx context.Context) (bool, error) {
	ok, err := f.transport.OpenAudioChannel(ctx)
	if ok {
		f.watchdog.ClearInvalidated()
	}
	return ok, err
}

// CloseAudioChannel closes the channel as a deliberate local action, which
// must not be mistaken by the watchdog for a silent timeout.
func (f *Facade) CloseAudioChannel() {
	f.watchdog.NotifyLocalClose()
	f.transport.CloseAudioChannel()
}

func (f *Facade) SendAudio(opusPacket []byte) error { return f.transport.SendAudio(opusPacket) }
func (f *Facade) SendText(payload []byte) error     { return f.transport.SendText(payload) }

func (f *Facade) SendWakeWordDetected(tag string) error {
	return f.transport.SendWakeWordDetected(tag)
}

func (f *Facade) SendStartListening(mode gearstate.ListeningMode) error {
	return f.transport.SendStartListening(mode)
}

func (f *Facade) SendStopListening() error { return f.transport.SendStopListening() }

func (f *Facade) SendAbortSpeaking(reason string) error {
	return f.transport.SendAbortSpeaking(reason)
}

func (f *Facade) SendIotDescriptors(payload []byte) error {
	return f.transport.SendIotDescriptors(payload)
}

func (f *Facade) SendIotStates(payload []byte) error {
	return f.transport.SendIotStates(payload)
}

func (f *Facade) IsChannelOpen() bool { return f.transport.IsChannelOpen() }

// Tick drives the watchdog's silent-timeout detection; call once per 1 Hz
// clock tick task.
func (f *Facade) Tick(state gearstate.State) { f.watchdog.Tick(state) }

// ProtocolInvalidatedByTimeout reports whether the last channel teardown was
// caused by the watchdog rather than a local close.
func (f *Facade) ProtocolInvalidatedByTimeout() bool { return f.watchdog.Invalidated() }

var _ Transport = (*Facade)(nil)
