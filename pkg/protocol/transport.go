// Package protocol implements the protocol facade and watchdog (C4): a
// transport-agnostic channel abstraction over MQTT or WebSocket, and the
// silent-timeout recovery that the original firmware drives from its clock
// tick handler (Application::OnClockTimer / HandleProtocolTimeout).
package protocol

import (
	"context"
	"errors"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
)

// ErrChannelClosed is returned by Send* methods when the channel is not open.
var ErrChannelClosed = errors.New("protocol: audio channel is not open")

// Handlers are the incoming-event callbacks a Transport invokes. Any field
// left nil is simply not called.
type Handlers struct {
	OnNetworkError  func(error)
	OnChannelOpen   func()
	OnChannelClosed func()
	OnIncomingAudio func([]byte)
	OnIncomingJSON  func([]byte)
}

// Transport is the polymorphic capability the facade hides behind a single
// interface, per the "Polymorphic protocol transports" design note: one
// concrete Transport (MQTT or WebSocket) is chosen at construction and the
// rest of the orchestrator never branches on which.
type Transport interface {
	// OpenAudioChannel establishes the channel, returning false (with a nil
	// error) if the server declined rather than an outright failure.
	OpenAudioChannel(ctx context.Context) (bool, error)
	CloseAudioChannel()

	SendAudio(opusPacket []byte) error
	SendText(payload []byte) error
	SendWakeWordDetected(tag string) error
	SendStartListening(mode gearstate.ListeningMode) error
	SendStopListening() error
	SendAbortSpeaking(reason string) error
	SendIotDescriptors(payload []byte) error
	SendIotStates(payload []byte) error

	IsChannelOpen() bool
}
