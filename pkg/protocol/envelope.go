package protocol

import (
	"encoding/json"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
)

// outgoingEnvelope is the shared JSON shape for every control message the
// facade's Send* methods produce (wake word, listen start/stop, abort,
// IoT descriptors/states). Only the fields relevant to Type are populated.
type outgoingEnvelope struct {
	Type        string `json:"type"`
	Tag         string `json:"tag,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Descriptors any    `json:"descriptors,omitempty"`
	States      any    `json:"states,omitempty"`
}

func marshalWakeWordDetected(tag string) []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "wake_word_detected", Tag: tag})
	return b
}

func marshalStartListening(mode gearstate.ListeningMode) []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "start_listening", Mode: mode.String()})
	return b
}

func marshalStopListening() []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "stop_listening"})
	return b
}

func marshalAbortSpeaking(reason string) []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "abort_speaking", Reason: reason})
	return b
}

func marshalIotDescriptors(raw []byte) []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "iot_descriptors", Descriptors: json.RawMessage(raw)})
	return b
}

func marshalIotStates(raw []byte) []byte {
	b, _ := json.Marshal(outgoingEnvelope{Type: "iot_states", States: json.RawMessage(raw)})
	return b
}

// looksLikeJSON reports whether payload appears to be a JSON object or
// array, used by transports whose wire carries both JSON control messages
// and raw Opus audio indistinguishably (MQTT) to route incoming data to the
// right callback.
func looksLikeJSON(payload []byte) bool {
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
