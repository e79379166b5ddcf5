// Package gearstate defines the device lifecycle states (C6) and the wire
// event used to announce state changes, grounded on the teacher's
// chatgear.GearState enum and GearStateEvent envelope.
package gearstate

import (
	"encoding/json"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/jsontime"
)

// State is one of the ten canonical device lifecycle states.
type State int

const (
	Unknown State = iota
	Starting
	Configuring
	Idle
	Connecting
	Listening
	Speaking
	Upgrading
	Activating
	FatalError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Configuring:
		return "configuring"
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	case Upgrading:
		return "upgrading"
	case Activating:
		return "activating"
	case FatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "starting":
		*s = Starting
	case "configuring":
		*s = Configuring
	case "idle":
		*s = Idle
	case "connecting":
		*s = Connecting
	case "listening":
		*s = Listening
	case "speaking":
		*s = Speaking
	case "upgrading":
		*s = Upgrading
	case "activating":
		*s = Activating
	case "fatal_error":
		*s = FatalError
	default:
		*s = Unknown
	}
	return nil
}

// IsActive reports whether the device is doing something other than idling.
func (s State) IsActive() bool {
	switch s {
	case Connecting, Listening, Speaking, Upgrading, Activating:
		return true
	default:
		return false
	}
}

// PreemptibleByAlarm reports whether an alarm may preempt the current state
// per the pre-emption protocol (C7): only Idle, Listening, and Speaking are
// candidates.
func (s State) PreemptibleByAlarm() bool {
	return s == Idle || s == Listening || s == Speaking
}

// SubjectToWatchdog reports whether a silent channel close in this state
// should be treated as a protocol timeout (C4).
func (s State) SubjectToWatchdog() bool {
	return s == Connecting || s == Listening || s == Speaking
}

// CriticalForTimeout reports whether the state must not be disturbed by
// watchdog or pre-emption handling (OTA/provisioning/activation in flight).
func (s State) CriticalForTimeout() bool {
	return s == Upgrading || s == Configuring || s == Activating
}

// ListeningMode governs how a listening session ends and whether wake-word
// continues during speech.
type ListeningMode int

const (
	AutoStop ListeningMode = iota
	ManualStop
	Realtime
)

func (m ListeningMode) String() string {
	switch m {
	case ManualStop:
		return "manual_stop"
	case Realtime:
		return "realtime"
	default:
		return "auto_stop"
	}
}

// Event is a state-change announcement, mirroring chatgear.GearStateEvent.
type Event struct {
	Version  int            `json:"v"`
	Time     jsontime.Milli `json:"t"`
	State    State          `json:"s"`
	Cause    *Cause         `json:"c,omitempty"`
	UpdateAt jsontime.Milli `json:"ut"`
}

// Cause gives additional context for why a state changed.
type Cause struct {
	AlarmName      string `json:"alarm_name,omitempty"`
	ButtonWake     bool   `json:"button_wake,omitempty"`
	ProtocolReason string `json:"protocol_reason,omitempty"`
}

// NewEvent creates a new state-change event for `at`.
func NewEvent(s State, at time.Time, cause *Cause) *Event {
	return &Event{
		Version:  1,
		Time:     jsontime.NowEpochMilli(),
		State:    s,
		Cause:    cause,
		UpdateAt: jsontime.Milli(at),
	}
}
