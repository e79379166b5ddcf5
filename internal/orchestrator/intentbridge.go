package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/haivivi/chatgear-orchestrator/pkg/intent"
	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// relativeStep is the magnitude applied for the bare "increase"/"decrease"
// relative parameter. The intent matcher's keyword table (pkg/intent
// extractors.go) distinguishes a stronger "increase_10"/"decrease_10" signal
// from a plain "increase"/"decrease" one but the original firmware's
// ExtractVolumeParameters/ExtractBrightnessParameters never assign the plain
// form a different magnitude than the "_10" form — both are a step of 10.
const relativeStep = 10

// thingStateSnapshot mirrors the {"name", "state"} entries of iot.Registry's
// StatesJSON snapshot, just enough to read back the current value a
// relative delta must be applied to.
type thingStateSnapshot struct {
	Name  string          `json:"name"`
	State json.RawMessage `json:"state"`
}

// IntentBridge translates a matched local intent (C1) into an iot.Command
// and dispatches it, resolving the two gaps between pkg/intent's and
// pkg/iot's vocabularies:
//
//   - pkg/intent's DisplayModeControl rule targets device name
//     "ImageDisplay" (the original firmware's wording); the registered
//     thing that actually serves those methods is named "Screen". The
//     bridge canonicalizes the name rather than renaming either package.
//   - pkg/intent's volume/brightness extractors can emit a "relative"
//     parameter ("increase_10", "decrease_10", "increase", "decrease")
//     instead of an absolute "volume"/"brightness" value; pkg/iot's
//     Speaker/Screen only accept absolutes. The bridge reads the current
//     value back out of Dispatcher.StatesJSON() and computes the new
//     absolute value before dispatching.
type IntentBridge struct {
	dispatcher iot.Dispatcher
	logger     logging.Logger
}

// NewIntentBridge constructs an IntentBridge. Logger defaults to
// logging.Noop().
func NewIntentBridge(dispatcher iot.Dispatcher, logger logging.Logger) *IntentBridge {
	if logger == nil {
		logger = logging.Noop()
	}
	return &IntentBridge{dispatcher: dispatcher, logger: logger}
}

// canonicalDeviceName maps a pkg/intent device name onto the registry name
// of the thing that actually serves it.
func canonicalDeviceName(device string) string {
	if device == "ImageDisplay" {
		return "Screen"
	}
	return device
}

// Dispatch translates res into an iot.Command and invokes it synchronously.
// Unknown or non-device intents (Kind == intent.Unknown) are a no-op.
func (b *IntentBridge) Dispatch(ctx context.Context, res intent.IntentResult) error {
	if res.Kind == intent.Unknown {
		return nil
	}

	device := canonicalDeviceName(res.Device)
	params := make(map[string]any, len(res.Parameters))
	for _, p := range res.Parameters {
		params[p.Name] = typedParamValue(p.Value)
	}

	if rel, ok := params["relative"]; ok {
		delta := relativeStep
		if rel == "decrease_10" || rel == "decrease" {
			delta = -relativeStep
		}
		delete(params, "relative")

		valueField := "volume"
		if res.Kind == intent.BrightnessControl {
			valueField = "brightness"
		}
		current, err := b.currentValue(device, valueField)
		if err != nil {
			b.logger.WarnPrintf("intent bridge: read current %s for relative delta: %v", valueField, err)
			current = 0
		}
		params[valueField] = clamp0to100(current + delta)
	}

	cmd := iot.Command{Name: device, Method: res.Action, Parameters: params}
	return b.dispatcher.InvokeSync(ctx, cmd)
}

// currentValue reads back field from the named thing's current state, as
// published in Dispatcher.StatesJSON().
func (b *IntentBridge) currentValue(device, field string) (int, error) {
	var snapshots []thingStateSnapshot
	if err := json.Unmarshal([]byte(b.dispatcher.StatesJSON()), &snapshots); err != nil {
		return 0, err
	}
	for _, s := range snapshots {
		if s.Name != device {
			continue
		}
		var state map[string]any
		if err := json.Unmarshal(s.State, &state); err != nil {
			return 0, err
		}
		v, ok := state[field].(float64)
		if !ok {
			return 0, errFieldNotFound(device, field)
		}
		return int(v), nil
	}
	return 0, errDeviceNotFound(device)
}

// typedParamValue converts an IntentResult parameter's string value into
// the concrete type pkg/iot's param helpers expect (int for a numeric
// volume/brightness value, bool for a visible flag), leaving anything else
// — including the "relative" sentinel values — as a plain string.
func typedParamValue(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

func clamp0to100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type bridgeError string

func (e bridgeError) Error() string { return string(e) }

func errFieldNotFound(device, field string) error {
	return bridgeError("intent bridge: " + device + " state has no field " + field)
}

func errDeviceNotFound(device string) error {
	return bridgeError("intent bridge: no state snapshot for " + device)
}
