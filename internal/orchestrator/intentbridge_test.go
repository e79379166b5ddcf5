package orchestrator

import (
	"context"
	"testing"

	"github.com/haivivi/chatgear-orchestrator/pkg/intent"
	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
)

func newTestRegistry() *iot.Registry {
	r := iot.NewRegistry()
	r.Register(iot.NewSpeaker(nil))
	r.Register(iot.NewScreen(nil))
	r.Register(iot.NewSubtitleControl())
	return r
}

func TestIntentBridgeDispatchesAbsoluteVolume(t *testing.T) {
	reg := newTestRegistry()
	bridge := NewIntentBridge(reg, nil)

	res := intent.IntentResult{Kind: intent.VolumeControl, Device: "Speaker", Action: "SetVolume"}
	res.Set("volume", "30")

	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	speaker := reg.StatesJSON()
	if speaker == "[]" {
		t.Fatalf("expected populated states")
	}
}

func TestIntentBridgeCanonicalizesImageDisplayToScreen(t *testing.T) {
	reg := newTestRegistry()
	bridge := NewIntentBridge(reg, nil)

	res := intent.IntentResult{Kind: intent.DisplayModeControl, Device: "ImageDisplay", Action: "SetStaticMode"}

	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestIntentBridgeResolvesRelativeIncrease10(t *testing.T) {
	reg := newTestRegistry() // Speaker starts at volume 50
	bridge := NewIntentBridge(reg, nil)

	res := intent.IntentResult{Kind: intent.VolumeControl, Device: "Speaker", Action: "SetVolume"}
	res.Set("relative", "increase_10")

	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cur, err := bridge.currentValue("Speaker", "volume")
	if err != nil {
		t.Fatalf("currentValue: %v", err)
	}
	if cur != 60 {
		t.Fatalf("expected volume 60 after +10, got %d", cur)
	}
}

func TestIntentBridgeResolvesRelativeDecreaseClampsAtZero(t *testing.T) {
	reg := newTestRegistry()
	bridge := NewIntentBridge(reg, nil)

	// Drive volume down to 5 first, then apply another decrease_10 to
	// exercise the 0-floor clamp.
	res := intent.IntentResult{Kind: intent.VolumeControl, Device: "Speaker", Action: "SetVolume"}
	res.Set("volume", "5")
	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	relRes := intent.IntentResult{Kind: intent.VolumeControl, Device: "Speaker", Action: "SetVolume"}
	relRes.Set("relative", "decrease_10")
	if err := bridge.Dispatch(context.Background(), relRes); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cur, err := bridge.currentValue("Speaker", "volume")
	if err != nil {
		t.Fatalf("currentValue: %v", err)
	}
	if cur != 0 {
		t.Fatalf("expected volume clamped to 0, got %d", cur)
	}
}

func TestIntentBridgeResolvesPlainIncreaseAsStepOfTen(t *testing.T) {
	reg := newTestRegistry() // Screen starts at brightness 75
	bridge := NewIntentBridge(reg, nil)

	res := intent.IntentResult{Kind: intent.BrightnessControl, Device: "Screen", Action: "SetBrightness"}
	res.Set("relative", "increase")

	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cur, err := bridge.currentValue("Screen", "brightness")
	if err != nil {
		t.Fatalf("currentValue: %v", err)
	}
	if cur != 85 {
		t.Fatalf("expected brightness 85 after plain increase, got %d", cur)
	}
}

func TestIntentBridgeSubtitleVisibleBoolParam(t *testing.T) {
	reg := newTestRegistry()
	bridge := NewIntentBridge(reg, nil)

	res := intent.IntentResult{Kind: intent.SubtitleControl, Device: "SubtitleControl", Action: "ShowSubtitle"}
	res.Set("visible", "true")

	if err := bridge.Dispatch(context.Background(), res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestIntentBridgeUnknownKindIsNoop(t *testing.T) {
	reg := newTestRegistry()
	bridge := NewIntentBridge(reg, nil)

	if err := bridge.Dispatch(context.Background(), intent.IntentResult{Kind: intent.Unknown}); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}
