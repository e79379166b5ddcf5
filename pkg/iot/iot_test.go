package iot

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryInvokeAndStates(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSpeaker(nil))
	r.Register(NewSubtitleControl())
	ctx := context.Background()

	err := r.InvokeSync(ctx, Command{
		Name:       "Speaker",
		Method:     "SetVolume",
		Parameters: map[string]any{"volume": float64(80)},
	})
	if err != nil {
		t.Fatalf("InvokeSync: %v", err)
	}

	var snapshot []thingState
	if err := json.Unmarshal([]byte(r.StatesJSON()), &snapshot); err != nil {
		t.Fatalf("unmarshal StatesJSON: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("snapshot = %+v, want 2 things", snapshot)
	}
	// sorted by name: Speaker < SubtitleControl
	if snapshot[0].Name != "Speaker" || snapshot[1].Name != "SubtitleControl" {
		t.Fatalf("snapshot order = %+v", snapshot)
	}
}

func TestRegistryUnknownThing(t *testing.T) {
	r := NewRegistry()
	err := r.InvokeSync(context.Background(), Command{Name: "Nonexistent", Method: "Foo"})
	if err == nil {
		t.Fatalf("want error for unknown thing")
	}
}

func TestRegistryEmptyStatesJSON(t *testing.T) {
	r := NewRegistry()
	if r.StatesJSON() != "[]" {
		t.Fatalf("StatesJSON() = %q, want []", r.StatesJSON())
	}
}
