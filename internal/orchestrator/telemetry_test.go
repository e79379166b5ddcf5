package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
)

type fakeTelemetrySource struct {
	batteryOK                     bool
	level                         int
	charging, discharging         bool
	freeInternal, minFreeInternal uint64
	wifiOK                        bool
	rssi                          int
}

func (f *fakeTelemetrySource) Battery() (int, bool, bool, bool) {
	return f.level, f.charging, f.discharging, f.batteryOK
}

func (f *fakeTelemetrySource) Memory() (uint64, uint64) {
	return f.freeInternal, f.minFreeInternal
}

func (f *fakeTelemetrySource) WifiRSSI() (int, bool) {
	return f.rssi, f.wifiOK
}

type fakeTelemetrySender struct {
	sent [][]byte
	err  error
}

func (f *fakeTelemetrySender) SendText(payload []byte) error {
	f.sent = append(f.sent, payload)
	return f.err
}

type fakeTelemetryDispatcher struct {
	states string
}

func (f *fakeTelemetryDispatcher) InvokeSync(ctx context.Context, cmd iot.Command) error {
	return nil
}

func (f *fakeTelemetryDispatcher) StatesJSON() string {
	return f.states
}

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
}

func TestTelemetryPublishFullEnvelope(t *testing.T) {
	sender := &fakeTelemetrySender{}
	source := &fakeTelemetrySource{
		batteryOK: true, level: 80, charging: true,
		freeInternal: 1024, minFreeInternal: 512,
		wifiOK: true, rssi: -42,
	}
	tel := NewTelemetry(TelemetryOptions{
		Sender: sender,
		Source: source,
		Now:    fixedNow,

		DeviceName: "gear-1",
		OTAVersion: "1.2.3",
		MAC:        "aa:bb:cc:dd:ee:ff",
		ClientID:   "client-1",
	})
	tel.Publish()

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(sender.sent))
	}
	var env map[string]any
	if err := json.Unmarshal(sender.sent[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["type"] != "telemetry" || env["online"] != true {
		t.Fatalf("unexpected envelope: %v", env)
	}
	if env["device_name"] != "gear-1" || env["ota_version"] != "1.2.3" {
		t.Fatalf("unexpected identity fields: %v", env)
	}
	battery, ok := env["battery"].(map[string]any)
	if !ok {
		t.Fatalf("expected battery field, got %v", env["battery"])
	}
	if battery["level"].(float64) != 80 || battery["charging"] != true {
		t.Fatalf("unexpected battery: %v", battery)
	}
	if _, ok := env["wifi"]; !ok {
		t.Fatalf("expected wifi field present")
	}
}

func TestTelemetryPublishOmitsOptionalFieldsWhenSourceNil(t *testing.T) {
	sender := &fakeTelemetrySender{}
	tel := NewTelemetry(TelemetryOptions{Sender: sender, Now: fixedNow, DeviceName: "gear-1"})
	tel.Publish()

	var env map[string]any
	if err := json.Unmarshal(sender.sent[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := env["battery"]; ok {
		t.Fatalf("expected no battery field, got %v", env["battery"])
	}
	if _, ok := env["wifi"]; ok {
		t.Fatalf("expected no wifi field, got %v", env["wifi"])
	}
	mem, ok := env["memory"].(map[string]any)
	if !ok {
		t.Fatalf("expected memory field present even with nil source")
	}
	if mem["free_internal"].(float64) != 0 {
		t.Fatalf("expected zero-value memory, got %v", mem)
	}
}

func TestTelemetryPublishOmitsBatteryAndWifiWhenSourceReportsNotOK(t *testing.T) {
	sender := &fakeTelemetrySender{}
	source := &fakeTelemetrySource{batteryOK: false, wifiOK: false, freeInternal: 2048, minFreeInternal: 1024}
	tel := NewTelemetry(TelemetryOptions{Sender: sender, Source: source, Now: fixedNow})
	tel.Publish()

	var env map[string]any
	if err := json.Unmarshal(sender.sent[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := env["battery"]; ok {
		t.Fatalf("expected no battery field when source reports not ok")
	}
	if _, ok := env["wifi"]; ok {
		t.Fatalf("expected no wifi field when source reports not ok")
	}
}

func TestTelemetryPublishSkipsSendWhenSenderNil(t *testing.T) {
	tel := NewTelemetry(TelemetryOptions{Now: fixedNow})
	tel.Publish() // must not panic
}

func TestTelemetryPublishIncludesIotStates(t *testing.T) {
	sender := &fakeTelemetrySender{}
	dispatcher := &fakeTelemetryDispatcher{states: `[{"name":"Speaker","state":{"volume":50}}]`}
	tel := NewTelemetry(TelemetryOptions{Sender: sender, Dispatcher: dispatcher, Now: fixedNow})
	tel.Publish()

	var env map[string]any
	if err := json.Unmarshal(sender.sent[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	states, ok := env["iot_states"].([]any)
	if !ok || len(states) != 1 {
		t.Fatalf("expected one iot_state entry, got %v", env["iot_states"])
	}
}

func TestTelemetryPublishOmitsIotStatesWhenEmpty(t *testing.T) {
	sender := &fakeTelemetrySender{}
	dispatcher := &fakeTelemetryDispatcher{states: `[]`}
	tel := NewTelemetry(TelemetryOptions{Sender: sender, Dispatcher: dispatcher, Now: fixedNow})
	tel.Publish()

	var env map[string]any
	if err := json.Unmarshal(sender.sent[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := env["iot_states"]; ok {
		t.Fatalf("expected iot_states omitted for empty array, got %v", env["iot_states"])
	}
}
