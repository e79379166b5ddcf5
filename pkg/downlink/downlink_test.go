package downlink

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
)

type fakeAcks struct {
	published [][]byte
}

func (f *fakeAcks) PublishAck(payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

type fakeReboot struct {
	delayMS int
	called  bool
}

func (f *fakeReboot) Reboot(delayMS int) {
	f.called = true
	f.delayMS = delayMS
}

type fakeNotify struct {
	title, body string
	called      bool
}

func (f *fakeNotify) Notify(title, body string) {
	f.called = true
	f.title = title
	f.body = body
}

func newTestHandler() (*Handler, *fakeAcks, *fakeReboot, *fakeNotify, *iot.Registry) {
	reg := iot.NewRegistry()
	reg.Register(iot.NewSpeaker(nil))
	reg.Register(iot.NewScreen(nil))
	acks := &fakeAcks{}
	reboot := &fakeReboot{}
	notify := &fakeNotify{}
	h := NewHandler(Options{Dispatcher: reg, Acks: acks, Reboot: reboot, Notify: notify})
	return h, acks, reboot, notify, reg
}

func decodeAck(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return m
}

func TestHandleSystemReboot(t *testing.T) {
	h, acks, reboot, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"system","action":"reboot","delay_ms":500,"request_id":"r1"}`))

	if !reboot.called || reboot.delayMS != 500 {
		h2 := reboot
		t.Fatalf("reboot = %+v, want called with 500", h2)
	}
	if len(acks.published) != 1 {
		t.Fatalf("published %d acks, want 1", len(acks.published))
	}
	got := decodeAck(t, acks.published[0])
	if got["status"] != "ok" || got["action"] != "reboot" || got["request_id"] != "r1" {
		t.Fatalf("ack = %+v", got)
	}
}

func TestHandleSystemRebootClampsDelay(t *testing.T) {
	h, acks, reboot, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"system","action":"reboot","delay_ms":99999}`))
	if reboot.delayMS != 10000 {
		t.Fatalf("delayMS = %d, want clamped 10000", reboot.delayMS)
	}
	got := decodeAck(t, acks.published[0])
	if got["delay_ms"].(float64) != 10000 {
		t.Fatalf("ack delay_ms = %+v", got["delay_ms"])
	}
}

func TestHandleSystemUnsupportedAction(t *testing.T) {
	h, acks, reboot, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"system","action":"shutdown"}`))
	if reboot.called {
		t.Fatalf("reboot should not be called for unsupported action")
	}
	got := decodeAck(t, acks.published[0])
	if got["status"] != "error" || got["error"] != "unsupported action" {
		t.Fatalf("ack = %+v", got)
	}
}

func TestHandleNotifyOk(t *testing.T) {
	h, acks, _, notify, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"notify","title":"hi","body":"there"}`))
	if !notify.called || notify.title != "hi" || notify.body != "there" {
		t.Fatalf("notify = %+v", notify)
	}
	got := decodeAck(t, acks.published[0])
	if got["status"] != "ok" {
		t.Fatalf("ack = %+v", got)
	}
}

func TestHandleNotifyEmptyIsError(t *testing.T) {
	h, acks, _, notify, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"notify"}`))
	if notify.called {
		t.Fatalf("notify should not be called for empty notification")
	}
	got := decodeAck(t, acks.published[0])
	if got["status"] != "error" || got["error"] != "empty notification" {
		t.Fatalf("ack = %+v", got)
	}
}

func TestHandleIotBatchEmitsOneAckPerCommand(t *testing.T) {
	h, acks, _, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"iot","commands":[
		{"name":"Speaker","method":"SetVolume","parameters":{"volume":40}},
		{"name":"Screen","method":"SetBrightness","parameters":{"brightness":70}}
	]}`))

	if len(acks.published) != 2 {
		t.Fatalf("published %d acks, want 2", len(acks.published))
	}
	for _, b := range acks.published {
		got := decodeAck(t, b)
		if got["status"] != "ok" || got["target"] != "iot" {
			t.Fatalf("ack = %+v", got)
		}
		if got["states"] == nil {
			t.Fatalf("ack missing states snapshot: %+v", got)
		}
	}
}

func TestHandleIotCommandLevelRequestIDWins(t *testing.T) {
	h, acks, _, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"iot","request_id":"envelope","commands":[
		{"name":"Speaker","method":"SetVolume","parameters":{"volume":10},"request_id":"cmd1"}
	]}`))
	got := decodeAck(t, acks.published[0])
	if got["request_id"] != "cmd1" {
		t.Fatalf("request_id = %+v, want cmd1", got["request_id"])
	}
}

func TestHandleIotUnknownThingIsErrorAck(t *testing.T) {
	h, acks, _, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"iot","commands":[
		{"name":"Teleporter","method":"Go"}
	]}`))
	got := decodeAck(t, acks.published[0])
	if got["status"] != "error" {
		t.Fatalf("ack = %+v", got)
	}
}

func TestHandleUnknownTypeDropsSilently(t *testing.T) {
	h, acks, _, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`{"type":"unknown_thing"}`))
	if len(acks.published) != 0 {
		t.Fatalf("published %d acks, want 0", len(acks.published))
	}
}

func TestHandleMalformedJSONDropsSilently(t *testing.T) {
	h, acks, _, _, _ := newTestHandler()
	h.HandleJSON(context.Background(), []byte(`not json`))
	if len(acks.published) != 0 {
		t.Fatalf("published %d acks, want 0", len(acks.published))
	}
}
