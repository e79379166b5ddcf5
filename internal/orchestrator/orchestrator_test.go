package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/audiopipeline"
	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/kv"
)

type fakeEncoder struct{ sampleRate, frameMs int }

func newFakeEncoder(sampleRate, frameMs int) (audiopipeline.Encoder, error) {
	return &fakeEncoder{sampleRate, frameMs}, nil
}
func (f *fakeEncoder) FrameSize() int                    { return f.sampleRate * f.frameMs / 1000 }
func (f *fakeEncoder) Encode(pcm []int16) ([]byte, error) { return []byte{0x01}, nil }
func (f *fakeEncoder) Close()                            {}

type fakeDecoder struct{ sampleRate, frameMs int }

func newFakeDecoder(sampleRate, frameMs int) (audiopipeline.Decoder, error) {
	return &fakeDecoder{sampleRate, frameMs}, nil
}
func (f *fakeDecoder) SampleRate() int { return f.sampleRate }
func (f *fakeDecoder) FrameMs() int    { return f.frameMs }
func (f *fakeDecoder) FrameSize() int  { return f.sampleRate * f.frameMs / 1000 }
func (f *fakeDecoder) Decode(packet []byte) ([]int16, error) {
	return make([]int16, f.FrameSize()), nil
}
func (f *fakeDecoder) Close() {}

func newTestAudio(t *testing.T) *audiopipeline.Controller {
	t.Helper()
	c, err := audiopipeline.New(audiopipeline.Options{
		NewEncoder: newFakeEncoder,
		NewDecoder: newFakeDecoder,
		OutputRate: audiopipeline.DefaultDecodeSampleRate,
		Now:        time.Now,
	})
	if err != nil {
		t.Fatalf("audiopipeline.New: %v", err)
	}
	return c
}

// fakeTransport implements both protocol.Transport and downlink.AckPublisher.
type fakeTransport struct {
	open    bool
	acks    [][]byte
	uplinks [][]byte
}

func (f *fakeTransport) OpenAudioChannel(ctx context.Context) (bool, error) {
	f.open = true
	return true, nil
}
func (f *fakeTransport) CloseAudioChannel()                               { f.open = false }
func (f *fakeTransport) SendAudio(p []byte) error                         { f.uplinks = append(f.uplinks, p); return nil }
func (f *fakeTransport) SendText(p []byte) error                         { f.uplinks = append(f.uplinks, p); return nil }
func (f *fakeTransport) SendWakeWordDetected(string) error                { return nil }
func (f *fakeTransport) SendStartListening(gearstate.ListeningMode) error { return nil }
func (f *fakeTransport) SendStopListening() error                         { return nil }
func (f *fakeTransport) SendAbortSpeaking(string) error                   { return nil }
func (f *fakeTransport) SendIotDescriptors(p []byte) error                { return nil }
func (f *fakeTransport) SendIotStates(p []byte) error                     { return nil }
func (f *fakeTransport) IsChannelOpen() bool                              { return f.open }
func (f *fakeTransport) PublishAck(p []byte) error {
	f.acks = append(f.acks, p)
	return nil
}

type fakeReboot struct{ calls []int }

func (f *fakeReboot) Reboot(delayMS int) { f.calls = append(f.calls, delayMS) }

type fakeNotify struct{ titles []string }

func (f *fakeNotify) Notify(title, body string) { f.titles = append(f.titles, title) }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	orch, err := New(context.Background(), Options{
		Transport: transport,
		Audio:     newTestAudio(t),
		KV:        kv.NewMemory(nil),
		Reboot:    &fakeReboot{},
		Notify:    &fakeNotify{},
		Now:       time.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch, transport
}

func TestNewAssemblesRuntime(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	if orch.Device() == nil {
		t.Fatalf("expected a device")
	}
	if orch.Registry() == nil {
		t.Fatalf("expected a registry")
	}
	if orch.Device().State() != gearstate.Starting {
		t.Fatalf("expected a new device to start in Starting, got %s", orch.Device().State())
	}
}

func TestNewRejectsTransportWithoutAckPublisher(t *testing.T) {
	_, err := New(context.Background(), Options{
		Transport: noAckTransport{},
		KV:        kv.NewMemory(nil),
	})
	if err == nil {
		t.Fatalf("expected error for transport missing PublishAck")
	}
}

type noAckTransport struct{}

func (noAckTransport) OpenAudioChannel(ctx context.Context) (bool, error) { return true, nil }
func (noAckTransport) CloseAudioChannel()                                {}
func (noAckTransport) SendAudio([]byte) error                            { return nil }
func (noAckTransport) SendText([]byte) error                             { return nil }
func (noAckTransport) SendWakeWordDetected(string) error                 { return nil }
func (noAckTransport) SendStartListening(gearstate.ListeningMode) error  { return nil }
func (noAckTransport) SendStopListening() error                          { return nil }
func (noAckTransport) SendAbortSpeaking(string) error                    { return nil }
func (noAckTransport) SendIotDescriptors([]byte) error                   { return nil }
func (noAckTransport) SendIotStates([]byte) error                        { return nil }
func (noAckTransport) IsChannelOpen() bool                               { return false }

func TestHandleDownlinkJSONDispatchesThroughSerializer(t *testing.T) {
	orch, transport := newTestOrchestrator(t)

	payload := []byte(`{"type":"notify","title":"hi","body":"there"}`)
	orch.HandleDownlinkJSON(context.Background(), payload)

	orch.Stop()

	if len(transport.acks) != 1 {
		t.Fatalf("expected 1 ack published, got %d", len(transport.acks))
	}
}

func TestToggleChatFromIdleOpensChannel(t *testing.T) {
	orch, transport := newTestOrchestrator(t)

	orch.Boot()
	orch.ToggleChat(context.Background())
	orch.Stop()

	if !transport.open {
		t.Fatalf("expected channel opened by toggle_chat from idle")
	}
	if orch.Device().State() != gearstate.Listening {
		t.Fatalf("expected Listening, got %s", orch.Device().State())
	}
}

func TestBootReachesIdleFromStarting(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	if orch.Device().State() != gearstate.Starting {
		t.Fatalf("expected Starting before Boot, got %s", orch.Device().State())
	}
	orch.Boot()
	orch.Stop()

	if orch.Device().State() != gearstate.Idle {
		t.Fatalf("expected Idle after Boot, got %s", orch.Device().State())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancel")
	}
	orch.Stop()
}
