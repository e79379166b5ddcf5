package audiopipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
)

// fakeEncoder/fakeDecoder avoid the cgo libopus dependency in tests: they
// stand in for the real codec and just track how many times they've been
// (re)created and closed, which is exactly what the invariants under test
// care about.
type fakeEncoder struct {
	sampleRate, frameMs int
	closed              bool
	encodeCalls         int
}

func newFakeEncoder(sampleRate, frameMs int) (Encoder, error) {
	return &fakeEncoder{sampleRate: sampleRate, frameMs: frameMs}, nil
}

func (f *fakeEncoder) FrameSize() int { return f.sampleRate * f.frameMs / 1000 }
func (f *fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != f.FrameSize() {
		return nil, fmt.Errorf("fakeEncoder: want %d samples, got %d", f.FrameSize(), len(pcm))
	}
	f.encodeCalls++
	return []byte{0x01, 0x02}, nil
}
func (f *fakeEncoder) Close() { f.closed = true }

type fakeDecoder struct {
	sampleRate, frameMs int
	closed              bool
}

func newFakeDecoder(sampleRate, frameMs int) (Decoder, error) {
	return &fakeDecoder{sampleRate: sampleRate, frameMs: frameMs}, nil
}

func (f *fakeDecoder) SampleRate() int { return f.sampleRate }
func (f *fakeDecoder) FrameMs() int    { return f.frameMs }
func (f *fakeDecoder) FrameSize() int  { return f.sampleRate * f.frameMs / 1000 }
func (f *fakeDecoder) Decode(packet []byte) ([]int16, error) {
	return make([]int16, f.FrameSize()), nil
}
func (f *fakeDecoder) Close() { f.closed = true }

func newTestController(t *testing.T) (*Controller, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := New(Options{
		NewEncoder: newFakeEncoder,
		NewDecoder: newFakeDecoder,
		OutputRate: DefaultDecodeSampleRate,
		Now:        func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, &clock
}

func TestNewUsesFixedCaptureAndDefaultDecodeParams(t *testing.T) {
	c, _ := newTestController(t)
	enc := c.encoder.(*fakeEncoder)
	if enc.sampleRate != CaptureSampleRate || enc.frameMs != CaptureFrameMs {
		t.Fatalf("encoder params = %d/%d, want %d/%d", enc.sampleRate, enc.frameMs, CaptureSampleRate, CaptureFrameMs)
	}
	dec := c.decoder.(*fakeDecoder)
	if dec.sampleRate != DefaultDecodeSampleRate || dec.frameMs != DefaultDecodeFrameMs {
		t.Fatalf("decoder params = %d/%d, want %d/%d", dec.sampleRate, dec.frameMs, DefaultDecodeSampleRate, DefaultDecodeFrameMs)
	}
}

func TestSetDecodeSampleRateNoOpWhenUnchanged(t *testing.T) {
	c, _ := newTestController(t)
	before := c.decoder.(*fakeDecoder)
	if err := c.SetDecodeSampleRate(DefaultDecodeSampleRate, DefaultDecodeFrameMs); err != nil {
		t.Fatalf("SetDecodeSampleRate: %v", err)
	}
	after := c.decoder.(*fakeDecoder)
	if before != after {
		t.Fatalf("decoder was replaced despite unchanged parameters")
	}
}

func TestSetDecodeSampleRateRecreatesOnChange(t *testing.T) {
	c, _ := newTestController(t)
	before := c.decoder.(*fakeDecoder)
	if err := c.SetDecodeSampleRate(24000, 20); err != nil {
		t.Fatalf("SetDecodeSampleRate: %v", err)
	}
	if !before.closed {
		t.Fatal("old decoder was not closed")
	}
	after := c.decoder.(*fakeDecoder)
	if after.sampleRate != 24000 || after.frameMs != 20 {
		t.Fatalf("new decoder params = %d/%d, want 24000/20", after.sampleRate, after.frameMs)
	}
}

func TestEnterListeningFromOtherStateResetsEncoder(t *testing.T) {
	c, _ := newTestController(t)
	before := c.encoder.(*fakeEncoder)
	if err := c.EnterListening(gearstate.Idle); err != nil {
		t.Fatalf("EnterListening: %v", err)
	}
	if !before.closed {
		t.Fatal("encoder should have been reset entering Listening from Idle")
	}
	after := c.encoder.(*fakeEncoder)
	if after == before {
		t.Fatal("encoder instance unchanged")
	}
}

func TestEnterListeningFastReentryRetainsEncoder(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.EnterListening(gearstate.Idle); err != nil {
		t.Fatalf("EnterListening: %v", err)
	}
	before := c.encoder.(*fakeEncoder)
	if err := c.EnterListening(gearstate.Listening); err != nil {
		t.Fatalf("EnterListening (re-entry): %v", err)
	}
	after := c.encoder.(*fakeEncoder)
	if before != after || before.closed {
		t.Fatal("fast re-entry from Listening must retain encoder state")
	}
}

func TestEnterListeningClearsDecodeQueue(t *testing.T) {
	c, _ := newTestController(t)
	c.decodeQueue.Push([]byte{1, 2}, 60*time.Millisecond)
	if c.decodeQueue.Empty() {
		t.Fatal("test setup: queue should have a pending frame")
	}
	if err := c.EnterListening(gearstate.Idle); err != nil {
		t.Fatalf("EnterListening: %v", err)
	}
	if !c.decodeQueue.Empty() {
		t.Fatal("decode queue must be cleared on entering Listening")
	}
}

func TestDiscardPendingCaptureClearsEverything(t *testing.T) {
	c, _ := newTestController(t)
	c.decodeQueue.Push([]byte{1, 2}, 60*time.Millisecond)
	c.encodeQueue = [][]byte{{1}, {2}}
	c.capturing = true
	oldEnc := c.encoder.(*fakeEncoder)

	if err := c.DiscardPendingCapture(); err != nil {
		t.Fatalf("DiscardPendingCapture: %v", err)
	}
	if c.capturing {
		t.Fatal("capturing flag must be cleared")
	}
	if len(c.encodeQueue) != 0 {
		t.Fatal("background-encode queue must be cleared")
	}
	if !c.decodeQueue.Empty() {
		t.Fatal("decode queue must be cleared")
	}
	if !oldEnc.closed {
		t.Fatal("old encoder must be closed")
	}
}

func TestOutputAutoDisablesAfterSilenceInIdle(t *testing.T) {
	c, clock := newTestController(t)
	c.lastOutputTime = *clock
	*clock = clock.Add(MaxSilence + time.Second)

	c.Tick(gearstate.Idle)
	if c.outputEnabled {
		t.Fatal("output should have been disabled after prolonged silence in Idle")
	}
}

func TestOutputStaysEnabledDuringAlarmPrelude(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	preludePlaying := true
	c, err := New(Options{
		NewEncoder:   newFakeEncoder,
		NewDecoder:   newFakeDecoder,
		OutputRate:   DefaultDecodeSampleRate,
		Now:          func() time.Time { return clock },
		AlarmPrelude: func() bool { return preludePlaying },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.lastOutputTime = clock
	clock = clock.Add(MaxSilence + time.Second)
	c.now = func() time.Time { return clock }

	c.Tick(gearstate.Idle)
	if !c.outputEnabled {
		t.Fatal("output must stay enabled while the alarm prelude is playing")
	}
}

func TestOutputNotDisabledOutsideIdle(t *testing.T) {
	c, clock := newTestController(t)
	c.lastOutputTime = *clock
	*clock = clock.Add(MaxSilence + time.Second)

	c.Tick(gearstate.Speaking)
	if !c.outputEnabled {
		t.Fatal("idle-silence auto-disable must only apply in Idle")
	}
}

func TestEncodePCMRejectsWrongFrameSize(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.EncodePCM(make([]int16, 1)); err == nil {
		t.Fatal("expected error for wrong frame size")
	}
}

func TestEncodePCMProducesPacket(t *testing.T) {
	c, _ := newTestController(t)
	pcm := make([]int16, CaptureSampleRate*CaptureFrameMs/1000)
	packet, err := c.EncodePCM(pcm)
	if err != nil {
		t.Fatalf("EncodePCM: %v", err)
	}
	if len(packet) == 0 {
		t.Fatal("expected non-empty packet")
	}
}

func TestDecodePacketQueuesFrameAndUpdatesLastOutputTime(t *testing.T) {
	c, clock := newTestController(t)
	*clock = clock.Add(5 * time.Second)

	if err := c.DecodePacket([]byte{0x01}); err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if c.decodeQueue.Empty() {
		t.Fatal("expected a queued decoded frame")
	}
	if !c.lastOutputTime.Equal(*clock) {
		t.Fatalf("lastOutputTime = %v, want %v", c.lastOutputTime, *clock)
	}

	payload, dur, err := c.PopDecoded()
	if err != nil {
		t.Fatalf("PopDecoded: %v", err)
	}
	if dur != time.Duration(DefaultDecodeFrameMs)*time.Millisecond {
		t.Fatalf("duration = %v, want %dms", dur, DefaultDecodeFrameMs)
	}
	if len(payload) == 0 {
		t.Fatal("expected non-empty decoded payload")
	}
}

func TestResetDecoderClearsQueueAndReenablesOutput(t *testing.T) {
	c, clock := newTestController(t)
	c.decodeQueue.Push([]byte{1}, 60*time.Millisecond)
	c.outputEnabled = false
	*clock = clock.Add(time.Minute)

	c.ResetDecoder()

	if !c.decodeQueue.Empty() {
		t.Fatal("ResetDecoder must clear the decode queue")
	}
	if !c.outputEnabled {
		t.Fatal("ResetDecoder must re-enable output")
	}
	if !c.lastOutputTime.Equal(*clock) {
		t.Fatal("ResetDecoder must stamp lastOutputTime to now")
	}
}
