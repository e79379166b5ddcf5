package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/alarm"
	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// PreludeWindow is how far ahead of an alarm's fire time preemption begins,
// per spec.md §4.7.
const PreludeWindow = 5 * time.Second

// PreludePlayer renders the alarm prelude audio asset, with a fallback
// generic exclamation asset for when the named prelude can't be found —
// out of scope per spec.md §1 ("external collaborators"); this is only the
// hook the protocol drives it through.
type PreludePlayer interface {
	PlayPrelude(alarmName string) error
	PlayFallback() error
}

// Preemption implements the Alarm Pre-emption Protocol (C7): it watches for
// an alarm within PreludeWindow of firing and prepares whichever state the
// device currently occupies to render it cleanly, then hands off to
// Listening when the alarm actually fires. Grounded 1:1 on
// application.cc's AudioLoop alarm pre-processing block and
// DiscardPendingAudioForAlarm/SendAlarmMessage.
type Preemption struct {
	alarms  *alarm.Store
	device  *Device
	prelude PreludePlayer
	logger  logging.Logger
	now     func() time.Time

	mu               sync.Mutex
	active           bool
	preludePlaying   bool
	preludeStart     time.Time
	pendingAlarmName string
}

// PreemptionOptions configures a Preemption. Logger defaults to
// logging.Noop(), Now to time.Now.
type PreemptionOptions struct {
	Alarms  *alarm.Store
	Device  *Device
	Prelude PreludePlayer
	Logger  logging.Logger
	Now     func() time.Time
}

// NewPreemption constructs a Preemption. It does not itself wire
// alarms.Options.OnFire — the caller does that, pointing it at a
// Serializer-enqueued call to HandleFire, since Store invokes OnFire off
// its own lock on an arbitrary goroutine.
func NewPreemption(opts PreemptionOptions) *Preemption {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Preemption{alarms: opts.Alarms, device: opts.Device, prelude: opts.Prelude, logger: logger, now: now}
}

// Active reports whether a preemption is currently in progress.
func (p *Preemption) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Check is the audio-loop-iteration trigger: if no preemption is active and
// the device is in a preemptible state, it consults the proximate alarm
// and starts preemption if it fires within PreludeWindow.
func (p *Preemption) Check(ctx context.Context) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	state := p.device.State()
	if !state.PreemptibleByAlarm() {
		return
	}
	a, ok := p.alarms.Proximate(p.now())
	if !ok {
		return
	}
	delta := a.NextFire.Sub(p.now())
	if delta <= 0 || delta > PreludeWindow {
		return
	}
	p.start(a.Name, state)
}

func (p *Preemption) start(name string, state gearstate.State) {
	p.mu.Lock()
	p.active = true
	p.pendingAlarmName = name
	p.mu.Unlock()

	switch state {
	case gearstate.Speaking:
		p.device.AbortSpeaking()
		p.device.EnsureOutputEnabled()
		p.playPrelude(name)

	case gearstate.Listening:
		p.device.DiscardPendingCapture()
		p.device.CloseChannelIfOpen()
		p.device.EnterIdle(&gearstate.Cause{AlarmName: name})
		p.device.EnsureOutputEnabled()
		p.playPrelude(name)

	case gearstate.Idle:
		p.device.EnsureOutputEnabled()
		p.device.KeepAlive()
		p.playPrelude(name)
	}
}

func (p *Preemption) playPrelude(name string) {
	p.mu.Lock()
	p.preludePlaying = true
	p.preludeStart = p.now()
	p.mu.Unlock()

	if p.prelude == nil {
		return
	}
	if err := p.prelude.PlayPrelude(name); err != nil {
		p.logger.WarnPrintf("alarm prelude playback failed, falling back: %v", err)
		if err := p.prelude.PlayFallback(); err != nil {
			p.logger.ErrorPrintf("alarm fallback playback failed: %v", err)
		}
	}
}

// HandleFire is the on_alarm handoff (§4.7 "Fire handoff"): it takes the
// ring the Store recorded, clears preemption flags, brings the device to
// Listening (opening the channel if needed), and announces the alarm.
// Must be called from the Serializer's drain loop, since it mutates device
// state; wire it via alarm.Options.OnFire -> serializer.Enqueue(...).
func (p *Preemption) HandleFire(ctx context.Context, enqueue func(func())) {
	name, ok := p.alarms.TakeRing()
	if !ok {
		return
	}

	p.mu.Lock()
	p.active = false
	p.preludePlaying = false
	p.pendingAlarmName = ""
	p.mu.Unlock()

	if err := p.device.OpenChannelIfClosed(ctx); err != nil {
		p.logger.ErrorPrintf("alarm fire handoff: open channel: %v", err)
	}
	p.device.EnterListening(gearstate.AutoStop, &gearstate.Cause{AlarmName: name}, enqueue)
	tag := fmt.Sprintf("alarm-#%s", name)
	if err := p.device.SendWakeWordDetected(tag); err != nil {
		p.logger.WarnPrintf("alarm fire handoff: announce alarm: %v", err)
	}
}

// Reset clears preemption flags on any device-state change that is not a
// Listening->Idle transition caused by the preemption itself (§4.7
// "Reset"). Call this from the device-state-change hook for every
// transition Preemption did not itself initiate.
func (p *Preemption) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.preludePlaying = false
	p.pendingAlarmName = ""
}
