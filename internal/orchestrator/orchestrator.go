// Package orchestrator wires the ten-state Device State Machine (C6), the
// Alarm Pre-emption Protocol (C7), and the task Serializer (C8) into one
// runtime object, alongside the expansion components (telemetry, the
// intent-to-IoT bridge) that complete spec.md §6's device-side contract.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/alarm"
	"github.com/haivivi/chatgear-orchestrator/pkg/audiopipeline"
	"github.com/haivivi/chatgear-orchestrator/pkg/downlink"
	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
	"github.com/haivivi/chatgear-orchestrator/pkg/kv"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
	"github.com/haivivi/chatgear-orchestrator/pkg/protocol"
)

// WatchdogTickInterval is the 1Hz clock the Facade's silent-timeout
// detection and alarm pre-emption both ride on (spec.md §5).
const WatchdogTickInterval = time.Second

// Orchestrator is the assembled runtime: one Device, its Serializer, the
// Alarm Pre-emption Protocol watching it, and the expansion pieces
// (downlink handling, telemetry, intent dispatch) that drive it.
//
// Constructing one closes a wiring cycle common to this kind of runtime —
// the protocol Facade's watchdog-timeout callback and the alarm store's
// OnFire hook both need to call back into objects this same constructor is
// still building. Both are resolved with a forward-declared variable
// closed over by the callback, which is only ever invoked well after
// construction returns (a watchdog timeout or an armed alarm, at the
// earliest, fires seconds later).
type Orchestrator struct {
	serializer *Serializer
	facade     *protocol.Facade
	device     *Device
	preemption *Preemption
	alarms     *alarm.Store
	registry   *iot.Registry
	downlink   *downlink.Handler
	intents    *IntentBridge
	telemetry  *Telemetry
	logger     logging.Logger

	tickerStop chan struct{}
}

// Options configures an Orchestrator.
type Options struct {
	// Transport is the already-constructed protocol transport (MQTT or
	// WebSocket). It must additionally implement downlink.AckPublisher.
	Transport protocol.Transport
	Audio     *audiopipeline.Controller
	KV        kv.Store

	Display  Display
	WakeWord WakeWordDetector
	Prelude  PreludePlayer
	Reboot   downlink.Rebooter
	Notify   downlink.Notifier

	// SpeakerOnSet/ScreenOnChange are the board's hardware hooks for the
	// built-in Speaker/Screen things; either may be nil.
	SpeakerOnSet   func(volume int)
	ScreenOnChange func()

	TelemetrySource TelemetrySource
	DeviceName      string
	OTAVersion      string
	MAC             string
	ClientID        string

	Location *time.Location
	Logger   logging.Logger
	Now      func() time.Time
}

// New assembles an Orchestrator. ctx governs the lifetime of the alarm
// store's load/catch-up and any fire-handoff work it schedules through
// this Orchestrator for as long as the process runs.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ackPublisher, ok := opts.Transport.(downlink.AckPublisher)
	if !ok {
		return nil, fmt.Errorf("orchestrator: transport %T does not implement downlink.AckPublisher", opts.Transport)
	}

	registry := iot.NewRegistry()
	registry.Register(iot.NewSpeaker(opts.SpeakerOnSet))
	registry.Register(iot.NewScreen(opts.ScreenOnChange))
	registry.Register(iot.NewSubtitleControl())

	serializer := NewSerializer(DefaultQueueDepth, logger)

	var preemption *Preemption
	alarms, err := alarm.NewStore(ctx, opts.KV, alarm.Options{
		Location: opts.Location,
		Logger:   logger,
		Now:      now,
		OnFire: func() {
			serializer.Enqueue(func() {
				if preemption != nil {
					preemption.HandleFire(ctx, serializer.Enqueue)
				}
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: alarm store: %w", err)
	}
	registry.Register(iot.NewAlarmClock(alarms, now))

	var device *Device
	facade := protocol.NewFacade(opts.Transport, opts.Audio, func() {
		serializer.Enqueue(func() {
			if device != nil {
				device.EnterIdle(&gearstate.Cause{ProtocolReason: "watchdog_timeout"})
			}
		})
	})
	device = NewDevice(DeviceOptions{
		Audio:      opts.Audio,
		Transport:  facade,
		Dispatcher: registry,
		Display:    opts.Display,
		WakeWord:   opts.WakeWord,
		Logger:     logger,
		Now:        now,
		// Reset clears preemption's flags on any transition it did not
		// itself initiate (spec.md §4.7 "Reset"). The one transition to
		// exclude is preemption's own Listening->Idle handoff, which
		// carries the alarm's name as cause and must not be undone the
		// instant it happens.
		OnStateChange: func(state gearstate.State, cause *gearstate.Cause) {
			if preemption == nil {
				return
			}
			if state == gearstate.Idle && cause != nil && cause.AlarmName != "" {
				return
			}
			preemption.Reset()
		},
	})

	preemption = NewPreemption(PreemptionOptions{
		Alarms:  alarms,
		Device:  device,
		Prelude: opts.Prelude,
		Logger:  logger,
		Now:     now,
	})

	downlinkHandler := downlink.NewHandler(downlink.Options{
		Dispatcher: registry,
		Acks:       ackPublisher,
		Reboot:     opts.Reboot,
		Notify:     opts.Notify,
		Logger:     logger,
	})

	telemetry := NewTelemetry(TelemetryOptions{
		Sender:     facade,
		Dispatcher: registry,
		Source:     opts.TelemetrySource,
		Logger:     logger,
		Now:        now,
		DeviceName: opts.DeviceName,
		OTAVersion: opts.OTAVersion,
		MAC:        opts.MAC,
		ClientID:   opts.ClientID,
	})

	return &Orchestrator{
		serializer: serializer,
		facade:     facade,
		device:     device,
		preemption: preemption,
		alarms:     alarms,
		registry:   registry,
		downlink:   downlinkHandler,
		intents:    NewIntentBridge(registry, logger),
		telemetry:  telemetry,
		logger:     logger,
	}, nil
}

// Device returns the underlying device state machine, for callers that
// need to drive ToggleChat from a button-press interrupt.
func (o *Orchestrator) Device() *Device { return o.device }

// Registry returns the IoT dispatcher, for callers that need to register
// additional board-specific things beyond the three built-ins.
func (o *Orchestrator) Registry() *iot.Registry { return o.registry }

// Intents returns the intent-to-IoT translation bridge, for callers that
// feed it locally matched intents (C1) from recognized speech text.
func (o *Orchestrator) Intents() *IntentBridge { return o.intents }

// Enqueue hands a task to the serializer, the single entry point every
// externally-triggered action (button press, downlink message, recognized
// intent) must go through to touch device state safely.
func (o *Orchestrator) Enqueue(task func()) { o.serializer.Enqueue(task) }

// HandleDownlinkJSON enqueues one incoming downlink payload for dispatch.
// Wire this as the transport's OnIncomingJSON handler.
func (o *Orchestrator) HandleDownlinkJSON(ctx context.Context, payload []byte) {
	o.serializer.Enqueue(func() { o.downlink.HandleJSON(ctx, payload) })
}

// ToggleChat enqueues a button-press toggle-chat action.
func (o *Orchestrator) ToggleChat(ctx context.Context) {
	o.serializer.Enqueue(func() { o.device.ToggleChat(ctx, o.serializer.Enqueue) })
}

// Boot enqueues the canonical boot sequence (spec.md §4.6): a freshly
// constructed Device starts in Starting and must pass through Configuring
// before reaching Idle. Call this once, after the transport's initial
// connection succeeds.
func (o *Orchestrator) Boot() {
	o.serializer.Enqueue(func() {
		o.device.EnterConfiguring()
		o.device.EnterIdle(nil)
	})
}

// Run starts the 1Hz watchdog/pre-emption tick and the 30s telemetry
// heartbeat, both driven onto the serializer, until ctx is cancelled or
// Stop is called. Run blocks; call it from its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	watchdogTicker := time.NewTicker(WatchdogTickInterval)
	telemetryTicker := time.NewTicker(TelemetryInterval)
	defer watchdogTicker.Stop()
	defer telemetryTicker.Stop()

	o.tickerStop = make(chan struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.tickerStop:
			return
		case <-watchdogTicker.C:
			o.serializer.Enqueue(func() {
				o.facade.Tick(o.device.State())
				o.preemption.Check(ctx)
			})
		case <-telemetryTicker.C:
			o.serializer.Enqueue(o.telemetry.Publish)
		}
	}
}

// Stop halts Run's ticking and drains the serializer's pending work.
func (o *Orchestrator) Stop() {
	if o.tickerStop != nil {
		close(o.tickerStop)
	}
	o.serializer.Stop()
	if err := o.alarms.Close(); err != nil {
		o.logger.WarnPrintf("orchestrator: stop: close alarm store: %v", err)
	}
}
