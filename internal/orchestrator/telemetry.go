package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
	"github.com/haivivi/chatgear-orchestrator/pkg/jsontime"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// TelemetryInterval is how often the heartbeat is published, per spec.md §6.
const TelemetryInterval = 30 * time.Second

// TelemetrySender is the narrow surface Telemetry needs to publish the
// heartbeat; protocol.Transport's SendText satisfies it.
type TelemetrySender interface {
	SendText(payload []byte) error
}

// TelemetrySource supplies the platform-specific readings (battery, heap,
// wifi) that are out of this module's scope (spec.md §1's "external
// collaborators") — Telemetry only assembles and ships the envelope.
type TelemetrySource interface {
	// Battery returns ok=false on a device with no battery (e.g. mains-
	// powered), in which case the "battery" field is omitted entirely.
	Battery() (level int, charging, discharging bool, ok bool)
	Memory() (freeInternal, minFreeInternal uint64)
	// WifiRSSI returns ok=false when not on wifi (e.g. LTE), omitting
	// "wifi" from the envelope.
	WifiRSSI() (rssi int, ok bool)
}

type batteryTelemetry struct {
	Level       int  `json:"level"`
	Charging    bool `json:"charging"`
	Discharging bool `json:"discharging"`
}

type memoryTelemetry struct {
	FreeInternal    uint64 `json:"free_internal"`
	MinFreeInternal uint64 `json:"min_free_internal"`
}

type wifiTelemetry struct {
	RSSI int `json:"rssi"`
}

type telemetryEnvelope struct {
	Type       string            `json:"type"`
	Online     bool              `json:"online"`
	TS         jsontime.Milli    `json:"ts"`
	DeviceName string            `json:"device_name"`
	OTAVersion string            `json:"ota_version"`
	MAC        string            `json:"mac"`
	ClientID   string            `json:"client_id"`
	Battery    *batteryTelemetry `json:"battery,omitempty"`
	Memory     memoryTelemetry   `json:"memory"`
	Wifi       *wifiTelemetry    `json:"wifi,omitempty"`
	IotStates  []json.RawMessage `json:"iot_states,omitempty"`
}

// Telemetry assembles and ships the ~30s uplink heartbeat, grounded on
// original_source/main/notifications/mqtt_notifier.cc's periodic-publish
// loop and the envelope shape in spec.md §6.
type Telemetry struct {
	sender     TelemetrySender
	dispatcher iot.Dispatcher
	source     TelemetrySource
	logger     logging.Logger
	now        func() time.Time

	deviceName string
	otaVersion string
	mac        string
	clientID   string
}

// TelemetryOptions configures a Telemetry. Logger defaults to
// logging.Noop(), Now to time.Now.
type TelemetryOptions struct {
	Sender     TelemetrySender
	Dispatcher iot.Dispatcher
	Source     TelemetrySource
	Logger     logging.Logger
	Now        func() time.Time

	DeviceName string
	OTAVersion string
	MAC        string
	ClientID   string
}

// NewTelemetry constructs a Telemetry publisher.
func NewTelemetry(opts TelemetryOptions) *Telemetry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Telemetry{
		sender:     opts.Sender,
		dispatcher: opts.Dispatcher,
		source:     opts.Source,
		logger:     logger,
		now:        now,
		deviceName: opts.DeviceName,
		otaVersion: opts.OTAVersion,
		mac:        opts.MAC,
		clientID:   opts.ClientID,
	}
}

// Publish assembles and sends one heartbeat. Intended to be called from a
// Serializer-enqueued periodic task every TelemetryInterval.
func (t *Telemetry) Publish() {
	env := telemetryEnvelope{
		Type:       "telemetry",
		Online:     true,
		TS:         jsontime.Milli(t.now()),
		DeviceName: t.deviceName,
		OTAVersion: t.otaVersion,
		MAC:        t.mac,
		ClientID:   t.clientID,
	}

	if t.source != nil {
		if level, charging, discharging, ok := t.source.Battery(); ok {
			env.Battery = &batteryTelemetry{Level: level, Charging: charging, Discharging: discharging}
		}
		freeInternal, minFreeInternal := t.source.Memory()
		env.Memory = memoryTelemetry{FreeInternal: freeInternal, MinFreeInternal: minFreeInternal}
		if rssi, ok := t.source.WifiRSSI(); ok {
			env.Wifi = &wifiTelemetry{RSSI: rssi}
		}
	}

	if t.dispatcher != nil {
		states := t.dispatcher.StatesJSON()
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(states), &raw); err == nil {
			env.IotStates = raw
		}
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.logger.ErrorPrintf("telemetry: marshal heartbeat: %v", err)
		return
	}
	if t.sender == nil {
		return
	}
	if err := t.sender.SendText(b); err != nil {
		t.logger.WarnPrintf("telemetry: publish heartbeat: %v", err)
	}
}
