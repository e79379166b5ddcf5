// Package downlink implements the Downlink Handler (C5): parsing
// server-initiated commands off the protocol channel, dispatching them
// (system/notify/iot), and publishing exactly one ACK per routable request,
// grounded on chatgear/command.go's type-discriminated
// json.RawMessage-then-switch idiom.
package downlink

import (
	"context"
	"encoding/json"

	"github.com/haivivi/chatgear-orchestrator/pkg/iot"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// AckPublisher is the narrow surface the handler needs to send ACKs;
// pkg/protocol.MQTTTransport.PublishAck satisfies it. The WebSocket
// transport has no PublishAck and does not satisfy it.
type AckPublisher interface {
	PublishAck(payload []byte) error
}

// Rebooter enqueues a delayed platform reboot and shows the shutdown
// notice; it is the orchestrator's doorway into the board-specific reset
// path, kept out of this package so downlink stays platform-agnostic.
type Rebooter interface {
	Reboot(delayMS int)
}

// Notifier renders a transient on-screen notification for roughly 10s.
type Notifier interface {
	Notify(title, body string)
}

// envelope is the wire shape of one downlink message (spec.md §6).
type envelope struct {
	Type      string          `json:"type"`
	RequestID json.RawMessage `json:"request_id,omitempty"`

	Action  string `json:"action,omitempty"`
	DelayMS *int   `json:"delay_ms,omitempty"`

	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`

	Commands []iotCommand `json:"commands,omitempty"`
}

// iotCommand mirrors iot.Command but with a raw request_id, since the
// envelope's per-command request_id may be a string, number, or absent.
type iotCommand struct {
	Name       string          `json:"name"`
	Method     string          `json:"method"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	RequestID  json.RawMessage `json:"request_id,omitempty"`
}

// ack is the wire shape of one ACK message (spec.md §6).
type ack struct {
	Type      string          `json:"type"`
	Target    string          `json:"target"`
	Status    string          `json:"status"`
	Action    string          `json:"action,omitempty"`
	Command   any             `json:"command,omitempty"`
	Error     string          `json:"error,omitempty"`
	DelayMS   *int            `json:"delay_ms,omitempty"`
	States    json.RawMessage `json:"states,omitempty"`
	RequestID json.RawMessage `json:"request_id,omitempty"`
}

// Handler parses and dispatches downlink requests, per spec.md §4.5.
type Handler struct {
	dispatcher iot.Dispatcher
	acks       AckPublisher
	reboot     Rebooter
	notify     Notifier
	logger     logging.Logger
}

// Options configures a Handler. Logger defaults to logging.Noop() if nil.
type Options struct {
	Dispatcher iot.Dispatcher
	Acks       AckPublisher
	Reboot     Rebooter
	Notify     Notifier
	Logger     logging.Logger
}

// NewHandler builds a Handler from opts.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	return &Handler{
		dispatcher: opts.Dispatcher,
		acks:       opts.Acks,
		reboot:     opts.Reboot,
		notify:     opts.Notify,
		logger:     logger,
	}
}

// HandleJSON parses and dispatches one incoming downlink payload. Parse
// failures are dropped with a log and no ACK, per the §7 propagation
// policy; topic-level loop filtering (dropping the device's own
// uplink/ack publications) is the transport's responsibility, not this
// handler's — see pkg/protocol.MQTTTransport.readLoop.
func (h *Handler) HandleJSON(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.WarnPrintf("downlink: dropping malformed request: %v", err)
		return
	}

	switch env.Type {
	case "system":
		h.handleSystem(env)
	case "notify":
		h.handleNotify(env)
	case "iot":
		h.handleIot(ctx, env)
	default:
		h.logger.WarnPrintf("downlink: dropping request with unknown type %q", env.Type)
	}
}

func (h *Handler) handleSystem(env envelope) {
	if env.Action != "reboot" {
		h.publish(ack{
			Type: "ack", Target: "system", Status: "error",
			Error: "unsupported action", RequestID: env.RequestID,
		})
		return
	}

	delayMS := 0
	if env.DelayMS != nil {
		delayMS = clampDelayMS(*env.DelayMS)
	}
	if h.reboot != nil {
		h.reboot.Reboot(delayMS)
	}
	h.publish(ack{
		Type: "ack", Target: "system", Status: "ok",
		Action: "reboot", DelayMS: &delayMS, RequestID: env.RequestID,
	})
}

func (h *Handler) handleNotify(env envelope) {
	if env.Title == "" && env.Body == "" {
		h.publish(ack{
			Type: "ack", Target: "notify", Status: "error",
			Error: "empty notification", RequestID: env.RequestID,
		})
		return
	}
	if h.notify != nil {
		h.notify.Notify(env.Title, env.Body)
	}
	h.publish(ack{Type: "ack", Target: "notify", Status: "ok", RequestID: env.RequestID})
}

func (h *Handler) handleIot(ctx context.Context, env envelope) {
	for _, cmd := range env.Commands {
		requestID := cmd.RequestID
		if len(requestID) == 0 {
			requestID = env.RequestID
		}

		echoedCommand := map[string]any{"name": cmd.Name, "method": cmd.Method}
		if cmd.Parameters != nil {
			echoedCommand["parameters"] = cmd.Parameters
		}

		err := h.dispatcher.InvokeSync(ctx, iot.Command{
			Name:       cmd.Name,
			Method:     cmd.Method,
			Parameters: cmd.Parameters,
		})
		a := ack{
			Type: "ack", Target: "iot", Command: echoedCommand,
			States: json.RawMessage(h.dispatcher.StatesJSON()), RequestID: requestID,
		}
		if err != nil {
			a.Status = "error"
			a.Error = err.Error()
		} else {
			a.Status = "ok"
		}
		h.publish(a)
	}
}

func (h *Handler) publish(a ack) {
	if h.acks == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		h.logger.ErrorPrintf("downlink: failed to marshal ack: %v", err)
		return
	}
	if err := h.acks.PublishAck(b); err != nil {
		h.logger.ErrorPrintf("downlink: failed to publish ack: %v", err)
	}
}

func clampDelayMS(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10000 {
		return 10000
	}
	return v
}
