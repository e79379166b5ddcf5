package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
	"github.com/haivivi/chatgear-orchestrator/pkg/mqtt"
)

// MQTTConfig mirrors the persisted "mqtt" namespace: endpoint, client_id,
// username, password, downlink_topic. uplink_topic and ack_topic are always
// derived from client_id; downlink_topic falls back to a derived default
// when empty.
type MQTTConfig struct {
	Endpoint      string
	ClientID      string
	Username      string
	Password      string
	DownlinkTopic string
}

func (c MQTTConfig) uplinkTopic() string { return "devices/" + c.ClientID + "/uplink" }
func (c MQTTConfig) ackTopic() string    { return "devices/" + c.ClientID + "/ack" }
func (c MQTTConfig) downlinkTopic() string {
	if c.DownlinkTopic != "" {
		return c.DownlinkTopic
	}
	return "devices/" + c.ClientID + "/downlink"
}

// MQTTTransport implements Transport over the trimmed QoS-0 pkg/mqtt client.
// MQTT carries both JSON control messages and raw Opus audio on the same
// uplink/downlink topics; incoming payloads are routed to OnIncomingJSON or
// OnIncomingAudio by sniffing for a leading JSON object/array, since the
// wire format documented in the spec does not reserve a type byte for this.
type MQTTTransport struct {
	cfg      MQTTConfig
	handlers Handlers
	logger   logging.Logger

	mu     sync.Mutex
	client *mqtt.Client
	open   bool
}

// MQTTTransportOptions configures a new MQTTTransport.
type MQTTTransportOptions struct {
	Config   MQTTConfig
	Handlers Handlers
	Logger   logging.Logger
}

// NewMQTTTransport constructs an MQTTTransport. The connection itself is
// established lazily by OpenAudioChannel.
func NewMQTTTransport(opts MQTTTransportOptions) *MQTTTransport {
	if opts.Logger == nil {
		opts.Logger = logging.Default("protocol-mqtt")
	}
	return &MQTTTransport{cfg: opts.Config, handlers: opts.Handlers, logger: opts.Logger}
}

func (t *MQTTTransport) OpenAudioChannel(ctx context.Context) (bool, error) {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return true, nil
	}
	t.mu.Unlock()

	client, err := mqtt.Connect(ctx, mqtt.ClientConfig{
		Addr:     t.cfg.Endpoint,
		ClientID: t.cfg.ClientID,
		Username: t.cfg.Username,
		Password: []byte(t.cfg.Password),
	})
	if err != nil {
		if t.handlers.OnNetworkError != nil {
			t.handlers.OnNetworkError(err)
		}
		return false, fmt.Errorf("protocol: mqtt connect: %w", err)
	}
	if err := client.Subscribe(t.cfg.downlinkTopic()); err != nil {
		client.Close()
		if t.handlers.OnNetworkError != nil {
			t.handlers.OnNetworkError(err)
		}
		return false, fmt.Errorf("protocol: mqtt subscribe: %w", err)
	}

	t.mu.Lock()
	t.client = client
	t.open = true
	t.mu.Unlock()

	go t.readLoop(client)

	if t.handlers.OnChannelOpen != nil {
		t.handlers.OnChannelOpen()
	}
	return true, nil
}

func (t *MQTTTransport) readLoop(client *mqtt.Client) {
	uplink, ack, downlink := t.cfg.uplinkTopic(), t.cfg.ackTopic(), t.cfg.downlinkTopic()
	for {
		msg, err := client.Recv()
		if err != nil {
			t.mu.Lock()
			wasOpen := t.open
			t.open = false
			t.mu.Unlock()
			if wasOpen && t.handlers.OnChannelClosed != nil {
				t.handlers.OnChannelClosed()
			}
			return
		}
		// Loop prevention: never act on the device's own uplink/ack topics,
		// which a broker may echo back depending on ACL configuration.
		if msg.Topic == uplink || msg.Topic == ack {
			t.logger.DebugPrintf("dropping self-published message on %s", msg.Topic)
			continue
		}
		if msg.Topic != downlink {
			continue
		}
		if looksLikeJSON(msg.Payload) {
			if t.handlers.OnIncomingJSON != nil {
				t.handlers.OnIncomingJSON(msg.Payload)
			}
		} else if t.handlers.OnIncomingAudio != nil {
			t.handlers.OnIncomingAudio(msg.Payload)
		}
	}
}

func (t *MQTTTransport) CloseAudioChannel() {
	t.mu.Lock()
	client := t.client
	wasOpen := t.open
	t.open = false
	t.client = nil
	t.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if wasOpen && t.handlers.OnChannelClosed != nil {
		t.handlers.OnChannelClosed()
	}
}

func (t *MQTTTransport) IsChannelOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *MQTTTransport) publish(payload []byte) error {
	t.mu.Lock()
	client := t.client
	open := t.open
	t.mu.Unlock()
	if !open || client == nil {
		return ErrChannelClosed
	}
	return client.Publish(t.cfg.uplinkTopic(), payload)
}

func (t *MQTTTransport) SendAudio(opusPacket []byte) error { return t.publish(opusPacket) }
func (t *MQTTTransport) SendText(payload []byte) error     { return t.publish(payload) }

func (t *MQTTTransport) SendWakeWordDetected(tag string) error {
	return t.publish(marshalWakeWordDetected(tag))
}

func (t *MQTTTransport) SendStartListening(mode gearstate.ListeningMode) error {
	return t.publish(marshalStartListening(mode))
}

func (t *MQTTTransport) SendStopListening() error {
	return t.publish(marshalStopListening())
}

func (t *MQTTTransport) SendAbortSpeaking(reason string) error {
	return t.publish(marshalAbortSpeaking(reason))
}

func (t *MQTTTransport) SendIotDescriptors(payload []byte) error {
	return t.publish(marshalIotDescriptors(payload))
}

func (t *MQTTTransport) SendIotStates(payload []byte) error {
	return t.publish(marshalIotStates(payload))
}

var _ Transport = (*MQTTTransport)(nil)

// PublishAck publishes a downlink-handler ACK to the dedicated ACK topic
// (§4.5); exported for pkg/downlink to call without reaching into the
// transport's internals.
func (t *MQTTTransport) PublishAck(payload []byte) error {
	t.mu.Lock()
	client := t.client
	open := t.open
	t.mu.Unlock()
	if !open || client == nil {
		return ErrChannelClosed
	}
	return client.Publish(t.cfg.ackTopic(), payload)
}
