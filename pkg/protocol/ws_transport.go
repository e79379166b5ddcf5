package protocol

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/haivivi/chatgear-orchestrator/pkg/gearstate"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	URL      string
	Headers  http.Header
	DeviceID string // sent as a header, matching the firmware's device-id auth scheme
	ClientID string
}

// WebSocketTransport implements Transport directly over gorilla/websocket,
// carrying JSON control messages as text frames and Opus audio as binary
// frames — the same text/binary split used by the teacher's realtime
// session clients (pkg/openai-realtime, pkg/doubaospeech).
type WebSocketTransport struct {
	cfg      WebSocketConfig
	handlers Handlers
	logger   logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	sendMu sync.Mutex
}

// WebSocketTransportOptions configures a new WebSocketTransport.
type WebSocketTransportOptions struct {
	Config   WebSocketConfig
	Handlers Handlers
	Logger   logging.Logger
}

// NewWebSocketTransport constructs a WebSocketTransport. The connection is
// established lazily by OpenAudioChannel.
func NewWebSocketTransport(opts WebSocketTransportOptions) *WebSocketTransport {
	if opts.Logger == nil {
		opts.Logger = logging.Default("protocol-ws")
	}
	return &WebSocketTransport{cfg: opts.Config, handlers: opts.Handlers, logger: opts.Logger}
}

func (t *WebSocketTransport) OpenAudioChannel(ctx context.Context) (bool, error) {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return true, nil
	}
	t.mu.Unlock()

	headers := t.cfg.Headers
	if headers == nil {
		headers = http.Header{}
	}
	if t.cfg.DeviceID != "" {
		headers.Set("Device-Id", t.cfg.DeviceID)
	}
	if t.cfg.ClientID != "" {
		headers.Set("Client-Id", t.cfg.ClientID)
	}

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, headers)
	if err != nil {
		if t.handlers.OnNetworkError != nil {
			t.handlers.OnNetworkError(err)
		}
		if resp != nil {
			return false, fmt.Errorf("protocol: websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("protocol: websocket dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	go t.readLoop(conn)

	if t.handlers.OnChannelOpen != nil {
		t.handlers.OnChannelOpen()
	}
	return true, nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		mtype, payload, err := conn.ReadMessage()
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
		switch mtype {
		case websocket.TextMessage:
			if t.handlers.OnIncomingJSON != nil {
				t.handlers.OnIncomingJSON(payload)
			}
		case websocket.BinaryMessage:
			if t.handlers.OnIncomingAudio != nil {
				t.handlers.OnIncomingAudio(payload)
			}
		}
	}
}

func (t *WebSocketTransport) CloseAudioChannel() {
	t.mu.Lock()
	conn := t.conn
	wasOpen := t.open
	t.open = false
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasOpen && t.handlers.OnChannelClosed != nil {
		t.handlers.OnChannelClosed()
	}
}

func (t *WebSocketTransport) IsChannelOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *WebSocketTransport) writeFrame(mtype int, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	open := t.open
	t.mu.Unlock()
	if !open || conn == nil {
		return ErrChannelClosed
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return conn.WriteMessage(mtype, payload)
}

func (t *WebSocketTransport) SendAudio(opusPacket []byte) error {
	return t.writeFrame(websocket.BinaryMessage, opusPacket)
}

func (t *WebSocketTransport) SendText(payload []byte) error {
	return t.writeFrame(websocket.TextMessage, payload)
}

func (t *WebSocketTransport) SendWakeWordDetected(tag string) error {
	return t.writeFrame(websocket.TextMessage, marshalWakeWordDetected(tag))
}

func (t *WebSocketTransport) SendStartListening(mode gearstate.ListeningMode) error {
	return t.writeFrame(websocket.TextMessage, marshalStartListening(mode))
}

func (t *WebSocketTransport) SendStopListening() error {
	return t.writeFrame(websocket.TextMessage, marshalStopListening())
}

func (t *WebSocketTransport) SendAbortSpeaking(reason string) error {
	return t.writeFrame(websocket.TextMessage, marshalAbortSpeaking(reason))
}

func (t *WebSocketTransport) SendIotDescriptors(payload []byte) error {
	return t.writeFrame(websocket.TextMessage, marshalIotDescriptors(payload))
}

func (t *WebSocketTransport) SendIotStates(payload []byte) error {
	return t.writeFrame(websocket.TextMessage, marshalIotStates(payload))
}

var _ Transport = (*WebSocketTransport)(nil)
