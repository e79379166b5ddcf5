package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDial supports tcp://, tls:///mqtts://, ws://, and wss:// broker
// addresses, same scheme set as the teacher's mqtt0.DefaultDialer.
func DefaultDial(ctx context.Context, addr string) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Scheme == "" {
		return dialTCP(ctx, addr)
	}

	switch strings.ToLower(u.Scheme) {
	case "tcp", "mqtt":
		return dialTCP(ctx, withDefaultPort(u.Host, "1883"))
	case "tls", "mqtts", "ssl":
		return dialTLS(ctx, withDefaultPort(u.Host, "8883"), nil)
	case "ws":
		return dialWebSocket(ctx, "ws://"+withDefaultPort(u.Host, "80")+orDefaultPath(u.Path), nil)
	case "wss":
		return dialWebSocket(ctx, "wss://"+withDefaultPort(u.Host, "443")+orDefaultPath(u.Path), &tls.Config{})
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}
}

func withDefaultPort(host, port string) string {
	if !strings.Contains(host, ":") {
		return host + ":" + port
	}
	return host
}

func orDefaultPath(path string) string {
	if path == "" {
		return "/mqtt"
	}
	return path
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func dialTLS(ctx context.Context, addr string, cfg *tls.Config) (net.Conn, error) {
	if cfg == nil {
		host, _, _ := net.SplitHostPort(addr)
		cfg = &tls.Config{ServerName: host}
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func dialWebSocket(ctx context.Context, rawURL string, tlsCfg *tls.Config) (net.Conn, error) {
	dialer := websocket.Dialer{Subprotocols: []string{"mqtt"}, TLSClientConfig: tlsCfg}
	ws, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a *websocket.Conn to net.Conn so the MQTT codec above can
// run unmodified over a WebSocket-carried broker connection.
type wsConn struct {
	ws      *websocket.Conn
	pending []byte

	writeMu sync.Mutex
}

func (c *wsConn) Read(b []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, err
	}
	n := copy(b, data)
	if n < len(data) {
		c.pending = data[n:]
	}
	return n, nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)
