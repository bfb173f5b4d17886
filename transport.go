package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultLiveHost = "wss://generativelanguage.googleapis.com"

const livePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Conn is one bidirectional message-oriented connection to the realtime AI
// service. Send and Close may be called from any goroutine; Receive must be
// driven by a single reader.
type Conn interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close(code int, reason string) error
}

// Dialer opens a fresh Conn. One session owns one Conn.
type Dialer func(ctx context.Context) (Conn, error)

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ Conn = (*wsConn)(nil)

func (c *wsConn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close(code int, reason string) error {
	c.writeMu.Lock()
	message := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// NewLiveDialer builds a Dialer for the Gemini Live websocket endpoint.
// An empty baseURL selects the public endpoint.
func NewLiveDialer(apiKey, baseURL string) (Dialer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key provided")
	}
	if baseURL == "" {
		baseURL = defaultLiveHost
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	endpoint := base.JoinPath(livePath)
	query := endpoint.Query()
	query.Set("key", apiKey)
	endpoint.RawQuery = query.Encode()

	return func(ctx context.Context) (Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, endpoint.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dialing live endpoint: %w", err)
		}
		return &wsConn{conn: conn}, nil
	}, nil
}
