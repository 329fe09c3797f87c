package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"okeyonline/internal/realtime"
)

// Socket is a connection to the realtime gateway.
type Socket struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Dial opens the gateway with the current token.
func (c *Client) Dial(ctx context.Context) (*Socket, error) {
	wsURL := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if tok := c.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) Emit(event string, data any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(realtime.Message{Event: event, Data: data})
}

// Next blocks until the next server event or the context deadline.
func (s *Socket) Next(ctx context.Context) (realtime.Envelope, error) {
	var env realtime.Envelope
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return env, err
	}
	if err := ctx.Err(); err != nil {
		return env, err
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if err = json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode event: %w", err)
	}
	return env, nil
}

// Await skips events until one named event arrives.
func (s *Socket) Await(ctx context.Context, event string) (realtime.Envelope, error) {
	for {
		env, err := s.Next(ctx)
		if err != nil {
			return env, err
		}
		if env.Event == event {
			return env, nil
		}
	}
}

func (s *Socket) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
