package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	gorillaws "github.com/gorilla/websocket"
)

// TestClient drives one WebSocket connection against a TestServer using the
// same JSON-RPC 2.0 envelope the daemon's real front ends speak.
type TestClient struct {
	conn *gorillaws.Conn
}

// Call sends one JSON-RPC request and returns the decoded response,
// skipping any unsolicited push notification (an event frame with no ID)
// that arrives first.
func (c *TestClient) Call(id int, method string, params any) (*Envelope, error) {
	req := Envelope{JSONRPC: "2.0", Method: method, ID: id}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		req.Params = b
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var resp Envelope
		if err := c.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.Method != "" && resp.ID == nil {
			continue // push notification, not our reply
		}
		return &resp, nil
	}
}

// Close closes the underlying WebSocket connection.
func (c *TestClient) Close() error {
	return c.conn.Close()
}

// Envelope mirrors internal/rpc's wire Request/Response shape for black-box
// callers that don't import the (internal) rpc package's unexported types.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      any             `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError mirrors internal/rpc.Error's wire shape.
type EnvelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
