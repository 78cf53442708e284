// Package signaling implements the auth handshake with the downstream
// real-time transport: dial the signaling endpoint, present the session
// identifier and bearer credential, and wait for the accept or reject
// verdict. No media negotiation happens here.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrRejected is returned when the signaling server refuses the
// credential.
var ErrRejected = errors.New("signaling: registration rejected")

// defaultTimeout bounds the whole dial-register-verdict exchange.
const defaultTimeout = 10 * time.Second

// register is the hello message opening the handshake.
type register struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Bearer    string `json:"bearer"`
}

// verdict is the server's answer.
type verdict struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Config parameterises the handshake.
type Config struct {
	// URL is the ws:// or wss:// signaling endpoint.
	URL string

	// SessionID identifies this ingest session. Defaults to a fresh
	// UUID.
	SessionID string

	// Bearer is the credential presented to the server. The scheme is
	// the server's business.
	Bearer string

	// Timeout bounds the whole exchange. Zero uses the default.
	Timeout time.Duration
}

// Register dials the signaling endpoint and performs the auth handshake.
// It returns the session id the exchange ran under, or ErrRejected when
// the server refuses the credential.
func Register(ctx context.Context, cfg Config) (string, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
	if err != nil {
		return "", fmt.Errorf("signaling: dial %s: %w", cfg.URL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	hello, err := json.Marshal(register{
		Type:      "register",
		SessionID: cfg.SessionID,
		Bearer:    cfg.Bearer,
	})
	if err != nil {
		return "", fmt.Errorf("signaling: marshal register: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		return "", fmt.Errorf("signaling: send register: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("signaling: await verdict: %w", err)
	}
	var v verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("signaling: decode verdict: %w", err)
	}

	switch v.Type {
	case "registered":
		return cfg.SessionID, nil
	case "error":
		return "", fmt.Errorf("%w: %s", ErrRejected, v.Message)
	default:
		return "", fmt.Errorf("signaling: unexpected verdict type %q", v.Type)
	}
}
