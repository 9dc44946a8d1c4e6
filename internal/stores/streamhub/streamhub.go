// Package streamhub implements the streaming store over a WebSocket
// control channel to the edge. The orchestrator opens the channel during
// boot, the stream monitor task polls activity counts over it, and
// Shutdown closes it.
package streamhub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CryptoStream-Network/stream_layer/internal/stores"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Store is a StreamingStore speaking the edge control protocol.
type Store struct {
	url string
	log *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	seq  int
}

var _ stores.StreamingStore = (*Store)(nil)

type controlMessage struct {
	Type string `json:"type"`
	Ref  int    `json:"ref"`
}

type controlReply struct {
	Type          string `json:"type"`
	Ref           int    `json:"ref"`
	ActiveStreams int    `json:"active_streams"`
	Error         string `json:"error,omitempty"`
}

// New creates a store for the given edge control URL (ws:// or wss://).
func New(edgeURL string, log *logger.Logger) (*Store, error) {
	edgeURL = strings.TrimSpace(edgeURL)
	if edgeURL == "" {
		return nil, fmt.Errorf("edge url required")
	}
	// Accept http(s) URLs from config and translate to the ws scheme.
	if strings.HasPrefix(edgeURL, "https") {
		edgeURL = "wss" + edgeURL[5:]
	} else if strings.HasPrefix(edgeURL, "http") {
		edgeURL = "ws" + edgeURL[4:]
	}
	if log == nil {
		log = logger.NewDefault("streamhub")
	}
	return &Store{url: edgeURL, log: log}, nil
}

// Initialize dials the control channel and subscribes to stream events.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial edge %s: %w", s.url, err)
	}

	s.seq++
	if err := conn.WriteJSON(controlMessage{Type: "subscribe", Ref: s.seq}); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to edge: %w", err)
	}

	s.conn = conn
	s.log.WithField("edge", s.url).Info("streaming control channel open")
	return nil
}

// CleanupStreams sends a close frame and tears the channel down. Safe to
// call when never initialized.
func (s *Store) CleanupStreams(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		deadline,
	)
	closeErr := s.conn.Close()
	s.conn = nil
	s.log.Info("streaming control channel closed")

	if err != nil && !strings.Contains(err.Error(), "close sent") {
		return fmt.Errorf("send close frame: %w", err)
	}
	return closeErr
}

// ActiveStreams asks the edge for the current live stream count.
func (s *Store) ActiveStreams(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, fmt.Errorf("streaming transport not initialized")
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.seq++
	ref := s.seq
	if err := s.conn.WriteJSON(controlMessage{Type: "activity", Ref: ref}); err != nil {
		return 0, fmt.Errorf("query stream activity: %w", err)
	}

	_ = s.conn.SetReadDeadline(deadline)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read activity reply: %w", err)
		}
		var reply controlReply
		if err := json.Unmarshal(payload, &reply); err != nil {
			s.log.WithError(err).Debug("skipping malformed control frame")
			continue
		}
		if reply.Ref != ref {
			// Unsolicited event frames interleave with replies.
			continue
		}
		if reply.Error != "" {
			return 0, fmt.Errorf("edge error: %s", reply.Error)
		}
		return reply.ActiveStreams, nil
	}
}
