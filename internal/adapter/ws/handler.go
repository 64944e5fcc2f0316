// Package ws implements the agent-to-coordinator result/log streaming
// channel: agents open one WebSocket connection per job and push
// line-delimited output; anyone watching that job (an operator console, the
// job submitter) can subscribe on the same connection scope without riding
// the batched update_job_states/update_grid_task_state_and_get_next RPCs.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket traffic.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection, scoped to one job id.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	jobID  string
}

// Hub manages every active WebSocket connection and dispatches broadcasts.
// onMessage, if set, is invoked for every inbound message with the
// connection's job id; cmd/coordinator uses it to fold agent-streamed
// output lines into the audit recorder.
type Hub struct {
	name      string
	mu        sync.RWMutex
	conns     map[*conn]struct{}
	onMessage func(jobID string, msg Message)
}

// NewHub creates a Hub identified by name (used only in log lines) with an
// optional inbound-message callback.
func NewHub(name string, onMessage func(jobID string, msg Message)) *Hub {
	return &Hub{
		name:      name,
		conns:     make(map[*conn]struct{}),
		onMessage: onMessage,
	}
}

// HandleWS upgrades the connection and scopes it to the job_id query
// parameter, so a bare "watch this job" subscriber and a streaming agent
// use the same endpoint.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: socket, cancel: cancel, jobID: jobID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "hub", h.name, "job_id", jobID, "remote", r.RemoteAddr)

	go func() {
		defer func() {
			h.remove(c)
			_ = socket.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, data, err := socket.Read(ctx)
			if err != nil {
				return
			}
			if h.onMessage == nil {
				continue
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Debug("websocket inbound decode failed", "error", err)
				continue
			}
			h.onMessage(jobID, msg)
		}
	}()
}

// Broadcast sends msg to every connected client regardless of job scope.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// BroadcastToJob sends msg only to connections scoped to jobID.
func (h *Hub) BroadcastToJob(ctx context.Context, jobID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.jobID != jobID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// BroadcastEvent marshals a typed event and broadcasts it to every client.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "hub", h.name, "job_id", c.jobID)
	}
}
