package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/store"
)

const pingInterval = 30 * time.Second

// Hub serves per-job snapshot streams over WebSocket. Each connection is
// backed by its own store subscription, so any server replica can serve
// any job; the stream ends after the first terminal snapshot.
type Hub struct {
	store  store.Store
	logger *zap.Logger

	mu     sync.Mutex
	active int
}

func NewHub(st store.Store, logger *zap.Logger) *Hub {
	return &Hub{store: st, logger: logger}
}

// ActiveConnections reports the number of open subscriber connections.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Hub) track(delta int) {
	h.mu.Lock()
	h.active += delta
	h.mu.Unlock()
}

// HandleConnection streams job snapshots to one WebSocket client.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	h.track(1)
	defer h.track(-1)

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	snapshots, cancel, err := h.store.Subscribe(ctx, jobID)
	if err != nil {
		h.writeError(c, jobID, err)
		return
	}
	defer cancel()

	send := make(chan []byte, 8)
	pongs := make(chan []byte, 1)

	// Writer: snapshots, pongs and keep-alive pings share one loop so
	// the connection has a single writer.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case msg := <-pongs:
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Snapshot pump: forward until the job reaches a terminal status.
	go func() {
		defer close(send)
		for job := range snapshots {
			frame := model.WSSnapshotMessage{Type: model.WSMessageTypeSnapshot, Job: job}
			data, err := json.Marshal(frame)
			if err != nil {
				h.logger.Error("marshal snapshot frame", zap.Error(err))
				return
			}
			select {
			case send <- data:
			case <-ctx.Done():
				return
			}
			if job.Status.IsTerminal() {
				return
			}
		}
	}()

	// Reader: answers pings and notices the peer going away.
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.String("jobId", jobID), zap.Error(err))
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case pongs <- pong:
			default:
			}
		}
	}
}

func (h *Hub) writeError(c *websocket.Conn, jobID string, err error) {
	code := "SUBSCRIBE_FAILED"
	if errorsIsNotFound(err) {
		code = "NOT_FOUND"
	}
	frame := model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: err.Error()},
	}
	if data, merr := json.Marshal(frame); merr == nil {
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
	_ = c.WriteMessage(websocket.CloseMessage, []byte{})
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
