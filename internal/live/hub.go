// Package live pushes board snapshots to connected browser tabs over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/anti-todo/internal/domain"
	"github.com/ashureev/anti-todo/internal/identity"
	"github.com/coder/websocket"
)

const (
	subscriberBuffer = 8
	writeTimeout     = 5 * time.Second
)

// Message is the frame sent to subscribers.
type Message struct {
	Type  string        `json:"type"`
	Todos []domain.Todo `json:"todos"`
}

type subscriber struct {
	ch chan Message
}

// Hub fans board snapshots out to every tab a user has open.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[*subscriber]struct{})}
}

// Publish implements todo.Notifier. It never blocks: a subscriber whose
// buffer is full has its oldest pending snapshot replaced.
func (h *Hub) Publish(userID string, board domain.Board) {
	msg := Message{Type: "board", Todos: board.Todos}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.active[userID] {
		select {
		case sub.ch <- msg:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
}

// Subscribers returns how many tabs are connected for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

func (h *Hub) register(userID string) *subscriber {
	sub := &subscriber{ch: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[userID]; !ok {
		h.active[userID] = make(map[*subscriber]struct{})
	}
	h.active[userID][sub] = struct{}{}
	slog.Info("Live subscriber registered", "user_id", userID, "count", len(h.active[userID]))
	return sub
}

func (h *Hub) unregister(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.active[userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.active, userID)
		}
	}
	slog.Info("Live subscriber unregistered", "user_id", userID)
}

// BoardLister loads the current board for the initial frame.
type BoardLister interface {
	List(ctx context.Context, userID string) (domain.Board, error)
}

// Handler upgrades requests to WebSocket and streams board snapshots.
type Handler struct {
	hub            *Hub
	boards         BoardLister
	originPatterns []string
}

// NewHandler creates the WebSocket handler. Empty originPatterns accepts only same-origin requests.
func NewHandler(hub *Hub, boards BoardLister, originPatterns []string) *Handler {
	return &Handler{hub: hub, boards: boards, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "bye"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sub := h.hub.register(userID)
	defer h.hub.unregister(userID, sub)

	// Clients never send anything; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	board, err := h.boards.List(ctx, userID)
	if err != nil {
		slog.Error("Failed to load board for live stream", "error", err, "user_id", userID)
		return
	}
	if err := writeMessage(ctx, ws, Message{Type: "board", Todos: board.Todos}); err != nil {
		slog.Debug("Initial live write failed", "error", err, "user_id", userID)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.ch:
			if err := writeMessage(ctx, ws, msg); err != nil {
				slog.Debug("Live write failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, ws *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
