package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/competeiq/api/internal/model"
)

// Client is one websocket subscriber of an analysis.
type Client struct {
	AnalysisID string
	Conn       *websocket.Conn
	Send       chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(analysisID string, conn *websocket.Conn) *Client {
	return &Client{
		AnalysisID: analysisID,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// drop signals the writer to close the connection. Send is never closed, so
// late writers cannot panic.
func (c *Client) drop() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Hub fans analysis updates out to subscribed connections.
type Hub struct {
	// Clients grouped by analysis ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stopped    chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

type BroadcastMessage struct {
	AnalysisID string
	Message    []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for client := range clients {
					client.drop()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.AnalysisID] == nil {
				h.clients[client.AnalysisID] = make(map[*Client]bool)
			}
			h.clients[client.AnalysisID][client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client registered", "analysis_id", client.AnalysisID)

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("websocket client unregistered", "analysis_id", client.AnalysisID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.AnalysisID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow consumer.
					delete(h.clients[msg.AnalysisID], client)
					client.drop()
				}
			}
			if len(h.clients[msg.AnalysisID]) == 0 {
				delete(h.clients, msg.AnalysisID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.AnalysisID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.AnalysisID)
		}
	}
	client.drop()
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.drop()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Subscribers returns the number of connections watching an analysis.
func (h *Hub) Subscribers(analysisID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[analysisID])
}

// BroadcastProgress announces a step status change.
func (h *Hub) BroadcastProgress(analysisID string, step model.StepName, stepProgress int, status model.JobStatus, overall int) {
	h.send(analysisID, model.WSProgressMessage{
		Type:       model.WSMessageTypeProgress,
		AnalysisID: analysisID,
		Step:       step,
		Progress:   stepProgress,
		Status:     status,
		Overall:    overall,
		Message:    "Step " + string(step) + " " + string(status),
	})
}

// BroadcastComplete announces the result of a finished analysis.
func (h *Hub) BroadcastComplete(analysisID string, result interface{}) {
	h.send(analysisID, model.WSCompleteMessage{
		Type:       model.WSMessageTypeComplete,
		AnalysisID: analysisID,
		Result:     result,
	})
}

// BroadcastError announces a failed analysis.
func (h *Hub) BroadcastError(analysisID string, code, message string) {
	h.send(analysisID, model.WSErrorMessage{
		Type:       model.WSMessageTypeError,
		AnalysisID: analysisID,
		Error:      model.WSError{Code: code, Message: message},
	})
}

// send never blocks the caller; updates are dropped when the queue is full.
func (h *Hub) send(analysisID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{AnalysisID: analysisID, Message: data}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping update", "analysis_id", analysisID)
	}
}

// HandleConnection serves one subscriber until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, analysisID string) {
	client := newClient(analysisID, c)

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-client.done:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "analysis_id", analysisID, "error", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- data:
			case <-client.done:
			default:
			}
		}
	}
}
