package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/model"
)

const (
	msgProjectStatus = "project_status"
	msgAssetUpdate   = "asset_update"
	msgPing          = "ping"
	msgPong          = "pong"
)

// Client is one WebSocket subscriber watching a project.
type Client struct {
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub fans project and asset updates out to WebSocket subscribers,
// grouped by project ID. It also implements the notifier interfaces the
// pipeline machine and the job lifecycle publish through.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	log *logger.Logger
	mu  sync.RWMutex
}

type broadcastMessage struct {
	ProjectID string
	Message   []byte
}

type statusMessage struct {
	Type          string              `json:"type"`
	ProjectID     string              `json:"projectId"`
	Status        model.ProjectStatus `json:"status"`
	FailureReason string              `json:"failureReason,omitempty"`
}

type assetMessage struct {
	Type      string            `json:"type"`
	ProjectID string            `json:"projectId"`
	AssetID   string            `json:"assetId"`
	SceneID   string            `json:"sceneId"`
	AssetType model.AssetType   `json:"assetType"`
	Status    model.AssetStatus `json:"status"`
	URL       string            `json:"url,omitempty"`
}

type controlMessage struct {
	Type string `json:"type"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		log:        log.With("component", "ws"),
	}
}

// Run is the hub's main loop. Start it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ProjectID] == nil {
				h.clients[client.ProjectID] = make(map[*Client]bool)
			}
			h.clients[client.ProjectID][client] = true
			h.mu.Unlock()
			h.log.Debug("client subscribed", "project", client.ProjectID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ProjectID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.ProjectID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.ProjectID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ProjectStatusChanged publishes a stage transition to the project's
// subscribers.
func (h *Hub) ProjectStatusChanged(p *model.Project) {
	h.publish(p.ID, statusMessage{
		Type:          msgProjectStatus,
		ProjectID:     p.ID,
		Status:        p.Status,
		FailureReason: p.FailureReason,
	})
}

// AssetUpdated publishes an asset status change to the project's subscribers.
func (h *Hub) AssetUpdated(a *model.Asset) {
	h.publish(a.ProjectID, assetMessage{
		Type:      msgAssetUpdate,
		ProjectID: a.ProjectID,
		AssetID:   a.ID,
		SceneID:   a.SceneID,
		AssetType: a.Type,
		Status:    a.Status,
		URL:       a.URL,
	})
}

func (h *Hub) publish(projectID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal broadcast message", "err", err)
		return
	}
	h.broadcast <- &broadcastMessage{ProjectID: projectID, Message: data}
}

// HandleConnection runs the read/write loops for one subscriber until the
// connection drops.
func (h *Hub) HandleConnection(c *websocket.Conn, projectID string) {
	client := &Client{
		ProjectID: projectID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}

	h.register <- client
	defer func() { h.unregister <- client }()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
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
				h.log.Warn("websocket read error", "project", projectID, "err", err)
			}
			break
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == msgPing {
			data, _ := json.Marshal(controlMessage{Type: msgPong})
			client.Send <- data
		}
	}
}
