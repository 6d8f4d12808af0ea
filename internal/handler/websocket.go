package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"parkwatch/internal/hub"
	"parkwatch/internal/view"
)

type WSHandler struct {
	hub     *hub.Hub
	results ResultSource
	opts    Options
	logger  *slog.Logger
}

func NewWSHandler(h *hub.Hub, results ResultSource, opts Options, logger *slog.Logger) *WSHandler {
	if opts.LiveWindow <= 0 {
		opts.LiveWindow = view.DefaultLiveWindow
	}
	return &WSHandler{hub: h, results: results, opts: opts, logger: logger.With("component", "ws_handler")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ZonesPayload struct {
	Zones []string `json:"zones"`
}

type FrameMessage struct {
	Type    string     `json:"type"`
	Payload view.Frame `json:"payload"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), 256)
	h.hub.Register(client)
	h.sendUpdate(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload ZonesPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Zones) > 0 {
				h.hub.Subscribe(client, payload.Zones)
				h.sendUpdate(client)
			}

		case "unsubscribe":
			var payload ZonesPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			h.hub.Unsubscribe(client, payload.Zones)

		case "view":
			var req ViewRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				h.send(client, ErrorMessage{Type: "error", Error: "invalid view payload"})
				continue
			}
			h.sendFrame(client, req)

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendUpdate(client *hub.Client) {
	h.send(client, hub.BuildUpdate(h.results.Result(), client))
}

func (h *WSHandler) sendFrame(client *hub.Client, req ViewRequest) {
	snapshots := h.results.Result().Snapshots
	next, err := req.startState().Apply(req.Action, len(snapshots), h.opts.Catalog)
	if err != nil {
		h.send(client, ErrorMessage{Type: "error", Error: err.Error()})
		return
	}

	h.send(client, FrameMessage{
		Type:    "frame",
		Payload: view.Render(next, snapshots, h.opts.Catalog, time.Now(), h.opts.LiveWindow),
	})
}

func (h *WSHandler) send(client *hub.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if !client.Enqueue(data) {
		h.logger.Debug("client send buffer full or closed", "client_id", client.ID)
	}
}
