package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// wsMaxFrameBytes caps inbound WebSocket frames at 64 KiB (spec.md §4.1).
const wsMaxFrameBytes = 64 * 1024

// defaultWSRooms is the room whitelist used when cfg.Gateway.WSRooms is
// empty (spec.md §4.1).
var defaultWSRooms = []string{"signals", "metrics", "alerts", "chat", "status"}

// wsConn tracks one upgraded connection subscribed to a single room.
type wsConn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub upgrades HTTP connections to WebSocket and fans out signals from the
// bus to each room's subscribers over a bounded per-subscriber channel.
type Hub struct {
	bus          *signalbus.Bus
	verifyToken  func(token string) bool
	allowedRooms map[string]bool

	mu    sync.RWMutex
	conns map[string]map[*wsConn]struct{}
}

// NewHub constructs a Hub backed by bus. verifyToken authenticates the
// JWT presented via the first WebSocket subprotocol or a `token` query
// parameter (spec.md §4.1). rooms is the whitelist a client may join; a nil
// or empty slice falls back to defaultWSRooms.
func NewHub(bus *signalbus.Bus, verifyToken func(token string) bool, rooms []string) *Hub {
	if len(rooms) == 0 {
		rooms = defaultWSRooms
	}
	allowed := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		allowed[r] = true
	}
	return &Hub{bus: bus, verifyToken: verifyToken, allowedRooms: allowed, conns: make(map[string]map[*wsConn]struct{})}
}

// ServeHTTP upgrades the request, validates the requested room against the
// whitelist, authenticates the JWT, and streams signals from that room
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if !h.allowedRooms[room] {
		http.Error(w, "unknown room", http.StatusBadRequest)
		return
	}

	token := wsToken(r)
	if token == "" || !h.verifyToken(token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("gateway: websocket accept failed")
		return
	}
	ws.SetReadLimit(int64(wsMaxFrameBytes))

	ctx, cancel := context.WithCancel(r.Context())
	conn := &wsConn{ws: ws, cancel: cancel}

	h.add(room, conn)
	defer func() {
		h.remove(room, conn)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	ch, leave := h.bus.JoinRoom(room)
	defer leave()

	go h.drainClientReads(ctx, ws)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, sig); err != nil {
				return
			}
		}
	}
}

// drainClientReads discards inbound client frames (this endpoint is
// publish-only to clients) but still must read to detect disconnects and
// enforce the frame-size cap.
func (h *Hub) drainClientReads(ctx context.Context, ws *websocket.Conn) {
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, ws *websocket.Conn, sig models.Signal) error {
	return ws.Write(ctx, websocket.MessageText, wsEncode(sig))
}

func wsEncode(sig models.Signal) []byte {
	data, err := json.Marshal(sig)
	if err != nil {
		return []byte(`{"error":"encode_failed"}`)
	}
	return data
}

func (h *Hub) add(room string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[room] == nil {
		h.conns[room] = make(map[*wsConn]struct{})
	}
	h.conns[room][c] = struct{}{}
}

func (h *Hub) remove(room string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.conns[room]; ok {
		delete(m, c)
	}
	c.cancel()
}

// ConnectionCount returns the number of active subscribers across all
// rooms, for the /v1/status handler.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, m := range h.conns {
		total += len(m)
	}
	return total
}

// wsToken extracts the bearer JWT from the first WebSocket subprotocol or a
// `token` query parameter, per spec.md §4.1.
func wsToken(r *http.Request) string {
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		parts := strings.Split(proto, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return r.URL.Query().Get("token")
}
