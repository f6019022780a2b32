package http

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-sandbox/internal/core/services"
	"github.com/melih/lighthouse-sandbox/internal/log"
)

// TerminalHandler attaches websocket clients to shells in their containers.
type TerminalHandler struct {
	bridge *services.TerminalBridge
	guard  services.RunningGuard
	// ctx bounds every session; cancelling it ends them all.
	ctx context.Context
}

func NewTerminalHandler(ctx context.Context, bridge *services.TerminalBridge, guard services.RunningGuard) *TerminalHandler {
	return &TerminalHandler{bridge: bridge, guard: guard, ctx: ctx}
}

// Upgrade runs before the websocket handshake so ownership and state
// failures are reported with a regular HTTP status.
func (h *TerminalHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.guard.RequireRunning(c.Context(), "open terminal", ownerID(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.Next()
}

// Serve relays one websocket connection until either side goes away.
func (h *TerminalHandler) Serve() fiber.Handler {
	return websocket.New(func(ws *websocket.Conn) {
		owner, _ := ws.Locals(ownerKey).(string)
		containerID := ws.Params("id")
		conn := &wsConn{ws: ws}

		session, err := h.bridge.Open(h.ctx, owner, containerID, conn)
		if err != nil {
			log.Warn("terminal open failed", "container_id", containerID, "owner", owner, "error", err)
			_ = conn.closeWith(websocket.CloseInternalServerErr, err.Error())
			return
		}
		if err := session.Serve(h.ctx); err != nil {
			log.Warn("terminal session failed", "session_id", session.ID(), "error", err)
		}
	})
}

// ListSessions returns the caller's live terminal sessions.
func (h *TerminalHandler) ListSessions(c *fiber.Ctx) error {
	owner := ownerID(c)
	mine := []services.SessionInfo{}
	for _, s := range h.bridge.Sessions() {
		if s.OwnerID == owner {
			mine = append(mine, s)
		}
	}
	return c.JSON(mine)
}

const maxCloseReason = 120

// wsConn adapts a websocket to ports.ClientConn. Output is sent as text
// frames; input frames of either type are accepted.
type wsConn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.ws.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith sends a close frame, best effort, and closes the socket once.
// Control frame payloads are limited to 125 bytes.
func (w *wsConn) closeWith(code int, reason string) error {
	reason = truncateReason(reason, maxCloseReason)
	w.closeOnce.Do(func() {
		w.mu.Lock()
		_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		w.mu.Unlock()
		w.closeErr = w.ws.Close()
	})
	return w.closeErr
}

// truncateReason cuts reason to at most limit bytes without splitting a
// character.
func truncateReason(reason string, limit int) string {
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
