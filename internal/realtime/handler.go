package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/d3vfreak/fleet-overview/internal/poll"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Events received from the dashboard.
const (
	EventLink    = "link"
	EventLogin   = "login"
	EventMonitor = "monitor"

	// EventLoginURL answers EventLink.
	EventLoginURL = "loginURL"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var ErrUnknownEvent = errors.New("unknown event")

// LoginLinker builds the SSO login URL.
type LoginLinker interface {
	LoginURL() string
}

type loginRequest struct {
	User string `json:"user"`
	Hash string `json:"hash"`
}

type monitorRequest struct {
	Active bool `json:"active"`
}

// Handler upgrades dashboard connections and routes their events to the registry.
type Handler struct {
	registry *poll.Registry
	linker   LoginLinker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(registry *poll.Registry, linker LoginLinker, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		linker:   linker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger.Named("realtime"),
	}
}

// ServeHTTP implements http.Handler. It returns when the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	connID := uuid.NewString()
	logger := h.logger.With(zap.String("connID", connID))
	c := newConn(ws, writeTimeout)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	h.registry.Connect(connID, c)
	defer h.registry.Disconnect(context.WithoutCancel(ctx), connID)

	logger.Debug("Client connected", zap.String("remote", r.RemoteAddr))

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.keepalive(ctx, c, logger)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Connection closed unexpectedly", zap.Error(err))
			}
			break
		}

		h.handle(ctx, connID, c, data, logger)
	}

	logger.Debug("Client disconnected")
}

// keepalive pings the client until ctx ends.
func (h *Handler) keepalive(ctx context.Context, c *conn, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

// handle dispatches one frame. A panic is logged and the connection stays open.
func (h *Handler) handle(ctx context.Context, connID string, c *conn, data []byte, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in event handler",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	var frame inbound
	if err := sonic.Unmarshal(data, &frame); err != nil {
		logger.Debug("Dropping malformed frame", zap.Error(err))
		return
	}

	if err := h.dispatch(ctx, connID, c, frame); err != nil {
		switch {
		case errors.Is(err, poll.ErrNotLoggedIn), errors.Is(err, poll.ErrInvalidCredentials),
			errors.Is(err, poll.ErrSuperseded), errors.Is(err, ErrUnknownEvent):
			logger.Debug("Event rejected", zap.String("event", frame.Event), zap.Error(err))
		default:
			logger.Warn("Event failed", zap.String("event", frame.Event), zap.Error(err))
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, connID string, c *conn, frame inbound) error {
	switch frame.Event {
	case EventLink:
		return c.Emit(EventLoginURL, h.linker.LoginURL())

	case EventLogin:
		var req loginRequest
		if err := sonic.Unmarshal(frame.Data, &req); err != nil {
			return fmt.Errorf("invalid login payload: %w", err)
		}
		return h.registry.Login(ctx, connID, cookieValue(req.User), req.Hash)

	case EventMonitor:
		active, err := parseMonitor(frame.Data)
		if err != nil {
			return err
		}
		return h.registry.Monitor(ctx, connID, active)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

// cookieValue undoes the escaping applied when the login cookie was set.
// The dashboard reads document.cookie verbatim.
func cookieValue(v string) string {
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}

	return v
}

// parseMonitor accepts either {"active": bool} or a bare boolean.
func parseMonitor(data []byte) (bool, error) {
	var active bool
	if err := sonic.Unmarshal(data, &active); err == nil {
		return active, nil
	}

	var req monitorRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		return false, fmt.Errorf("invalid monitor payload: %w", err)
	}

	return req.Active, nil
}
