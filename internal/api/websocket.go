package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"parcel/internal/event"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type WSHandler struct {
	bus    *event.Bus
	logger *zap.Logger
	// Origins accepted besides the request host, e.g. "localhost:5173".
	origins []string
}

func NewWSHandler(bus *event.Bus, l *zap.Logger, origins ...string) *WSHandler {
	return &WSHandler{
		bus:     bus,
		logger:  l.With(zap.String("component", "ws")),
		origins: origins,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("failed to accept connection", zap.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "closing")

	// Clients only listen; reading keeps control frames flowing.
	ctx := c.CloseRead(r.Context())
	events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(events)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Debug("dropping unencodable event", zap.String("type", string(ev.Type)), zap.Error(err))
				continue
			}

			ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = c.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
