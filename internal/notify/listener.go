// Package notify keeps a websocket open to the file host and forwards the
// events it pushes onto the local bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"parcel/internal/event"
)

const (
	DefaultPath         = "/api/ws"
	DefaultPingInterval = 30 * time.Second
)

// Message is one frame pushed by the host.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Publisher interface {
	PublishRemote(event.RemoteEvent)
}

type Listener struct {
	url          string
	token        string
	bus          Publisher
	logger       *zap.Logger
	pingInterval time.Duration
	newBackOff   func() backoff.BackOff
}

type Option func(*Listener)

func WithPingInterval(d time.Duration) Option {
	return func(l *Listener) {
		l.pingInterval = d
	}
}

// WithBackOff sets the reconnect policy. It is asked for a fresh BackOff
// once per Listen call.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(l *Listener) {
		l.newBackOff = fn
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// WSURL turns the host's http(s) address into its websocket endpoint.
func WSURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + DefaultPath
	return u.String(), nil
}

func NewListener(server, token string, bus Publisher, l *zap.Logger, opts ...Option) (*Listener, error) {
	wsURL, err := WSURL(server)
	if err != nil {
		return nil, err
	}
	ln := &Listener{
		url:          wsURL,
		token:        token,
		bus:          bus,
		logger:       l.With(zap.String("component", "notify")),
		pingInterval: DefaultPingInterval,
		newBackOff:   defaultBackOff,
	}
	for _, opt := range opts {
		opt(ln)
	}
	return ln, nil
}

// Listen stays connected until ctx ends, reconnecting with backoff after
// every failure.
func (l *Listener) Listen(ctx context.Context) error {
	b := backoff.WithContext(l.newBackOff(), ctx)
	for {
		connected, err := l.connectAndListen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("event stream: giving up: %w", err)
		}
		l.logger.Warn("event stream lost, reconnecting", zap.Error(err), zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Listener) connectAndListen(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if l.token != "" {
		opts.HTTPHeader.Set("Authorization", l.token)
	}
	conn, _, err := websocket.Dial(ctx, l.url, opts)
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info("connected to event stream", zap.String("url", l.url))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.keepAlive(ctx, conn)

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return true, err
		}
		if msg.Type == "" {
			continue
		}
		l.logger.Debug("remote event", zap.String("type", msg.Type))
		l.bus.PublishRemote(event.RemoteEvent{Type: msg.Type, Data: msg.Data})
	}
}

// keepAlive pings the host; a missed pong tears the connection down so
// Listen reconnects.
func (l *Listener) keepAlive(ctx context.Context, conn *websocket.Conn) {
	if l.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				l.logger.Debug("ping failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
