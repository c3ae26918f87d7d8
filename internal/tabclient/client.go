// Package tabclient is the tab side of a tab port: it reports one site's
// player to the bridge and runs the commands the bridge sends back.
package tabclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wnpbridge/internal/models"
	"wnpbridge/internal/sites"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultRetry        = time.Second
	writeTimeout        = time.Second
)

// Player is what the client reports and controls.
type Player interface {
	GetPlayer(ctx context.Context) (models.MediaUpdate, bool)
	Execute(ctx context.Context, cmd models.Command) error
}

var _ Player = (*sites.Aggregator)(nil)

type Client struct {
	baseURL string
	token   string
	player  Player
	poll    time.Duration
	retry   time.Duration
	dialer  *websocket.Dialer

	mu   sync.Mutex
	sent models.MediaInfo
	// primed is set once a full snapshot went out on the current connection.
	primed bool

	reportMu sync.Mutex
	writeMu  sync.Mutex
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.poll = d }
}

func WithRetry(d time.Duration) Option {
	return func(c *Client) { c.retry = d }
}

// WithToken overrides the random channel token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the bridge at baseURL (http or ws scheme).
func New(baseURL string, p Player, opts ...Option) *Client {
	u := strings.TrimSuffix(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	c := &Client{
		baseURL: u,
		token:   uuid.NewString(),
		player:  p,
		poll:    DefaultPollInterval,
		retry:   DefaultRetry,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Token() string { return c.token }

// Run keeps the port open until ctx is cancelled, reconnecting after drops.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("tab %s: %v", c.token, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.baseURL+"/ws/tab/"+c.token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.mu.Lock()
	c.sent = models.DefaultMediaInfo()
	c.primed = false
	c.mu.Unlock()

	readErr := make(chan error, 1)
	refresh := make(chan struct{}, 1)
	go func() {
		for {
			var msg models.PortMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			c.handle(ctx, conn, msg, refresh)
		}
	}()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return err
		case <-ticker.C:
			c.report(ctx, conn, false)
		case <-refresh:
			c.report(ctx, conn, false)
		}
	}
}

func (c *Client) handle(ctx context.Context, conn *websocket.Conn, msg models.PortMessage, refresh chan<- struct{}) {
	switch msg.Event {
	case models.PortGetMediaInfo:
		c.report(ctx, conn, true)
	case models.PortExecute:
		res := models.PortMessage{Event: models.PortExecuteResult, ID: msg.ID}
		var cmd models.Command
		if err := json.Unmarshal(msg.MediaEventData, &cmd); err != nil {
			res.Error = "malformed command"
		} else if err := c.player.Execute(ctx, cmd); err != nil {
			res.Error = err.Error()
			res.Unsupported = errors.Is(err, models.ErrUnsupported)
		}
		if err := c.write(conn, res); err != nil {
			log.Printf("tab %s: result: %v", c.token, err)
		}
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
}

// report sends the player's fields that changed since the last report, or
// every field when full is set.
func (c *Client) report(ctx context.Context, conn *websocket.Conn, full bool) {
	c.reportMu.Lock()
	defer c.reportMu.Unlock()
	u, ok := c.player.GetPlayer(ctx)
	if !ok {
		return
	}

	c.mu.Lock()
	next := c.sent
	changes := next.Apply(u, time.Now())
	delta := u
	if !full && c.primed {
		delta = u.Select(changes.Fields)
	}
	c.sent = next
	c.primed = true
	c.mu.Unlock()

	if delta.Empty() {
		return
	}
	data, err := json.Marshal(delta)
	if err != nil {
		log.Printf("tab %s: encoding update: %v", c.token, err)
		return
	}
	if err := c.write(conn, models.PortMessage{Event: models.PortMediaInfo, MediaInfo: data}); err != nil {
		log.Printf("tab %s: update: %v", c.token, err)
	}
}

func (c *Client) write(conn *websocket.Conn, msg models.PortMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}
