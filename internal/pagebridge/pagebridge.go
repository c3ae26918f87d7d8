// Package pagebridge is a request/response RPC between the content-script
// realm and the page realm, which can only exchange structured messages.
package pagebridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeRequest  = "wnp-message"
	TypeResponse = "wnp-response"
)

const DefaultTimeout = 2 * time.Second

var (
	ErrTimeout = errors.New("page call timed out")
	ErrClosed  = errors.New("page bridge closed")
)

// Message is the envelope exchanged between the two realms.
type Message struct {
	Type        string            `json:"type"`
	MessageID   string            `json:"messageId"`
	SiteName    string            `json:"siteName,omitempty"`
	Func        string            `json:"func,omitempty"`
	Args        []json.RawMessage `json:"args,omitempty"`
	ReturnValue json.RawMessage   `json:"returnValue,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Poster delivers a message to the other realm.
type Poster interface {
	Post(ctx context.Context, m Message) error
}

type PosterFunc func(ctx context.Context, m Message) error

func (f PosterFunc) Post(ctx context.Context, m Message) error { return f(ctx, m) }

// RemoteError is a failure raised by the page-side function.
type RemoteError struct {
	Func    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("page %s: %s", e.Func, e.Message)
}

// Client issues calls into the page realm and matches responses to callers
// by messageId.
type Client struct {
	poster  Poster
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(p Poster, opts ...Option) *Client {
	c := &Client{
		poster:  p,
		timeout: DefaultTimeout,
		pending: make(map[string]chan Message),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call invokes fn of siteName in the page and returns its raw JSON result.
func (c *Client) Call(ctx context.Context, siteName, fn string, args ...any) (json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encoding %s args: %w", fn, err)
		}
		raw = append(raw, data)
	}

	id := uuid.NewString()
	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg := Message{Type: TypeRequest, MessageID: id, SiteName: siteName, Func: fn, Args: raw}
	if err := c.poster.Post(ctx, msg); err != nil {
		return nil, fmt.Errorf("posting %s: %w", fn, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.Error != "" {
			return nil, &RemoteError{Func: fn, Message: resp.Error}
		}
		return resp.ReturnValue, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s.%s: %w", siteName, fn, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// Handle routes a response from the page realm to its waiting caller.
// Unknown or late responses are dropped.
func (c *Client) Handle(m Message) {
	if m.Type != TypeResponse {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[m.MessageID]
	delete(c.pending, m.MessageID)
	c.mu.Unlock()
	if ok {
		ch <- m
	}
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every pending call and rejects new ones.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Handler runs a page-side function.
type Handler func(ctx context.Context, args []json.RawMessage) (any, error)

// Responder is the page-realm end: it holds the functions that reach
// site-internal player objects.
type Responder struct {
	poster Poster

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewResponder(p Poster) *Responder {
	return &Responder{poster: p, handlers: make(map[string]Handler)}
}

func (r *Responder) Register(siteName, fn string, h Handler) {
	r.mu.Lock()
	r.handlers[siteName+"."+fn] = h
	r.mu.Unlock()
}

// Handle executes one request and posts the correlated response.
func (r *Responder) Handle(ctx context.Context, m Message) {
	if m.Type != TypeRequest {
		return
	}
	resp := Message{Type: TypeResponse, MessageID: m.MessageID}

	r.mu.RLock()
	h, ok := r.handlers[m.SiteName+"."+m.Func]
	r.mu.RUnlock()

	if !ok {
		resp.Error = "unknown function " + m.SiteName + "." + m.Func
	} else if v, err := h(ctx, m.Args); err != nil {
		resp.Error = err.Error()
	} else if data, err := json.Marshal(v); err != nil {
		resp.Error = err.Error()
	} else {
		resp.ReturnValue = data
	}

	if err := r.poster.Post(ctx, resp); err != nil {
		log.Printf("pagebridge: posting response for %s: %v", m.Func, err)
	}
}

// Loopback wires a Client to r in-process, the way the content script and
// the injected page script talk inside one tab.
func Loopback(r *Responder, opts ...Option) *Client {
	var c *Client
	c = NewClient(PosterFunc(func(ctx context.Context, m Message) error {
		go r.Handle(context.WithoutCancel(ctx), m)
		return nil
	}), opts...)
	r.poster = PosterFunc(func(_ context.Context, m Message) error {
		c.Handle(m)
		return nil
	})
	return c
}
