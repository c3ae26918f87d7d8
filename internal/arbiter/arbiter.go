// Package arbiter tracks every connected tab's player and elects the one
// whose state is pushed to adapters.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wnpbridge/internal/models"
)

const (
	DefaultInterval       = 250 * time.Millisecond
	DefaultGrace          = time.Second
	DefaultExecuteTimeout = 5 * time.Second
)

var (
	ErrTabClosed = errors.New("tab disconnected")
	ErrTimeout   = errors.New("tab did not answer")
)

// Sender delivers a frame to a tab.
type Sender interface {
	Send(msg models.PortMessage) error
}

// Sink receives the authoritative snapshot. info is nil when no tab has a
// player. Implementations must not block.
type Sink interface {
	SendUpdate(info *models.MediaInfo)
}

type channel struct {
	token  string
	seq    uint64
	sender Sender
	info   models.MediaInfo
	seen   bool // at least one update received
	evict  *time.Timer
}

type Arbiter struct {
	interval       time.Duration
	grace          time.Duration
	executeTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	channels map[string]*channel
	seq      uint64
	current  string
	sinks    []Sink

	dispatchMu sync.Mutex

	subMu       sync.Mutex
	subscribers map[chan *models.MediaInfo]struct{}

	pendMu  sync.Mutex
	pending map[string]chan models.PortMessage

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Arbiter)

func WithInterval(d time.Duration) Option {
	return func(a *Arbiter) { a.interval = d }
}

// WithGrace sets how long a dropped tab keeps its slot before eviction.
func WithGrace(d time.Duration) Option {
	return func(a *Arbiter) { a.grace = d }
}

func WithExecuteTimeout(d time.Duration) Option {
	return func(a *Arbiter) { a.executeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		interval:       DefaultInterval,
		grace:          DefaultGrace,
		executeTimeout: DefaultExecuteTimeout,
		now:            time.Now,
		channels:       make(map[string]*channel),
		subscribers:    make(map[chan *models.MediaInfo]struct{}),
		pending:        make(map[string]chan models.PortMessage),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arbiter) AddSink(s Sink) {
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	a.mu.Unlock()
}

// Open registers the tab behind token, or revives it if it is waiting out
// its grace period, and asks it for a full snapshot.
func (a *Arbiter) Open(token string, s Sender) {
	a.mu.Lock()
	ch, ok := a.channels[token]
	if ok {
		if ch.evict != nil {
			ch.evict.Stop()
			ch.evict = nil
		}
		ch.sender = s
	} else {
		a.seq++
		ch = &channel{token: token, seq: a.seq, sender: s, info: models.DefaultMediaInfo()}
		a.channels[token] = ch
	}
	a.elect()
	a.mu.Unlock()

	if err := s.Send(models.PortMessage{Event: models.PortGetMediaInfo}); err != nil {
		log.Printf("arbiter: requesting media info from %s: %v", token, err)
	}
	a.Dispatch()
}

// Receive handles one frame from the tab behind token.
func (a *Arbiter) Receive(token string, msg models.PortMessage) {
	switch msg.Event {
	case models.PortMediaInfo:
		u, err := models.DecodeMediaUpdate(msg.MediaInfo)
		if err != nil {
			log.Printf("arbiter: tab %s: %v", token, err)
			return
		}
		a.Update(token, u)
	case models.PortExecuteResult:
		a.pendMu.Lock()
		waiter, ok := a.pending[msg.ID]
		delete(a.pending, msg.ID)
		a.pendMu.Unlock()
		if ok {
			waiter <- msg
		}
	default:
		log.Printf("arbiter: tab %s: unknown event %q", token, msg.Event)
	}
}

// Update merges a partial update from the tab behind token and pushes the
// resulting authoritative snapshot.
func (a *Arbiter) Update(token string, u models.MediaUpdate) {
	a.mu.Lock()
	ch, ok := a.channels[token]
	if !ok {
		a.mu.Unlock()
		return
	}
	first := !ch.seen
	ch.seen = true
	changes := ch.info.Apply(u, a.now())
	if len(changes.Fields) == 0 && !first {
		a.mu.Unlock()
		return
	}
	if first || changes.Significant || (changes.Has(models.FieldPositionSeconds) && ch.info.Title != "") {
		a.elect()
	}
	a.mu.Unlock()

	a.Dispatch()
}

// Close starts the grace period for token. The tab is purged unless it
// reopens before the period ends.
func (a *Arbiter) Close(token string) {
	a.detach(token, nil)
}

// Detach is Close for a single connection: it does nothing when the tab has
// since reopened with a different sender.
func (a *Arbiter) Detach(token string, s Sender) {
	a.detach(token, s)
}

func (a *Arbiter) detach(token string, s Sender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[token]
	if !ok || ch.evict != nil {
		return
	}
	if s != nil && ch.sender != s {
		return
	}
	ch.sender = nil
	ch.evict = time.AfterFunc(a.grace, func() { a.evict(ch) })
}

func (a *Arbiter) evict(ch *channel) {
	a.mu.Lock()
	if cur, ok := a.channels[ch.token]; !ok || cur != ch || ch.sender != nil {
		a.mu.Unlock()
		return
	}
	delete(a.channels, ch.token)
	a.elect()
	a.mu.Unlock()

	log.Printf("arbiter: evicted tab %s", ch.token)
	a.Dispatch()
}

// elect picks the authoritative tab: the most recently changed tab that is
// audible, otherwise the most recently changed tab. Caller holds a.mu.
func (a *Arbiter) elect() {
	candidates := make([]*channel, 0, len(a.channels))
	for _, ch := range a.channels {
		if ch.seen {
			candidates = append(candidates, ch)
		}
	}
	if len(candidates) == 0 {
		a.current = ""
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].info.Timestamp, candidates[j].info.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return candidates[i].seq > candidates[j].seq
	})
	for _, ch := range candidates {
		if ch.info.Audible() {
			a.current = ch.token
			return
		}
	}
	a.current = candidates[0].token
}

// Current returns the authoritative snapshot, or false when no tab has a
// player.
func (a *Arbiter) Current() (models.MediaInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[a.current]
	if !ok {
		return models.DefaultMediaInfo(), false
	}
	return ch.info, true
}

// Tabs lists every tracked tab, newest first.
func (a *Arbiter) Tabs() []models.TabInfo {
	a.mu.Lock()
	chans := make([]*channel, 0, len(a.channels))
	for _, ch := range a.channels {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i].seq > chans[j].seq })
	out := make([]models.TabInfo, 0, len(chans))
	for _, ch := range chans {
		out = append(out, models.TabInfo{
			Token:         ch.token,
			Connected:     ch.sender != nil,
			Authoritative: ch.token == a.current,
			Info:          ch.info,
		})
	}
	a.mu.Unlock()
	return out
}

// Dispatch pushes the authoritative snapshot to every sink and subscriber.
func (a *Arbiter) Dispatch() {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()

	a.mu.Lock()
	var snap *models.MediaInfo
	if ch, ok := a.channels[a.current]; ok {
		info := ch.info
		snap = &info
	}
	sinks := append([]Sink(nil), a.sinks...)
	a.mu.Unlock()

	for _, s := range sinks {
		s.SendUpdate(snap)
	}
	a.publish(snap)
}

// Execute forwards a primitive command to the authoritative tab and waits
// for its result.
func (a *Arbiter) Execute(ctx context.Context, cmd models.Command) error {
	a.mu.Lock()
	ch, ok := a.channels[a.current]
	var sender Sender
	if ok {
		sender = ch.sender
	}
	a.mu.Unlock()
	if !ok {
		return models.ErrNoPlayer
	}
	if sender == nil {
		return ErrTabClosed
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	id := uuid.NewString()
	waiter := make(chan models.PortMessage, 1)
	a.pendMu.Lock()
	a.pending[id] = waiter
	a.pendMu.Unlock()
	defer func() {
		a.pendMu.Lock()
		delete(a.pending, id)
		a.pendMu.Unlock()
	}()

	req := models.PortMessage{
		Event:                 models.PortExecute,
		ID:                    id,
		CommunicationRevision: cmd.CommunicationRevision,
		MediaEventData:        data,
	}
	if err := sender.Send(req); err != nil {
		return fmt.Errorf("%w: %v", ErrTabClosed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.executeTimeout)
	defer cancel()
	select {
	case res := <-waiter:
		switch {
		case res.Unsupported:
			return fmt.Errorf("%s: %w", cmd.Action, models.ErrUnsupported)
		case res.Error != "":
			return fmt.Errorf("%s: %s", cmd.Action, res.Error)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", cmd.Action, ErrTimeout)
		}
		return ctx.Err()
	}
}

func (a *Arbiter) Subscribe() chan *models.MediaInfo {
	ch := make(chan *models.MediaInfo, 1)
	a.subMu.Lock()
	a.subscribers[ch] = struct{}{}
	a.subMu.Unlock()
	return ch
}

func (a *Arbiter) Unsubscribe(ch chan *models.MediaInfo) {
	a.subMu.Lock()
	_, exists := a.subscribers[ch]
	delete(a.subscribers, ch)
	a.subMu.Unlock()
	if exists {
		close(ch)
	}
}

func (a *Arbiter) publish(snap *models.MediaInfo) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Start runs the periodic dispatch until ctx is cancelled or Stop is called.
func (a *Arbiter) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)
		a.done = make(chan struct{})
		go a.run(ctx)
	})
}

func (a *Arbiter) Stop() {
	if a.cancel != nil && a.done != nil {
		a.cancel()
		<-a.done
	}
}

func (a *Arbiter) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Dispatch()
		}
	}
}
