// Package adapter maintains the outbound WebSocket connection to every
// configured adapter and speaks each adapter's negotiated protocol revision.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wnpbridge/internal/models"
	"wnpbridge/internal/protocol"
	"wnpbridge/internal/version"
)

const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = time.Second
	writeTimeout            = time.Second
	commandTimeout          = 10 * time.Second
)

var errSocketClosed = errors.New("socket closed")

// Executor resolves adapter commands against the authoritative player.
type Executor interface {
	Current() (models.MediaInfo, bool)
	Execute(ctx context.Context, cmd models.Command) error
}

// reconnectDelay is the wait before reconnect attempt n (1-based).
func reconnectDelay(n int) time.Duration {
	if n <= 30 {
		return time.Second
	}
	exp := n - 30
	if exp >= 6 {
		return 60 * time.Second
	}
	return min(time.Duration(1<<exp)*time.Second, 60*time.Second)
}

// Socket is the connection to one adapter. It reconnects until Close.
type Socket struct {
	adapter          models.Adapter
	exec             Executor
	checker          *version.Checker
	results          func(models.EventResult)
	base             context.Context
	host             string
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	delay            func(attempt int) time.Duration

	mu       sync.Mutex
	state    models.ConnectionState
	conn     *websocket.Conn
	encoder  *protocol.Encoder
	revision models.Revision
	version  string
	outdated bool
	latest   string
	attempts int
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	// kick cuts a pending reconnect wait short.
	kick     chan struct{}

	writeMu sync.Mutex
	// lifeMu serializes Connect and Close.
	lifeMu sync.Mutex
}

type SocketOption func(*Socket)

// WithChecker enables the outdated check for adapters with a GitHub repo.
func WithChecker(c *version.Checker) SocketOption {
	return func(s *Socket) { s.checker = c }
}

// WithResultRouter sets where revision 3 command results are delivered.
func WithResultRouter(f func(models.EventResult)) SocketOption {
	return func(s *Socket) { s.results = f }
}

func WithContext(ctx context.Context) SocketOption {
	return func(s *Socket) { s.base = ctx }
}

func WithHost(host string) SocketOption {
	return func(s *Socket) { s.host = host }
}

func WithHandshakeTimeout(d time.Duration) SocketOption {
	return func(s *Socket) { s.handshakeTimeout = d }
}

func WithReconnectDelay(f func(attempt int) time.Duration) SocketOption {
	return func(s *Socket) { s.delay = f }
}

func NewSocket(a models.Adapter, exec Executor, opts ...SocketOption) *Socket {
	s := &Socket{
		adapter:          a,
		exec:             exec,
		base:             context.Background(),
		host:             "127.0.0.1",
		dialTimeout:      DefaultDialTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		delay:            reconnectDelay,
		state:            models.ConnClosed,
		closed:           true,
		kick:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Socket) Adapter() models.Adapter { return s.adapter }

// Connect clears the closed latch and starts connecting immediately. A
// running socket waiting out its reconnect delay retries right away; an open
// one is left alone.
func (s *Socket) Connect() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		if s.state == models.ConnClosed {
			select {
			case s.kick <- struct{}{}:
			default:
			}
		}
		return
	}
	s.closed = false
	s.attempts = 0
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Close latches the socket closed, cancelling any pending reconnect or dial,
// and waits for the connection loop to exit.
func (s *Socket) Close() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done, conn := s.cancel, s.done, s.conn
	s.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
}

func (s *Socket) Status() models.AdapterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.AdapterStatus{
		Adapter:           s.adapter,
		State:             s.state,
		Revision:          s.revision,
		Version:           s.version,
		LatestVersion:     s.latest,
		Outdated:          s.outdated,
		ReconnectAttempts: s.attempts,
		Closed:            s.closed,
	}
}

// SendUpdate writes the fields of info that changed since the last write on
// this connection. Nothing is sent before the revision is known.
func (s *Socket) SendUpdate(info *models.MediaInfo) {
	// Encoding and writing stay under writeMu so lines reach the wire in the
	// order the encoder cache recorded them.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if s.state != models.ConnOpenVersioned || s.encoder == nil {
		s.mu.Unlock()
		return
	}
	lines := s.encoder.Encode(info)
	conn := s.conn
	s.mu.Unlock()

	if err := s.writeLocked(conn, lines...); err != nil {
		log.Printf("adapter %s: write: %v", s.adapter.Name, err)
	}
}

// SendResult acknowledges a revision 3 command.
func (s *Socket) SendResult(r models.EventResult) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if err := s.writeLines(conn, protocol.EventResultLine(r.EventID, r.Success)); err != nil {
		log.Printf("adapter %s: event result: %v", s.adapter.Name, err)
	}
}

func (s *Socket) writeLines(conn *websocket.Conn, lines ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(conn, lines...)
}

// writeLocked writes lines in order. Caller holds s.writeMu.
func (s *Socket) writeLocked(conn *websocket.Conn, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	if conn == nil {
		return errSocketClosed
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	for _, line := range lines {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Socket) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := s.session(ctx)
		s.mu.Lock()
		s.state = models.ConnClosed
		s.conn = nil
		s.encoder = nil
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("adapter %s: %v", s.adapter.Name, err)
		}

		s.mu.Lock()
		s.attempts++
		wait := s.delay(s.attempts)
		s.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.kick:
			timer.Stop()
			s.mu.Lock()
			s.attempts = 0
			s.mu.Unlock()
		case <-timer.C:
		}
	}
}

func (s *Socket) url() string {
	return "ws://" + net.JoinHostPort(s.host, strconv.Itoa(s.adapter.Port))
}

func (s *Socket) session(ctx context.Context) error {
	s.mu.Lock()
	s.state = models.ConnConnecting
	s.mu.Unlock()
	select {
	case <-s.kick:
	default:
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	dialer := websocket.Dialer{HandshakeTimeout: s.dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, s.url(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.state = models.ConnOpenUnversioned
	s.conn = conn
	s.attempts = 0
	s.revision = models.RevisionUnknown
	s.version = ""
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frames := make(chan string, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- string(msg):
			case <-ctx.Done():
				return
			}
		}
	}()

	var hs protocol.Handshake
	var pending string
	timer := time.NewTimer(s.handshakeTimeout)
	select {
	case f := <-frames:
		timer.Stop()
		hs = protocol.ParseHandshake(f)
		if !hs.Consumed {
			pending = f
		}
	case <-timer.C:
		hs = protocol.LegacyHandshake()
	case err := <-readErr:
		timer.Stop()
		return err
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
	s.negotiated(ctx, hs)

	var seq int64
	if pending != "" {
		seq++
		s.handleFrame(ctx, seq, pending)
	}
	for {
		select {
		case f := <-frames:
			seq++
			s.handleFrame(ctx, seq, f)
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// negotiated records the revision and sends the full current snapshot.
func (s *Socket) negotiated(ctx context.Context, hs protocol.Handshake) {
	enc := protocol.NewEncoder(hs.Revision)
	s.writeMu.Lock()
	info, ok := s.exec.Current()
	var snap *models.MediaInfo
	if ok {
		snap = &info
	}

	s.mu.Lock()
	s.revision = hs.Revision
	s.version = hs.Version
	s.outdated = hs.Outdated
	s.encoder = enc
	s.state = models.ConnOpenVersioned
	lines := enc.Encode(snap)
	conn := s.conn
	s.mu.Unlock()

	err := s.writeLocked(conn, lines...)
	s.writeMu.Unlock()
	log.Printf("adapter %s: connected (revision %s, version %q)", s.adapter.Name, hs.Revision, hs.Version)
	if err != nil {
		log.Printf("adapter %s: initial snapshot: %v", s.adapter.Name, err)
	}

	if s.checker != nil && s.adapter.GitHubRepo != "" && hs.Version != "" && !hs.Outdated {
		go s.checkVersion(ctx, hs.Version)
	}
}

func (s *Socket) checkVersion(ctx context.Context, current string) {
	outdated, rel, err := s.checker.Outdated(ctx, s.adapter.GitHubRepo, current)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.outdated = outdated
	s.latest = rel.Latest
	s.mu.Unlock()
	if outdated {
		log.Printf("adapter %s: version %s is outdated (latest %s)", s.adapter.Name, current, rel.Latest)
	}
}

// handleFrame decodes and runs one adapter command. seq is the frame's
// position on this connection and doubles as the revision 3 event id.
func (s *Socket) handleFrame(ctx context.Context, seq int64, frame string) {
	s.mu.Lock()
	rev := s.revision
	s.mu.Unlock()

	cmd, ok := protocol.Decode(rev, frame)
	if !ok {
		return
	}
	cmd.CommunicationRevision = rev
	if rev == models.Revision3 {
		cmd.EventID = seq
		cmd.EventSocketPort = s.adapter.Port
	}

	err := s.run(ctx, cmd)
	if rev != models.Revision3 {
		if err != nil {
			log.Printf("adapter %s: %s: %v", s.adapter.Name, cmd.Action, err)
		}
		return
	}

	res := models.EventResult{EventID: cmd.EventID, EventSocketPort: cmd.EventSocketPort, Success: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	if s.results != nil {
		s.results(res)
	} else {
		s.SendResult(res)
	}
}

func (s *Socket) run(ctx context.Context, cmd models.Command) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return RunCommand(ctx, s.exec, cmd)
}

// RunCommand checks cmd against the authoritative player's capabilities and
// runs the primitive steps it resolves to, stopping at the first failure.
func RunCommand(ctx context.Context, exec Executor, cmd models.Command) error {
	info, ok := exec.Current()
	if !ok {
		return models.ErrNoPlayer
	}
	steps, err := protocol.Plan(cmd, info)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := exec.Execute(ctx, step); err != nil {
			return err
		}
	}
	return nil
}
