package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wnpbridge/internal/models"
)

const (
	tabWriteTimeout = time.Second
	tabCloseWait    = time.Second
)

var tabUpgrader = websocket.Upgrader{CheckOrigin: tabOriginAllowed}

// tabOriginAllowed admits extension pages and pages served from loopback.
func tabOriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"chrome-extension://", "moz-extension://", "safari-web-extension://"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// tabPort is the arbiter's handle on one tab connection.
type tabPort struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *tabPort) Send(msg models.PortMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(tabWriteTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// expire sends a normal close frame and gives the tab a moment to answer it.
func (p *tabPort) expire() {
	p.writeMu.Lock()
	err := p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "lifetime reached"),
		time.Now().Add(tabWriteTimeout))
	p.writeMu.Unlock()
	if err != nil {
		p.conn.Close()
		return
	}
	p.conn.SetReadDeadline(time.Now().Add(tabCloseWait))
}

func (s *Server) handleTabSocket(w http.ResponseWriter, r *http.Request) {
	if s.arbiter == nil {
		writeError(w, http.StatusServiceUnavailable, "arbiter not configured")
		return
	}
	token := chi.URLParam(r, "token")
	if _, err := uuid.Parse(token); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tab token")
		return
	}

	conn, err := tabUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("tab %s: upgrade: %v", token, err)
		return
	}
	defer conn.Close()

	port := &tabPort{conn: conn}
	s.arbiter.Open(token, port)
	defer s.arbiter.Detach(token, port)

	lifetime := time.AfterFunc(s.tabLifetime, port.expire)
	defer lifetime.Stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) || (ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway) {
				log.Printf("tab %s: read: %v", token, err)
			}
			return
		}
		var msg models.PortMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("tab %s: invalid frame: %v", token, err)
			continue
		}
		s.arbiter.Receive(token, msg)
	}
}
