package bridge

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/deeplink"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/practice-sem-2/dm-service/internal/shell"
	"github.com/practice-sem-2/dm-service/internal/state"
	"github.com/practice-sem-2/dm-service/internal/unread"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16384
	sendBuffer     = 256
)

type Auth interface {
	SignIn(token string) (*models.Profile, error)
	SignOut()
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Server speaks the overlay protocol over websockets. It is the surface the
// shell renders into and the sink of the unread badge.
type Server struct {
	env      *controllers.Env
	page     *Page
	auth     Auth
	shell    *shell.Shell
	links    *deeplink.Handler
	logger   logrus.FieldLogger
	origins  []string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	badge   unread.Badge
}

func NewServer(env *controllers.Env, page *Page, auth Auth, origins []string, logger logrus.FieldLogger) *Server {
	s := &Server{
		env:     env,
		page:    page,
		auth:    auth,
		logger:  logger,
		origins: origins,
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Attach connects the server to the shell and link handler built on top of it.
func (s *Server) Attach(sh *shell.Shell, links *deeplink.Handler) {
	s.shell = sh
	s.links = links
}

// checkOrigin accepts listed origins. Without a list only requests that carry
// no Origin header, such as local tools, are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	normalized := strings.ToLower(u.Scheme + "://" + u.Host)

	for _, allowed := range s.origins {
		if strings.EqualFold(strings.TrimSpace(allowed), normalized) {
			return true
		}
	}
	return false
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warning("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.WithField("conn_id", c.id).Info("overlay connected")

	go s.writePump(c)
	s.sync(c)
	s.readPump(c)
}

// sync sends the current panel, view and badge to a fresh connection.
func (s *Server) sync(c *client) {
	s.mu.RLock()
	badge := s.badge
	s.mu.RUnlock()

	open := s.env.State.PanelOpen()
	for _, frame := range []Frame{
		{Type: FramePanel, Payload: map[string]bool{"open": open}},
		{Type: FrameIcon, Payload: map[string]bool{"filled": open}},
		{Type: FrameView, Payload: map[string]string{"view": s.env.State.View().String()}},
		{Type: FrameBadge, Payload: badge},
	} {
		s.sendTo(c, frame)
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		close(c.send)
		c.conn.Close()
		s.logger.WithField("conn_id", c.id).Info("overlay disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).WithField("conn_id", c.id).Warning("websocket read failed")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.logger.WithError(err).WithField("conn_id", c.id).Warning("malformed command")
			continue
		}

		if err := s.dispatch(cmd); err != nil {
			s.logger.WithError(err).WithField("command", cmd.Type).Warning("command failed")
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) encode(frame Frame) ([]byte, bool) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.WithError(err).WithField("frame", frame.Type).Error("can't encode frame")
		return nil, false
	}
	return data, true
}

func (s *Server) sendTo(c *client, frame Frame) {
	data, ok := s.encode(frame)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, live := s.clients[c.id]; live {
		s.enqueue(c, data)
	}
}

// enqueue must be called with s.mu held.
func (s *Server) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		s.logger.WithField("conn_id", c.id).Warning("send buffer full, dropping frame")
	}
}

func (s *Server) broadcast(frame Frame) {
	data, ok := s.encode(frame)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, data)
	}
}

func (s *Server) ShowView(v state.View) {
	s.broadcast(Frame{Type: FrameView, Payload: map[string]string{"view": v.String()}})
}

func (s *Server) ShowPanel(open bool) {
	s.broadcast(Frame{Type: FramePanel, Payload: map[string]bool{"open": open}})
}

func (s *Server) ShowIcon(filled bool) {
	s.broadcast(Frame{Type: FrameIcon, Payload: map[string]bool{"filled": filled}})
}

func (s *Server) ShowBadge(badge unread.Badge) {
	s.mu.Lock()
	s.badge = badge
	s.mu.Unlock()
	s.broadcast(Frame{Type: FrameBadge, Payload: badge})
}

func (s *Server) ShowAlert(message string) {
	s.broadcast(Frame{Type: FrameAlert, Payload: messagePayload{Message: message}})
}

func (s *Server) ChatView() controllers.ChatView         { return &view{server: s} }
func (s *Server) DialogsView() controllers.DialogsView   { return &view{server: s} }
func (s *Server) GroupView() controllers.GroupView       { return &view{server: s} }
func (s *Server) SettingsView() controllers.SettingsView { return &view{server: s} }
