package server

import (
	"context"
	"edgeblog/config"
	"edgeblog/db"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const sessionCookie = "edgeblog_session"

// Server is the blog backend: the HTTP surface the page posts to and
// the websocket chat channel it keeps open.
type Server struct {
	db   *db.DB
	cfg  *config.Server
	log  *zap.Logger
	echo *echo.Echo
	hub  *hub

	mu       sync.RWMutex
	sessions map[string]*session
}

// session ties a cookie value to a logged-in user and the CSRF token
// issued to that user's page.
type session struct {
	userID   int64
	username string
	csrf     string
	created  time.Time
}

func New(database *db.DB, cfg *config.Server, log *zap.Logger) *Server {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		db:       database,
		cfg:      cfg,
		log:      log,
		hub:      newHub(log),
		sessions: make(map[string]*session),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/register", s.handleRegister)
	e.POST("/login", s.handleLogin)
	e.POST("/follow/:id", s.handleFollow)
	e.POST("/unfollow/:id", s.handleUnfollow)
	e.POST("/like/:id", s.handleLike)
	e.POST("/dislike/:id", s.handleDislike)
	e.POST("/contact", s.handleContact)
	e.GET("/ws", s.handleChat)

	s.echo = e
	return s
}

// Start runs the hub loop and the HTTP listener. It blocks until the
// listener stops.
func (s *Server) Start() error {
	go s.hub.run()
	s.log.Info("edgeblog server starting", zap.Int("port", s.cfg.Port))
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routes for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// RunHub starts only the broadcast loop; used together with Handler
// when the listener is owned by the test harness.
func (s *Server) RunHub() {
	go s.hub.run()
}

func (s *Server) addSession(token string, sess *session) {
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
}

func (s *Server) getSession(token string) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	return sess, ok
}

// authorize resolves the request's session cookie and enforces the
// anti-forgery header on state-changing calls.
func (s *Server) authorize(c echo.Context) (*session, error) {
	cookie, err := c.Cookie(sessionCookie)
	if err != nil {
		return nil, fmt.Errorf("missing session cookie")
	}
	sess, ok := s.getSession(cookie.Value)
	if !ok {
		return nil, fmt.Errorf("unknown session")
	}
	if token := c.Request().Header.Get("X-CSRFToken"); token != sess.csrf {
		return nil, fmt.Errorf("csrf token mismatch")
	}
	return sess, nil
}
