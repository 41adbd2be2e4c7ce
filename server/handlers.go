package server

import (
	"edgeblog/db"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The page and the channel share an origin; tests dial from
		// arbitrary hosts.
		return true
	},
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false})
	}
	if creds.Username == "" || creds.Email == "" || creds.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false})
	}

	id, err := s.db.CreateUser(creds.Username, creds.Email, creds.Password)
	if err != nil {
		s.log.Warn("register failed", zap.String("email", creds.Email), zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{"success": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "id": id})
}

// handleLogin issues the session cookie and the page's anti-forgery
// token. The token stands in for the <meta name="csrf-token"> tag the
// rendered page would carry.
func (s *Server) handleLogin(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false})
	}

	user, err := s.db.Authenticate(creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) || errors.Is(err, db.ErrInvalidPassword) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false})
		}
		s.log.Error("login failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	}

	sess := &session{
		userID:   user.ID,
		username: user.Username,
		csrf:     uuid.NewString(),
		created:  time.Now(),
	}
	token := uuid.NewString()
	s.addSession(token, sess)

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"id":         user.ID,
		"csrf_token": sess.csrf,
	})
}

func (s *Server) handleFollow(c echo.Context) error {
	return s.handleFollowAction(c, true)
}

func (s *Server) handleUnfollow(c echo.Context) error {
	return s.handleFollowAction(c, false)
}

func (s *Server) handleFollowAction(c echo.Context, follow bool) error {
	sess, err := s.authorize(c)
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"success": false})
	}

	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false})
	}

	// You cannot follow yourself.
	if targetID == sess.userID {
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}

	if _, err := s.db.GetUser(targetID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"success": false})
		}
		s.log.Error("follow lookup failed", zap.Int64("target", targetID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	}

	if follow {
		err = s.db.Follow(sess.userID, targetID)
	} else {
		err = s.db.Unfollow(sess.userID, targetID)
	}
	if err != nil {
		s.log.Error("follow update failed",
			zap.Int64("user", sess.userID),
			zap.Int64("target", targetID),
			zap.Bool("follow", follow),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (s *Server) handleLike(c echo.Context) error {
	return s.handleReaction(c, true)
}

func (s *Server) handleDislike(c echo.Context) error {
	return s.handleReaction(c, false)
}

func (s *Server) handleReaction(c echo.Context, like bool) error {
	if _, err := s.authorize(c); err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"success": false})
	}

	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false})
	}

	var count int64
	if like {
		count, err = s.db.LikePost(postID)
	} else {
		count, err = s.db.DislikePost(postID)
	}
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"success": false})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	}

	if like {
		return c.JSON(http.StatusOK, echo.Map{"likes": count})
	}
	return c.JSON(http.StatusOK, echo.Map{"dislikes": count})
}

// handleContact accepts the form-encoded contact submission. Invalid
// input reports success=false rather than an error page; the page
// turns the flag into a toast.
func (s *Server) handleContact(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	email := strings.TrimSpace(c.FormValue("email"))
	message := strings.TrimSpace(c.FormValue("message"))

	if name == "" || email == "" || message == "" || !strings.Contains(email, "@") {
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}

	if _, err := s.db.SaveContactMessage(name, email, message); err != nil {
		s.log.Error("contact save failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// handleChat upgrades the request and parks the connection in the hub
// until the peer goes away.
func (s *Server) handleChat(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan []byte, 16),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		ws.Close()
		return nil
	}

	go client.writePump(s.cfg.WriteTimeout)
	client.readPump(s.hub)
	return nil
}
