// Package toggle implements the optimistic follow/unfollow control:
// flip the visual state on click, confirm with the server, roll back
// if the server disagrees.
package toggle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the two stable visual states of a control.
type State string

const (
	Following    State = "following"
	NotFollowing State = "not-following"
)

func (s State) String() string {
	return string(s)
}

func (s State) toggle() State {
	if s == Following {
		return NotFollowing
	}
	return Following
}

// action names the request path segment for a transition out of the
// given state, mirroring the follow/unfollow class on the element.
func (s State) action() string {
	if s == Following {
		return "unfollow"
	}
	return "follow"
}

// View renders one control: label text plus class swap, applied as a
// unit.
type View interface {
	Apply(state State)
}

// Config is shared by every controller built for a page.
type Config struct {
	BaseURL string
	// Token is the anti-forgery token, read once from page metadata at
	// bind time and attached to every request.
	Token          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Controller drives a single two-state toggle. At most one request is
// in flight at a time; clicks while pending are ignored.
type Controller struct {
	targetID string
	view     View
	cfg      Config
	log      *zap.Logger

	mu      sync.Mutex
	state   State
	pending bool
}

func NewController(targetID string, initial State, view View, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{
		targetID: targetID,
		view:     view,
		cfg:      cfg,
		log:      cfg.Logger,
		state:    initial,
	}
}

// State reports the current visual state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Click performs one transition: the view is updated to the next
// state before any network traffic (the optimistic step), then the
// server call commits or rolls it back. The call blocks until the
// request resolves or times out; a click arriving while a request is
// pending returns immediately without issuing a second call.
func (c *Controller) Click(ctx context.Context) {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return
	}
	prev := c.state
	next := prev.toggle()
	c.pending = true
	c.state = next
	c.mu.Unlock()

	c.view.Apply(next)

	ok := c.request(ctx, prev.action())

	c.mu.Lock()
	c.pending = false
	if !ok {
		c.state = prev
	}
	c.mu.Unlock()

	if !ok {
		// Failure is surfaced only as the reverted visual state.
		c.view.Apply(prev)
		c.log.Debug("toggle rolled back",
			zap.String("target", c.targetID),
			zap.Stringer("state", prev))
	}
}

// request issues exactly one POST /{action}/{targetId} and reports
// whether the server committed it. Transport errors, non-2xx statuses,
// malformed bodies, timeouts and success=false all count as failure.
func (c *Controller) request(ctx context.Context, action string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, action, c.targetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", c.cfg.Token)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.log.Debug("toggle request failed", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Success
}
