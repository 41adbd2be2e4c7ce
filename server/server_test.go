package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"edgeblog/config"
	"edgeblog/db"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestServer starts the full server in-process behind an
// httptest listener.
func setupTestServer(t *testing.T) (*Server, *httptest.Server, *db.DB) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "edgeblog-test-*.db")
	require.NoError(t, err)
	tmpfile.Close()
	os.Remove(tmpfile.Name())

	database, err := db.New(tmpfile.Name())
	require.NoError(t, err)

	cfg := &config.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	srv := New(database, cfg, zap.NewNop())
	srv.RunHub()

	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		database.Close()
		os.Remove(tmpfile.Name())
	})
	return srv, ts, database
}

func postJSON(t *testing.T, client *http.Client, url string, payload map[string]string, out any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// registerAndLogin creates an account and returns a cookie-carrying
// client plus the CSRF token its page would have been served.
func registerAndLogin(t *testing.T, ts *httptest.Server, username, email string) (*http.Client, string, int64) {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	var reg struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}
	postJSON(t, client, ts.URL+"/register", map[string]string{
		"username": username, "email": email, "password": "secret123",
	}, &reg)
	require.True(t, reg.Success)

	var login struct {
		Success   bool   `json:"success"`
		CSRFToken string `json:"csrf_token"`
	}
	postJSON(t, client, ts.URL+"/login", map[string]string{
		"email": email, "password": "secret123",
	}, &login)
	require.True(t, login.Success)
	require.NotEmpty(t, login.CSRFToken)

	return client, login.CSRFToken, reg.ID
}

func doToggle(t *testing.T, client *http.Client, url, csrf string) (int, bool) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if csrf != "" {
		req.Header.Set("X-CSRFToken", csrf)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body.Success
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	client := &http.Client{}
	postJSON(t, client, ts.URL+"/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "secret123",
	}, nil)

	var login struct {
		Success bool `json:"success"`
	}
	resp := postJSON(t, client, ts.URL+"/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, &login)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, login.Success)
}

func TestFollowRequiresSessionAndToken(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	// No session at all.
	status, success := doToggle(t, &http.Client{}, ts.URL+"/follow/1", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, success)

	// Session but wrong anti-forgery token.
	client, _, _ := registerAndLogin(t, ts, "alice", "alice@example.com")
	status, success = doToggle(t, client, ts.URL+"/follow/1", "bogus")
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, success)
}

func TestFollowUnfollow(t *testing.T) {
	_, ts, database := setupTestServer(t)

	aliceClient, aliceCSRF, aliceID := registerAndLogin(t, ts, "alice", "alice@example.com")
	_, _, bobID := registerAndLogin(t, ts, "bob", "bob@example.com")

	status, success := doToggle(t, aliceClient, ts.URL+"/follow/"+itoa(bobID), aliceCSRF)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, success)

	following, err := database.IsFollowing(aliceID, bobID)
	require.NoError(t, err)
	assert.True(t, following)

	status, success = doToggle(t, aliceClient, ts.URL+"/unfollow/"+itoa(bobID), aliceCSRF)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, success)

	following, err = database.IsFollowing(aliceID, bobID)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestFollowSelfRejected(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	client, csrf, id := registerAndLogin(t, ts, "alice", "alice@example.com")

	status, success := doToggle(t, client, ts.URL+"/follow/"+itoa(id), csrf)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, success)
}

func TestFollowUnknownTarget(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	client, csrf, _ := registerAndLogin(t, ts, "alice", "alice@example.com")

	status, success := doToggle(t, client, ts.URL+"/follow/424242", csrf)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, success)
}

func TestReactions(t *testing.T) {
	_, ts, database := setupTestServer(t)

	client, csrf, _ := registerAndLogin(t, ts, "alice", "alice@example.com")
	postID, err := database.CreatePost("hello world")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/like/"+itoa(postID), nil)
	require.NoError(t, err)
	req.Header.Set("X-CSRFToken", csrf)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Likes int64 `json:"likes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), body.Likes)
}

func TestContactForm(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	form := url.Values{
		"name":    {"carol"},
		"email":   {"carol@example.com"},
		"message": {"nice blog"},
	}
	resp, err := http.PostForm(ts.URL+"/contact", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)

	// Missing fields report success=false, not an error page.
	resp, err = http.PostForm(ts.URL+"/contact", url.Values{"name": {"carol"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
}

// dialChat opens a raw websocket onto the test server's chat channel.
func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	alice := dialChat(t, ts)
	bob := dialChat(t, ts)

	// Registration happens on the hub loop after the handshake; give
	// both clients a moment to land before broadcasting.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("hello")))

	for _, conn := range []*websocket.Conn{alice, bob} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}
}

func TestChatBroadcastOrder(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	alice := dialChat(t, ts)
	bob := dialChat(t, ts)

	time.Sleep(100 * time.Millisecond)

	frames := []string{"one", "two", "three", "four", "five"}
	for _, frame := range frames {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	bob.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range frames {
		_, data, err := bob.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
