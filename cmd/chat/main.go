// Command chat is a terminal stand-in for the blog page: it logs in,
// opens the chat channel, and drives the follow toggles from slash
// commands.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"

	"edgeblog/client/channel"
	"edgeblog/client/chat"
	"edgeblog/client/toggle"
	"edgeblog/config"
	"edgeblog/models"

	"go.uber.org/zap"
)

type consoleView struct{}

func (consoleView) AppendMessage(msg models.ChatMessage) {
	fmt.Printf("< %s\n", msg.Text)
}

func (consoleView) ClearInput() {}

type consoleToggleView struct {
	targetID string
}

func (v consoleToggleView) Apply(state toggle.State) {
	label := "Follow"
	if state == toggle.Following {
		label = "Unfollow"
	}
	fmt.Printf("[user %s] button now shows %q\n", v.targetID, label)
}

func main() {
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	username := flag.String("username", "", "register a new account with this name first")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	jar, _ := cookiejar.New(nil)
	httpClient := &http.Client{Jar: jar, Timeout: cfg.RequestTimeout}

	if *username != "" {
		if err := post(httpClient, cfg.BaseURL+"/register", map[string]string{
			"username": *username, "email": *email, "password": *password,
		}, nil); err != nil {
			fmt.Fprintln(os.Stderr, "register:", err)
			os.Exit(1)
		}
	}

	var login struct {
		Success   bool   `json:"success"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := post(httpClient, cfg.BaseURL+"/login", map[string]string{
		"email": *email, "password": *password,
	}, &login); err != nil || !login.Success {
		fmt.Fprintln(os.Stderr, "login failed")
		os.Exit(1)
	}

	endpoint, err := channel.Endpoint(cfg.BaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mgr := channel.NewManager(endpoint, channel.Config{
		DialTimeout:      cfg.DialTimeout,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
		ReconnectTries:   cfg.ReconnectTries,
		Logger:           logger,
	})
	defer mgr.Close()

	session := chat.NewSession(mgr, consoleView{}, logger)

	if err := mgr.Dial(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "chat channel:", err)
		os.Exit(1)
	}

	toggleCfg := toggle.Config{
		BaseURL:        cfg.BaseURL,
		Token:          login.CSRFToken,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	controllers := make(map[string]*toggle.Controller)

	fmt.Println("connected; type a message, /toggle <user-id>, or /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/toggle "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/toggle "))
			if id == "" {
				continue
			}
			ctl, ok := controllers[id]
			if !ok {
				ctl = toggle.NewController(id, toggle.NotFollowing,
					consoleToggleView{targetID: id}, toggleCfg)
				controllers[id] = ctl
			}
			ctl.Click(context.Background())
		default:
			session.Submit(line)
		}
	}
}

func post(client *http.Client, url string, payload map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
