package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds the blog server configuration.
type Server struct {
	Port         int           `env:"EDGEBLOG_PORT" envDefault:"8080"`
	DBPath       string        `env:"EDGEBLOG_DB_PATH" envDefault:"edgeblog.db"`
	ReadTimeout  time.Duration `env:"EDGEBLOG_READ_TIMEOUT" envDefault:"2m"`
	WriteTimeout time.Duration `env:"EDGEBLOG_WRITE_TIMEOUT" envDefault:"30s"`
	Debug        bool          `env:"EDGEBLOG_DEBUG" envDefault:"false"`
}

// Client holds the interaction-layer configuration: where the page
// lives and how patient the client side is with the network.
type Client struct {
	// BaseURL is the page origin. The chat endpoint is derived from it
	// (http -> ws, https -> wss, same host and port).
	BaseURL string `env:"EDGEBLOG_BASE_URL" envDefault:"http://localhost:8080"`

	DialTimeout    time.Duration `env:"EDGEBLOG_DIAL_TIMEOUT" envDefault:"10s"`
	RequestTimeout time.Duration `env:"EDGEBLOG_REQUEST_TIMEOUT" envDefault:"10s"`

	// Reconnect schedule for the chat channel.
	ReconnectInitial time.Duration `env:"EDGEBLOG_RECONNECT_INITIAL" envDefault:"500ms"`
	ReconnectMax     time.Duration `env:"EDGEBLOG_RECONNECT_MAX" envDefault:"30s"`
	ReconnectTries   uint          `env:"EDGEBLOG_RECONNECT_TRIES" envDefault:"10"`
}

func LoadServer() (*Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse server env: %w", err)
	}
	return &cfg, nil
}

func LoadClient() (*Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	return &cfg, nil
}
