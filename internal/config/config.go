package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 3 * time.Second
	DefaultTypingExpiry      = 3 * time.Second
	DefaultTypingStopDelay   = 2 * time.Second
)

type Config struct {
	ServerURL         string
	Token             string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	TypingExpiry      time.Duration
	TypingStopDelay   time.Duration
}

func validateServerURL(serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("server url has no host")
	}

	return nil
}

func NewConfig(serverURL, token string) (*Config, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server url cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	if err := validateServerURL(serverURL); err != nil {
		return nil, err
	}

	return &Config{
		ServerURL:         serverURL,
		Token:             token,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		TypingExpiry:      DefaultTypingExpiry,
		TypingStopDelay:   DefaultTypingStopDelay,
	}, nil
}
