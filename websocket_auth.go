package main

import (
	"strings"
	"time"

	"driftpursuit/netplay/internal/auth"
	configpkg "driftpursuit/netplay/internal/config"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/transport"
)

const (
	joinTokenTTL    = time.Minute
	joinTokenLeeway = 2 * time.Second
	joinRateWindow  = time.Minute
)

// newWebSocketOptions maps cfg onto the transport options. A configured join
// secret makes hosts verify join tokens and clients mint them. Upgrades are
// rate limited per remote host before any token is checked.
func newWebSocketOptions(cfg *configpkg.Config, logger *logging.Logger) (transport.WebSocketOptions, error) {
	opts := transport.WebSocketOptions{
		Path:            cfg.WebSocketPath,
		PingInterval:    cfg.PingInterval,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		MaxClients:      cfg.MaxClients,
		DialTimeout:     cfg.DialTimeout,
		Logger:          logger,
	}
	if secret := strings.TrimSpace(cfg.JoinSecret); secret != "" {
		tokens, err := auth.NewJoinTokens(secret, joinTokenTTL, joinTokenLeeway)
		if err != nil {
			return transport.WebSocketOptions{}, err
		}
		subject := cfg.DisplayName
		opts.Authenticate = tokens.Authenticate(transport.JoinTokenHeader)
		opts.JoinToken = func() (string, error) { return tokens.Mint(subject) }
	}
	if cfg.JoinRateLimit > 0 {
		opts.Authenticate = auth.NewJoinLimiter(joinRateWindow, cfg.JoinRateLimit, nil).Guard(opts.Authenticate)
	}
	return opts, nil
}
