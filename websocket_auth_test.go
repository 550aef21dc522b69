package main

import (
	"errors"
	"net/http/httptest"
	"testing"

	"driftpursuit/netplay/internal/auth"
	configpkg "driftpursuit/netplay/internal/config"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/transport"
)

func TestWebSocketOptionsWithoutSecretAdmitEveryone(t *testing.T) {
	cfg := &configpkg.Config{WebSocketPath: "/arena", MaxClients: 4, DisplayName: "Ada"}
	opts, err := newWebSocketOptions(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("newWebSocketOptions: %v", err)
	}
	if opts.Path != "/arena" || opts.MaxClients != 4 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Authenticate != nil || opts.JoinToken != nil {
		t.Fatal("expected no authentication hooks without a secret")
	}
}

func TestWebSocketOptionsMintTokensTheHostAccepts(t *testing.T) {
	cfg := &configpkg.Config{DisplayName: "Ada", JoinSecret: "s3cret", JoinRateLimit: 5}
	opts, err := newWebSocketOptions(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("newWebSocketOptions: %v", err)
	}

	//1.- A minted token passes the host check when sent as a header.
	token, err := opts.JoinToken()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest("GET", "/netplay", nil)
	req.Header.Set(transport.JoinTokenHeader, token)
	if err := opts.Authenticate(req); err != nil {
		t.Fatalf("expected token to be accepted: %v", err)
	}

	//2.- Requests without a token are refused.
	if err := opts.Authenticate(httptest.NewRequest("GET", "/netplay", nil)); !errors.Is(err, auth.ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	//3.- Tokens from another secret are refused.
	other, _ := newWebSocketOptions(&configpkg.Config{DisplayName: "Eve", JoinSecret: "other"}, nil)
	forged, _ := other.JoinToken()
	req = httptest.NewRequest("GET", "/netplay?join_token="+forged, nil)
	if err := opts.Authenticate(req); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestWebSocketOptionsRateLimitJoins(t *testing.T) {
	opts, err := newWebSocketOptions(&configpkg.Config{DisplayName: "Ada", JoinRateLimit: 2}, nil)
	if err != nil {
		t.Fatalf("newWebSocketOptions: %v", err)
	}
	if opts.JoinToken != nil {
		t.Fatal("expected no join token without a secret")
	}
	req := httptest.NewRequest("GET", "/netplay", nil)
	req.RemoteAddr = "198.51.100.4:40000"
	for i := 0; i < 2; i++ {
		if err := opts.Authenticate(req); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := opts.Authenticate(req); !errors.Is(err, auth.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
