package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrMissingToken is returned when a join request carries no token at all.
	ErrMissingToken = errors.New("missing join token")
)

// JoinAudience is stamped into every join token so tokens minted for other
// services are refused.
const JoinAudience = "netplay-join"

// TokenClaims captures the compact JWT payload presented by joining peers.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

type tokenPayload struct {
	Subject  string `json:"sub"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat"`
	Audience string `json:"aud"`
}

// JoinTokens mints and verifies HS256 join tokens from a shared session secret.
type JoinTokens struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
	ttl    time.Duration
}

// NewJoinTokens constructs a signer/verifier for the supplied secret. ttl bounds
// how long minted tokens stay valid and leeway tolerates clock skew.
func NewJoinTokens(secret string, ttl, leeway time.Duration) (*JoinTokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("join secret must not be empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if leeway < 0 {
		leeway = 0
	}
	return &JoinTokens{secret: []byte(secret), now: time.Now, leeway: leeway, ttl: ttl}, nil
}

// WithClock overrides the clock, enabling deterministic unit tests.
func (j *JoinTokens) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	j.now = clock
}

// Mint issues a token naming subject.
func (j *JoinTokens) Mint(subject string) (string, error) {
	if j == nil || len(j.secret) == 0 {
		return "", errors.New("join tokens not initialised")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	now := j.now()
	header, err := json.Marshal(tokenHeader{Algorithm: "HS256", Type: "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(tokenPayload{
		Subject:  subject,
		Expires:  now.Add(j.ttl).Unix(),
		Issued:   now.Unix(),
		Audience: JoinAudience,
	})
	if err != nil {
		return "", err
	}
	signing := encodeSegment(header) + "." + encodeSegment(payload)
	return signing + "." + encodeSegment(j.sign([]byte(signing))), nil
}

// Verify parses the token and validates signature, audience and expiry.
func (j *JoinTokens) Verify(token string) (*TokenClaims, error) {
	if j == nil || len(j.secret) == 0 {
		return nil, errors.New("join tokens not initialised")
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header tokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	signature, err := decodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signature, j.sign([]byte(parts[0]+"."+parts[1]))) {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	if payload.Audience != JoinAudience {
		return nil, fmt.Errorf("%w: audience %q", ErrInvalidToken, payload.Audience)
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(j.leeway).Before(j.now()) {
		return nil, ErrExpiredToken
	}
	return &TokenClaims{
		Subject:   payload.Subject,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
		Audience:  payload.Audience,
	}, nil
}

// Authenticate checks the join token on an upgrade request, reading the header
// first and the join_token query parameter second.
func (j *JoinTokens) Authenticate(header string) func(r *http.Request) error {
	return func(r *http.Request) error {
		token := strings.TrimSpace(r.Header.Get(header))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("join_token"))
		}
		if token == "" {
			return ErrMissingToken
		}
		_, err := j.Verify(token)
		return err
	}
}

func (j *JoinTokens) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, j.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}
