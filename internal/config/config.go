package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the port a host listens on and clients dial when none is given.
	DefaultPort = 42005
	// DefaultDisplayName names the local player when the environment does not.
	DefaultDisplayName = "Player"
	// DefaultColor is the local player's colour in #rrggbb form.
	DefaultColor = "#ffffff"
	// DefaultWeapon selects the arsenal entry equipped by every spawned player.
	DefaultWeapon = "pistol"
	// DefaultTickRate is the simulation frequency in frames per second.
	DefaultTickRate = 60.0

	// DefaultWebSocketPath is the HTTP path the host upgrades peers on.
	DefaultWebSocketPath = "/netplay"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 15 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent peers on a host. Zero disables the limit.
	DefaultMaxClients = 32
	// DefaultDialTimeout bounds how long a client waits for the host to accept.
	DefaultDialTimeout = 5 * time.Second

	// DefaultJoinRateLimit bounds upgrade attempts per remote host per minute. Zero disables the limit.
	DefaultJoinRateLimit = 10

	// DefaultJournalKeep caps how many journal bundles are retained. Zero keeps all.
	DefaultJournalKeep = 20

	// DefaultObserverAddr is where the gRPC observer service listens. Empty disables it.
	DefaultObserverAddr = ""

	// DefaultLogLevel controls verbosity for peer logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "netplay.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for a netplay peer.
type Config struct {
	Port        int
	DisplayName string
	Color       string
	Weapon      string
	SpawnX      float64
	SpawnY      float64
	TickRate    float64

	WebSocketPath   string
	PingInterval    time.Duration
	MaxPayloadBytes int64
	MaxClients      int
	DialTimeout     time.Duration
	JoinSecret      string
	JoinRateLimit   int

	JournalDir    string
	JournalKeep   int
	JournalMaxAge time.Duration

	ObserverAddr         string
	ObserverSecret       string
	ObserverCertPath     string
	ObserverKeyPath      string
	ObserverClientCAPath string

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the peer configuration from environment variables, applying defaults
// and returning one error describing every invalid override.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom behaves like Load but resolves variables through lookup.
func LoadFrom(lookup func(string) string) (*Config, error) {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	get := func(key string) string { return strings.TrimSpace(lookup(key)) }

	cfg := &Config{
		Port:                 DefaultPort,
		DisplayName:          stringOr(get("NETPLAY_NAME"), DefaultDisplayName),
		Color:                strings.ToLower(stringOr(get("NETPLAY_COLOR"), DefaultColor)),
		Weapon:               stringOr(get("NETPLAY_WEAPON"), DefaultWeapon),
		TickRate:             DefaultTickRate,
		WebSocketPath:        stringOr(get("NETPLAY_WS_PATH"), DefaultWebSocketPath),
		PingInterval:         DefaultPingInterval,
		MaxPayloadBytes:      DefaultMaxPayloadBytes,
		MaxClients:           DefaultMaxClients,
		DialTimeout:          DefaultDialTimeout,
		JoinSecret:           get("NETPLAY_JOIN_SECRET"),
		JoinRateLimit:        DefaultJoinRateLimit,
		JournalDir:           get("NETPLAY_JOURNAL_DIR"),
		JournalKeep:          DefaultJournalKeep,
		ObserverAddr:         stringOr(get("NETPLAY_OBSERVER_ADDR"), DefaultObserverAddr),
		ObserverSecret:       get("NETPLAY_OBSERVER_SECRET"),
		ObserverCertPath:     get("NETPLAY_OBSERVER_TLS_CERT"),
		ObserverKeyPath:      get("NETPLAY_OBSERVER_TLS_KEY"),
		ObserverClientCAPath: get("NETPLAY_OBSERVER_TLS_CLIENT_CA"),
		Logging: LoggingConfig{
			Level:      stringOr(get("NETPLAY_LOG_LEVEL"), DefaultLogLevel),
			Path:       stringOr(get("NETPLAY_LOG_PATH"), DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := get("NETPLAY_PORT"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 65535 {
			problems = append(problems, fmt.Sprintf("NETPLAY_PORT must be a port number, got %q", raw))
		} else {
			cfg.Port = value
		}
	}

	if _, err := ParseColor(cfg.Color); err != nil {
		problems = append(problems, fmt.Sprintf("NETPLAY_COLOR must look like #rrggbb, got %q", cfg.Color))
	}

	if raw := get("NETPLAY_SPAWN"); raw != "" {
		x, y, err := parsePoint(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("NETPLAY_SPAWN must be \"x,y\", got %q", raw))
		} else {
			cfg.SpawnX, cfg.SpawnY = x, y
		}
	}

	if raw := get("NETPLAY_TICK_RATE"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_TICK_RATE must be a positive number, got %q", raw))
		} else {
			cfg.TickRate = value
		}
	}

	if !strings.HasPrefix(cfg.WebSocketPath, "/") {
		problems = append(problems, fmt.Sprintf("NETPLAY_WS_PATH must start with '/', got %q", cfg.WebSocketPath))
	}

	if raw := get("NETPLAY_PING_INTERVAL"); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := get("NETPLAY_MAX_PAYLOAD_BYTES"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := get("NETPLAY_MAX_CLIENTS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := get("NETPLAY_DIAL_TIMEOUT"); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_DIAL_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.DialTimeout = duration
		}
	}

	if raw := get("NETPLAY_JOIN_RATE_LIMIT"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_JOIN_RATE_LIMIT must be a non-negative integer, got %q", raw))
		} else {
			cfg.JoinRateLimit = value
		}
	}

	if raw := get("NETPLAY_JOURNAL_KEEP"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_JOURNAL_KEEP must be a non-negative integer, got %q", raw))
		} else {
			cfg.JournalKeep = value
		}
	}

	if raw := get("NETPLAY_JOURNAL_MAX_AGE"); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_JOURNAL_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.JournalMaxAge = duration
		}
	}

	if raw := get("NETPLAY_LOG_MAX_SIZE_MB"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := get("NETPLAY_LOG_MAX_BACKUPS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := get("NETPLAY_LOG_MAX_AGE_DAYS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := get("NETPLAY_LOG_COMPRESS"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.ObserverSecret != "" && cfg.ObserverAddr == "" {
		problems = append(problems, "NETPLAY_OBSERVER_SECRET requires NETPLAY_OBSERVER_ADDR")
	}

	tlsSet := 0
	for _, path := range []string{cfg.ObserverCertPath, cfg.ObserverKeyPath, cfg.ObserverClientCAPath} {
		if path != "" {
			tlsSet++
		}
	}
	if tlsSet != 0 && tlsSet != 3 {
		problems = append(problems, "NETPLAY_OBSERVER_TLS_CERT, NETPLAY_OBSERVER_TLS_KEY and NETPLAY_OBSERVER_TLS_CLIENT_CA must be set together")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

// ObserverMTLS reports whether the observer service requires client certificates.
func (c *Config) ObserverMTLS() bool {
	return c.ObserverCertPath != "" && c.ObserverKeyPath != "" && c.ObserverClientCAPath != ""
}

// ParseColor decodes a #rrggbb string into its channels.
func ParseColor(raw string) ([3]uint8, error) {
	var rgb [3]uint8
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(trimmed) != 6 {
		return rgb, fmt.Errorf("colour %q: expected six hex digits", raw)
	}
	value, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return rgb, fmt.Errorf("colour %q: %w", raw, err)
	}
	rgb[0] = uint8(value >> 16)
	rgb[1] = uint8(value >> 8)
	rgb[2] = uint8(value)
	return rgb, nil
}

func parsePoint(raw string) (float64, float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two components")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func stringOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
