package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/webrtc-meet/signal-relay/internal/origin"
)

const (
	envVarListenAddr      = "SIGNAL_RELAY_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNAL_RELAY_LOG_LEVEL"
	envVarMode            = "SIGNAL_RELAY_MODE"
	envVarShutdownTimeout = "SIGNAL_RELAY_SHUTDOWN_TIMEOUT"

	// WebSocket signaling hardening.
	envVarWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSendBufferMessages   = "SIGNALING_SEND_BUFFER_MESSAGES"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
	envVarTURNRESTRealm          = "TURN_REST_REALM"
)

const (
	// The reference deployment listens on 8000.
	DefaultListenAddr      = "127.0.0.1:8000"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	// DefaultSendBufferMessages is the per-connection outbound queue; a full
	// queue drops the event (fire-and-forget, no backpressure onto the hub).
	DefaultSendBufferMessages = 32

	DefaultMode Mode = ModeDev

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "relay"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	Mode            Mode
	ShutdownTimeout time.Duration

	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendBufferMessages   int

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	env := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	mode := Mode(env(envVarMode, string(DefaultMode)))
	if mode != ModeDev && mode != ModeProd {
		return Config{}, fmt.Errorf("%s: unsupported mode %q", envVarMode, mode)
	}

	fs := flag.NewFlagSet("signal-relay", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", env(envVarListenAddr, DefaultListenAddr), "TCP listen address")
	logFormatFlag := fs.String("log-format", env(envVarLogFormat, defaultLogFormatForMode(mode)), "log format: text or json")
	logLevelFlag := fs.String("log-level", env(envVarLogLevel, "info"), "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr: *listenAddr,
		Mode:       mode,
	}

	switch LogFormat(strings.ToLower(*logFormatFlag)) {
	case LogFormatText:
		cfg.LogFormat = LogFormatText
	case LogFormatJSON:
		cfg.LogFormat = LogFormatJSON
	default:
		return Config{}, fmt.Errorf("unsupported log format %q", *logFormatFlag)
	}

	level, err := parseLogLevel(*logLevelFlag)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	cfg.AllowedOrigins, err = parseAllowedOrigins(env(envVarAllowedOrigins, ""))
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout, err = durationEnv(lookup, envVarShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WSIdleTimeout, err = durationEnv(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval, err = durationEnv(lookup, envVarWSPingInterval, DefaultWSPingInterval); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval >= cfg.WSIdleTimeout {
		return Config{}, fmt.Errorf("%s must be less than %s", envVarWSPingInterval, envVarWSIdleTimeout)
	}

	maxBytes, err := intEnv(lookup, envVarMaxMessageBytes, int(DefaultMaxMessageBytes))
	if err != nil {
		return Config{}, err
	}
	if maxBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0", envVarMaxMessageBytes)
	}
	cfg.MaxMessageBytes = int64(maxBytes)

	if cfg.MaxMessagesPerSecond, err = intEnv(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0", envVarMaxMessagesPerSecond)
	}

	if cfg.SendBufferMessages, err = intEnv(lookup, envVarSendBufferMessages, DefaultSendBufferMessages); err != nil {
		return Config{}, err
	}
	if cfg.SendBufferMessages <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0", envVarSendBufferMessages)
	}

	cfg.ICEServers, err = parseICEServersFromValues(
		env(envICEServersJSON, ""),
		env(envStunURLs, ""),
		env(envTurnURLs, ""),
		env(envTurnUsername, ""),
		env(envTurnCredential, ""),
	)
	if err != nil {
		return Config{}, err
	}

	cfg.TURNREST = TurnRESTConfig{
		SharedSecret:   env(envVarTURNRESTSharedSecret, ""),
		UsernamePrefix: env(envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix),
		Realm:          env(envVarTURNRESTRealm, ""),
	}
	ttl, err := intEnv(lookup, envVarTURNRESTTTLSeconds, int(DefaultTURNRESTTTLSeconds))
	if err != nil {
		return Config{}, err
	}
	if cfg.TURNREST.Enabled() && ttl <= 0 {
		return Config{}, fmt.Errorf("%s must be > 0", envVarTURNRESTTTLSeconds)
	}
	cfg.TURNREST.TTLSeconds = int64(ttl)

	return cfg, nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
}

// parseAllowedOrigins parses the comma-separated ALLOWED_ORIGINS value into
// normalized origin strings. "*" and "null" are passed through verbatim.
func parseAllowedOrigins(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" || part == "null" {
			out = append(out, part)
			continue
		}
		normalized, _, ok := origin.NormalizeHeader(part)
		if !ok {
			return nil, fmt.Errorf("%s: invalid origin %q", envVarAllowedOrigins, part)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func durationEnv(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

func intEnv(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// NewLogger builds the process logger from the loaded config.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
