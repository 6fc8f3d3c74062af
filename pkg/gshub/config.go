// Package gshub wires a frame, peer, relay, relaylog, and (optionally)
// relaydb together into the relay hub daemon.
package gshub

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config contains the configuration for the hub. The env struct tag
// contains the environment variable name and the default value if missing,
// or empty (if not ?=).
type Config struct {
	// The base TCP port. Each vertex listens on BasePort + 10*index, in the
	// order CLIENT, ROOFUHF, ROOFXBAND, HAYSTACK, TRACK.
	BasePort int `env:"GSHUB_BASE_PORT=54200"`

	// How long a vertex endpoint waits for a frame before the connection is
	// considered dead and closed.
	RecvTimeout time.Duration `env:"GSHUB_RECV_TIMEOUT=30s"`

	// How long Accept blocks between retries while waiting for ctx
	// cancellation.
	AcceptTimeout time.Duration `env:"GSHUB_ACCEPT_TIMEOUT=3s"`

	// How long to wait between failed bind attempts.
	BindRetry time.Duration `env:"GSHUB_BIND_RETRY=5s"`

	// The largest permitted frame payload_size.
	MaxPayload int `env:"GSHUB_MAX_PAYLOAD=100"`

	// The directory relay log files are written to.
	RelayLogDir string `env:"GSHUB_RELAY_LOG_DIR=./relaylog"`

	// The size in bytes a relay log file may reach before it is rotated.
	RelayLogMaxBytes int64 `env:"GSHUB_RELAY_LOG_MAX_BYTES=268435456"`

	// Optional sqlite3 DSN for the relay audit index. If empty, no audit
	// index is kept.
	RelayAuditDSN string `env:"GSHUB_RELAY_AUDIT_DSN"`

	// Optional address for the debug/metrics HTTP server. If empty, it is
	// not started.
	DebugAddr string `env:"GSHUB_DEBUG_ADDR"`

	// The minimum log level (e.g., trace, debug, info, warn, error, fatal).
	LogLevel zerolog.Level `env:"GSHUB_LOG_LEVEL=info"`

	// Whether to log to stdout.
	LogStdout bool `env:"GSHUB_LOG_STDOUT=true"`

	// Whether to use pretty logs on stdout.
	LogStdoutPretty bool `env:"GSHUB_LOG_STDOUT_PRETTY=true"`

	// For sd-notify.
	NotifySocket string `env:"NOTIFY_SOCKET"`
}

// UnmarshalEnv unmarshals an array of environment variables into c, setting
// default values as appropriate. If incremental is true, default values
// will not be set for missing env vars, but only for empty ones.
func (c *Config) UnmarshalEnv(es []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "GSHUB_") || strings.HasPrefix(e, "NOTIFY_SOCKET=") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		switch cvf := cv.FieldByName(ctf.Name); cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int, int8, int16, int32, int64:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		default:
			return fmt.Errorf("unhandled type %T (%s)", cvf.Interface(), env)
		}
	}
	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
