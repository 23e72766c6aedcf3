// Package config provides configuration types for the gubinge SSH agent
// proxy.
//
// Configuration is intentionally small: the proxy's core behaviour is
// fixed by the closed policy table, so what an operator configures is
// where things live and run, not what the policy decides. The one
// exception is the optional CEL rule overlay, which lets an operator
// override individual opcode actions without recompiling.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for gubinge.
type Config struct {
	// Bind configures the client-facing Unix socket.
	Bind BindConfig `yaml:"bind" mapstructure:"bind"`

	// Upstream configures the real ssh-agent socket being proxied.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Queue configures the pipeline's bounded responder queues.
	Queue QueueConfig `yaml:"queue" mapstructure:"queue"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Metrics configures the Prometheus metrics listener.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Audit configures where audit records are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Overlay is the ordered list of operator-supplied CEL rules that can
	// override the default action for a given opcode. Optional: an empty
	// list reproduces the built-in policy table exactly.
	Overlay []OverlayRuleConfig `yaml:"overlay" mapstructure:"overlay" validate:"omitempty,dive"`

	// IdentityDenylist lists comment substrings (case-insensitive); any
	// identity whose comment contains one of them is dropped from
	// SSH2_AGENT_IDENTITIES_ANSWER replies before they reach the client.
	IdentityDenylist []string `yaml:"identity_denylist" mapstructure:"identity_denylist"`

	// DevMode enables development-friendly defaults (debug logging, text
	// log format) without requiring every field to be set explicitly.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// BindConfig configures the client-facing listening socket.
type BindConfig struct {
	// Path is the Unix socket path clients connect to. Defaults to
	// "~/.gubinge/sock-<hostname>" if empty, mirroring where ssh-agent
	// itself places its socket under $TMPDIR.
	Path string `yaml:"path" mapstructure:"path"`
}

// UpstreamConfig configures the real agent the proxy forwards to.
type UpstreamConfig struct {
	// Path is the Unix socket path of the upstream ssh-agent. Defaults to
	// the SSH_AUTH_SOCK environment variable inherited from the parent
	// process if empty.
	Path string `yaml:"path" mapstructure:"path"`
}

// QueueConfig configures the pipeline's bounded queues.
type QueueConfig struct {
	// Capacity bounds both the pending-responder queue and the
	// upstream-reply queue. Defaults to 256 if zero.
	Capacity int `yaml:"capacity" mapstructure:"capacity" validate:"omitempty,min=1"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level. Defaults to "info"; DevMode
	// defaults this to "debug" instead when unset.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	// Format selects the slog handler: "json" or "text". Defaults to
	// "json"; DevMode defaults this to "text" instead when unset.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// MetricsConfig configures the Prometheus metrics/health HTTP listener.
type MetricsConfig struct {
	// Addr is the address the metrics server listens on (e.g.
	// "127.0.0.1:9090"). Empty disables the metrics listener entirely.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// AuditConfig configures audit record output.
type AuditConfig struct {
	// Output specifies where audit records are written. Valid forms:
	// "stdout", "file:///absolute/path/to/audit.log", or
	// "sqlite:///absolute/path/to/audit.db". Defaults to "stdout". For
	// file://, only the directory of the path is used: records go to
	// daily audit-<date>.log files (audit-<date>-<n>.log after a size
	// rotation) inside it.
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// RetentionDays is the number of days of rotated JSONL audit files to
	// keep; only used when Output is a file:// sink. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the size, in megabytes, at which a file:// audit
	// sink rotates to a new file. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// OverlayRuleConfig is one operator-configured policy overlay rule.
type OverlayRuleConfig struct {
	// Name is a human-readable label for logs and error messages.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Expression is a CEL boolean expression evaluated against the
	// message's opcode and direction.
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required"`
	// Action is the replacement action kind when Expression matches.
	// Valid values: synth_empty_rsa_identities, filter_identities,
	// check_sign, drop, proxy_verbatim, synth_failure.
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=synth_empty_rsa_identities filter_identities check_sign drop proxy_verbatim synth_failure"`
}

// SetDefaults applies sensible default values to the configuration. It
// must be called before Validate.
func (c *Config) SetDefaults() {
	if c.Bind.Path == "" {
		c.Bind.Path = defaultBindPath()
	}
	if c.Upstream.Path == "" {
		c.Upstream.Path = os.Getenv("SSH_AUTH_SOCK")
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 256
	}
	if c.Log.Level == "" {
		if c.DevMode {
			c.Log.Level = "debug"
		} else {
			c.Log.Level = "info"
		}
	}
	if c.Log.Format == "" {
		if c.DevMode {
			c.Log.Format = "text"
		} else {
			c.Log.Format = "json"
		}
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
}

// defaultBindPath returns "~/.gubinge/sock-<hostname>", falling back to
// "/tmp/gubinge/sock-<hostname>" if the home directory can't be resolved.
func defaultBindPath() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "default"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("/tmp", "gubinge", "sock-"+host)
	}
	return filepath.Join(home, ".gubinge", "sock-"+host)
}

// requiredUpstreamPath reports a descriptive error when neither an
// explicit upstream path nor SSH_AUTH_SOCK resolved to anything --
// gubinge has nothing to proxy to.
func (c *Config) requiredUpstreamPath() error {
	if c.Upstream.Path == "" {
		return fmt.Errorf("upstream.path is empty and SSH_AUTH_SOCK is not set")
	}
	return nil
}
