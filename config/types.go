package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/chordsync/pkg/api"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Defaults applied by SetDefaults.
const (
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultSessionPollInterval = 30 * time.Second
	DefaultDropBoxCacheSize    = 64
	DefaultWatchDebounce       = 100 * time.Millisecond
)

// Duration is a time.Duration written as a Go duration string ("30s", "1m30s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 30s or 1m30s",
	}
}

// AuthConfig holds the credentials forwarded to the node. Both are opaque.
type AuthConfig struct {
	Token  string `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty" jsonschema:"description=Bearer token sent with every request"`
	Cookie string `yaml:"cookie,omitempty" toml:"cookie,omitempty" json:"cookie,omitempty" jsonschema:"description=Cookie header sent with every request"`
}

// HTTPConfig controls backend requests.
type HTTPConfig struct {
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Per-request timeout (default 30s)"`
}

// SessionConfig controls the session liveness monitor.
type SessionConfig struct {
	PollInterval     Duration `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" json:"poll_interval,omitempty" jsonschema:"description=Interval between session checks (default 30s)"`
	SuspendOnSignOut *bool    `yaml:"suspend_on_sign_out,omitempty" toml:"suspend_on_sign_out,omitempty" json:"suspend_on_sign_out,omitempty" jsonschema:"description=Stop polling after a sign-out until resumed (default true)"`
}

// EventRelayConfig controls the push channel.
type EventRelayConfig struct {
	URL      string `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty" jsonschema:"description=Relay base URL; discovered from the service registry when empty"`
	Disabled bool   `yaml:"disabled,omitempty" toml:"disabled,omitempty" json:"disabled,omitempty" jsonschema:"description=Never open the push channel"`
}

// DropBoxConfig controls drop box browsing.
type DropBoxConfig struct {
	StripPrefix string `yaml:"strip_prefix,omitempty" toml:"strip_prefix,omitempty" json:"strip_prefix,omitempty" jsonschema:"description=Prefix removed from tree paths before retrieving files"`
	CacheSize   int    `yaml:"cache_size,omitempty" toml:"cache_size,omitempty" json:"cache_size,omitempty" jsonschema:"minimum=0,description=Number of file previews kept in memory (default 64)"`
}

// MetricsConfig controls the Prometheus endpoint of the watch command.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty" jsonschema:"description=Listen address for /metrics, e.g. :9090; disabled when empty"`
}

// WatchConfig controls config reloading while watching.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty" json:"debounce,omitempty" jsonschema:"description=Quiet period before a changed config file is reloaded (default 100ms)"`
}

// Config is the client configuration loaded from chordsync.yml or chordsync.toml.
type Config struct {
	BaseURL    string           `yaml:"base_url" toml:"base_url" json:"base_url" jsonschema:"required,description=Node URL requests are sent to"`
	Origin     string           `yaml:"origin,omitempty" toml:"origin,omitempty" json:"origin,omitempty" jsonschema:"description=Public node origin used in URLs handed to the workflow engine (default: base_url)"`
	Auth       AuthConfig       `yaml:"auth,omitempty" toml:"auth,omitempty" json:"auth,omitempty" jsonschema:"description=Credentials forwarded to the node"`
	HTTP       HTTPConfig       `yaml:"http,omitempty" toml:"http,omitempty" json:"http,omitempty" jsonschema:"description=Backend request settings"`
	Routes     api.Routes       `yaml:"routes,omitempty" toml:"routes,omitempty" json:"routes,omitempty" jsonschema:"description=Path prefixes of the backend services"`
	Session    SessionConfig    `yaml:"session,omitempty" toml:"session,omitempty" json:"session,omitempty" jsonschema:"description=Session liveness monitor"`
	EventRelay EventRelayConfig `yaml:"event_relay,omitempty" toml:"event_relay,omitempty" json:"event_relay,omitempty" jsonschema:"description=Push event channel"`
	DropBox    DropBoxConfig    `yaml:"dropbox,omitempty" toml:"dropbox,omitempty" json:"dropbox,omitempty" jsonschema:"description=Drop box browsing"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty" toml:"metrics,omitempty" json:"metrics,omitempty" jsonschema:"description=Prometheus metrics endpoint"`
	Watch      WatchConfig      `yaml:"watch,omitempty" toml:"watch,omitempty" json:"watch,omitempty" jsonschema:"description=Config reloading"`

	// Extensions holds top-level sections not known to the core config,
	// such as logging. Decode them with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Origin == "" {
		c.Origin = c.BaseURL
	}
	c.Origin = strings.TrimSuffix(c.Origin, "/")
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if c.Session.PollInterval <= 0 {
		c.Session.PollInterval = Duration(DefaultSessionPollInterval)
	}
	if c.Session.SuspendOnSignOut == nil {
		suspend := true
		c.Session.SuspendOnSignOut = &suspend
	}
	if c.DropBox.CacheSize == 0 {
		c.DropBox.CacheSize = DefaultDropBoxCacheSize
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = Duration(DefaultWatchDebounce)
	}
}

// UnmarshalExtension decodes a specific extension's configuration into the
// provided target struct. The target must be a pointer. A missing section
// leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
