package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/grovetools/chordsync/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.ConfigInvalid("base_url is required")
	}
	if err := validateURL("base_url", c.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("origin", c.Origin, "http", "https"); err != nil {
		return err
	}

	if c.EventRelay.URL != "" {
		if err := validateURL("event_relay.url", c.EventRelay.URL, "http", "https", "ws", "wss"); err != nil {
			return err
		}
	}

	for field, route := range map[string]string{
		"routes.project":          c.Routes.Project,
		"routes.drop_box":         c.Routes.DropBox,
		"routes.wes":              c.Routes.WES,
		"routes.federation":       c.Routes.Federation,
		"routes.service_registry": c.Routes.ServiceRegistry,
		"routes.notification":     c.Routes.Notification,
		"routes.auth_user":        c.Routes.AuthUser,
		"routes.service_prefix":   c.Routes.ServicePrefix,
	} {
		if route != "" && !strings.HasPrefix(route, "/") {
			return errors.ConfigInvalid(fmt.Sprintf("%s must be an absolute path", field)).
				WithDetail("field", field).
				WithDetail("value", route)
		}
	}

	if c.DropBox.CacheSize < 0 {
		return errors.ConfigInvalid("dropbox.cache_size cannot be negative").
			WithDetail("value", c.DropBox.CacheSize)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.ConfigInvalid(fmt.Sprintf("%s must be an absolute URL", field)).
			WithDetail("field", field).
			WithDetail("value", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.ConfigInvalid(fmt.Sprintf("%s has unsupported scheme '%s'", field, u.Scheme)).
		WithDetail("field", field).
		WithDetail("value", raw)
}
