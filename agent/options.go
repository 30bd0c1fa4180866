// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent

import (
	"strconv"

	"github.com/openstack/charm-mysql-router/router"
)

// Options are the charm's configuration options. The cache intervals stay
// strings because mysqlrouter accepts fractional seconds ("0.5") and the
// values pass through to the configuration file verbatim.
type Options struct {
	// BasePort is the first port the router binds for client connections.
	BasePort int
	// TTL is the metadata cache refresh interval in seconds.
	TTL string
	// AuthCacheRefreshInterval is the auth cache refresh rate in seconds.
	AuthCacheRefreshInterval string
	// AuthCacheTTL is the auth cache entry lifetime in seconds; -1 never
	// expires.
	AuthCacheTTL string
	// MaxConnections caps total router connections; zero leaves the
	// packaged default in place.
	MaxConnections int
	// ClientConnectTimeout and ServerConnectTimeout bound connection
	// establishment on the two sides of the proxy, in seconds.
	ClientConnectTimeout int
	ServerConnectTimeout int
}

// DefaultOptions returns the config.yaml defaults.
func DefaultOptions() Options {
	return Options{
		BasePort:                 router.DefaultPort,
		TTL:                      "0.5",
		AuthCacheRefreshInterval: "2",
		AuthCacheTTL:             "-1",
		ClientConnectTimeout:     30,
		ServerConnectTimeout:     30,
	}
}

// OptionsFromConfig resolves Options from a config-get bag, falling back to
// the defaults for anything unset.
func OptionsFromConfig(config map[string]interface{}) Options {
	opts := DefaultOptions()
	opts.BasePort = intOption(config, "base-port", opts.BasePort)
	opts.TTL = stringOption(config, "ttl", opts.TTL)
	opts.AuthCacheRefreshInterval = stringOption(
		config, "auth-cache-refresh-interval", opts.AuthCacheRefreshInterval)
	opts.AuthCacheTTL = stringOption(config, "auth-cache-ttl", opts.AuthCacheTTL)
	opts.MaxConnections = intOption(config, "max-connections", opts.MaxConnections)
	opts.ClientConnectTimeout = intOption(
		config, "client-connect-timeout", opts.ClientConnectTimeout)
	opts.ServerConnectTimeout = intOption(
		config, "server-connect-timeout", opts.ServerConnectTimeout)
	return opts
}

func intOption(config map[string]interface{}, key string, fallback int) int {
	switch value := config[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	case string:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// stringOption stringifies numeric values: config-get hands back JSON, so a
// ttl of 0.5 arrives as a number.
func stringOption(config map[string]interface{}, key string, fallback string) string {
	switch value := config[key].(type) {
	case string:
		if value != "" {
			return value
		}
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	}
	return fallback
}
