// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package router manages the local mysql-router instance: bootstrapping it
// against the MySQL InnoDB cluster, patching its configuration file in
// place, and supervising the running process.
package router

import (
	"path/filepath"
	"time"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("mysqlrouter.router")

// Flags gating router lifecycle operations. They are durable: a crash
// between hooks must still know a bootstrap was attempted.
const (
	FlagBootstrapped       = "charm.mysqlrouter.bootstrapped"
	FlagBootstrapAttempted = "charm.mysqlrouter.bootstrap-attempted"
	FlagStarted            = "charm.mysqlrouter.started"
)

const (
	// DBPrefix namespaces the router's own credentials on the db-router
	// relation. Responses under this prefix are never forwarded to
	// clients.
	DBPrefix = "mysqlrouter"
	// DBUser is the router's own cluster account name.
	DBUser = DBPrefix + "user"
	// Unprefixed tags client requests that arrived in the bare singular
	// schema.
	Unprefixed = "MRUP"
)

const (
	DefaultHomeDir     = "/var/lib/mysql"
	DefaultBinPath     = "/usr/bin/mysqlrouter"
	DefaultUser        = "mysql"
	DefaultGroup       = "mysql"
	DefaultBindAddress = "127.0.0.1"
	DefaultPort        = 3306

	// ConnectTimeout bounds verification connections to the router.
	ConnectTimeout = 30 * time.Second
)

// Config identifies the managed router instance on this host.
type Config struct {
	// Name is the instance and service name, normally the application
	// name of the unit.
	Name string
	// HomeDir is the router user's home; the working directory is the
	// instance-named directory below it.
	HomeDir string
	// BinPath is the mysqlrouter executable.
	BinPath string
	// User runs the router process and owns its working directory.
	User string
	// Group owns the working directory.
	Group string
	// BindAddress is the client-facing bind address. The router is
	// subordinate to its client, so traffic stays on localhost.
	BindAddress string
	// Port is the base port for client connections.
	Port int
}

// NewConfig returns the instance configuration for name with the packaged
// defaults filled in.
func NewConfig(name string) Config {
	return Config{
		Name:        name,
		HomeDir:     DefaultHomeDir,
		BinPath:     DefaultBinPath,
		User:        DefaultUser,
		Group:       DefaultGroup,
		BindAddress: DefaultBindAddress,
		Port:        DefaultPort,
	}
}

// WorkingDir is the directory bootstrap generates the instance into.
func (c Config) WorkingDir() string {
	return filepath.Join(c.HomeDir, c.Name)
}

// ConfPath is the instance's configuration file.
func (c Config) ConfPath() string {
	return filepath.Join(c.WorkingDir(), "mysqlrouter.conf")
}
