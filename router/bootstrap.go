// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package router

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/version/v2"

	"github.com/openstack/charm-mysql-router/relation"
	"github.com/openstack/charm-mysql-router/state"
)

// CommandRunner executes a command, returning combined stdout and stderr.
type CommandRunner func(name string, args ...string) ([]byte, error)

// RunCommand is the default CommandRunner.
func RunCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

var (
	// mysql-router grew an embedded REST API in 8.0.22. It binds a fixed
	// port and collides when several router instances share a host.
	restAPIMinVersion = version.Number{Major: 8, Minor: 0, Patch: 22}
	// client_ssl_mode first shipped in 8.0.23.
	clientSSLModeMinVersion = version.Number{Major: 8, Minor: 0, Patch: 23}
)

// minimumConfSize is the truncation heuristic: a bootstrapped
// configuration is several KiB, so anything smaller cannot be one.
const minimumConfSize = 512

// SupportsDisableRest reports whether the installed router understands
// --disable-rest.
func SupportsDisableRest(ver version.Number) bool {
	return restAPIMinVersion.Compare(ver) <= 0
}

// SupportsClientSSLMode reports whether the installed router understands
// the client_ssl_mode configuration key.
func SupportsClientSSLMode(ver version.Number) bool {
	return clientSSLModeMinVersion.Compare(ver) <= 0
}

// InstalledVersion reports the version of the installed mysql-router
// package.
func InstalledVersion(run CommandRunner) (version.Number, error) {
	out, err := run("dpkg-query", "--showformat=${Version}", "--show", "mysql-router")
	if err != nil {
		return version.Zero, errors.Annotate(err, "cannot query mysql-router package version")
	}
	return parsePackageVersion(strings.TrimSpace(string(out)))
}

// parsePackageVersion strips the Debian epoch and revision from a package
// version such as "8.0.29-0ubuntu0.22.04.1".
func parsePackageVersion(raw string) (version.Number, error) {
	if i := strings.Index(raw, ":"); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexAny(raw, "-~+"); i >= 0 {
		raw = raw[:i]
	}
	num, err := version.Parse(raw)
	if err != nil {
		return version.Zero, errors.Annotatef(err, "cannot parse mysql-router version %q", raw)
	}
	return num, nil
}

// Bootstrapper drives the router's one-time bootstrap against the cluster,
// tracking attempt state so a crash mid-bootstrap is recovered by forcing
// a clean retry on the next pass.
type Bootstrapper struct {
	config           Config
	flags            state.FlagStore
	patcher          *Patcher
	run              CommandRunner
	installedVersion func() (version.Number, error)
}

// NewBootstrapper returns a Bootstrapper for the given instance. A nil run
// falls back to RunCommand; a nil installedVersion queries the package
// manager.
func NewBootstrapper(config Config, flags state.FlagStore, run CommandRunner, installedVersion func() (version.Number, error)) *Bootstrapper {
	if run == nil {
		run = RunCommand
	}
	b := &Bootstrapper{
		config:           config,
		flags:            flags,
		patcher:          &Patcher{Path: config.ConfPath()},
		run:              run,
		installedVersion: installedVersion,
	}
	if b.installedVersion == nil {
		b.installedVersion = func() (version.Number, error) {
			return InstalledVersion(b.run)
		}
	}
	return b
}

// Bootstrap runs the router's bootstrap subcommand against the cluster
// using the given credentials. An already bootstrapped install is left
// alone unless force is set, so a manually recovered instance is never
// clobbered. A previously attempted but unconfirmed bootstrap is retried
// with force and a reset configuration. A failed invocation is logged with
// its full output and leaves the attempted flag raised; it is not an
// error, the caller rechecks the flags before proceeding.
func (b *Bootstrapper) Bootstrap(creds relation.ClusterCredentials, reportHost string, force bool) error {
	if b.flags.IsSet(FlagBootstrapped) && !force {
		logger.Warningf("mysql-router is already bootstrapped; use force to bootstrap again")
		return nil
	}
	if b.flags.IsSet(FlagBootstrapAttempted) {
		// The previous attempt died part way through; start over.
		force = true
	}
	if force {
		if err := b.patcher.Reset(); err != nil {
			return errors.Annotate(err, "cannot reset router configuration")
		}
	}
	args := []string{
		"--user", b.config.User,
		"--name", b.config.Name,
		"--bootstrap", fmt.Sprintf("%s:%s@%s", creds.Username, creds.Password, creds.Host),
		"--directory", b.config.WorkingDir(),
		"--conf-use-sockets",
		"--conf-bind-address", b.config.BindAddress,
		"--report-host", reportHost,
		"--conf-base-port", strconv.Itoa(b.config.Port),
	}
	if force {
		args = append(args, "--force")
	}
	if ver, err := b.installedVersion(); err != nil {
		logger.Warningf("cannot determine mysql-router version: %v", err)
	} else if SupportsDisableRest(ver) {
		args = append(args, "--disable-rest")
	}
	// Raised before the invocation so a crash mid-bootstrap is observably
	// "attempted" and the next pass forces a clean retry.
	if err := b.flags.Set(FlagBootstrapAttempted); err != nil {
		return errors.Trace(err)
	}
	output, err := b.run(b.config.BinPath, args...)
	if err != nil {
		logger.Errorf("failed to bootstrap mysql-router: %s", output)
		return nil
	}
	logger.Debugf("bootstrap output: %s", output)
	if err := b.flags.Set(FlagBootstrapped); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(b.flags.Clear(FlagBootstrapAttempted))
}

// Validate self-heals a truncated configuration file by forcing a fresh
// bootstrap. A missing file is left to the normal bootstrap path.
func (b *Bootstrapper) Validate(creds relation.ClusterCredentials, reportHost string) error {
	info, err := os.Stat(b.config.ConfPath())
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	if info.Size() >= minimumConfSize {
		return nil
	}
	logger.Warningf("%s is only %d bytes, assuming corruption and bootstrapping again",
		b.config.ConfPath(), info.Size())
	return errors.Trace(b.Bootstrap(creds, reportHost, true))
}
