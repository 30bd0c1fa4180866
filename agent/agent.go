// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package agent implements the charm's handler chain: one Reconcile pass
// per relation hook, plus the config-changed, upgrade-charm and
// update-status handlers. Gating between the steps goes through durable
// flags so a pass interrupted by a crash resumes where it left off.
package agent

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/version/v2"

	"github.com/openstack/charm-mysql-router/relation"
	"github.com/openstack/charm-mysql-router/router"
	"github.com/openstack/charm-mysql-router/state"
)

var logger = loggo.GetLogger("mysqlrouter.agent")

// Relation availability flags, recorded alongside the router lifecycle
// flags in the same store.
const (
	FlagInstalled         = "charm.installed"
	FlagClusterAvailable  = "db-router.available"
	FlagProxyAvailable    = "db-router.available.proxy"
	FlagSharedDBAvailable = "shared-db.available"
)

// Bootstrapper drives the router's one-time bootstrap.
type Bootstrapper interface {
	Bootstrap(creds relation.ClusterCredentials, reportHost string, force bool) error
	Validate(creds relation.ClusterCredentials, reportHost string) error
}

// Supervisor controls the router service.
type Supervisor interface {
	Start() error
	VerifiedRestart(creds relation.ClusterCredentials) error
}

// ConnectivityChecker reports whether the router accepts connections.
type ConnectivityChecker interface {
	Check(creds relation.ClusterCredentials, reraiseOn set.Ints) (bool, error)
	RetryingCheck(creds relation.ClusterCredentials) (bool, error)
}

// StatusSetter reports workload status to the runtime.
type StatusSetter interface {
	StatusSet(status, message string) error
}

// Config holds the dependencies of an Agent.
type Config struct {
	Router       router.Config
	Options      Options
	Flags        state.FlagStore
	Bootstrapper Bootstrapper
	Supervisor   Supervisor
	Probe        ConnectivityChecker
	Status       StatusSetter
	// LocalUnit is this unit's name, matched against allowed-units lists.
	LocalUnit string
	// Address is the unit's address on the db-router network space, used
	// as the bootstrap report host and the router account's hostname.
	Address string
	// InstalledVersion reports the installed mysql-router package version.
	// Nil queries the package manager.
	InstalledVersion func() (version.Number, error)
}

// Validate returns an error if the config is not complete.
func (config Config) Validate() error {
	if config.Flags == nil {
		return errors.NotValidf("nil Flags")
	}
	if config.Bootstrapper == nil {
		return errors.NotValidf("nil Bootstrapper")
	}
	if config.Supervisor == nil {
		return errors.NotValidf("nil Supervisor")
	}
	if config.Probe == nil {
		return errors.NotValidf("nil Probe")
	}
	if config.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if config.LocalUnit == "" {
		return errors.NotValidf("empty LocalUnit")
	}
	return nil
}

// Agent runs the charm's handlers.
type Agent struct {
	config  Config
	patcher *router.Patcher
	broker  *relation.Broker
}

// New returns an Agent for the given config.
func New(config Config) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.InstalledVersion == nil {
		config.InstalledVersion = func() (version.Number, error) {
			return router.InstalledVersion(router.RunCommand)
		}
	}
	return &Agent{
		config:  config,
		patcher: &router.Patcher{Path: config.Router.ConfPath()},
		broker: &relation.Broker{
			LocalUnit:       config.LocalUnit,
			Address:         config.Router.BindAddress,
			Port:            config.Router.Port,
			RouterPrefix:    router.DBPrefix,
			UnprefixedToken: router.Unprefixed,
		},
	}, nil
}

// Install prepares the router's home directory and records the installed
// flag. Package, user and group installation is the runtime's job.
func (a *Agent) Install() error {
	if err := os.MkdirAll(a.config.Router.HomeDir, 0755); err != nil {
		return errors.Annotate(err, "cannot create router home directory")
	}
	if err := a.config.Flags.Set(FlagInstalled); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(a.AssessStatus(nil, nil))
}

// Reconcile runs the relation handler chain: refresh availability flags,
// request the router's own cluster account, bootstrap, start, and proxy
// client requests and responses. Either relation may be nil while not
// joined; each step runs only once its gates are up, so one pass after the
// final relation event completes the whole chain.
func (a *Agent) Reconcile(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	if err := a.updateAvailability(cluster, client); err != nil {
		return errors.Trace(err)
	}
	if cluster == nil {
		return errors.Trace(a.AssessStatus(cluster, client))
	}
	flags := a.config.Flags
	if flags.IsSet(FlagInstalled) {
		err := cluster.RequestRouterUser(router.DBUser, a.config.Address, router.DBPrefix)
		if err != nil {
			return errors.Annotate(err, "cannot request router account")
		}
	}
	if flags.IsSet(FlagInstalled) && flags.IsSet(FlagClusterAvailable) {
		creds, err := a.routerCredentials(cluster)
		if err != nil {
			return errors.Trace(err)
		}
		if !flags.IsSet(router.FlagBootstrapped) {
			if err := a.config.Bootstrapper.Bootstrap(creds, a.config.Address, false); err != nil {
				return errors.Trace(err)
			}
		}
		if flags.IsSet(router.FlagBootstrapped) && !flags.IsSet(router.FlagStarted) {
			if err := a.config.Supervisor.Start(); err != nil {
				return errors.Annotate(err, "cannot start mysql-router")
			}
			if ok, err := a.config.Probe.RetryingCheck(creds); err != nil {
				return errors.Trace(err)
			} else if !ok {
				logger.Warningf("mysql-router started but is not accepting connections")
			}
		}
	}
	if client != nil && flags.IsSet(router.FlagStarted) && flags.IsSet(FlagSharedDBAvailable) {
		if flags.IsSet(FlagClusterAvailable) {
			if err := a.broker.ProxyRequests(client, cluster); err != nil {
				return errors.Trace(err)
			}
		}
		if flags.IsSet(FlagProxyAvailable) {
			if err := a.broker.ProxyResponses(cluster, client); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return errors.Trace(a.AssessStatus(cluster, client))
}

// ConfigChanged applies the option-derived configuration parameters and
// restarts the router when the file content actually changed.
func (a *Agent) ConfigChanged(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	if err := a.updateAvailability(cluster, client); err != nil {
		return errors.Trace(err)
	}
	changed, err := a.applyConfigParameters()
	if err != nil {
		return errors.Trace(err)
	}
	flags := a.config.Flags
	if changed && cluster != nil && flags.IsSet(router.FlagStarted) && flags.IsSet(FlagClusterAvailable) {
		creds, err := a.routerCredentials(cluster)
		if err != nil {
			return errors.Trace(err)
		}
		logger.Debugf("mysqlrouter.conf changed, restarting the router")
		if err := a.config.Supervisor.VerifiedRestart(creds); err != nil {
			return errors.Annotate(err, "cannot restart mysql-router")
		}
	}
	return errors.Trace(a.AssessStatus(cluster, client))
}

// UpgradeCharm self-heals a corrupt configuration left by an interrupted
// bootstrap, then reapplies the configuration parameters.
func (a *Agent) UpgradeCharm(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	if err := a.updateAvailability(cluster, client); err != nil {
		return errors.Trace(err)
	}
	if cluster != nil && a.config.Flags.IsSet(FlagClusterAvailable) {
		creds, err := a.routerCredentials(cluster)
		if err != nil {
			return errors.Trace(err)
		}
		if err := a.config.Bootstrapper.Validate(creds, a.config.Address); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(a.ConfigChanged(cluster, client))
}

// UpdateStatus refreshes availability flags and reports status.
func (a *Agent) UpdateStatus(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	if err := a.updateAvailability(cluster, client); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(a.AssessStatus(cluster, client))
}

// AssessStatus reports the unit's workload status from the recorded flags
// and a live connection check.
func (a *Agent) AssessStatus(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	status, message := a.assess(cluster)
	return errors.Trace(a.config.Status.StatusSet(status, message))
}

func (a *Agent) assess(cluster relation.ClusterRelation) (string, string) {
	flags := a.config.Flags
	if !flags.IsSet(FlagInstalled) {
		return "maintenance", "Installing mysql-router"
	}
	if cluster == nil {
		return "blocked", "'db-router' missing"
	}
	if !flags.IsSet(router.FlagBootstrapped) {
		return "waiting", "MySQL Router not yet bootstrapped"
	}
	if !flags.IsSet(router.FlagStarted) {
		return "waiting", "MySQL Router not yet started"
	}
	if !flags.IsSet(FlagProxyAvailable) {
		return "waiting", "Waiting for proxied DB creation from cluster"
	}
	creds, err := a.routerCredentials(cluster)
	if err != nil {
		return "blocked", "Failed to connect to MySQL"
	}
	if ok, _ := a.config.Probe.Check(creds, nil); !ok {
		return "blocked", "Failed to connect to MySQL"
	}
	return "active", "Unit is ready"
}

func (a *Agent) routerCredentials(cluster relation.ClusterRelation) (relation.ClusterCredentials, error) {
	return relation.RouterCredentials(
		cluster, router.DBPrefix, router.DBUser, router.ConnectTimeout)
}

func (a *Agent) updateAvailability(cluster relation.ClusterRelation, client relation.ClientRelation) error {
	clusterReady := false
	proxyReady := false
	if cluster != nil {
		_, clusterReady = cluster.Password(router.DBPrefix)
		for _, prefix := range cluster.Prefixes() {
			if prefix != router.DBPrefix {
				proxyReady = true
			}
		}
	}
	clientReady := false
	if client != nil {
		_, clientReady = client.JoinedUnit()
	}
	if err := a.setFlag(FlagClusterAvailable, clusterReady); err != nil {
		return errors.Trace(err)
	}
	if err := a.setFlag(FlagProxyAvailable, clusterReady && proxyReady); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(a.setFlag(FlagSharedDBAvailable, clientReady))
}

func (a *Agent) setFlag(flag string, value bool) error {
	if value {
		return errors.Trace(a.config.Flags.Set(flag))
	}
	return errors.Trace(a.config.Flags.Clear(flag))
}

// applyConfigParameters patches mysqlrouter.conf and reports whether its
// content changed. A missing file means the router is not bootstrapped yet;
// bootstrap regenerates it from current options, so there is nothing to do.
func (a *Agent) applyConfigParameters() (bool, error) {
	before, err := confDigest(a.patcher.Path)
	if err != nil {
		return false, errors.Trace(err)
	}
	if err := a.patcher.Apply(a.configParameters()); err != nil {
		return false, errors.Annotate(err, "cannot update mysqlrouter.conf")
	}
	after, err := confDigest(a.patcher.Path)
	if err != nil {
		return false, errors.Trace(err)
	}
	return before != after, nil
}

// configParameters is the option-derived patch applied to mysqlrouter.conf.
func (a *Agent) configParameters() router.PatchSet {
	opts := a.config.Options
	defaults := map[string]string{
		"client_connect_timeout": strconv.Itoa(opts.ClientConnectTimeout),
		"server_connect_timeout": strconv.Itoa(opts.ServerConnectTimeout),
	}
	if opts.MaxConnections > 0 {
		defaults["max_total_connections"] = strconv.Itoa(opts.MaxConnections)
	}
	if ver, err := a.config.InstalledVersion(); err != nil {
		logger.Warningf("cannot determine mysql-router version: %v", err)
	} else if router.SupportsClientSSLMode(ver) {
		// Operator-managed TLS (a client certificate with CA material in
		// place) must not be forced back to pass-through.
		if !(a.patcher.Has("DEFAULT", "client_ssl_cert") && a.patcher.Has("DEFAULT", "client_ssl_ca")) {
			defaults["client_ssl_mode"] = "PASSTHROUGH"
		}
	}
	return router.PatchSet{
		"DEFAULT": defaults,
		"metadata_cache:.*": {
			"ttl":                         opts.TTL,
			"auth_cache_refresh_interval": opts.AuthCacheRefreshInterval,
			"auth_cache_ttl":              opts.AuthCacheTTL,
		},
	}
}

func confDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Trace(err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
