// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// mysql-router-agent is the charm's hook entry point. The runtime invokes
// it once per hook, either with the hook name as its argument or through a
// hook symlink named after the hook.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"

	"github.com/openstack/charm-mysql-router/agent"
	"github.com/openstack/charm-mysql-router/hooktool"
	"github.com/openstack/charm-mysql-router/relation"
	"github.com/openstack/charm-mysql-router/router"
	"github.com/openstack/charm-mysql-router/router/probe"
	"github.com/openstack/charm-mysql-router/service/systemd"
	"github.com/openstack/charm-mysql-router/state"
)

var logger = loggo.GetLogger("mysqlrouter.cmd")

const charmStateDir = "/var/lib/charm"

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := gnuflag.NewFlagSet(args[0], gnuflag.ContinueOnError)
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(true, args[1:]); err != nil {
		return errors.Trace(err)
	}

	level := "INFO"
	if *debug || os.Getenv("JUJU_DEBUG") != "" {
		level = "DEBUG"
	}
	if err := loggo.ConfigureLoggers("<root>=WARNING;mysqlrouter=" + level); err != nil {
		return errors.Trace(err)
	}

	// Hook symlinks name the hook; an explicit argument overrides.
	hook := filepath.Base(args[0])
	if flags.NArg() > 0 {
		hook = flags.Arg(0)
	}
	return dispatch(hook, hooktool.NewContext())
}

func dispatch(hook string, ctx *hooktool.Context) error {
	a, err := buildAgent(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	cluster, client, err := openRelations(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	logger.Debugf("dispatching hook %q", hook)
	switch hook {
	case "install":
		if err := a.Install(); err != nil {
			return errors.Trace(err)
		}
		reportWorkloadVersion(ctx)
		return nil
	case "config-changed":
		return errors.Trace(a.ConfigChanged(cluster, client))
	case "upgrade-charm":
		if err := a.UpgradeCharm(cluster, client); err != nil {
			return errors.Trace(err)
		}
		reportWorkloadVersion(ctx)
		return nil
	case "update-status":
		return errors.Trace(a.UpdateStatus(cluster, client))
	case "db-router-relation-joined", "db-router-relation-changed",
		"db-router-relation-departed", "db-router-relation-broken",
		"shared-db-relation-joined", "shared-db-relation-changed",
		"shared-db-relation-departed", "shared-db-relation-broken",
		"start", "leader-elected", "leader-settings-changed":
		return errors.Trace(a.Reconcile(cluster, client))
	}
	return errors.Errorf("unknown hook %q", hook)
}

// reportWorkloadVersion surfaces the installed mysql-router version in
// status output. Best effort: the package may not be installed yet.
func reportWorkloadVersion(ctx *hooktool.Context) {
	ver, err := router.InstalledVersion(router.RunCommand)
	if err != nil {
		logger.Warningf("cannot determine mysql-router version: %v", err)
		return
	}
	if err := ctx.ApplicationVersionSet(ver.String()); err != nil {
		logger.Warningf("cannot set application version: %v", err)
	}
}

func buildAgent(ctx *hooktool.Context) (*agent.Agent, error) {
	unit, err := ctx.LocalUnit()
	if err != nil {
		return nil, errors.Trace(err)
	}
	application, err := names.UnitApplication(unit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	charmConfig, err := ctx.ConfigGet()
	if err != nil {
		return nil, errors.Trace(err)
	}
	options := agent.OptionsFromConfig(charmConfig)
	routerConfig := router.NewConfig(application)
	routerConfig.Port = options.BasePort

	address, err := ctx.PrivateAddress()
	if err != nil {
		return nil, errors.Trace(err)
	}
	flagStore, err := openFlagStore(application)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if !systemd.IsRunning() {
		logger.Warningf("systemd is not the local init system; service control will fail")
	}
	prober := probe.New(routerConfig.BindAddress, routerConfig.Port)
	supervisor := router.NewSupervisor(
		systemd.NewService(application), flagStore, prober)

	a, err := agent.New(agent.Config{
		Router:       routerConfig,
		Options:      options,
		Flags:        flagStore,
		Bootstrapper: router.NewBootstrapper(routerConfig, flagStore, nil, nil),
		Supervisor:   supervisor,
		Probe:        prober,
		Status:       ctx,
		LocalUnit:    unit,
		Address:      address,
	})
	return a, errors.Trace(err)
}

func openFlagStore(application string) (state.FlagStore, error) {
	dir := filepath.Join(charmStateDir, application)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Annotate(err, "cannot create charm state directory")
	}
	store, err := state.NewFileFlagStore(filepath.Join(dir, "flags.yaml"))
	return store, errors.Trace(err)
}

func openRelations(ctx *hooktool.Context) (relation.ClusterRelation, relation.ClientRelation, error) {
	var cluster relation.ClusterRelation
	if opened, err := hooktool.OpenCluster(ctx); err == nil {
		cluster = opened
	} else if !errors.Is(err, errors.NotFound) {
		return nil, nil, errors.Trace(err)
	}
	var client relation.ClientRelation
	if opened, err := hooktool.OpenClient(ctx); err == nil {
		client = opened
	} else if !errors.Is(err, errors.NotFound) {
		return nil, nil, errors.Trace(err)
	}
	return cluster, client, nil
}
