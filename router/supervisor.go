// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package router

import (
	"github.com/juju/errors"

	"github.com/openstack/charm-mysql-router/relation"
	"github.com/openstack/charm-mysql-router/router/probe"
	"github.com/openstack/charm-mysql-router/service"
	"github.com/openstack/charm-mysql-router/state"
)

// Prober verifies router connectivity after restarts.
type Prober interface {
	Verify(creds relation.ClusterCredentials) error
}

// restartProbeAttempts bounds the tight probe loop after a restart. There
// is no delay between attempts; the router is normally connectable almost
// immediately once it has a bootstrapped configuration.
const restartProbeAttempts = 3

// Supervisor starts, stops and restarts the router service, recording the
// started flag the handler chain gates on.
type Supervisor struct {
	service service.Service
	flags   state.FlagStore
	probe   Prober
}

// NewSupervisor returns a Supervisor over the given service.
func NewSupervisor(svc service.Service, flags state.FlagStore, prober Prober) *Supervisor {
	return &Supervisor{service: svc, flags: flags, probe: prober}
}

// Start starts the router and raises the started flag.
func (s *Supervisor) Start() error {
	if err := s.service.Start(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.flags.Set(FlagStarted))
}

// Stop stops the router.
func (s *Supervisor) Stop() error {
	return errors.Trace(s.service.Stop())
}

// Restart restarts the router without verifying connectivity.
func (s *Supervisor) Restart() error {
	return errors.Trace(s.service.Restart())
}

// VerifiedRestart restarts the router and waits until it actually accepts
// connections again. The unit reports active before the router can serve,
// so the probe is retried a bounded number of times; probe failures past
// the bound, and any non-probe error immediately, are fatal to the
// reconciliation pass.
func (s *Supervisor) VerifiedRestart(creds relation.ClusterCredentials) error {
	if err := s.service.Stop(); err != nil {
		return errors.Trace(err)
	}
	if err := s.service.Start(); err != nil {
		return errors.Trace(err)
	}
	for attempt := 1; ; attempt++ {
		err := s.probe.Verify(creds)
		if err == nil {
			return nil
		}
		if !probe.IsError(err) || attempt >= restartProbeAttempts {
			return errors.Trace(err)
		}
		logger.Debugf("router not yet connectable after restart (attempt %d of %d): %v",
			attempt, restartProbeAttempts, err)
	}
}
