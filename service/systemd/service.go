// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd controls the router's systemd unit over the D-Bus API.
package systemd

import (
	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("mysqlrouter.service.systemd")

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return util.IsRunningSystemd()
}

// DBusAPI is the subset of the systemd D-Bus API this package consumes.
type DBusAPI interface {
	Close()
	ListUnits() ([]dbus.UnitStatus, error)
	StartUnit(string, string, chan<- string) (int, error)
	StopUnit(string, string, chan<- string) (int, error)
	RestartUnit(string, string, chan<- string) (int, error)
}

// DBusAPIFactory produces a D-Bus connection per operation.
type DBusAPIFactory = func() (DBusAPI, error)

// NewDBusAPI is the default factory.
var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

var newChan = func() chan string {
	return make(chan string)
}

// Service controls a systemd unit.
type Service struct {
	name     string
	unitName string
	newDBus  DBusAPIFactory
}

// NewService returns a Service for the named systemd unit.
func NewService(name string) *Service {
	return &Service{
		name:     name,
		unitName: name + ".service",
		newDBus:  NewDBusAPI,
	}
}

// Name implements Service.
func (s *Service) Name() string {
	return s.name
}

func (s *Service) newConn() (DBusAPI, error) {
	conn, err := s.newDBus()
	if err != nil {
		logger.Errorf("failed to connect to dbus for service %q: %v", s.name, err)
	}
	return conn, err
}

// Running implements Service.
func (s *Service) Running() (bool, error) {
	conn, err := s.newConn()
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	units, err := conn.ListUnits()
	if err != nil {
		return false, errors.Annotatef(err, "failed to query services from dbus for %q", s.name)
	}
	for _, unit := range units {
		if unit.Name == s.unitName {
			running := unit.LoadState == "loaded" && unit.ActiveState == "active"
			return running, nil
		}
	}
	return false, nil
}

// Start implements Service.
func (s *Service) Start() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		logger.Debugf("service %q already running", s.name)
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err := conn.StartUnit(s.unitName, "fail", statusCh); err != nil {
		return errors.Annotatef(err, "dbus start request failed for service %q", s.name)
	}
	if err := s.wait("start", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("service %q successfully started", s.name)
	return nil
}

// Stop implements Service.
func (s *Service) Stop() error {
	running, err := s.Running()
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		logger.Debugf("service %q not running", s.name)
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err := conn.StopUnit(s.unitName, "fail", statusCh); err != nil {
		return errors.Annotatef(err, "dbus stop request failed for service %q", s.name)
	}
	if err := s.wait("stop", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("service %q successfully stopped", s.name)
	return nil
}

// Restart implements Service.
func (s *Service) Restart() error {
	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err := conn.RestartUnit(s.unitName, "fail", statusCh); err != nil {
		return errors.Annotatef(err, "dbus restart request failed for service %q", s.name)
	}
	if err := s.wait("restart", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("service %q successfully restarted", s.name)
	return nil
}

// wait blocks until systemd reports the queued job's result.
func (s *Service) wait(op string, statusCh chan string) error {
	status := <-statusCh
	if status != "done" {
		return errors.Errorf("failed to %s service %q (API status %q)", op, s.name, status)
	}
	return nil
}
