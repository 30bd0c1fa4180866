// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package router_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/openstack/charm-mysql-router/relation"
	"github.com/openstack/charm-mysql-router/router"
	"github.com/openstack/charm-mysql-router/router/probe"
)

type fakeService struct {
	*testing.Stub

	running bool
}

func (f *fakeService) Name() string {
	return "mysql-router"
}

func (f *fakeService) Running() (bool, error) {
	f.AddCall("Running")
	return f.running, f.NextErr()
}

func (f *fakeService) Start() error {
	f.AddCall("Start")
	return f.NextErr()
}

func (f *fakeService) Stop() error {
	f.AddCall("Stop")
	return f.NextErr()
}

func (f *fakeService) Restart() error {
	f.AddCall("Restart")
	return f.NextErr()
}

type fakeProber struct {
	errs  []error
	calls int
}

func (f *fakeProber) Verify(creds relation.ClusterCredentials) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type supervisorSuite struct {
	testing.IsolationSuite

	service *fakeService
	flags   memFlags
	prober  *fakeProber
	sup     *router.Supervisor
}

var _ = gc.Suite(&supervisorSuite{})

func (s *supervisorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.service = &fakeService{Stub: &testing.Stub{}}
	s.flags = memFlags{}
	s.prober = &fakeProber{}
	s.sup = router.NewSupervisor(s.service, s.flags, s.prober)
}

func (s *supervisorSuite) TestStartRaisesFlag(c *gc.C) {
	err := s.sup.Start()
	c.Assert(err, jc.ErrorIsNil)
	s.service.CheckCallNames(c, "Start")
	c.Check(s.flags.IsSet(router.FlagStarted), jc.IsTrue)
}

func (s *supervisorSuite) TestStartFailureLeavesFlag(c *gc.C) {
	s.service.SetErrors(errors.New("dbus start request failed"))

	err := s.sup.Start()
	c.Check(err, gc.ErrorMatches, "dbus start request failed")
	c.Check(s.flags.IsSet(router.FlagStarted), jc.IsFalse)
}

func (s *supervisorSuite) TestVerifiedRestartStopsThenStarts(c *gc.C) {
	err := s.sup.VerifiedRestart(relation.ClusterCredentials{})
	c.Assert(err, jc.ErrorIsNil)
	s.service.CheckCallNames(c, "Stop", "Start")
	c.Check(s.prober.calls, gc.Equals, 1)
}

func (s *supervisorSuite) TestVerifiedRestartRetriesProbe(c *gc.C) {
	s.prober.errs = []error{
		&probe.Error{Code: probe.CodeCannotConnect, Message: "connection refused"},
		&probe.Error{Code: probe.CodeServerLost, Message: "lost connection"},
	}
	err := s.sup.VerifiedRestart(relation.ClusterCredentials{})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.prober.calls, gc.Equals, 3)
}

func (s *supervisorSuite) TestVerifiedRestartExhaustsAttempts(c *gc.C) {
	s.prober.errs = []error{
		&probe.Error{Code: probe.CodeCannotConnect, Message: "connection refused"},
		&probe.Error{Code: probe.CodeCannotConnect, Message: "connection refused"},
		&probe.Error{Code: probe.CodeCannotConnect, Message: "connection refused"},
	}
	err := s.sup.VerifiedRestart(relation.ClusterCredentials{})
	c.Check(err, gc.ErrorMatches, `mysql connection failed \(2003\): connection refused`)
	c.Check(s.prober.calls, gc.Equals, 3)
}

func (s *supervisorSuite) TestVerifiedRestartPropagatesOtherErrors(c *gc.C) {
	s.prober.errs = []error{errors.New("flag store unwritable")}

	err := s.sup.VerifiedRestart(relation.ClusterCredentials{})
	c.Check(err, gc.ErrorMatches, "flag store unwritable")
	c.Check(s.prober.calls, gc.Equals, 1)
}

func (s *supervisorSuite) TestVerifiedRestartStopFailureIsFatal(c *gc.C) {
	s.service.SetErrors(errors.New("dbus stop request failed"))

	err := s.sup.VerifiedRestart(relation.ClusterCredentials{})
	c.Check(err, gc.ErrorMatches, "dbus stop request failed")
	c.Check(s.prober.calls, gc.Equals, 0)
}
