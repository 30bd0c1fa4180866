// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation_test

import (
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/openstack/charm-mysql-router/relation"
)

type fakeCluster struct {
	settings relation.Settings
	prefixes []string

	requests []relation.DatabaseRequest
}

func (f *fakeCluster) Password(prefix string) (string, bool) {
	return f.settings.Get(prefix + "_password")
}

func (f *fakeCluster) DBHost() (string, bool) {
	return f.settings.Get("db_host")
}

func (f *fakeCluster) WaitTimeout() (string, bool) {
	return f.settings.Get("wait_timeout")
}

func (f *fakeCluster) SSLCA() (string, bool) {
	return f.settings.Get("ssl_ca")
}

func (f *fakeCluster) AllowedUnits(prefix string) (string, bool) {
	return f.settings.Get(prefix + "_allowed_units")
}

func (f *fakeCluster) Prefixes() []string {
	return f.prefixes
}

func (f *fakeCluster) RequestRouterUser(username, hostname, prefix string) error {
	return nil
}

func (f *fakeCluster) RequestDatabase(database, username, hostname, prefix string) error {
	f.requests = append(f.requests, relation.DatabaseRequest{
		Prefix:   prefix,
		Database: database,
		Username: username,
		Hostname: hostname,
	})
	return nil
}

type fakeClient struct {
	unit     relation.Unit
	departed bool
	settings relation.Settings

	published []relation.DatabaseResponse
}

func (f *fakeClient) JoinedUnit() (relation.Unit, bool) {
	if f.departed {
		return relation.Unit{}, false
	}
	return f.unit, true
}

func (f *fakeClient) RequestSettings() relation.Settings {
	return f.settings
}

func (f *fakeClient) PublishResponse(relationID string, response relation.DatabaseResponse) error {
	f.published = append(f.published, response)
	return nil
}

type brokerSuite struct {
	testing.IsolationSuite

	broker  *relation.Broker
	cluster *fakeCluster
	client  *fakeClient
}

var _ = gc.Suite(&brokerSuite{})

func (s *brokerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.broker = &relation.Broker{
		LocalUnit:       "mysql-router/0",
		Address:         "127.0.0.1",
		Port:            3306,
		RouterPrefix:    "mysqlrouter",
		UnprefixedToken: "MRUP",
	}
	s.cluster = &fakeCluster{settings: relation.Settings{}}
	s.client = &fakeClient{
		unit:     relation.Unit{Name: "keystone/7", RelationID: "shared-db:5"},
		settings: relation.Settings{},
	}
}

func (s *brokerSuite) TestProxyRequestsBareSchema(c *gc.C) {
	s.client.settings = relation.Settings{
		"database": "keystone",
		"username": "keystone",
		"hostname": "10.10.10.70",
	}
	err := s.broker.ProxyRequests(s.client, s.cluster)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.cluster.requests, jc.DeepEquals, []relation.DatabaseRequest{{
		Prefix:   "MRUP",
		Database: "keystone",
		Username: "keystone",
		Hostname: "10.10.10.70",
	}})
}

func (s *brokerSuite) TestProxyRequestsPrefixedSchema(c *gc.C) {
	s.client.settings = relation.Settings{
		"nova_database":    "nova",
		"nova_username":    "nova",
		"nova_hostname":    "10.20.20.70",
		"novaapi_database": "nova_api",
		"novaapi_username": "nova",
		"novaapi_hostname": "10.20.20.70",
	}
	err := s.broker.ProxyRequests(s.client, s.cluster)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.cluster.requests, gc.HasLen, 2)
	c.Check(s.cluster.requests[0].Prefix, gc.Equals, "nova")
	c.Check(s.cluster.requests[1].Prefix, gc.Equals, "novaapi")
	c.Check(s.cluster.requests[1].Database, gc.Equals, "nova_api")
}

func (s *brokerSuite) TestProxyResponsesPublishes(c *gc.C) {
	s.cluster.prefixes = []string{"keystone"}
	s.cluster.settings = relation.Settings{
		"keystone_password":      `"ks-secret"`,
		"keystone_allowed_units": `["mysql-router/0"]`,
		"wait_timeout":           "3600",
		"ssl_ca":                 `"CERTIFICATE"`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.client.published, jc.DeepEquals, []relation.DatabaseResponse{{
		Address:      "127.0.0.1",
		Password:     "ks-secret",
		AllowedHosts: "keystone/7",
		Prefix:       "keystone",
		WaitTimeout:  3600,
		Port:         3306,
		SSLCA:        "CERTIFICATE",
	}})
}

func (s *brokerSuite) TestProxyResponsesWithholdsRouterPrefix(c *gc.C) {
	s.cluster.prefixes = []string{"mysqlrouter", "keystone"}
	s.cluster.settings = relation.Settings{
		"mysqlrouter_password":   `"router-secret"`,
		"keystone_password":      `"ks-secret"`,
		"keystone_allowed_units": `["mysql-router/0"]`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.client.published, gc.HasLen, 1)
	c.Check(s.client.published[0].Password, gc.Equals, "ks-secret")
}

func (s *brokerSuite) TestProxyResponsesMissingPasswordAbortsBatch(c *gc.C) {
	// keystone is resolvable, nova is not; nothing may be published.
	s.cluster.prefixes = []string{"keystone", "nova"}
	s.cluster.settings = relation.Settings{
		"keystone_password":      `"ks-secret"`,
		"keystone_allowed_units": `["mysql-router/0"]`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.client.published, gc.HasLen, 0)
}

func (s *brokerSuite) TestProxyResponsesDepartingClient(c *gc.C) {
	s.client.departed = true
	s.cluster.prefixes = []string{"keystone"}
	s.cluster.settings = relation.Settings{
		"keystone_password": `"ks-secret"`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.client.published, gc.HasLen, 0)
}

func (s *brokerSuite) TestProxyResponsesUnitNotAllowed(c *gc.C) {
	s.cluster.prefixes = []string{"keystone"}
	s.cluster.settings = relation.Settings{
		"keystone_password":      `"ks-secret"`,
		"keystone_allowed_units": `["other-router/3"]`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.client.published, gc.HasLen, 1)
	c.Check(s.client.published[0].AllowedHosts, gc.Equals, "")
}

func (s *brokerSuite) TestProxyResponsesTranslatesUnprefixed(c *gc.C) {
	s.cluster.prefixes = []string{"MRUP"}
	s.cluster.settings = relation.Settings{
		"MRUP_password":      `"ks-secret"`,
		"MRUP_allowed_units": `["mysql-router/0"]`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.client.published, gc.HasLen, 1)
	c.Check(s.client.published[0].Prefix, gc.Equals, "")
}

func (s *brokerSuite) TestProxyResponsesAbsentSSLCAPublishedEmpty(c *gc.C) {
	s.cluster.prefixes = []string{"keystone"}
	s.cluster.settings = relation.Settings{
		"keystone_password":      `"ks-secret"`,
		"keystone_allowed_units": `["mysql-router/0"]`,
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.client.published, gc.HasLen, 1)
	// Stale trust material must be cleared, so the response always
	// carries an SSLCA value, empty when the cluster publishes none.
	c.Check(s.client.published[0].SSLCA, gc.Equals, "")
	c.Check(s.client.published[0].WaitTimeout, gc.Equals, 0)
}

func (s *brokerSuite) TestProxyResponsesCorruptPasswordIsError(c *gc.C) {
	s.cluster.prefixes = []string{"keystone"}
	s.cluster.settings = relation.Settings{
		"keystone_password": "not-json",
	}
	err := s.broker.ProxyResponses(s.cluster, s.client)
	c.Check(err, gc.ErrorMatches, `cannot decode relation value "not-json": .*`)
	c.Check(s.client.published, gc.HasLen, 0)
}
