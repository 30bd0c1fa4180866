// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package relation models the agent's two control-plane relations: the
// upstream db-router relation to the MySQL InnoDB cluster, and the
// downstream shared-db relation to the application requesting database
// access. The broker in this package reshapes requests and responses
// between the two protocols.
package relation

import (
	"time"

	"github.com/juju/errors"
)

// Settings is the flat key-value bag of one relation instance's data.
type Settings map[string]string

// Get returns the value for key. Empty values count as absent: the runtime
// deletes a relation key by setting it to the empty string.
func (s Settings) Get(key string) (string, bool) {
	value, ok := s[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Unit identifies one joined unit on a relation instance.
type Unit struct {
	// Name is the unit name, e.g. "keystone/7".
	Name string
	// RelationID identifies the relation instance the unit is joined on.
	RelationID string
}

// ClusterCredentials are the broker's own credentials for the MySQL InnoDB
// cluster, as supplied over the db-router relation.
type ClusterCredentials struct {
	Username string
	Password string
	// Host is the cluster's address, used for bootstrap.
	Host string
	// Port is the cluster's client port.
	Port int
	// ConnectTimeout bounds verification connections made with these
	// credentials.
	ConnectTimeout time.Duration
}

// DatabaseRequest is one logical database requested by a client, keyed by
// its prefix on the relation.
type DatabaseRequest struct {
	Prefix   string
	Database string
	Username string
	Hostname string
}

// DatabaseResponse is the credential and connection metadata published to
// one client relation instance for one prefix.
type DatabaseResponse struct {
	Address string
	Password string
	// AllowedHosts is the client unit granted access, empty when the local
	// unit is not in the prefix's allowed-units list.
	AllowedHosts string
	// Prefix is empty for responses to bare (unprefixed) requests.
	Prefix string
	// WaitTimeout is optional; zero means not supplied by the cluster.
	WaitTimeout int
	Port int
	// SSLCA is optional CA trust material. Publishing an empty value
	// clears any previously published CA.
	SSLCA string
}

// ClusterRelation is the agent's view of the upstream db-router relation.
// Accessors read the settings snapshot the runtime exposes to the running
// hook; relation data does not change underneath an executing hook.
type ClusterRelation interface {
	// Password returns the still-encoded password for prefix.
	Password(prefix string) (string, bool)
	// DBHost returns the encoded cluster address.
	DBHost() (string, bool)
	// WaitTimeout returns the encoded optional wait timeout.
	WaitTimeout() (string, bool)
	// SSLCA returns the encoded optional CA material.
	SSLCA() (string, bool)
	// AllowedUnits returns the encoded list of units granted access to
	// prefix.
	AllowedUnits(prefix string) (string, bool)
	// Prefixes lists the prefixes the cluster knows about.
	Prefixes() []string

	// RequestRouterUser asks the cluster for the router's own account.
	RequestRouterUser(username, hostname, prefix string) error
	// RequestDatabase asks the cluster to provision one logical database.
	RequestDatabase(database, username, hostname, prefix string) error
}

// ClientRelation is the agent's view of the downstream shared-db relation.
type ClientRelation interface {
	// JoinedUnit returns the single joined client unit. The second return
	// is false while the unit is departing.
	JoinedUnit() (Unit, bool)
	// RequestSettings returns the client's request bag.
	RequestSettings() Settings
	// PublishResponse publishes connection information to the client.
	PublishResponse(relationID string, response DatabaseResponse) error
}

// RouterCredentials resolves the broker's own cluster credentials from the
// upstream relation state, decoding the values the cluster last published.
func RouterCredentials(cluster ClusterRelation, prefix, username string, connectTimeout time.Duration) (ClusterCredentials, error) {
	rawPassword, ok := cluster.Password(prefix)
	if !ok {
		return ClusterCredentials{}, errors.NotFoundf("cluster password for prefix %q", prefix)
	}
	password, err := DecodeString(rawPassword)
	if err != nil {
		return ClusterCredentials{}, errors.Annotate(err, "cannot decode cluster password")
	}
	rawHost, ok := cluster.DBHost()
	if !ok {
		return ClusterCredentials{}, errors.NotFoundf("cluster address")
	}
	host, err := DecodeString(rawHost)
	if err != nil {
		return ClusterCredentials{}, errors.Annotate(err, "cannot decode cluster address")
	}
	return ClusterCredentials{
		Username:       username,
		Password:       password,
		Host:           host,
		Port:           3306,
		ConnectTimeout: connectTimeout,
	}, nil
}
