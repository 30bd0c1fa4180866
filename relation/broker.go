// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("mysqlrouter.relation")

// Broker proxies database and user requests from the shared-db relation up
// to the db-router relation, and credential responses back down. The two
// protocols are asymmetric: clients speak singular or prefixed request
// bags, the cluster always speaks per-prefix.
type Broker struct {
	// LocalUnit is this unit's name, matched against allowed-units lists.
	LocalUnit string
	// Address is the client-facing proxy address published downstream.
	Address string
	// Port is the proxy's base port.
	Port int
	// RouterPrefix namespaces the broker's own cluster credentials. It is
	// never forwarded downstream.
	RouterPrefix string
	// UnprefixedToken tags requests that arrived in the bare singular
	// schema; it is translated back to no prefix on the way down.
	UnprefixedToken string
}

// ProxyRequests reads the joined client's request bag and forwards one
// provisioning request upstream per distinct prefix.
func (b *Broker) ProxyRequests(client ClientRelation, cluster ClusterRelation) error {
	requests := ParseDatabaseRequests(client.RequestSettings(), b.UnprefixedToken)
	for _, request := range requests {
		err := cluster.RequestDatabase(
			request.Database, request.Username, request.Hostname, request.Prefix)
		if err != nil {
			return errors.Annotatef(err, "cannot forward database request for prefix %q", request.Prefix)
		}
	}
	return nil
}

// ProxyResponses publishes the cluster's per-prefix credentials to the
// joined client. The broker's own credentials are withheld. The pass is
// two-phase: every prefix is resolved before anything is published, so if
// any prefix is still missing its password the whole pass is abandoned
// with nothing written downstream. A prefix without a password means the
// cluster relation is departing or mid-update, and the next relation
// event replays the pass.
func (b *Broker) ProxyResponses(cluster ClusterRelation, client ClientRelation) error {
	unit, ok := client.JoinedUnit()
	if !ok {
		// The client unit is departing; nothing to respond to.
		return nil
	}
	var responses []DatabaseResponse
	for _, prefix := range cluster.Prefixes() {
		if prefix == b.RouterPrefix {
			// Never leak the router's own credentials downstream.
			continue
		}
		rawPassword, ok := cluster.Password(prefix)
		if !ok {
			logger.Warningf(
				"no password for prefix %q on a departing db-router relation, "+
					"skipping response pass", prefix)
			return nil
		}
		password, err := DecodeString(rawPassword)
		if err != nil {
			return errors.Trace(err)
		}
		response := DatabaseResponse{
			Address:  b.Address,
			Password: password,
			Port:     b.Port,
		}
		if raw, ok := cluster.WaitTimeout(); ok {
			response.WaitTimeout, err = DecodeInt(raw)
			if err != nil {
				return errors.Trace(err)
			}
		}
		if raw, ok := cluster.SSLCA(); ok {
			response.SSLCA, err = DecodeString(raw)
			if err != nil {
				return errors.Trace(err)
			}
		}
		if allowed, err := b.allowedUnits(cluster, prefix); err != nil {
			return errors.Trace(err)
		} else if allowed.Contains(b.LocalUnit) {
			response.AllowedHosts = unit.Name
		}
		if prefix != b.UnprefixedToken {
			response.Prefix = prefix
		}
		responses = append(responses, response)
	}
	for _, response := range responses {
		if err := client.PublishResponse(unit.RelationID, response); err != nil {
			return errors.Annotatef(err, "cannot publish response for prefix %q", response.Prefix)
		}
	}
	return nil
}

func (b *Broker) allowedUnits(cluster ClusterRelation, prefix string) (set.Strings, error) {
	raw, ok := cluster.AllowedUnits(prefix)
	if !ok {
		return nil, nil
	}
	units, err := DecodeStringList(raw)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot decode allowed units for prefix %q", prefix)
	}
	return set.NewStrings(units...), nil
}
