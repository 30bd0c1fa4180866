// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktool

import (
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/openstack/charm-mysql-router/relation"
)

// ClusterRelationName is the upstream endpoint to the MySQL InnoDB cluster.
const ClusterRelationName = "db-router"

// Cluster is the db-router relation seen through hook tools. Reads come
// from a settings snapshot taken when the relation is opened; writes go
// straight through relation-set.
type Cluster struct {
	ctx        *Context
	relationID string
	settings   relation.Settings
}

var _ relation.ClusterRelation = (*Cluster)(nil)

// OpenCluster snapshots the first joined db-router relation instance. It
// returns a not-found error while the relation is not yet joined or the
// cluster unit has not yet published settings.
func OpenCluster(ctx *Context) (*Cluster, error) {
	ids, err := ctx.RelationIDs(ClusterRelationName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(ids) == 0 {
		return nil, errors.NotFoundf("%s relation", ClusterRelationName)
	}
	units, err := ctx.RelationUnits(ids[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(units) == 0 {
		return nil, errors.NotFoundf("units on %s relation", ClusterRelationName)
	}
	settings, err := ctx.RelationGet(ids[0], units[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Cluster{ctx: ctx, relationID: ids[0], settings: settings}, nil
}

// Password returns the still-encoded password for prefix.
func (r *Cluster) Password(prefix string) (string, bool) {
	return r.settings.Get(prefix + "_password")
}

// DBHost returns the encoded cluster address.
func (r *Cluster) DBHost() (string, bool) {
	return r.settings.Get("db_host")
}

// WaitTimeout returns the encoded optional wait timeout.
func (r *Cluster) WaitTimeout() (string, bool) {
	return r.settings.Get("wait_timeout")
}

// SSLCA returns the encoded optional CA material.
func (r *Cluster) SSLCA() (string, bool) {
	return r.settings.Get("ssl_ca")
}

// AllowedUnits returns the encoded allowed-units list for prefix.
func (r *Cluster) AllowedUnits(prefix string) (string, bool) {
	return r.settings.Get(prefix + "_allowed_units")
}

// Prefixes lists the prefixes the cluster has published passwords for.
func (r *Cluster) Prefixes() []string {
	var prefixes []string
	for key := range r.settings {
		if prefix, ok := strings.CutSuffix(key, "_password"); ok {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

// RequestRouterUser asks the cluster for the router's own account.
func (r *Cluster) RequestRouterUser(username, hostname, prefix string) error {
	return errors.Trace(r.ctx.RelationSet(r.relationID, relation.Settings{
		prefix + "_username": relation.EncodeString(username),
		prefix + "_hostname": relation.EncodeString(hostname),
	}))
}

// RequestDatabase asks the cluster to provision one logical database and a
// user allowed to access it.
func (r *Cluster) RequestDatabase(database, username, hostname, prefix string) error {
	return errors.Trace(r.ctx.RelationSet(r.relationID, relation.Settings{
		prefix + "_database": relation.EncodeString(database),
		prefix + "_username": relation.EncodeString(username),
		prefix + "_hostname": relation.EncodeString(hostname),
	}))
}
