// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktool

import (
	"strconv"

	"github.com/juju/errors"

	"github.com/openstack/charm-mysql-router/relation"
)

// ClientRelationName is the downstream endpoint to the database client.
const ClientRelationName = "shared-db"

// Client is the shared-db relation seen through hook tools. The relation
// has at most one joined unit: the client application colocated with the
// router on this machine.
type Client struct {
	ctx        *Context
	relationID string
	unit       string
	settings   relation.Settings
}

var _ relation.ClientRelation = (*Client)(nil)

// OpenClient snapshots the first shared-db relation instance. It returns a
// not-found error while the relation is not joined; a joined relation whose
// unit has departed opens successfully and reports no joined unit.
func OpenClient(ctx *Context) (*Client, error) {
	ids, err := ctx.RelationIDs(ClientRelationName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(ids) == 0 {
		return nil, errors.NotFoundf("%s relation", ClientRelationName)
	}
	client := &Client{ctx: ctx, relationID: ids[0]}
	units, err := ctx.RelationUnits(ids[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(units) == 0 {
		return client, nil
	}
	client.unit = units[0]
	client.settings, err = ctx.RelationGet(ids[0], units[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	return client, nil
}

// JoinedUnit returns the joined client unit, or false while it is
// departing.
func (r *Client) JoinedUnit() (relation.Unit, bool) {
	if r.unit == "" {
		return relation.Unit{}, false
	}
	return relation.Unit{Name: r.unit, RelationID: r.relationID}, true
}

// RequestSettings returns the client's request bag.
func (r *Client) RequestSettings() relation.Settings {
	return r.settings
}

// PublishResponse publishes connection information for one prefix. Scalars
// are JSON-encoded the way the client's database interface expects; absent
// optional values are published empty, clearing anything stale from an
// earlier pass.
func (r *Client) PublishResponse(relationID string, response relation.DatabaseResponse) error {
	passwordKey, allowedKey := "password", "allowed_units"
	if response.Prefix != "" {
		passwordKey = response.Prefix + "_password"
		allowedKey = response.Prefix + "_allowed_units"
	}
	settings := relation.Settings{
		"db_host":   relation.EncodeString(response.Address),
		"db_port":   strconv.Itoa(response.Port),
		passwordKey: relation.EncodeString(response.Password),
	}
	if response.AllowedHosts != "" {
		settings[allowedKey] = relation.EncodeString(response.AllowedHosts)
	} else {
		settings[allowedKey] = ""
	}
	if response.WaitTimeout > 0 {
		settings["wait_timeout"] = strconv.Itoa(response.WaitTimeout)
	} else {
		settings["wait_timeout"] = ""
	}
	if response.SSLCA != "" {
		settings["ssl_ca"] = relation.EncodeString(response.SSLCA)
	} else {
		settings["ssl_ca"] = ""
	}
	return errors.Trace(r.ctx.RelationSet(relationID, settings))
}
