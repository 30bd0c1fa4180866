// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooktool shells out to the hook tools the runtime puts on the
// agent's PATH (relation-get, relation-set, status-set and friends). Read
// tools are invoked with --format=json and their output decoded; write
// tools take key=value pairs.
package hooktool

import (
	"encoding/json"
	"os"
	"os/exec"
	"sort"

	"github.com/juju/errors"

	"github.com/openstack/charm-mysql-router/relation"
)

// RunFunc executes one hook tool and returns its combined output.
type RunFunc func(name string, args ...string) ([]byte, error)

func runTool(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Context invokes hook tools on behalf of the running hook.
type Context struct {
	run RunFunc
}

// NewContext returns a Context that executes the real hook tools.
func NewContext() *Context {
	return &Context{run: runTool}
}

// LocalUnit returns the name of the unit this hook runs for.
func (ctx *Context) LocalUnit() (string, error) {
	unit := os.Getenv("JUJU_UNIT_NAME")
	if unit == "" {
		return "", errors.New("JUJU_UNIT_NAME not set in hook environment")
	}
	return unit, nil
}

func (ctx *Context) runJSON(result interface{}, tool string, args ...string) error {
	out, err := ctx.run(tool, append(args, "--format=json")...)
	if err != nil {
		return errors.Annotatef(err, "%s: %s", tool, out)
	}
	if err := json.Unmarshal(out, result); err != nil {
		return errors.Annotatef(err, "cannot parse %s output", tool)
	}
	return nil
}

// RelationIDs returns the instance IDs of the named relation, e.g.
// "db-router:3". A relation that is not joined has no IDs.
func (ctx *Context) RelationIDs(name string) ([]string, error) {
	var ids []string
	if err := ctx.runJSON(&ids, "relation-ids", name); err != nil {
		return nil, errors.Trace(err)
	}
	return ids, nil
}

// RelationUnits returns the remote units joined on the relation instance.
func (ctx *Context) RelationUnits(relationID string) ([]string, error) {
	var units []string
	if err := ctx.runJSON(&units, "relation-list", "-r", relationID); err != nil {
		return nil, errors.Trace(err)
	}
	return units, nil
}

// RelationGet returns the settings the remote unit has published on the
// relation instance.
func (ctx *Context) RelationGet(relationID, unit string) (relation.Settings, error) {
	var settings relation.Settings
	if err := ctx.runJSON(&settings, "relation-get", "-r", relationID, "-", unit); err != nil {
		return nil, errors.Trace(err)
	}
	return settings, nil
}

// RelationSet publishes settings on the relation instance for the local
// unit. An empty value deletes the key.
func (ctx *Context) RelationSet(relationID string, settings relation.Settings) error {
	if len(settings) == 0 {
		return nil
	}
	args := []string{"-r", relationID}
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, key+"="+settings[key])
	}
	out, err := ctx.run("relation-set", args...)
	if err != nil {
		return errors.Annotatef(err, "relation-set: %s", out)
	}
	return nil
}

// StatusSet sets the unit's workload status.
func (ctx *Context) StatusSet(status, message string) error {
	out, err := ctx.run("status-set", status, message)
	if err != nil {
		return errors.Annotatef(err, "status-set: %s", out)
	}
	return nil
}

// ConfigGet returns the charm configuration.
func (ctx *Context) ConfigGet() (map[string]interface{}, error) {
	var config map[string]interface{}
	if err := ctx.runJSON(&config, "config-get"); err != nil {
		return nil, errors.Trace(err)
	}
	return config, nil
}

// PrivateAddress returns the unit's private address.
func (ctx *Context) PrivateAddress() (string, error) {
	var address string
	if err := ctx.runJSON(&address, "unit-get", "private-address"); err != nil {
		return "", errors.Trace(err)
	}
	return address, nil
}

// ApplicationVersionSet reports the workload version the unit is running.
func (ctx *Context) ApplicationVersionSet(version string) error {
	out, err := ctx.run("application-version-set", version)
	if err != nil {
		return errors.Annotatef(err, "application-version-set: %s", out)
	}
	return nil
}
