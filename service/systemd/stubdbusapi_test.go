// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/testing"
)

type StubDbusAPI struct {
	*testing.Stub

	Units []dbus.UnitStatus
}

func (fda *StubDbusAPI) AddUnit(name, status string) {
	active := ""
	load := "loaded"
	if status == "error" {
		load = status
	} else {
		active = status
	}
	fda.Units = append(fda.Units, dbus.UnitStatus{
		Name:        name,
		ActiveState: active,
		LoadState:   load,
	})
}

func (fda *StubDbusAPI) ListUnits() ([]dbus.UnitStatus, error) {
	fda.Stub.AddCall("ListUnits")
	return fda.Units, fda.NextErr()
}

func (fda *StubDbusAPI) StartUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("StartUnit", name, mode, ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) StopUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("StopUnit", name, mode, ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) RestartUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("RestartUnit", name, mode, ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) Close() {
	fda.Stub.AddCall("Close")
}
