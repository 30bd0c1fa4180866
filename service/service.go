// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package service abstracts control of the router's init-system service.
package service

// Service provides visibility into and control over a host service.
type Service interface {
	// Name returns the service's name.
	Name() string

	// Running reports whether the service is active.
	Running() (bool, error)

	// Start starts the service. Starting a running service is a no-op.
	Start() error

	// Stop stops the service. Stopping a stopped service is a no-op.
	Stop() error

	// Restart restarts the service.
	Restart() error
}
