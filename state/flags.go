// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state persists the durable boolean flags that gate which agent
// operations may run. Flags outlive the agent process; a crash between two
// hooks must not forget that a bootstrap was attempted.
package state

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v3"
)

// FlagStore records durable boolean flags by name.
type FlagStore interface {
	// Set raises the named flag.
	Set(flag string) error
	// Clear lowers the named flag.
	Clear(flag string) error
	// IsSet reports whether the named flag is raised.
	IsSet(flag string) bool
}

type fileFlagStore struct {
	path  string
	flags map[string]bool
}

// NewFileFlagStore returns a FlagStore backed by a YAML file at path. The
// file is created on the first Set; a missing file simply means no flags
// are raised yet.
func NewFileFlagStore(path string) (FlagStore, error) {
	store := &fileFlagStore{path: path, flags: make(map[string]bool)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	if err := yaml.Unmarshal(data, &store.flags); err != nil {
		return nil, errors.Annotatef(err, "cannot parse flag store %q", path)
	}
	return store, nil
}

// Set implements FlagStore.
func (s *fileFlagStore) Set(flag string) error {
	if s.flags[flag] {
		return nil
	}
	s.flags[flag] = true
	return errors.Trace(s.save())
}

// Clear implements FlagStore.
func (s *fileFlagStore) Clear(flag string) error {
	if !s.flags[flag] {
		return nil
	}
	delete(s.flags, flag)
	return errors.Trace(s.save())
}

// IsSet implements FlagStore.
func (s *fileFlagStore) IsSet(flag string) bool {
	return s.flags[flag]
}

func (s *fileFlagStore) save() error {
	data, err := yaml.Marshal(s.flags)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.AtomicWriteFile(s.path, data, 0600))
}
