// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package router

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/ini.v1"
)

func init() {
	// mysqlrouter.conf carries an explicit [DEFAULT] header and bare
	// key=value pairs.
	ini.DefaultHeader = true
	ini.PrettyFormat = false
}

// PatchSet maps a section selector to the keys to set in that section. A
// selector matches a section by literal name or by full regular-expression
// match; bootstrap embeds generated tokens in section names such as
// metadata_cache:jujuCluster, hence the regex form. A selector matching
// nothing names a new section verbatim.
type PatchSet map[string]map[string]string

// Patcher applies PatchSets to the router configuration file in place,
// leaving every section and key it was not asked to change alone.
type Patcher struct {
	// Path is the configuration file, normally Config.ConfPath().
	Path string
}

// Apply patches the configuration and rewrites the whole file, changed
// sections or not, so repeated application is idempotent byte for byte. A
// missing file is skipped without error: before the first bootstrap there
// is nothing to patch.
func (p *Patcher) Apply(patch PatchSet) error {
	if _, err := os.Stat(p.Path); os.IsNotExist(err) {
		logger.Debugf("%s does not exist yet, skipping configuration update", p.Path)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	cfg, err := ini.Load(p.Path)
	if err != nil {
		return errors.Annotatef(err, "cannot parse %q", p.Path)
	}
	for _, selector := range sortedKeys(patch) {
		section := matchSection(cfg, selector)
		if section == nil {
			if section, err = cfg.NewSection(selector); err != nil {
				return errors.Trace(err)
			}
		}
		settings := patch[selector]
		for _, key := range sortedKeys(settings) {
			section.Key(key).SetValue(settings[key])
		}
	}
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.AtomicWriteFile(p.Path, buf.Bytes(), 0600))
}

// Has reports whether the on-disk configuration currently has key set in
// the named section. Version-gated keys are decided against current file
// content, not against what a previous patch intended.
func (p *Patcher) Has(section, key string) bool {
	cfg, err := ini.Load(p.Path)
	if err != nil {
		return false
	}
	s, err := cfg.GetSection(section)
	if err != nil {
		return false
	}
	return s.HasKey(key)
}

// Reset truncates the configuration to a minimal default section. Forced
// bootstrap requires this: the router refuses to bootstrap over a file
// carrying stale generated sections.
func (p *Patcher) Reset() error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.AtomicWriteFile(p.Path, []byte("[DEFAULT]\n"), 0600))
}

// matchSection returns the first section matching selector in file order,
// or nil. Selectors that are not valid regular expressions match by
// literal name only.
func matchSection(cfg *ini.File, selector string) *ini.Section {
	re, err := regexp.Compile("^(?:" + selector + ")$")
	if err != nil {
		re = nil
	}
	for _, section := range cfg.Sections() {
		if section.Name() == selector {
			return section
		}
		if re != nil && re.MatchString(section.Name()) {
			return section
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
