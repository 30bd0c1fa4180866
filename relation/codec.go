// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"encoding/json"

	"github.com/juju/errors"
)

// Scalar relation values on both relations travel JSON-encoded, so a
// password arrives as `"secret"` and a timeout as `3600`.

// DecodeString decodes a JSON-encoded string value.
func DecodeString(raw string) (string, error) {
	var value string
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", errors.Annotatef(err, "cannot decode relation value %q", raw)
	}
	return value, nil
}

// DecodeInt decodes a JSON-encoded integer value.
func DecodeInt(raw string) (int, error) {
	var value int
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return 0, errors.Annotatef(err, "cannot decode relation value %q", raw)
	}
	return value, nil
}

// DecodeStringList decodes a JSON-encoded list of strings, such as an
// allowed-units value.
func DecodeStringList(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Annotatef(err, "cannot decode relation value %q", raw)
	}
	return values, nil
}

// EncodeString encodes a string value for transmission.
func EncodeString(value string) string {
	data, _ := json.Marshal(value)
	return string(data)
}
