// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"sort"
	"strings"
)

// Client request bags come in two schemas. The singular schema uses the
// bare keys database, username and hostname. The multi-database schema
// namespaces every key with a prefix, as in nova_database, nova_username,
// nova_hostname, novaapi_database and so on, one prefix per logical
// database on the relation.

const (
	keyDatabase = "database"
	keyUsername = "username"
	keyHostname = "hostname"
)

// ParseDatabaseRequests decomposes a client request bag into one
// DatabaseRequest per prefix. Bare singular requests are filed under the
// given unprefixed token. Keys that are neither bare request keys nor
// prefixed request keys (peer addresses and the like) are ignored.
// Requests come back sorted by prefix.
func ParseDatabaseRequests(bag Settings, unprefixed string) []DatabaseRequest {
	byPrefix := make(map[string]*DatabaseRequest)
	request := func(prefix string) *DatabaseRequest {
		r, ok := byPrefix[prefix]
		if !ok {
			r = &DatabaseRequest{Prefix: prefix}
			byPrefix[prefix] = r
		}
		return r
	}
	for key, value := range bag {
		if value == "" {
			continue
		}
		prefix := unprefixed
		suffix := key
		if i := strings.Index(key, "_"); i >= 0 {
			prefix, suffix = key[:i], key[i+1:]
		}
		switch suffix {
		case keyDatabase:
			request(prefix).Database = value
		case keyUsername:
			request(prefix).Username = value
		case keyHostname:
			request(prefix).Hostname = value
		}
	}
	prefixes := make([]string, 0, len(byPrefix))
	for prefix := range byPrefix {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	requests := make([]DatabaseRequest, 0, len(prefixes))
	for _, prefix := range prefixes {
		requests = append(requests, *byPrefix[prefix])
	}
	return requests
}
