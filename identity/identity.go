// Package identity normalizes account identifiers into their canonical
// bare user-at-domain form. Every repository operation canonicalizes its
// identity argument before it reaches a query.
package identity

import "strings"

// Normalize returns the canonical bare form of an identifier: anything after
// a resource separator ('/') is stripped and the remainder is lowercased.
func Normalize(id string) string {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	return strings.ToLower(id)
}

// HasDomain reports whether the bare form of id already carries a domain
// qualifier.
func HasDomain(id string) bool {
	return strings.IndexByte(Normalize(id), '@') >= 0
}

// Qualify joins a local part with a domain and normalizes the result.
func Qualify(local, domain string) string {
	return Normalize(local + "@" + domain)
}
