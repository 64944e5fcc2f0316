// Package credentialstore defines the credential-store port: lookup by
// (service, URL) returning the most-specific registered prefix match.
package credentialstore

import (
	"context"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
)

// Store is the port interface for adding and resolving credential sources.
type Store interface {
	// Add registers a credential source. Re-adding the same (service,
	// url_prefix) pair replaces the prior source.
	Add(source credential.Source) error

	// Resolve returns the actual credential bytes for the most-specific
	// url_prefix match on service that is a prefix of url, or false if none
	// match. Ties (equal-length prefixes) break by insertion order.
	Resolve(ctx context.Context, service credential.Service, url string) (credential.Resolved, bool, error)
}
