// Package credentialstore implements the credentialstore.Store port: a
// most-specific-URL-prefix-match registry over git/docker credential
// sources, backed by either a file on the coordinator host or an inline
// secret manager fetch, with an L1 cache in front of both.
package credentialstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/port/cache"
)

// SecretFetcher resolves a named secret from the inline secret manager
// (internal/secrets.Vault.Get, wrapped to return an error on miss).
type SecretFetcher func(ctx context.Context, name string) ([]byte, error)

const resolvedCacheTTL = 5 * time.Minute

// Store is the in-memory, cache-fronted implementation of credentialstore.Store.
type Store struct {
	mu          sync.RWMutex
	sources     map[credential.Service][]credential.Source
	fetchSecret SecretFetcher
	cache       cache.Cache // optional; nil disables caching
}

// New creates a Store. fetchSecret resolves SECRET_NAME references; it may
// be nil if no sources use that reference kind. cache may be nil to disable
// the L1 layer (tests typically pass nil).
func New(fetchSecret SecretFetcher, c cache.Cache) *Store {
	return &Store{
		sources:     make(map[credential.Service][]credential.Source),
		fetchSecret: fetchSecret,
		cache:       c,
	}
}

// Add registers a credential source, replacing any source already
// registered for the same (service, url_prefix) pair.
func (s *Store) Add(source credential.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("credentialstore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.sources[source.Service]
	for i, existing := range list {
		if existing.URLPrefix == source.URLPrefix {
			list[i] = source
			s.sources[source.Service] = list
			return nil
		}
	}
	s.sources[source.Service] = append(list, source)
	return nil
}

// Resolve returns the resolved credential for the most-specific url_prefix
// match on service that prefixes url.
func (s *Store) Resolve(ctx context.Context, service credential.Service, url string) (credential.Resolved, bool, error) {
	s.mu.RLock()
	src, found := bestMatch(s.sources[service], url)
	s.mu.RUnlock()
	if !found {
		return credential.Resolved{}, false, nil
	}

	cacheKey := fmt.Sprintf("credential:%s:%s:%s", service, src.ReferenceKind, src.Reference)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
			resolved, decodeErr := decodeResolved(data)
			if decodeErr == nil {
				return resolved, true, nil
			}
		}
	}

	raw, err := s.readReference(ctx, src)
	if err != nil {
		return credential.Resolved{}, false, fmt.Errorf("credentialstore: resolve %s %s: %w", service, src.URLPrefix, err)
	}

	resolved, err := classify(raw)
	if err != nil {
		return credential.Resolved{}, false, fmt.Errorf("credentialstore: classify %s %s: %w", service, src.URLPrefix, err)
	}

	if s.cache != nil {
		if data, encErr := encodeResolved(resolved); encErr == nil {
			_ = s.cache.Set(ctx, cacheKey, data, resolvedCacheTTL)
		}
	}
	return resolved, true, nil
}

// bestMatch returns the source in candidates whose URLPrefix is the
// longest prefix of url, ties broken by insertion order.
func bestMatch(candidates []credential.Source, url string) (credential.Source, bool) {
	var best credential.Source
	found := false
	for _, c := range candidates {
		if !strings.HasPrefix(url, c.URLPrefix) {
			continue
		}
		if !found || len(c.URLPrefix) > len(best.URLPrefix) {
			best = c
			found = true
		}
	}
	return best, found
}

func (s *Store) readReference(ctx context.Context, src credential.Source) ([]byte, error) {
	switch src.ReferenceKind {
	case credential.ReferenceFilePath:
		data, err := os.ReadFile(src.Reference)
		if err != nil {
			return nil, fmt.Errorf("read credential file: %w", err)
		}
		return data, nil
	case credential.ReferenceSecretName:
		if s.fetchSecret == nil {
			return nil, fmt.Errorf("no secret fetcher configured for SECRET_NAME reference %q", src.Reference)
		}
		return s.fetchSecret(ctx, src.Reference)
	default:
		return nil, fmt.Errorf("unknown reference kind %q", src.ReferenceKind)
	}
}

// classify distinguishes an SSH private key from a "username\npassword"
// pair by attempting to parse raw as a private key first.
func classify(raw []byte) (credential.Resolved, error) {
	if _, err := ssh.ParsePrivateKey(raw); err == nil {
		return credential.Resolved{Kind: credential.KindSSHKey, SSHKey: raw}, nil
	}

	lines := bytes.SplitN(bytes.TrimSpace(raw), []byte("\n"), 2)
	if len(lines) != 2 {
		return credential.Resolved{}, fmt.Errorf("credential material is neither a parseable SSH key nor a username/password pair")
	}
	return credential.Resolved{
		Kind:     credential.KindUsernamePassword,
		Username: strings.TrimSpace(string(lines[0])),
		Password: bytes.TrimSpace(lines[1]),
	}, nil
}

// encodeResolved/decodeResolved use a trivial length-prefixed wire format
// rather than JSON so password/ssh-key bytes never round-trip through a
// text encoding that could end up in a log line by accident.
func encodeResolved(r credential.Resolved) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(string(r.Kind))
	buf.WriteByte('\n')
	buf.WriteString(r.Username)
	buf.WriteByte('\n')
	writeField(&buf, r.Password)
	writeField(&buf, r.SSHKey)
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, field []byte) {
	fmt.Fprintf(buf, "%d\n", len(field))
	buf.Write(field)
}

func decodeResolved(data []byte) (credential.Resolved, error) {
	parts := bytes.SplitN(data, []byte("\n"), 3)
	if len(parts) != 3 {
		return credential.Resolved{}, fmt.Errorf("malformed cached credential")
	}
	r := credential.Resolved{Kind: credential.Kind(parts[0]), Username: string(parts[1])}
	rest := parts[2]

	pw, rest, err := readField(rest)
	if err != nil {
		return credential.Resolved{}, err
	}
	r.Password = pw

	key, _, err := readField(rest)
	if err != nil {
		return credential.Resolved{}, err
	}
	r.SSHKey = key
	return r, nil
}

func readField(data []byte) (field []byte, rest []byte, err error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, nil, fmt.Errorf("malformed cached credential field")
	}
	var n int
	if _, err := fmt.Sscanf(string(data[:nl]), "%d", &n); err != nil {
		return nil, nil, fmt.Errorf("malformed cached credential length: %w", err)
	}
	data = data[nl+1:]
	if len(data) < n {
		return nil, nil, fmt.Errorf("truncated cached credential field")
	}
	return data[:n], data[n:], nil
}
