package credentialstore_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/Strob0t/CodeForge/internal/adapter/credentialstore"
	"github.com/Strob0t/CodeForge/internal/domain/credential"
	credentialstoreport "github.com/Strob0t/CodeForge/internal/port/credentialstore"
)

var _ credentialstoreport.Store = (*credentialstore.Store)(nil)

func TestResolve_MostSpecificPrefixWins(t *testing.T) {
	dir := t.TempDir()
	generic := writeUserPass(t, dir, "generic.txt", "alice", "s3cret")
	specific := writeUserPass(t, dir, "specific.txt", "bob", "hunter2")

	s := credentialstore.New(nil, nil)
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceGit, URLPrefix: "https://example.com/",
		ReferenceKind: credential.ReferenceFilePath, Reference: generic,
	})
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceGit, URLPrefix: "https://example.com/org/repo",
		ReferenceKind: credential.ReferenceFilePath, Reference: specific,
	})

	resolved, ok, err := s.Resolve(context.Background(), credential.ServiceGit, "https://example.com/org/repo.git")
	if err != nil || !ok {
		t.Fatalf("expected resolve to succeed, ok=%v err=%v", ok, err)
	}
	if resolved.Username != "bob" {
		t.Fatalf("expected most-specific prefix match (bob), got %q", resolved.Username)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	s := credentialstore.New(nil, nil)
	_, ok, err := s.Resolve(context.Background(), credential.ServiceGit, "https://unregistered.example.com/repo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no match")
	}
}

func TestResolve_SSHKeyClassification(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeSSHKey(t, dir, "id_ed25519")

	s := credentialstore.New(nil, nil)
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceGit, URLPrefix: "git@github.com:",
		ReferenceKind: credential.ReferenceFilePath, Reference: keyPath,
	})

	resolved, ok, err := s.Resolve(context.Background(), credential.ServiceGit, "git@github.com:org/repo.git")
	if err != nil || !ok {
		t.Fatalf("expected resolve to succeed, ok=%v err=%v", ok, err)
	}
	if resolved.Kind != credential.KindSSHKey || len(resolved.SSHKey) == 0 {
		t.Fatalf("expected SSH key classification, got %+v", resolved)
	}
}

func TestResolve_SecretNameFetcher(t *testing.T) {
	fetch := func(_ context.Context, name string) ([]byte, error) {
		return []byte("svc-account\ntoken-value"), nil
	}
	s := credentialstore.New(fetch, nil)
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceDocker, URLPrefix: "registry.internal/",
		ReferenceKind: credential.ReferenceSecretName, Reference: "docker-registry-creds",
	})

	resolved, ok, err := s.Resolve(context.Background(), credential.ServiceDocker, "registry.internal/team/image")
	if err != nil || !ok {
		t.Fatalf("expected resolve to succeed, ok=%v err=%v", ok, err)
	}
	if resolved.Username != "svc-account" {
		t.Fatalf("expected username from fetched secret, got %q", resolved.Username)
	}
}

func TestAdd_RejectsInvalidSource(t *testing.T) {
	s := credentialstore.New(nil, nil)
	err := s.Add(credential.Source{Service: "BOGUS"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAdd_ReplacesExactPrefix(t *testing.T) {
	dir := t.TempDir()
	first := writeUserPass(t, dir, "first.txt", "alice", "pw1")
	second := writeUserPass(t, dir, "second.txt", "alice2", "pw2")

	s := credentialstore.New(nil, nil)
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceGit, URLPrefix: "https://example.com/",
		ReferenceKind: credential.ReferenceFilePath, Reference: first,
	})
	mustAdd(t, s, credential.Source{
		Service: credential.ServiceGit, URLPrefix: "https://example.com/",
		ReferenceKind: credential.ReferenceFilePath, Reference: second,
	})

	resolved, ok, err := s.Resolve(context.Background(), credential.ServiceGit, "https://example.com/repo")
	if err != nil || !ok {
		t.Fatalf("expected resolve to succeed, ok=%v err=%v", ok, err)
	}
	if resolved.Username != "alice2" {
		t.Fatalf("expected replaced source to win, got %q", resolved.Username)
	}
}

// --- Helpers ---

func mustAdd(t *testing.T, s *credentialstore.Store, src credential.Source) {
	t.Helper()
	if err := s.Add(src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
}

func writeUserPass(t *testing.T, dir, name, user, pass string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(user+"\n"+pass), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeSSHKey(t *testing.T, dir, name string) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pemKey, err := ssh.MarshalPrivateKey(key, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pem.EncodeToMemory(pemKey), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
