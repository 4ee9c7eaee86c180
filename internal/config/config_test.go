package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadClientConfig(t *testing.T) {
	path := writeTemp(t, `
Server s1 127.0.0.1:9001
Server s2 127.0.0.1:9002
Server s3 127.0.0.1:9003
Server s4 127.0.0.1:9004
Username: alice
Password: hunter2
Completeness: legacy
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if len(cfg.Servers) != 4 {
		t.Errorf("len(Servers) = %d, want 4", len(cfg.Servers))
	}
	if cfg.Username != "alice" || cfg.Password != "hunter2" {
		t.Errorf("unexpected credentials: %+v", cfg)
	}
	if cfg.Completeness != Legacy {
		t.Errorf("Completeness = %q, want legacy", cfg.Completeness)
	}
}

func TestLoadClientConfigDefaultsToStrict(t *testing.T) {
	path := writeTemp(t, `
Server s1 127.0.0.1:9001
Server s2 127.0.0.1:9002
Server s3 127.0.0.1:9003
Server s4 127.0.0.1:9004
Username: bob
Password: pw
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.Completeness != Strict {
		t.Errorf("Completeness = %q, want strict default", cfg.Completeness)
	}
}

func TestLoadClientConfigRejectsTooManyServers(t *testing.T) {
	contents := ""
	for i := 0; i < MaxServers+1; i++ {
		contents += "Server s 127.0.0.1:9000\n"
	}
	contents += "Username: a\nPassword: b\n"
	path := writeTemp(t, contents)
	if _, err := LoadClientConfig(path); err == nil {
		t.Errorf("expected error for too many Server lines, got nil")
	}
}

func TestLoadClientConfigRequiresCredentials(t *testing.T) {
	path := writeTemp(t, "Server s1 127.0.0.1:9001\n")
	if _, err := LoadClientConfig(path); err == nil {
		t.Errorf("expected error for missing credentials, got nil")
	}
}

func TestLoadServerConfigAndAuthenticate(t *testing.T) {
	path := writeTemp(t, "alice hunter2\nbob swordfish\n")
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if !cfg.Authenticate("alice", "hunter2") {
		t.Errorf("expected alice/hunter2 to authenticate")
	}
	if cfg.Authenticate("alice", "wrong") {
		t.Errorf("expected wrong password to fail")
	}
	if cfg.Authenticate("nobody", "") {
		t.Errorf("expected unknown user to fail")
	}
}
