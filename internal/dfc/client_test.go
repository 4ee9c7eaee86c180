package dfc

import (
	"net"
	"testing"

	"github.com/svmk2808/dfshard/internal/config"
	"github.com/svmk2808/dfshard/internal/dfs"
	"github.com/svmk2808/dfshard/internal/dfsstore"
)

// startTestFleet brings up n real dfs.Server instances backed by their
// own temp-dir stores, listening on loopback, and returns a
// ClientConfig pointed at them. Stores and listeners are closed via
// t.Cleanup.
func startTestFleet(t *testing.T, n int) *config.ClientConfig {
	t.Helper()
	cfg := &config.ClientConfig{
		Username:     "alice",
		Password:     "hunter2",
		Completeness: config.Strict,
	}
	for i := 0; i < n; i++ {
		store, err := dfsstore.Open(t.TempDir())
		if err != nil {
			t.Fatalf("dfsstore.Open: %v", err)
		}
		t.Cleanup(func() { store.Close() })

		auth := &config.ServerConfig{Credentials: map[string]string{"alice": "hunter2"}}
		srv := dfs.New(store, auth)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("net.Listen: %v", err)
		}
		t.Cleanup(func() { ln.Close() })
		go srv.Serve(ln)

		cfg.Servers = append(cfg.Servers, config.ServerEntry{
			Name: ln.Addr().String(),
			Addr: ln.Addr().String(),
		})
	}
	return cfg
}

func TestPutGetRoundTripAcrossFleet(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("this is a moderately sized test file used to exercise the four-way split and reconstruction path end to end")
	if err := client.Put("docs", "report.txt", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := client.Get("docs", "report.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("round trip mismatch: got %q, want %q", got, data)
	}
}

func TestPutSurvivesOneServerDown(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	// Point one server entry at a closed port before the PUT is even
	// attempted, so that server is never dialed.
	cfg.Servers[0].Addr = "127.0.0.1:1"

	data := []byte("data written while one of the four storage servers is unreachable")
	if err := client.Put("docs", "report.txt", data); err != nil {
		t.Fatalf("Put with one server down: %v", err)
	}
}

func TestGetSurvivesOneServerDown(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("data that must survive the loss of exactly one of the four storage servers")
	if err := client.Put("docs", "report.txt", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Point one server entry at a closed port to simulate an outage.
	cfg.Servers[0].Addr = "127.0.0.1:1"

	got, err := client.Get("docs", "report.txt")
	if err != nil {
		t.Fatalf("Get with one server down: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("round trip mismatch with one server down: got %q, want %q", got, data)
	}
}

func TestListMergesAcrossServers(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := client.Put("docs", "a.txt", []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")); err != nil {
		t.Fatalf("Put a.txt: %v", err)
	}
	if err := client.Put("docs", "b.txt", []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")); err != nil {
		t.Fatalf("Put b.txt: %v", err)
	}
	files, subfolders, err := client.List("docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 || files[0] != "a.txt" || files[1] != "b.txt" {
		t.Errorf("List files = %v, want [a.txt b.txt]", files)
	}
	if len(subfolders) != 0 {
		t.Errorf("List subfolders = %v, want none", subfolders)
	}
}

func TestListReportsSubfolders(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir docs: %v", err)
	}
	if err := client.Mkdir("docs/reports"); err != nil {
		t.Fatalf("Mkdir docs/reports: %v", err)
	}
	files, subfolders, err := client.List("docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("List files = %v, want none", files)
	}
	if len(subfolders) != 1 || subfolders[0] != "reports" {
		t.Errorf("List subfolders = %v, want [reports]", subfolders)
	}
}

func TestGetFailsWhenTooManyServersDown(t *testing.T) {
	cfg := startTestFleet(t, 4)
	client := New(cfg)

	if err := client.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := client.Put("docs", "report.txt", []byte("some data that needs all pieces present to reconstruct")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg.Servers[0].Addr = "127.0.0.1:1"
	cfg.Servers[1].Addr = "127.0.0.1:1"

	if _, err := client.Get("docs", "report.txt"); err == nil {
		t.Errorf("expected Get to fail with two of four servers down, got nil error")
	}
}
