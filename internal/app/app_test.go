package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newRepoServer serves a small fixed corpus where one object always fails
// checksum validation.
func newRepoServer(t *testing.T, objects []string, bad map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/count", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": len(objects)})
	})
	mux.HandleFunc("/objects", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconvAtoi(r.URL.Query().Get("offset"))
		limit, _ := strconvAtoi(r.URL.Query().Get("limit"))
		if offset > len(objects) {
			offset = len(objects)
		}
		end := offset + limit
		if end > len(objects) {
			end = len(objects)
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"objects": objects[offset:end]})
	})
	mux.HandleFunc("/objects/", func(w http.ResponseWriter, r *http.Request) {
		pid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/objects/"), "/checksum")
		_ = json.NewEncoder(w).Encode(map[string]bool{"match": !bad[pid]})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func strconvAtoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func writeAppConfig(t *testing.T, baseURL string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "logging": {"level": "error", "console": false, "file": {"enabled": false, "path": ""}},
  "schedule": {"enabled": false},
  "tick": {"fixed_limit": 10},
  "queue": {"driver": "memory"},
  "repository": {"base_url": %q},
  "ledger": {"driver": "memory"}
}`, baseURL)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppTickEndToEnd(t *testing.T) {
	t.Parallel()
	repo := newRepoServer(t, []string{"isl:1", "isl:2", "isl:3"}, map[string]bool{"isl:2": true})
	a, err := NewApp(writeAppConfig(t, repo.URL))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	if err := a.runTick(context.Background()); err != nil {
		t.Fatalf("runTick: %v", err)
	}

	st, err := a.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastTick == nil {
		t.Fatal("no last tick recorded")
	}
	if st.LastTick.Enqueued != 3 || st.LastTick.Succeeded != 2 || st.LastTick.Failed != 1 {
		t.Fatalf("tick = %+v", st.LastTick)
	}
	// The failing object stays queued for the next pass.
	if st.QueueDepth != 1 {
		t.Fatalf("queue depth = %d", st.QueueDepth)
	}
	if len(st.Unresolved) != 1 || string(st.Unresolved[0].ObjectID) != "isl:2" {
		t.Fatalf("unresolved = %+v", st.Unresolved)
	}
}

func TestAppSecondTickResolvesRepairedObject(t *testing.T) {
	t.Parallel()
	bad := map[string]bool{"isl:2": true}
	repo := newRepoServer(t, []string{"isl:1", "isl:2", "isl:3"}, bad)
	a, err := NewApp(writeAppConfig(t, repo.URL))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	if err := a.runTick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Simulate the object being repaired between ticks.
	delete(bad, "isl:2")
	if err := a.runTick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	st, err := a.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Unresolved) != 0 {
		t.Fatalf("unresolved after repair = %+v", st.Unresolved)
	}
	if st.QueueDepth != 0 {
		t.Fatalf("queue depth = %d", st.QueueDepth)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	body := `{"tick": {}, "queue": {"driver": "memory"}, "repository": {"base_url": "http://x"}, "ledger": {"driver": "memory"}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected config error")
	}
}
