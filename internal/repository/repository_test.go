package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

func testServer(t *testing.T, objects []string, bad map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/count", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"count": %d}`, len(objects))
	})
	mux.HandleFunc("/objects", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if offset > len(objects) {
			offset = len(objects)
		}
		if end > len(objects) {
			end = len(objects)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"objects": [`)
		for i, pid := range objects[offset:end] {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, "%q", pid)
		}
		fmt.Fprint(w, `]}`)
	})
	mux.HandleFunc("/objects/", func(w http.ResponseWriter, r *http.Request) {
		pid := r.URL.Path[len("/objects/"):]
		pid = pid[:len(pid)-len("/checksum")]
		fmt.Fprintf(w, `{"match": %t}`, !bad[pid])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestTotalObjectCount(t *testing.T) {
	t.Parallel()
	srv := testServer(t, []string{"isl:1", "isl:2", "isl:3"}, nil)
	c := newTestClient(t, srv.URL)

	n, err := c.TotalObjectCount(context.Background())
	if err != nil {
		t.Fatalf("TotalObjectCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestListObjectIdentifiersPaging(t *testing.T) {
	t.Parallel()
	srv := testServer(t, []string{"isl:1", "isl:2", "isl:3", "isl:4"}, nil)
	c := newTestClient(t, srv.URL)

	ids, err := c.ListObjectIdentifiers(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ListObjectIdentifiers: %v", err)
	}
	if len(ids) != 2 || ids[0] != "isl:2" || ids[1] != "isl:3" {
		t.Fatalf("ids = %v, want [isl:2 isl:3]", ids)
	}

	// Past the end of the corpus.
	ids, err = c.ListObjectIdentifiers(context.Background(), 10, 2)
	if err != nil {
		t.Fatalf("ListObjectIdentifiers past end: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids past end = %v, want none", ids)
	}
}

func TestValidateChecksum(t *testing.T) {
	t.Parallel()
	srv := testServer(t, []string{"isl:1", "isl:2"}, map[string]bool{"isl:2": true})
	c := newTestClient(t, srv.URL)

	ok, err := c.ValidateChecksum(context.Background(), "isl:1")
	if err != nil {
		t.Fatalf("ValidateChecksum: %v", err)
	}
	if !ok {
		t.Fatal("isl:1 should match")
	}

	ok, err = c.ValidateChecksum(context.Background(), "isl:2")
	if err != nil {
		t.Fatalf("ValidateChecksum: %v", err)
	}
	if ok {
		t.Fatal("isl:2 should mismatch")
	}
}

func TestServerErrorIsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	if _, err := c.ValidateChecksum(context.Background(), "isl:1"); err == nil {
		t.Fatal("expected error on 500, got nil (must not be treated as mismatch)")
	}
	if _, err := c.TotalObjectCount(context.Background()); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing base_url")
	}
}
