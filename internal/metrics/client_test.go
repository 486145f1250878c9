package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloudspend/internal/core"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret", RateLimit: 1000, RateBurst: 10}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCount(t *testing.T) {
	var gotPath, gotKey string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey = r.URL.Path, r.Header.Get("X-Dataverse-key")
		fmt.Fprint(w, `{"status":"OK","data":{"count":42}}`)
	})

	m, _ := core.ParseMonth("2024-03")
	n, err := c.Count(context.Background(), MetricDatasets, m)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 42 {
		t.Fatalf("got %d", n)
	}
	if gotPath != "/api/info/metrics/datasets/toMonth/2024-03" {
		t.Fatalf("path: %s", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("token header: %q", gotKey)
	}
}

func TestCountErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>")
		},
		"no count": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"ERROR","message":"bad metric"}`)
		},
	}
	m, _ := core.ParseMonth("2024-03")
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newServer(t, h).Count(context.Background(), MetricFiles, m)
			if !errors.Is(err, core.ErrUpstreamAPI) {
				t.Fatalf("expected ErrUpstreamAPI, got %v", err)
			}
		})
	}
}

func TestBySubject(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/info/metrics/datasets/bySubject" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"status":"OK","data":[{"subject":"Social Sciences","count":12},{"subject":"Other","count":3}]}`)
	})
	got, err := c.BySubject(context.Background())
	if err != nil {
		t.Fatalf("by subject: %v", err)
	}
	if len(got) != 2 || got[0].Subject != "Social Sciences" || got[0].Count != 12 {
		t.Fatalf("got %+v", got)
	}
}

func TestCollect(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		if strings.Contains(r.URL.Path, "/downloads/") && strings.HasSuffix(r.URL.Path, "2024-02") {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":{"count":7}}`)
	})

	from, _ := core.ParseMonth("2024-01")
	to, _ := core.ParseMonth("2024-02")
	rows, err := c.Collect(context.Background(), from, to)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(rows) != 2 || calls != 6 {
		t.Fatalf("rows %d calls %d", len(rows), calls)
	}
	if rows[0].Downloads == nil || *rows[0].Downloads != 7 {
		t.Fatalf("january downloads: %v", rows[0].Downloads)
	}
	if rows[1].Downloads != nil {
		t.Fatalf("failed lookup should be nil")
	}
	if rows[1].Datasets == nil || *rows[1].Datasets != 7 {
		t.Fatalf("february datasets: %v", rows[1].Datasets)
	}
}

func TestCollectCancelled(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"count":1}}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	from, _ := core.ParseMonth("2024-01")
	if _, err := c.Collect(ctx, from, from); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "dataverse.example.edu", "ftp://x"} {
		if _, err := New(Config{BaseURL: u}, nil); !errors.Is(err, core.ErrConfigMissing) {
			t.Fatalf("%q: expected ErrConfigMissing, got %v", u, err)
		}
	}
}
