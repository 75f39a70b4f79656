package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// memTokenStore is an in-memory TokenStore for client tests.
type memTokenStore struct {
	mu     sync.Mutex
	tokens Tokens
	saves  int
}

func (m *memTokenStore) Load() (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *memTokenStore) Save(t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	m.saves++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, store TokenStore, excluded ...string) *Client {
	t.Helper()
	cfg := ClientConfig{
		BaseURL:      baseURL,
		AccountSlug:  "acme",
		SpaceID:      "space-1",
		ClientID:     "cid",
		ClientSecret: "secret",
		AccessToken:  "seed-access",
		RefreshToken: "seed-refresh",
		ExcludedIDs:  excluded,
		Throttle:     time.Millisecond,
	}
	c, err := NewClient(cfg, store, testLogger())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	c.backoffInterval = time.Millisecond
	return c
}

func writePage(w http.ResponseWriter, items []map[string]any, current, last int) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": items,
		"pagination": map[string]int{
			"currentPage": current,
			"lastPage":    last,
		},
	})
}

func TestTokenRefreshAndRetry(t *testing.T) {
	var refreshCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/integration/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "seed-refresh" || body["client_id"] != "cid" {
			t.Errorf("unexpected refresh payload: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
		})
	})
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writePage(w, []map[string]any{{"id": "a", "title": "A"}}, 1, 1)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenStore := &memTokenStore{}
	c := newTestClient(t, srv.URL, tokenStore)

	items, _, err := c.ListPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListPage() error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("unexpected items: %+v", items)
	}
	if refreshCalls != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", refreshCalls)
	}

	saved, _ := tokenStore.Load()
	if saved.Access != "fresh-access" || saved.Refresh != "fresh-refresh" {
		t.Errorf("refreshed tokens not persisted: %+v", saved)
	}
}

func TestTokenRefreshSingleRetry(t *testing.T) {
	// The API keeps rejecting even after a successful refresh; the
	// client must not attempt a second refresh for the same call.
	var refreshCalls, apiCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/integration/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "still-bad"})
	})
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	_, _, err := c.ListPage(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error when retry is also unauthorized")
	}
	if refreshCalls != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", refreshCalls)
	}
	if apiCalls != 2 {
		t.Errorf("expected original call plus one retry, got %d calls", apiCalls)
	}
}

func TestFailedRefreshReturnsOriginalResponse(t *testing.T) {
	var apiCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/integration/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		w.WriteHeader(http.StatusForbidden)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	_, _, err := c.ListPage(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error from forbidden response")
	}
	if apiCalls != 1 {
		t.Errorf("expected no retry after failed refresh, got %d calls", apiCalls)
	}
}

func TestTransientErrorsRetriedWithBackoff(t *testing.T) {
	var attempts int

	mux := http.NewServeMux()
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writePage(w, nil, 1, 1)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	if _, _, err := c.ListPage(context.Background(), 1); err != nil {
		t.Fatalf("ListPage() error after recoverable outage: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestTransientErrorsExhaustedIsFatal(t *testing.T) {
	var attempts int

	mux := http.NewServeMux()
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	if _, _, err := c.ListPage(context.Background(), 1); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxTransientRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxTransientRetries+1, attempts)
	}
}

func TestListPageFiltersExcludedIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, []map[string]any{
			{"id": "keep-1", "title": "Keep"},
			{"id": "banned", "title": "Banned"},
			{"id": "keep-2", "title": "Keep too", "isArchived": true},
		}, 1, 1)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{}, "banned")

	items, pagination, err := c.ListPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListPage() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after exclusion, got %d", len(items))
	}
	if items[0].ID != "keep-1" || items[1].ID != "keep-2" {
		t.Errorf("unexpected items: %+v", items)
	}
	if !items[1].Archived {
		t.Error("archived flag not mapped")
	}
	if pagination.LastPage != 1 {
		t.Errorf("pagination not decoded: %+v", pagination)
	}
}

func TestListAllAccumulatesPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/integrations/space/space-1/tree", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		writePage(w, []map[string]any{{"id": "item-" + page}}, atoi(page), 2)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	items, err := c.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items across pages, got %d: %+v", len(items), items)
	}
	if items[0].ID != "item-1" || items[1].ID != "item-2" {
		t.Errorf("unexpected page accumulation: %+v", items)
	}
}

func TestGetDetailsNotFoundIsSoft(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/ql/article", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	detail, err := c.GetDetails(context.Background(), "gone")
	if err != nil {
		t.Fatalf("expected soft failure for 404, got %v", err)
	}
	if detail.ID != "" {
		t.Errorf("expected zero detail, got %+v", detail)
	}
}

func TestGetDetailsNetworkErrorIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	c := newTestClient(t, srv.URL, &memTokenStore{})

	detail, err := c.GetDetails(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected soft failure for network error, got %v", err)
	}
	if detail.ID != "" {
		t.Errorf("expected zero detail, got %+v", detail)
	}
}

func TestGetDetailsServerErrorIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/ql/article", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	if _, err := c.GetDetails(context.Background(), "x"); err == nil {
		t.Fatal("expected fatal error for 500 response")
	}
}

func TestGetDetailsMalformedBodyIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/ql/article", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "x", "title": `)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	if _, err := c.GetDetails(context.Background(), "x"); err == nil {
		t.Fatal("expected fatal error for malformed 200 body")
	}
}

func TestGetDetailsDecodesEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/ql/article", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query struct {
				Filter map[string]string `json:"__filter"`
			} `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Query.Filter["id"] != "page-7" {
			t.Errorf("unexpected detail filter: %v", req.Query.Filter)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "page-7",
			"title":    "fallback title",
			"parentId": "sec-2",
			"breadcrumbs": []map[string]string{
				{"id": "root-1", "title": "Space"},
				{"id": "sec-2", "title": "Handbook"},
			},
			"editorContentObject": map[string]any{
				"content": map[string]any{
					"content": []map[string]any{{"text": "body text"}},
				},
			},
			"latestProperties": map[string]any{
				"title": map[string]string{"text": "Page Seven"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &memTokenStore{})

	detail, err := c.GetDetails(context.Background(), "page-7")
	if err != nil {
		t.Fatalf("GetDetails() error: %v", err)
	}
	if detail.Title != "Page Seven" {
		t.Errorf("title = %q, want latest-properties title", detail.Title)
	}
	if detail.ParentID != "sec-2" {
		t.Errorf("parent id = %q", detail.ParentID)
	}
	if len(detail.Breadcrumbs) != 2 || detail.Breadcrumbs[1].ID != "sec-2" {
		t.Errorf("breadcrumbs = %+v", detail.Breadcrumbs)
	}
	if got := ExtractEditorText(detail.Content); got != "body text" {
		t.Errorf("content text = %q", got)
	}
}

func atoi(s string) int {
	n := 0
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}
