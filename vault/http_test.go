package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sellerlens/adsvault/domcache"
)

func testServer(t *testing.T) (*Vault, *httptest.Server) {
	t.Helper()
	v := testVault(t)
	r := chi.NewRouter()
	v.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return v, srv
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func TestRoutes(t *testing.T) {
	v, srv := testServer(t)
	ctx := context.Background()

	if _, err := v.SaveSellersJSON(ctx, domcache.FetchResult{
		Domain:     "example.com",
		Body:       []byte(`{"sellers":[{"seller_id":"1","name":"One","seller_type":"PUBLISHER"}]}`),
		StatusCode: 200,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Run("healthz", func(t *testing.T) {
		code, body := get(t, srv.URL+"/healthz")
		if code != http.StatusOK || body["status"] != "ok" {
			t.Errorf("got %d %v", code, body)
		}
	})

	t.Run("seller lookup", func(t *testing.T) {
		code, body := get(t, srv.URL+"/sellers/example.com/1")
		if code != http.StatusOK {
			t.Fatalf("got %d %v", code, body)
		}
		if body["name"] != "One" {
			t.Errorf("body: %v", body)
		}
	})

	t.Run("seller lookup miss", func(t *testing.T) {
		code, _ := get(t, srv.URL+"/sellers/example.com/404")
		if code != http.StatusNotFound {
			t.Errorf("got %d, want 404", code)
		}
	})

	t.Run("cache hit", func(t *testing.T) {
		code, body := get(t, srv.URL+"/cache/sellers-json/example.com")
		if code != http.StatusOK {
			t.Fatalf("got %d %v", code, body)
		}
		if body["status"] != "success" || body["fresh"] != true {
			t.Errorf("body: %v", body)
		}
	})

	t.Run("cache miss", func(t *testing.T) {
		code, _ := get(t, srv.URL+"/cache/ads-txt/never-fetched.example")
		if code != http.StatusNotFound {
			t.Errorf("got %d, want 404", code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		code, body := get(t, srv.URL+"/stats")
		if code != http.StatusOK {
			t.Fatalf("got %d %v", code, body)
		}
		if _, ok := body["sellers"]; !ok {
			t.Errorf("body: %v", body)
		}
	})
}
