package domcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sellerlens/adsvault/storage"
)

func testCache(t *testing.T) (*Cache, storage.Provider) {
	t.Helper()
	p := storage.NewMemory()
	return NewSellersJSON(p), p
}

func TestSave_UpsertByDomain(t *testing.T) {
	c, p := testCache(t)
	ctx := context.Background()

	first, err := c.Save(ctx, &Entry{
		Domain:  "Example.com",
		Status:  StatusSuccess,
		Content: `{"sellers":[]}`,
	})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Domain != "example.com" {
		t.Errorf("domain not normalized: got %q", first.Domain)
	}

	second, err := c.Save(ctx, &Entry{
		Domain:       "EXAMPLE.COM",
		Status:       StatusError,
		ErrorMessage: "fetch timed out",
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	// Exactly one live row per domain, id and created_at preserved.
	if second.ID != first.ID {
		t.Errorf("id changed on upsert: %q -> %q", first.ID, second.ID)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("created_at changed on upsert: %d -> %d", first.CreatedAt, second.CreatedAt)
	}
	if second.Status != StatusError {
		t.Errorf("status: got %q", second.Status)
	}

	rows, err := p.Query(ctx, c.Table(), &storage.Query{
		Conds: []storage.Cond{storage.Eq("domain", "example.com")},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows for domain: got %d, want 1", len(rows))
	}
}

func TestGetByDomain(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	missing, err := c.GetByDomain(ctx, "nothing.example")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("get missing: expected nil")
	}

	if _, err := c.Save(ctx, &Entry{Domain: "pub.example", Status: StatusNotFound}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := c.GetByDomain(ctx, "  PUB.example  ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != StatusNotFound {
		t.Fatalf("get: got %+v", got)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		last   time.Time
		maxAge time.Duration
		want   bool
	}{
		{"fresh now", now, DefaultMaxAge, false},
		{"25h old, 24h max", now.Add(-25 * time.Hour), DefaultMaxAge, true},
		{"5h old, 6h max", now.Add(-5 * time.Hour), 6 * time.Hour, false},
		{"5h old, 4h max", now.Add(-5 * time.Hour), 4 * time.Hour, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsExpired(c.last.UnixMilli(), c.maxAge); got != c.want {
				t.Errorf("IsExpired: got %v, want %v", got, c.want)
			}
		})
	}
}

func TestSaveFetchResult_StatusMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name        string
		fr          FetchResult
		wantStatus  Status
		wantContent bool
	}{
		{
			"success",
			FetchResult{Domain: "a.example", Body: []byte(`{"sellers":[]}`), StatusCode: 200},
			StatusSuccess, true,
		},
		{
			"not found",
			FetchResult{Domain: "b.example", SourceURL: "https://b.example/sellers.json", StatusCode: 404},
			StatusNotFound, false,
		},
		{
			"server error",
			FetchResult{Domain: "c.example", SourceURL: "https://c.example/sellers.json", StatusCode: 503},
			StatusError, false,
		},
		{
			"transport failure",
			FetchResult{Domain: "d.example", Err: errors.New("dial tcp: i/o timeout")},
			StatusError, false,
		},
		{
			"invalid json",
			FetchResult{Domain: "e.example", Body: []byte("<html>not json</html>"), StatusCode: 200},
			StatusInvalidFormat, false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := testCache(t)
			got, err := c.SaveFetchResult(ctx, tc.fr)
			if err != nil {
				t.Fatalf("SaveFetchResult: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Errorf("status: got %q, want %q", got.Status, tc.wantStatus)
			}
			if tc.wantContent && got.Content == "" {
				t.Error("content missing on success")
			}
			if !tc.wantContent && got.Content != "" {
				t.Errorf("content present on %q: %q", got.Status, got.Content)
			}
			if tc.wantStatus != StatusSuccess && got.ErrorMessage == "" {
				t.Errorf("error_message missing on %q", got.Status)
			}
			if tc.wantStatus == StatusSuccess && got.ErrorMessage != "" {
				t.Errorf("error_message present on success: %q", got.ErrorMessage)
			}
		})
	}
}

func TestSaveFetchResult_AdsTxtAcceptsAnyText(t *testing.T) {
	p := storage.NewMemory()
	c := NewAdsTxt(p)

	got, err := c.SaveFetchResult(context.Background(), FetchResult{
		Domain:     "pub.example",
		Body:       []byte("google.com, pub-1234, DIRECT, f08c47fec0942fa0\n"),
		StatusCode: 200,
	})
	if err != nil {
		t.Fatalf("SaveFetchResult: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("status: got %q", got.Status)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Example.COM", "example.com"},
		{"  pub.example  ", "pub.example"},
		{"trailing.dot.", "trailing.dot"},
		{"MÜNCHEN.de", "xn--mnchen-3ya.de"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}
