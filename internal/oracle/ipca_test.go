package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

func sgsServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Query().Get("formato") != "json" {
			t.Errorf("missing formato=json, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("dataInicial") == "" || r.URL.Query().Get("dataFinal") == "" {
			t.Errorf("missing date range, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]sgsPoint{
			{Data: "01/01/2024", Valor: "0.5"},
			{Data: "01/02/2024", Valor: "1.0"},
			{Data: "01/03/2024", Valor: "0.2"},
		})
	}))
}

func newTestIPCA(url string, ttl time.Duration) *IPCA {
	o := NewIPCA(IPCAConfig{
		BaseURL:  url,
		BaseDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		CacheTTL: ttl,
	}, zap.NewNop())
	o.now = func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) }
	return o
}

func TestIPCA_Accumulated(t *testing.T) {
	var hits int32
	srv := sgsServer(t, &hits)
	defer srv.Close()

	got, err := newTestIPCA(srv.URL, 0).Accumulated(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 1.005 × 1.010 × 1.002 = 1.0170801
	if got != 1_017_080 {
		t.Errorf("got %d, want 1017080", got)
	}
}

func TestIPCA_FactorCompoundsWholeMonths(t *testing.T) {
	var hits int32
	srv := sgsServer(t, &hits)
	defer srv.Close()
	o := newTestIPCA(srv.URL, 0)

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := o.Factor(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	// January and February only.
	if got != 1_015_050 {
		t.Errorf("got %d, want 1015050", got)
	}

	same, err := o.Factor(context.Background(), from, from.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if same != bond.IndexScale {
		t.Errorf("same-month factor: got %d, want %d", same, bond.IndexScale)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected one request, got %d", hits)
	}
}

func TestIPCA_CachesSeries(t *testing.T) {
	var hits int32
	srv := sgsServer(t, &hits)
	defer srv.Close()
	o := newTestIPCA(srv.URL, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := o.Accumulated(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits)
	}
	if o.cache.len() != 1 {
		t.Errorf("expected 1 cache entry, got %d", o.cache.len())
	}
}

func TestIPCA_Info(t *testing.T) {
	var hits int32
	srv := sgsServer(t, &hits)
	defer srv.Close()

	info, err := newTestIPCA(srv.URL, 0).Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Monthly.String() != "0.2" {
		t.Errorf("monthly: got %s", info.Monthly)
	}
	if !info.LastUpdate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("last update: got %s", info.LastUpdate)
	}
	if !info.IsUpdated {
		t.Error("expected series to count as updated")
	}
}

func TestIPCA_UpstreamErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := newTestIPCA(srv.URL, 0).Accumulated(context.Background()); err == nil {
		t.Fatal("expected error for 502 upstream")
	}
}

func TestIPCA_OAuthClientCredentials(t *testing.T) {
	var sawBearer atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/series", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-123" {
			sawBearer.Store(true)
		}
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := NewIPCA(IPCAConfig{
		BaseURL:  srv.URL + "/series",
		BaseDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		OAuth: &clientcredentials.Config{
			ClientID:     "debenture",
			ClientSecret: "s3cret",
			TokenURL:     srv.URL + "/token",
		},
	}, zap.NewNop())

	got, err := o.Accumulated(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != bond.IndexScale {
		t.Errorf("empty series: got %d, want %d", got, bond.IndexScale)
	}
	if !sawBearer.Load() {
		t.Error("expected bearer token on series request")
	}
}

func TestSeriesCache_Evict(t *testing.T) {
	c := newSeriesCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.set("a", nil)
	c.set("b", nil)

	now = now.Add(2 * time.Minute)
	if _, ok := c.get("a"); ok {
		t.Error("expected miss after TTL")
	}
	if n := c.evict(); n != 2 {
		t.Errorf("evicted %d, want 2", n)
	}
	if c.len() != 0 {
		t.Errorf("len after evict: %d", c.len())
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(0).WithFactor(1_010_000)
	acc, _ := s.Accumulated(context.Background())
	if acc != bond.IndexScale {
		t.Errorf("accumulated: got %d", acc)
	}
	f, _ := s.Factor(context.Background(), time.Time{}, time.Time{})
	if f != 1_010_000 {
		t.Errorf("factor: got %d", f)
	}
}
