package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"203.0.113.77"}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, srv.Client())
	ip, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ip != "203.0.113.77" {
		t.Errorf("ip = %q", ip)
	}
}

func TestResolve_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{"empty ip", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ip":"  "}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			r := NewResolver(srv.URL, srv.Client())
			if _, err := r.Resolve(context.Background()); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

func TestResolve_NoRetry(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, srv.Client())
	_, _ = r.Resolve(context.Background())
	if calls != 1 {
		t.Errorf("lookup called %d times, want exactly 1", calls)
	}
}

func TestNewResolver_Defaults(t *testing.T) {
	t.Parallel()

	r := NewResolver("", nil)
	if r.URL != DefaultLookupURL {
		t.Errorf("URL = %q", r.URL)
	}
	if r.Client == nil {
		t.Error("nil client not defaulted")
	}
}
