package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TrustRegistry/internal/config"
	"TrustRegistry/internal/domain"
)

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		Timeout:             500 * time.Millisecond,
		ConnectTimeout:      500 * time.Millisecond,
		TLSHandshakeTimeout: 500 * time.Millisecond,
		MaxRedirects:        2,
		MaxBodyBytes:        1024,
		UserAgent:           "TrustRegistry/test",
	}
}

func TestFetchSelfSignedTLS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TrustRegistry/test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("<TrustServiceStatusList/>"))
	}))
	defer srv.Close()

	data, err := NewHTTPFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/tl.xml")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "<TrustServiceStatusList/>" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestFetchFailures(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	isTimeout := func(err error) bool {
		var netErr net.Error
		return errors.As(err, &netErr) && netErr.Timeout()
	}

	tests := []struct {
		name       string
		path       string
		statusCode int
		cause      func(error) bool
	}{
		{name: "not found", path: "/missing", statusCode: http.StatusNotFound, cause: func(err error) bool { return err == nil }},
		{name: "redirect loop", path: "/loop", cause: func(err error) bool { return errors.Is(err, errTooManyRedirects) }},
		{name: "timeout", path: "/slow", cause: isTimeout},
		{name: "body too large", path: "/large", cause: func(err error) bool { return errors.Is(err, errBodyTooLarge) }},
	}

	f := NewHTTPFetcher(testConfig(), nil)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.Fetch(context.Background(), srv.URL+tt.path)
			var downloadErr *domain.DownloadError
			if !errors.As(err, &downloadErr) {
				t.Fatalf("expected DownloadError, got %T: %v", err, err)
			}
			if downloadErr.StatusCode != tt.statusCode {
				t.Fatalf("expected status %d, got %d: %v", tt.statusCode, downloadErr.StatusCode, err)
			}
			if downloadErr.URL != srv.URL+tt.path {
				t.Fatalf("unexpected url %s", downloadErr.URL)
			}
			if !tt.cause(downloadErr.Err) {
				t.Fatalf("unexpected cause: %v", downloadErr.Err)
			}
		})
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	data, err := NewHTTPFetcher(testConfig(), nil).Fetch(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "moved" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestFetchHonoursCancelledRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	f := NewHTTPFetcher(cfg, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("first fetch must use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, srv.URL)
	var downloadErr *domain.DownloadError
	if !errors.As(err, &downloadErr) {
		t.Fatalf("expected DownloadError while waiting for the limiter, got %v", err)
	}
}

func TestFetchTimedExcludesRateLimitWait(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RequestsPerSecond = 4
	f := NewHTTPFetcher(cfg, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	for i := 0; i < 4; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatalf("burst fetch %d: %v", i, err)
		}
	}

	started := time.Now()
	data, elapsed, err := f.FetchTimed(context.Background(), srv.URL)
	wall := time.Since(started)
	if err != nil {
		t.Fatalf("FetchTimed returned error: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("unexpected body %q", data)
	}
	if wall < 150*time.Millisecond {
		t.Fatalf("expected the limiter to delay the call, took %v", wall)
	}
	if elapsed <= 0 || elapsed > wall-100*time.Millisecond {
		t.Fatalf("transfer time %v must exclude the limiter wait (wall %v)", elapsed, wall)
	}
}
