package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"TrustRegistry/internal/config"
	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	errBodyTooLarge     = errors.New("body exceeds size limit")
)

// HTTPFetcher downloads documents over HTTP(S). Certificates are not
// verified: list operators often publish behind broken chains.
type HTTPFetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	maxBodyBytes int64
	userAgent    string
	logger       *slog.Logger
}

var (
	_ ports.Fetcher      = (*HTTPFetcher)(nil)
	_ ports.TimedFetcher = (*HTTPFetcher)(nil)
)

// NewHTTPFetcher builds a fetcher from config; a nil logger discards output.
func NewHTTPFetcher(cfg config.FetcherConfig, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
	}

	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPFetcher{
		client:       client,
		limiter:      limiter,
		maxBodyBytes: cfg.MaxBodyBytes,
		userAgent:    cfg.UserAgent,
		logger:       logger,
	}
}

// Fetch returns the body of a 200 response. Every failure is a *domain.DownloadError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, _, err := f.FetchTimed(ctx, url)
	return data, err
}

// FetchTimed is Fetch that also reports how long the transfer took, from
// sending the request to the end of the body. Time spent waiting on the rate
// limiter is not counted.
func (f *HTTPFetcher) FetchTimed(ctx context.Context, url string) ([]byte, time.Duration, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, 0, &domain.DownloadError{URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &domain.DownloadError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Since(started), &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, time.Since(started), &domain.DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.maxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBodyBytes+1)
	}
	data, err := io.ReadAll(body)
	elapsed := time.Since(started)
	if err != nil {
		return nil, elapsed, &domain.DownloadError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.maxBodyBytes > 0 && int64(len(data)) > f.maxBodyBytes {
		return nil, elapsed, &domain.DownloadError{URL: url, Err: errBodyTooLarge}
	}

	f.logger.Debug("document downloaded", "url", url, "bytes", len(data), "elapsed", elapsed)
	return data, elapsed, nil
}
