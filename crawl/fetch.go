package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Fetch errors. Every failure returned by HTTPFetcher wraps exactly one of
// them.
var (
	ErrNotFound  = errors.New("page not found")
	ErrTransport = errors.New("transport error")
)

// Fetcher retrieves and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Defaults for FetcherOptions.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "edition/1.0 (daily paper archiver)"
)

// RetryPolicy controls how often a failed page is requested again. Only
// transport failures and temporary HTTP statuses are retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy makes one extra attempt after half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       2,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// delay returns the wait before attempt+1.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		if p.BackoffMultiplier > 1 {
			d *= p.BackoffMultiplier
		}
	}
	return time.Duration(d)
}

// FetcherOptions configures an HTTPFetcher. Zero values select defaults.
type FetcherOptions struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
	Logger    logrus.FieldLogger
}

// HTTPFetcher fetches pages over HTTP and parses them with goquery. Each
// request gets its own timeout so one stalled page cannot hold up a crawl.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	retry     RetryPolicy
	log       logrus.FieldLogger
}

// NewHTTPFetcher creates a fetcher from opts.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPFetcher{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		log:       loggerOrDiscard(opts.Logger),
	}
}

// Fetch requests url, retrying per the fetcher's policy. A 404 response is
// reported as ErrNotFound and never retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	attempts := f.retry.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if !retryable || attempt == attempts {
			break
		}

		delay := f.retry.delay(attempt)
		f.log.WithFields(logrus.Fields{"url": url, "attempt": attempt, "delay": delay}).Debugf("Retrying page: %v", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// fetchOnce performs a single request. The boolean reports whether the
// failure is worth retrying.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*goquery.Document, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: failed to fetch %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, isRetryableStatus(resp.StatusCode), fmt.Errorf("%w: HTTP %d fetching %s", ErrTransport, resp.StatusCode, url)
	}

	// Older editions are not always served as UTF-8
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to decode %s: %w", ErrTransport, url, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: failed to parse %s: %w", ErrTransport, url, err)
	}

	return doc, false, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func loggerOrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
