package smokerlog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultFetchTimeout = 5 * time.Second

	// Appliance status pages are a few kilobytes; anything past this is not
	// a status page.
	maxStatusPageSize = 1 << 20
)

// HTTPFetcher performs the bounded GET shared by the Stoker sources.
type HTTPFetcher struct {
	client  *http.Client
	limit   *rate.Limiter
	timeout time.Duration
	logger  logrus.FieldLogger
}

type FetcherOption func(f *HTTPFetcher) error

func NewHTTPFetcher(opts ...FetcherOption) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limit:   rate.NewLimiter(rate.Every(time.Second), 2),
		timeout: DefaultFetchTimeout,
		logger:  logrus.WithField("tag", "HTTPFetcher"),
	}

	for _, o := range opts {
		err := o(f)
		if err != nil {
			return nil, err
		}
	}

	return f, nil
}

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) error {
		if c == nil {
			return fmt.Errorf("http client must not be nil")
		}
		f.client = c
		return nil
	}
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		f.timeout = d
		return nil
	}
}

// WithLimiter replaces the limiter awaited before each request. A nil
// limiter disables rate limiting.
func WithLimiter(l *rate.Limiter) FetcherOption {
	return func(f *HTTPFetcher) error {
		f.limit = l
		return nil
	}
}

func WithFetcherLogger(l logrus.FieldLogger) FetcherOption {
	return func(f *HTTPFetcher) error {
		f.logger = l
		return nil
	}
}

func (f *HTTPFetcher) Timeout() time.Duration {
	return f.timeout
}

func (f *HTTPFetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Get fetches url and returns the body. The whole exchange, including the
// rate limiter wait, is bounded by the fetcher timeout.
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.logger.WithField("url", url).Debug("requesting data from host")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	if f.limit != nil {
		err = f.limit.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot await rate limit: %w", err)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusPageSize))
	if err != nil {
		return nil, fmt.Errorf("cannot read body: %w", err)
	}

	return body, nil
}
