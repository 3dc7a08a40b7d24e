// Package gateway wraps outbound API calls with the session's bearer
// credential and a single refresh-and-retry on 401.
//
// One call moves through at most three steps: send, refresh-pending and
// retry-sent. Ordinary HTTP error statuses are returned as responses; only
// transport failures are errors.
package gateway

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/metrics"
)

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher mints a new access credential, or reports that none is available.
type Refresher interface {
	Refresh(ctx context.Context) (string, bool)
}

// Options are the per-call request options. Authorization is owned by the
// gateway; a caller-supplied value is discarded.
type Options struct {
	Header http.Header
	Body   io.Reader
	Method string
}

// Config holds gateway settings.
type Config struct {
	HTTPClient Doer
	Logger     *slog.Logger
	Metrics    *metrics.Collectors
	BaseURL    string
}

// Gateway is the authenticated request gateway.
type Gateway struct {
	client    Doer
	store     credential.Store
	refresher Refresher
	logger    *slog.Logger
	metrics   *metrics.Collectors
	baseURL   string
}

// New creates a gateway reading credentials from store and renewing them
// through refresher.
func New(store credential.Store, refresher Refresher, config Config) *Gateway {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Gateway{
		client:    config.HTTPClient,
		store:     store,
		refresher: refresher,
		logger:    config.Logger.With("component", "gateway"),
		metrics:   config.Metrics,
		baseURL:   strings.TrimSuffix(config.BaseURL, "/"),
	}
}

// Request sends one authenticated call. On 401 it refreshes once and, given a
// new credential, resends the identical request once and returns that second
// response whatever its status. Without a new credential the original 401 is
// returned untouched. The caller owns the returned body.
func (g *Gateway) Request(ctx context.Context, target string, opts Options) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	url := g.resolve(target)

	var body []byte
	if opts.Body != nil {
		var err error
		body, err = io.ReadAll(opts.Body)
		if err != nil {
			return nil, domain.NewInternalError("BODY_READ_FAILED", "Failed to read request body", err)
		}
	}

	header := make(http.Header)
	if opts.Header != nil {
		header = opts.Header.Clone()
	}
	header.Del("Authorization")

	if len(body) > 0 && header.Get("Content-Type") == "" {
		if form, ok := opts.Body.(*FormData); ok {
			header.Set("Content-Type", form.ContentType())
		} else {
			header.Set("Content-Type", "application/json")
		}
	}

	requestID := requestIDFor(ctx)
	header.Set(RequestIDHeader, requestID)
	logger := g.logger.With("request_id", requestID, "method", method, "target", target)

	access, _ := g.store.Get(ctx, credential.Access)
	resp, err := g.send(ctx, method, url, header, body, access)
	if err != nil {
		g.metrics.ObserveRequest(metrics.OutcomeNetworkError)
		logger.Warn("request failed", "error", err)
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		g.metrics.ObserveRequest(metrics.StatusOutcome(resp.StatusCode))
		logger.Debug("request completed", "status", resp.StatusCode)
		return resp, nil
	}

	newAccess, ok := g.refresher.Refresh(ctx)
	if !ok {
		g.metrics.ObserveRequest(metrics.OutcomeUnauthorized)
		logger.Info("unauthorized and no fresh credential available")
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	retry, err := g.send(ctx, method, url, header, body, newAccess)
	if err != nil {
		g.metrics.ObserveRequest(metrics.OutcomeNetworkError)
		logger.Warn("retry after refresh failed", "error", err)
		return nil, err
	}

	g.metrics.ObserveRequest(metrics.OutcomeRetried)
	logger.Info("request retried with refreshed credential", "status", retry.StatusCode)
	return retry, nil
}

// Get is shorthand for a GET request without body.
func (g *Gateway) Get(ctx context.Context, target string) (*http.Response, error) {
	return g.Request(ctx, target, Options{Method: http.MethodGet})
}

func (g *Gateway) send(ctx context.Context, method, url string, header http.Header, body []byte, access string) (*http.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, domain.NewInternalError("REQUEST_BUILD_FAILED", "Failed to create request", err)
	}

	req.Header = header.Clone()
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, domain.NewTransientNetworkError("REQUEST_FAILED", method+" "+url+" failed", err)
	}

	return resp, nil
}

func (g *Gateway) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return g.baseURL + target
}
