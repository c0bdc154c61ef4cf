package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for analytics API requests.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_source_requests_total",
		Help: "Total analytics API requests by source kind and status",
	}, []string{"kind", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geosync_source_request_duration_seconds",
		Help:    "Analytics API request duration in seconds by source kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_source_errors_total",
		Help: "Total analytics API errors by failure class",
	}, []string{"class"})
)

// HTTPConfig holds the HTTP page fetcher configuration.
type HTTPConfig struct {
	// BaseURL of the analytics API, e.g. "https://analytics.internal".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per page request.
	Timeout time.Duration
}

// DefaultHTTPConfig returns a safe default configuration.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:   baseURL,
		UserAgent: "spatial-sync/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// HTTPFetcher fetches record pages from the analytics API over HTTP.
// It implements PageFetcher and performs no retries of its own.
type HTTPFetcher struct {
	httpClient *http.Client
	config     HTTPConfig
	logger     zerolog.Logger
}

// NewHTTPFetcher creates a new HTTP page fetcher.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "source").Logger(),
	}, nil
}

// pagePayload is the wire format of one analytics API page.
type pagePayload struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

// FetchPage fetches a single page of records for the given kind and cursor.
func (f *HTTPFetcher) FetchPage(ctx context.Context, kind Kind, cursor Cursor) (*Page, error) {
	endpoint, err := f.endpointFor(kind)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("offset", strconv.Itoa(cursor.Offset))
	q.Set("limit", strconv.Itoa(cursor.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := f.httpClient.Do(req)
	sourceRequestDuration.WithLabelValues(string(kind)).Observe(time.Since(startTime).Seconds())

	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(FailureTransient)).Inc()
		sourceRequestsTotal.WithLabelValues(string(kind), "network_error").Inc()
		f.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Int("offset", cursor.Offset).
			Msg("Page request failed")
		return nil, &FetchError{
			Class:   FailureTransient,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(string(kind), strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		sourceErrorsTotal.WithLabelValues(string(class)).Inc()
		f.logger.Warn().
			Str("kind", string(kind)).
			Int("offset", cursor.Offset).
			Int("status", resp.StatusCode).
			Str("class", string(class)).
			Msg("Page request error")
		return nil, &FetchError{
			Class:      class,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	var payload pagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		sourceErrorsTotal.WithLabelValues(string(FailurePermanent)).Inc()
		return nil, &FetchError{
			Class:      FailurePermanent,
			StatusCode: resp.StatusCode,
			Message:    "malformed page payload",
			Err:        err,
		}
	}

	f.logger.Debug().
		Str("kind", string(kind)).
		Int("offset", cursor.Offset).
		Int("records", len(payload.Data)).
		Int("total", payload.Total).
		Msg("Fetched page")

	return &Page{
		Records:    payload.Data,
		TotalCount: payload.Total,
	}, nil
}

// endpointFor maps a source kind to its API path.
func (f *HTTPFetcher) endpointFor(kind Kind) (string, error) {
	switch kind {
	case KindVendor:
		return f.config.BaseURL + "/api/v1/vendors", nil
	case KindOrder:
		return f.config.BaseURL + "/api/v1/orders", nil
	default:
		return "", &FetchError{
			Class:   FailurePermanent,
			Message: fmt.Sprintf("unknown source kind %q", kind),
		}
	}
}

// classifyStatus maps an HTTP status to a failure class. 5xx and 429 are
// retryable, everything else in the error range is not.
func classifyStatus(status int) FailureClass {
	switch {
	case status >= 500:
		return FailureTransient
	case status == http.StatusTooManyRequests:
		return FailureTransient
	default:
		return FailurePermanent
	}
}
