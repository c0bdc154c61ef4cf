// Package testutil provides testing utilities for the spatial sync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/geoatlas/spatial-sync/pkg/source"
)

// FailureRule injects failures for a specific page offset.
type FailureRule struct {
	// StatusCode returned while the rule is active.
	StatusCode int

	// Times is how often the page fails before succeeding.
	// Negative means fail forever.
	Times int

	// Delay before responding, to simulate slow pages.
	Delay time.Duration
}

// MockAnalytics is a configurable mock of the paginated analytics API.
type MockAnalytics struct {
	server *httptest.Server

	mu       sync.Mutex
	datasets map[source.Kind][]source.Record
	failures map[string]*FailureRule // "kind:offset" -> rule

	// RequestCount tracks all requests made to the server.
	RequestCount int
}

// NewMockAnalytics creates a new mock analytics server with empty datasets.
func NewMockAnalytics() *MockAnalytics {
	mock := &MockAnalytics{
		datasets: make(map[source.Kind][]source.Record),
		failures: make(map[string]*FailureRule),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/vendors", mock.pageHandler(source.KindVendor))
	mux.HandleFunc("/api/v1/orders", mock.pageHandler(source.KindOrder))
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the mock server URL.
func (m *MockAnalytics) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAnalytics) Close() {
	m.server.Close()
}

// SetDataset replaces the record set served for a kind.
func (m *MockAnalytics) SetDataset(kind source.Kind, records []source.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[kind] = records
}

// FailPage installs a failure rule for the page starting at offset.
func (m *MockAnalytics) FailPage(kind source.Kind, offset int, rule FailureRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rule
	m.failures[failureKey(kind, offset)] = &r
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAnalytics) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GenerateRecords produces n records spread across the given bounding box.
// Deterministic for a given n, handy for aggregation assertions.
func GenerateRecords(n int, minLat, minLon, maxLat, maxLon float64) []source.Record {
	records := make([]source.Record, n)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// Cell-midpoint spacing keeps every record strictly inside the
		// box; the max edges are exclusive in aggregation.
		frac := (float64(i) + 0.5) / float64(n)
		records[i] = source.Record{
			ID:        fmt.Sprintf("rec-%04d", i),
			Lat:       minLat + frac*(maxLat-minLat),
			Lon:       minLon + frac*(maxLon-minLon),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Attributes: map[string]string{
				"business_line": "restaurant",
			},
		}
	}
	return records
}

func (m *MockAnalytics) pageHandler(kind source.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}

		m.mu.Lock()
		m.RequestCount++
		records := m.datasets[kind]
		rule := m.failures[failureKey(kind, offset)]
		var failWith int
		var delay time.Duration
		if rule != nil && rule.Times != 0 {
			failWith = rule.StatusCode
			delay = rule.Delay
			if rule.Times > 0 {
				rule.Times--
			}
		}
		m.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if failWith != 0 {
			w.WriteHeader(failWith)
			fmt.Fprintf(w, `{"error": "injected failure"}`)
			return
		}

		end := offset + limit
		if offset > len(records) {
			offset = len(records)
		}
		if end > len(records) {
			end = len(records)
		}

		payload := struct {
			Data  []source.Record `json:"data"`
			Total int             `json:"total"`
		}{
			Data:  records[offset:end],
			Total: len(records),
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func failureKey(kind source.Kind, offset int) string {
	return fmt.Sprintf("%s:%d", kind, offset)
}
