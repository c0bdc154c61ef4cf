// Package metrics provides the centralized Prometheus metrics registry for
// the sync engine. All metrics are defined in their respective packages
// (source, collector, cache, scheduler) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sync engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Source Metrics (pkg/source):
//   - geosync_source_requests_total{kind, status} (Counter): Analytics API page requests by data kind and HTTP status
//   - geosync_source_request_duration_seconds{kind} (Histogram): Page request duration by data kind
//   - geosync_source_errors_total{class} (Counter): Fetch errors by failure class (transient, permanent)
//
// Collection Metrics (pkg/collector):
//   - geosync_collect_runs_total{kind, outcome} (Counter): Collection runs by kind and outcome (success, partial, failed, cancelled)
//   - geosync_collect_pages_total{kind, outcome} (Counter): Pages by outcome (fetched, failed)
//   - geosync_collect_retries_total{kind} (Counter): Per-page retry attempts
//   - geosync_collect_duration_seconds{kind} (Histogram): Full collection run duration
//
// Cache Metrics (pkg/cache):
//   - geosync_cache_hits_total{kind, tier} (Counter): Cache hits by artifact kind and tier (memory, redis)
//   - geosync_cache_misses_total{kind} (Counter): Cache misses by artifact kind
//   - geosync_cache_evictions_total{kind} (Counter): Capacity evictions by artifact kind
//   - geosync_cache_entries{kind} (Gauge): Current entry count by artifact kind
//   - geosync_cache_errors_total{operation} (Counter): Persistent tier errors by operation (get, set, delete)
//
// Scheduler Metrics (pkg/scheduler):
//   - geosync_job_runs_total{job, outcome} (Counter): Job executions by name and outcome (success, failure)
//   - geosync_job_duration_seconds{job} (Histogram): Job execution duration
//   - geosync_job_skipped_total{job} (Counter): Due runs dropped because the previous run was still in flight
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(geosync_cache_hits_total[5m])) /
//   (sum(rate(geosync_cache_hits_total[5m])) + sum(rate(geosync_cache_misses_total[5m])))
//
//   # Partial Collection Rate
//   rate(geosync_collect_runs_total{outcome="partial"}[1h])
//
//   # Overlapping Schedule Pressure
//   rate(geosync_job_skipped_total[1h]) > 0
//
//   # P95 Page Fetch Latency
//   histogram_quantile(0.95, rate(geosync_source_request_duration_seconds_bucket[5m]))
