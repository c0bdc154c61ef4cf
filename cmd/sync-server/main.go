package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/geoatlas/spatial-sync/pkg/engine"
	"github.com/geoatlas/spatial-sync/pkg/logging"
	"github.com/geoatlas/spatial-sync/pkg/source"
	"github.com/geoatlas/spatial-sync/pkg/spatial"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	// Configuration from environment
	sourceURL := getEnv("SOURCE_URL", "http://localhost:9000")
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")

	bounds, err := parseBounds(getEnv("REGION_BOUNDS", "35.5,51.0,35.9,51.6"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid REGION_BOUNDS")
	}

	fetcher, err := source.NewHTTPFetcher(source.HTTPConfig{
		BaseURL:   sourceURL,
		UserAgent: getEnv("USER_AGENT", "spatial-sync/0.1.0"),
		Timeout:   30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create fetcher")
	}

	cfg := engine.DefaultConfig(fetcher, bounds)

	if v := getEnv("VENDOR_REFRESH_INTERVAL", ""); v != "" {
		cfg.VendorRefreshInterval, err = time.ParseDuration(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid VENDOR_REFRESH_INTERVAL")
		}
	}
	if v := getEnv("ORDER_REFRESH_AT", ""); v != "" {
		cfg.OrderRefreshAt, err = engine.ParseTimeOfDay(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid ORDER_REFRESH_AT")
		}
	}
	if v := getEnv("CACHE_CLEANUP_AT", ""); v != "" {
		cfg.CleanupAt, err = engine.ParseTimeOfDay(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid CACHE_CLEANUP_AT")
		}
	}

	// Redis is optional: without it the engine runs on the memory tier only.
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		cancel()
		cfg.Redis = redisClient
		logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
	}

	eng, err := engine.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create engine")
	}
	if err := eng.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start engine")
	}
	defer eng.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/status", statusHandler(eng))
	mux.HandleFunc("/api/cache/stats", cacheStatsHandler(eng))
	mux.HandleFunc("/api/artifact", artifactHandler(eng, bounds))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting sync server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func statusHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Status())
	}
}

func cacheStatsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.CacheStats())
	}
}

// artifactHandler serves derived artifacts. Query parameters:
//
//	kind       coverage | heatmap (required)
//	resolution grid resolution (required)
//	bounds     minLat,minLon,maxLat,maxLon (default: configured region)
//	filter.*   attribute filters, e.g. filter.business_line=restaurant
func artifactHandler(eng *engine.Engine, defaultBounds spatial.Bounds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		kind := spatial.ArtifactKind(q.Get("kind"))
		if kind != spatial.KindCoverage && kind != spatial.KindHeatmap {
			http.Error(w, "kind must be coverage or heatmap", http.StatusBadRequest)
			return
		}

		resolution, err := strconv.Atoi(q.Get("resolution"))
		if err != nil {
			http.Error(w, "resolution must be an integer", http.StatusBadRequest)
			return
		}

		bounds := defaultBounds
		if v := q.Get("bounds"); v != "" {
			bounds, err = parseBounds(v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		var filters map[string]string
		for name, values := range q {
			if len(name) > 7 && name[:7] == "filter." && len(values) > 0 {
				if filters == nil {
					filters = make(map[string]string)
				}
				filters[name[7:]] = values[0]
			}
		}

		artifact, err := eng.GetArtifact(r.Context(), kind, bounds, resolution, filters)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrNotAvailable):
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
			default:
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}

		writeJSON(w, http.StatusOK, artifact)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseBounds parses "minLat,minLon,maxLat,maxLon".
func parseBounds(s string) (spatial.Bounds, error) {
	var b spatial.Bounds
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &b.MinLat, &b.MinLon, &b.MaxLat, &b.MaxLon); err != nil {
		return spatial.Bounds{}, fmt.Errorf("parse bounds %q: %w", s, err)
	}
	if !b.Valid() {
		return spatial.Bounds{}, fmt.Errorf("bounds %q are invalid", s)
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
