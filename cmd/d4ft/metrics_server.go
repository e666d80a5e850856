package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dacid44/d4ft4/internal/logging"
)

// serveMetrics blocks serving Prometheus's /metrics endpoint on address
// until the listener fails. Callers run it in its own goroutine.
func serveMetrics(address string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("serving metrics", logging.KeyAddress, address)
	if err := http.ListenAndServe(address, mux); err != nil {
		log.Error("metrics server stopped", logging.KeyError, err)
	}
}
