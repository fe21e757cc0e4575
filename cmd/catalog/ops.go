package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aluiziolira/go-books-catalog/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newOpsRouter serves metrics and operational views of the service.
func newOpsRouter(svc *catalog.Service, metrics *catalog.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := svc.Health()
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Diagnostics())
	})

	r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
		report := svc.LastReport()
		if report == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
		validate := true
		if v := req.URL.Query().Get("validate"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validate must be a boolean"})
				return
			}
			validate = parsed
		}
		if !svc.Refresh(validate) {
			body := map[string]string{"status": "failed"}
			if err := svc.LastError(); err != nil {
				body["error"] = err.Error()
			}
			writeJSON(w, http.StatusInternalServerError, body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}
