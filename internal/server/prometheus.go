// prometheus.go - Prometheus text exporter for the server counters.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"r2-share/internal/storage"
)

// breakerReporter is implemented by store clients that run behind a
// circuit breaker.
type breakerReporter interface {
	Breaker() *storage.CircuitBreaker
}

func writeMetric(b *strings.Builder, name, kind, help string, value any) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(b, "%s %v\n\n", name, value)
}

// metricsHandler serves GET /-/metrics.
func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshot := s.metrics.Snapshot()

		var output strings.Builder

		output.WriteString("# HELP share_info Application version info\n")
		output.WriteString("# TYPE share_info gauge\n")
		fmt.Fprintf(&output, "share_info{version=\"%s\"} 1\n\n", prometheusLabel(s.versionString()))

		writeMetric(&output, "share_requests_total", "counter", "Total number of HTTP requests", snapshot.RequestsTotal)
		writeMetric(&output, "share_request_errors_4xx_total", "counter", "HTTP responses with a 4xx status", snapshot.RequestErrors4xx)
		writeMetric(&output, "share_request_errors_5xx_total", "counter", "HTTP responses with a 5xx status", snapshot.RequestErrors5xx)

		writeMetric(&output, "share_uploads_total", "counter", "Total number of file uploads", snapshot.UploadsTotal)
		writeMetric(&output, "share_upload_bytes_total", "counter", "Bytes accepted by uploads", snapshot.UploadBytesTotal)
		writeMetric(&output, "share_upload_errors_total", "counter", "Failed uploads", snapshot.UploadErrorsTotal)

		writeMetric(&output, "share_downloads_total", "counter", "Total number of file downloads", snapshot.DownloadsTotal)
		writeMetric(&output, "share_download_bytes_total", "counter", "Bytes served by downloads", snapshot.DownloadBytesTotal)
		writeMetric(&output, "share_download_errors_total", "counter", "Failed downloads", snapshot.DownloadErrorsTotal)

		writeMetric(&output, "share_listings_total", "counter", "Listings served", snapshot.ListingsTotal)
		writeMetric(&output, "share_deletes_total", "counter", "Files deleted", snapshot.DeletesTotal)
		writeMetric(&output, "share_auth_failures_total", "counter", "Requests rejected by the Basic auth gate", snapshot.AuthFailuresTotal)

		if br, ok := s.store.(breakerReporter); ok {
			stats := br.Breaker().Stats()
			output.WriteString("# HELP share_store_circuit_state Store circuit breaker state\n")
			output.WriteString("# TYPE share_store_circuit_state gauge\n")
			for _, state := range []storage.CircuitState{storage.StateClosed, storage.StateOpen, storage.StateHalfOpen} {
				v := 0
				if stats.State == state.String() {
					v = 1
				}
				fmt.Fprintf(&output, "share_store_circuit_state{state=\"%s\"} %d\n", prometheusLabel(state.String()), v)
			}
			output.WriteString("\n")
			writeMetric(&output, "share_store_rejected_total", "counter", "Store calls rejected by the open circuit", stats.RejectedRequests)
		}

		writeMetric(&output, "share_uptime_seconds", "counter", "Application uptime in seconds",
			fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(output.String()))
	}
}

func (s *Server) versionString() string {
	if s.version == "" {
		return "dev"
	}
	return s.version
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	// Escape quotes and backslashes
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}
