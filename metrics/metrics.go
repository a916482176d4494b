package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SuccessfullyServed *prometheus.CounterVec
	ServedCached       *prometheus.CounterVec
	Failed             *prometheus.CounterVec
}

func InitializeMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	metrics := &Metrics{
		SuccessfullyServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "successfully_served",
			Help:        "Number of successfully served requests",
			ConstLabels: constLabels,
		}, []string{"type", "hostname", "url_hash"}), // url hash keeps cardinality bounded
		ServedCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "served_cached",
			Help:        "Number of served responses from cache",
			ConstLabels: constLabels,
		}, []string{"type", "hostname", "url_hash"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "failed_requests",
			Help:        "Number of requests answered with an error status",
			ConstLabels: constLabels,
		}, []string{"type", "status"}),
	}

	registry.MustRegister(metrics.SuccessfullyServed, metrics.ServedCached, metrics.Failed)

	return metrics
}

// Served counts a successful response, cached or not.
func (m *Metrics) Served(kind, hostname, url string, cached bool) {
	host, hash := CleanHostname(hostname), HashURL(url)
	m.SuccessfullyServed.WithLabelValues(kind, host, hash).Inc()
	if cached {
		m.ServedCached.WithLabelValues(kind, host, hash).Inc()
	}
}

// HashURL creates a short hash of the URL to reduce metric cardinality
func HashURL(url string) string {
	if len(url) > 100 {
		url = url[:100]
	}

	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:8])
}

// CleanHostname removes port numbers and normalizes hostname for metrics
func CleanHostname(hostname string) string {
	if hostname == "" {
		return "unknown"
	}

	if idx := strings.Index(hostname, ":"); idx != -1 {
		hostname = hostname[:idx]
	}

	if len(hostname) > 50 {
		hostname = hostname[:50]
	}

	return strings.ToLower(hostname)
}
