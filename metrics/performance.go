package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type PerformanceMetrics struct {
	RequestDuration  *prometheus.HistogramVec
	ImageProcessTime *prometheus.HistogramVec
	HTTPRequestTime  *prometheus.HistogramVec
	ImageSizeBytes   *prometheus.HistogramVec
}

func InitializePerformanceMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "request_duration_seconds",
			Help:        "Request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "status"}),

		ImageProcessTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_process_time_seconds",
			Help:        "Image processing time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation"}),

		HTTPRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_time_seconds",
			Help:        "Source fetch time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"hostname"}),

		ImageSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_size_bytes",
			Help:        "Image size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{1024, 10240, 102400, 1048576, 10485760, 104857600}, // 1KB to 100MB
		}, []string{"format"}),
	}

	registry.MustRegister(
		metrics.RequestDuration,
		metrics.ImageProcessTime,
		metrics.HTTPRequestTime,
		metrics.ImageSizeBytes,
	)

	return metrics
}

// TimeFunction measures the execution time of a function
func TimeFunction[T any](fn func() (T, error), operation string, metrics *PerformanceMetrics) (T, error) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if metrics != nil {
		metrics.ImageProcessTime.WithLabelValues(operation).Observe(duration)
	}

	return result, err
}

// TimeHTTPRequest measures source fetch duration
func TimeHTTPRequest(hostname string, metrics *PerformanceMetrics) func() {
	start := time.Now()
	return func() {
		if metrics != nil {
			metrics.HTTPRequestTime.WithLabelValues(CleanHostname(hostname)).Observe(time.Since(start).Seconds())
		}
	}
}

// ObserveImageSize records the size of a served image by format, e.g. "gif".
func (m *PerformanceMetrics) ObserveImageSize(format string, size int) {
	if m == nil {
		return
	}
	m.ImageSizeBytes.WithLabelValues(format).Observe(float64(size))
}

// Middleware records the duration of every request by method and status.
func (m *PerformanceMetrics) Middleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	m.RequestDuration.WithLabelValues(c.Method(), strconv.Itoa(status)).Observe(time.Since(start).Seconds())

	return err
}
