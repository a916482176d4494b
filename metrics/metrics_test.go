package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCleanHostname(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"Example.com:8080", "example.com"},
		{"media.example.com", "media.example.com"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := CleanHostname(tt.in); got != tt.want {
			t.Errorf("CleanHostname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashURL(t *testing.T) {
	a := HashURL("https://example.com/a.gif")
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a)
	}
	if a == HashURL("https://example.com/b.gif") {
		t.Error("expected different urls to hash differently")
	}
	long := "https://example.com/" + strings.Repeat("x", 200)
	if HashURL(long) != HashURL(long[:100]) {
		t.Error("expected urls to be truncated before hashing")
	}
}

func TestServed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := InitializeMetrics(registry, prometheus.Labels{"service": "test"})

	m.Served("image", "example.com", "https://example.com/a.gif", false)
	m.Served("image", "example.com", "https://example.com/a.gif", true)

	hash := HashURL("https://example.com/a.gif")
	if got := testutil.ToFloat64(m.SuccessfullyServed.WithLabelValues("image", "example.com", hash)); got != 2 {
		t.Errorf("expected 2 served, got %v", got)
	}
	if got := testutil.ToFloat64(m.ServedCached.WithLabelValues("image", "example.com", hash)); got != 1 {
		t.Errorf("expected 1 served from cache, got %v", got)
	}
}

func TestEngineRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := InitializeEngineMetrics(registry, nil)

	m.NoOutput()
	m.ToolInvocation("gifsicle", "ok", 20*time.Millisecond)
	m.ToolInvocation("gifsicle", "ok", 30*time.Millisecond)
	m.ToolInvocation("gif2webp", "timeout", time.Second)

	if got := testutil.ToFloat64(m.NoOutputTotal); got != 1 {
		t.Errorf("expected 1 no output, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolInvocations.WithLabelValues("gifsicle", "ok")); got != 2 {
		t.Errorf("expected 2 gifsicle invocations, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolInvocations.WithLabelValues("gif2webp", "timeout")); got != 1 {
		t.Errorf("expected 1 gif2webp timeout, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ToolDuration); got != 2 {
		t.Errorf("expected duration series for 2 tools, got %d", got)
	}
}

func TestTimeFunction(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := InitializePerformanceMetrics(registry, nil)

	got, err := TimeFunction(func() (int, error) { return 42, nil }, "transform", m)
	if err != nil || got != 42 {
		t.Fatalf("TimeFunction = %d, %v", got, err)
	}
	if n := testutil.CollectAndCount(m.ImageProcessTime); n != 1 {
		t.Errorf("expected one observed operation, got %d", n)
	}

	// nil metrics are allowed
	if _, err := TimeFunction(func() (string, error) { return "", nil }, "transform", nil); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry, labels := NewRegistry("gif-proxy")
	perf := InitializePerformanceMetrics(registry, labels)
	engine := InitializeEngineMetrics(registry, labels)
	engine.ToolInvocation("gifsicle", "ok", time.Millisecond)

	app := fiber.New()
	app.Use(perf.Middleware)
	RegisterAt(app, "/metrics", registry)
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	if _, err := app.Test(httptest.NewRequest("GET", "/missing", nil)); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{
		`gif_engine_tool_invocations_total{service="gif-proxy",status="ok",tool="gifsicle"} 1`,
		`request_duration_seconds_count{method="GET",service="gif-proxy",status="404"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
