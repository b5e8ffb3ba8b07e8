package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
)

// Comprehensive monitoring: application metrics, system metrics, capture
// session metrics, health checks, and a Prometheus-compatible endpoint.

type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

type Metric struct {
	Name         string
	Type         MetricType
	Help         string
	Value        float64
	Labels       map[string]string
	Buckets      []float64
	Observations []float64
	mutex        sync.RWMutex
}

type MetricsRegistry struct {
	metrics sync.Map
	mu      sync.RWMutex
}

var globalRegistry = &MetricsRegistry{}

// GetRegistry returns the global metrics registry
func GetRegistry() *MetricsRegistry {
	return globalRegistry
}

// Counter creates or retrieves a counter metric
func (r *MetricsRegistry) Counter(name, help string, labels map[string]string) *Metric {
	key := metricKey(name, labels)
	if val, ok := r.metrics.Load(key); ok {
		return val.(*Metric)
	}

	metric := &Metric{Name: name, Type: Counter, Help: help, Labels: labels}
	r.metrics.Store(key, metric)
	return metric
}

// Gauge creates or retrieves a gauge metric
func (r *MetricsRegistry) Gauge(name, help string, labels map[string]string) *Metric {
	key := metricKey(name, labels)
	if val, ok := r.metrics.Load(key); ok {
		return val.(*Metric)
	}

	metric := &Metric{Name: name, Type: Gauge, Help: help, Labels: labels}
	r.metrics.Store(key, metric)
	return metric
}

// Histogram creates or retrieves a histogram metric
func (r *MetricsRegistry) Histogram(name, help string, labels map[string]string, buckets []float64) *Metric {
	key := metricKey(name, labels)
	if val, ok := r.metrics.Load(key); ok {
		return val.(*Metric)
	}

	if buckets == nil {
		buckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	}

	metric := &Metric{
		Name:         name,
		Type:         Histogram,
		Help:         help,
		Labels:       labels,
		Buckets:      buckets,
		Observations: make([]float64, 0),
	}
	r.metrics.Store(key, metric)
	return metric
}

func (m *Metric) Inc() { m.Add(1) }

func (m *Metric) Add(value float64) {
	if m.Type != Counter {
		return
	}
	m.mutex.Lock()
	m.Value += value
	m.mutex.Unlock()
}

func (m *Metric) Set(value float64) {
	if m.Type != Gauge {
		return
	}
	m.mutex.Lock()
	m.Value = value
	m.mutex.Unlock()
}

func (m *Metric) Observe(value float64) {
	if m.Type != Histogram {
		return
	}
	m.mutex.Lock()
	m.Observations = append(m.Observations, value)
	if len(m.Observations) > 1000 {
		m.Observations = m.Observations[len(m.Observations)-1000:]
	}
	m.mutex.Unlock()
}

// Timer returns a function that records elapsed milliseconds on a histogram
// when called, typically via defer.
func (m *Metric) Timer() func() {
	start := time.Now()
	return func() {
		m.Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (m *Metric) Get() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.Value
}

func metricKey(name string, labels map[string]string) string {
	key := name
	for k, v := range labels {
		key += fmt.Sprintf("_%s_%s", k, v)
	}
	return key
}

// ApplicationMetrics bundles every gauge/counter/histogram this capture
// engine reports: session lifecycle, frame/encoder/audio pipeline health,
// and process-level system metrics.
type ApplicationMetrics struct {
	SessionsActive       *Metric
	JoinDuration         *Metric
	JoinFailuresTotal    *Metric
	FrameCaptureLatency  *Metric
	FramesCapturedTotal  *Metric
	EncoderDuration      *Metric
	EncoderFailuresTotal *Metric
	AudioDeviceFailures  *Metric
	CaptionsAppended     *Metric

	MemoryUsage    *Metric
	GoroutineCount *Metric
	GCDuration     *Metric
}

// NewApplicationMetrics initializes every capture-engine metric against the
// global registry.
func NewApplicationMetrics() *ApplicationMetrics {
	registry := GetRegistry()

	return &ApplicationMetrics{
		SessionsActive: registry.Gauge(
			"capture_sessions_active", "Number of live capture sessions", map[string]string{}),
		JoinDuration: registry.Histogram(
			"capture_join_duration_milliseconds", "Time from Join call to in_meeting",
			map[string]string{}, []float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}),
		JoinFailuresTotal: registry.Counter(
			"capture_join_failures_total", "Total failed Join attempts", map[string]string{}),
		FrameCaptureLatency: registry.Histogram(
			"capture_frame_latency_milliseconds", "Per-tick screenshot latency",
			map[string]string{}, []float64{10, 25, 50, 100, 250, 500, 1000}),
		FramesCapturedTotal: registry.Counter(
			"capture_frames_captured_total", "Total frames written to disk", map[string]string{}),
		EncoderDuration: registry.Histogram(
			"capture_encoder_duration_milliseconds", "FFmpeg mux duration",
			map[string]string{}, []float64{1000, 5000, 10000, 30000, 60000, 120000, 300000}),
		EncoderFailuresTotal: registry.Counter(
			"capture_encoder_failures_total", "Total EncoderFailure outcomes", map[string]string{}),
		AudioDeviceFailures: registry.Counter(
			"capture_audio_device_failures_total", "Total AudioUnavailable outcomes", map[string]string{}),
		CaptionsAppended: registry.Counter(
			"capture_captions_appended_total", "Total caption segments appended across sessions", map[string]string{}),

		MemoryUsage:    registry.Gauge("memory_usage_bytes", "Memory usage in bytes", map[string]string{}),
		GoroutineCount: registry.Gauge("goroutine_count_total", "Number of goroutines", map[string]string{}),
		GCDuration: registry.Histogram(
			"gc_duration_milliseconds", "Garbage collection duration in milliseconds",
			map[string]string{}, []float64{1, 5, 10, 25, 50, 100, 250, 500}),
	}
}

// SystemMetricsCollector periodically samples process-level metrics.
type SystemMetricsCollector struct {
	metrics *ApplicationMetrics
}

func NewSystemMetricsCollector(metrics *ApplicationMetrics) *SystemMetricsCollector {
	return &SystemMetricsCollector{metrics: metrics}
}

func (c *SystemMetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

func (c *SystemMetricsCollector) collectMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.metrics.MemoryUsage.Set(float64(memStats.Alloc))
	c.metrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	if memStats.NumGC > 0 {
		lastGC := time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256])
		c.metrics.GCDuration.Observe(float64(lastGC.Nanoseconds()) / 1000000)
	}
}

// PrometheusHandler serves every registered metric in Prometheus text
// exposition format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		globalRegistry.metrics.Range(func(key, value interface{}) bool {
			writePrometheusMetric(w, value.(*Metric))
			return true
		})
	}
}

func writePrometheusMetric(w http.ResponseWriter, metric *Metric) {
	fmt.Fprintf(w, "# HELP %s %s\n", metric.Name, metric.Help)
	fmt.Fprintf(w, "# TYPE %s %s\n", metric.Name, string(metric.Type))

	labels := formatLabels(metric.Labels)

	switch metric.Type {
	case Counter, Gauge:
		metric.mutex.RLock()
		fmt.Fprintf(w, "%s%s %g\n", metric.Name, labels, metric.Value)
		metric.mutex.RUnlock()

	case Histogram:
		metric.mutex.RLock()
		observations := make([]float64, len(metric.Observations))
		copy(observations, metric.Observations)
		metric.mutex.RUnlock()

		bucketCounts := make(map[float64]int)
		for _, bucket := range metric.Buckets {
			bucketCounts[bucket] = 0
		}

		total := 0
		sum := float64(0)
		for _, obs := range observations {
			total++
			sum += obs
			for _, bucket := range metric.Buckets {
				if obs <= bucket {
					bucketCounts[bucket]++
				}
			}
		}

		cumulative := 0
		for _, bucket := range metric.Buckets {
			cumulative += bucketCounts[bucket]
			fmt.Fprintf(w, "%s_bucket%s %d\n", metric.Name, formatLabelsWithBucket(metric.Labels, bucket), cumulative)
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", metric.Name, formatLabelsWithBucket(metric.Labels, "+Inf"), total)
		fmt.Fprintf(w, "%s_sum%s %g\n", metric.Name, labels, sum)
		fmt.Fprintf(w, "%s_count%s %d\n", metric.Name, labels, total)
	}

	fmt.Fprintln(w)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	first := true
	for k, v := range labels {
		if !first {
			result += ","
		}
		result += fmt.Sprintf(`%s="%s"`, k, v)
		first = false
	}
	result += "}"
	return result
}

func formatLabelsWithBucket(labels map[string]string, bucket interface{}) string {
	newLabels := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		newLabels[k] = v
	}
	newLabels["le"] = fmt.Sprintf("%v", bucket)
	return formatLabels(newLabels)
}

// HealthChecker aggregates named boolean checks (registry reachable, ffmpeg
// present, browser factory alive) into a single /health response.
type HealthChecker struct {
	checks map[string]func() error
	mu     sync.RWMutex
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]func() error)}
}

func (h *HealthChecker) AddCheck(name string, check func() error) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

func (h *HealthChecker) RemoveCheck(name string) {
	h.mu.Lock()
	delete(h.checks, name)
	h.mu.Unlock()
}

func (h *HealthChecker) Check() map[string]error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	results := make(map[string]error, len(h.checks))
	for name, check := range h.checks {
		results[name] = check()
	}
	return results
}

func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := h.Check()
		healthy := true
		for _, err := range results {
			if err != nil {
				healthy = false
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		fmt.Fprint(w, `{"status":"`)
		if healthy {
			fmt.Fprint(w, "healthy")
		} else {
			fmt.Fprint(w, "unhealthy")
		}
		fmt.Fprint(w, `","timestamp":"`, time.Now().Format(time.RFC3339), `","checks":{`)
		first := true
		for name, result := range results {
			if !first {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `"%s":{"status":"`, name)
			if result != nil {
				fmt.Fprintf(w, `unhealthy","error":"%s"}`, result.Error())
			} else {
				fmt.Fprint(w, `healthy"}`)
			}
			first = false
		}
		fmt.Fprint(w, "}}")
	}
}

// MonitoringServer exposes /health, /metrics and /ready on its own port,
// separate from the operator-facing session HTTP server.
type MonitoringServer struct {
	healthChecker *HealthChecker
	metrics       *ApplicationMetrics
	server        *http.Server
}

func NewMonitoringServer(port int, healthChecker *HealthChecker, metrics *ApplicationMetrics) *MonitoringServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/metrics", PrometheusHandler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready")
	})

	return &MonitoringServer{
		healthChecker: healthChecker,
		metrics:       metrics,
		server:        &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
	}
}

func (s *MonitoringServer) Start() error {
	logger.Info("Starting monitoring server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *MonitoringServer) Stop(ctx context.Context) error {
	logger.Info("Stopping monitoring server")
	return s.server.Shutdown(ctx)
}
