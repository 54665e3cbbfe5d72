package metrics

import (
	"errors"
	"sync"

	"github.com/dmmcquay/katago-retro/internal/retro"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultOnce      sync.Once
	defaultCollector *PrometheusCollector
)

// PrometheusCollector records server, engine and review metrics.
type PrometheusCollector struct {
	// MCP tools
	toolCallsTotal   *prometheus.CounterVec
	toolErrorsTotal  *prometheus.CounterVec
	toolDurationSecs *prometheus.HistogramVec

	// Rate limiting
	rateLimitHitsTotal   *prometheus.CounterVec
	rateLimitChecksTotal prometheus.Counter

	// KataGo engine
	engineStatus        *prometheus.GaugeVec
	engineRestartsTotal prometheus.Counter
	engineHealthChecks  *prometheus.CounterVec
	engineQueryDuration *prometheus.HistogramVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Cache
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheSize        prometheus.Gauge
	cacheItems       prometheus.Gauge

	// Reviews
	sessionsStarted  *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	faultsFound      *prometheus.CounterVec
	verdictsTotal    *prometheus.CounterVec
	resolutionsTotal *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
}

var _ retro.Observer = (*PrometheusCollector)(nil)

// NewPrometheusCollector returns the process-wide collector registered with
// the default Prometheus registry.
func NewPrometheusCollector() *PrometheusCollector {
	defaultOnce.Do(func() {
		defaultCollector = NewPrometheusCollectorWith(prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// NewPrometheusCollectorWith registers a new collector with reg.
func NewPrometheusCollectorWith(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		toolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_tool_calls_total",
				Help: "Total number of MCP tool calls",
			},
			[]string{"tool", "status"},
		),
		toolErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_tool_errors_total",
				Help: "Total number of MCP tool errors",
			},
			[]string{"tool", "error_type"},
		),
		toolDurationSecs: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "katago_retro_tool_duration_seconds",
				Help:    "Duration of MCP tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		rateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"client", "tool"},
		),
		rateLimitChecksTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "katago_retro_rate_limit_checks_total",
				Help: "Total number of rate limit checks",
			},
		),

		engineStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "katago_engine_status",
				Help: "Status of the KataGo engine (1=running, 0=stopped)",
			},
			[]string{"version"},
		),
		engineRestartsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "katago_engine_restarts_total",
				Help: "Total number of KataGo engine restarts",
			},
		),
		engineHealthChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_engine_health_checks_total",
				Help: "Total number of KataGo engine health checks",
			},
			[]string{"status"},
		),
		engineQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "katago_engine_query_duration_seconds",
				Help:    "Duration of KataGo engine queries in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"query_type"},
		),

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "katago_retro_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		cacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "katago_retro_cache_hits_total",
				Help: "Total number of engine cache hits",
			},
		),
		cacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "katago_retro_cache_misses_total",
				Help: "Total number of engine cache misses",
			},
		),
		cacheSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "katago_retro_cache_size_bytes",
				Help: "Current engine cache size in bytes",
			},
		),
		cacheItems: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "katago_retro_cache_items",
				Help: "Current number of items in the engine cache",
			},
		),

		sessionsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_sessions_started_total",
				Help: "Total number of review sessions started",
			},
			[]string{"color"},
		),
		sessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "katago_retro_sessions_active",
				Help: "Number of open review sessions",
			},
		),
		faultsFound: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_faults_found_total",
				Help: "Total number of faults found by the scanner",
			},
			[]string{"category"},
		),
		verdictsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_verdicts_total",
				Help: "Total number of judged attempts",
			},
			[]string{"verdict"},
		),
		resolutionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_resolutions_total",
				Help: "Total number of resolved faults",
			},
			[]string{"resolution"},
		),
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "katago_retro_commands_total",
				Help: "Total number of review commands by result",
			},
			[]string{"command", "result"},
		),
	}
}

// RecordToolCall records a tool call metric.
func (p *PrometheusCollector) RecordToolCall(tool, status string, durationSecs float64) {
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDurationSecs.WithLabelValues(tool).Observe(durationSecs)

	if status == "error" {
		p.toolErrorsTotal.WithLabelValues(tool, "general").Inc()
	}
}

// RecordRateLimit records a rate limit check.
func (p *PrometheusCollector) RecordRateLimit(client, tool string, hit bool) {
	p.rateLimitChecksTotal.Inc()
	if hit {
		p.rateLimitHitsTotal.WithLabelValues(client, tool).Inc()
	}
}

func (p *PrometheusCollector) RecordEngineStatus(running bool, version string) {
	value := 0.0
	if running {
		value = 1.0
	}
	p.engineStatus.WithLabelValues(version).Set(value)
}

func (p *PrometheusCollector) RecordEngineRestart() {
	p.engineRestartsTotal.Inc()
}

func (p *PrometheusCollector) RecordEngineHealthCheck(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.engineHealthChecks.WithLabelValues(status).Inc()
}

// RecordEngineQuery records the duration of an engine query of queryType
// ("analysis", "position" or "version").
func (p *PrometheusCollector) RecordEngineQuery(queryType string, durationSecs float64) {
	p.engineQueryDuration.WithLabelValues(queryType).Observe(durationSecs)
}

func (p *PrometheusCollector) RecordHTTPRequest(method, path, status string, durationSecs float64) {
	p.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(durationSecs)
}

func (p *PrometheusCollector) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

func (p *PrometheusCollector) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

func (p *PrometheusCollector) SetCacheStats(items, sizeBytes float64) {
	p.cacheItems.Set(items)
	p.cacheSize.Set(sizeBytes)
}

// RecordSessionStarted counts a new review and its faults.
func (p *PrometheusCollector) RecordSessionStarted(color retro.Player, faults []retro.Fault) {
	p.sessionsStarted.WithLabelValues(color.String()).Inc()
	p.sessionsActive.Inc()
	for _, f := range faults {
		p.faultsFound.WithLabelValues(f.Category).Inc()
	}
}

func (p *PrometheusCollector) RecordSessionClosed() {
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) OnVerdict(_ retro.Player, _ retro.Fault, verdict retro.Verdict) {
	p.verdictsTotal.WithLabelValues(verdict.String()).Inc()
}

func (p *PrometheusCollector) OnResolved(_ retro.Player, _ retro.Fault, resolution retro.Resolution) {
	p.resolutionsTotal.WithLabelValues(string(resolution)).Inc()
}

func (p *PrometheusCollector) OnCommand(command string, err error) {
	p.commandsTotal.WithLabelValues(command, commandResult(err)).Inc()
}

func commandResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, retro.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, retro.ErrSessionClosed):
		return "closed"
	default:
		return "error"
	}
}
