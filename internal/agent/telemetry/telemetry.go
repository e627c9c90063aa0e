package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/healthtwin-labs/healthtwin/config"
)

// Telemetry records pipeline events and tracks LLM spend. Prometheus series
// are exposed through the server's /metrics endpoint.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	costTracker CostTracker
}

// CostTracker accumulates LLM usage across the process lifetime.
type CostTracker struct {
	TotalCost    float64
	TotalTokens  int64
	CostByModel  map[string]float64
	CostByStage  map[string]float64
	TurnsByRoute map[string]int64
}

// TurnEvent describes one completed pipeline turn.
type TurnEvent struct {
	SessionID string
	Route     string
	Duration  time.Duration
	Success   bool
	Error     string
}

// StageEvent describes one stage invocation within a turn.
type StageEvent struct {
	Stage      string
	Duration   time.Duration
	Success    bool
	Fallback   bool // structured parse failed, safe default substituted
	TokensUsed int64
	Cost       float64
	Model      string
}

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtwin_turns_total",
		Help: "Pipeline turns by route and outcome.",
	}, []string{"route", "outcome"})
	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthtwin_turn_duration_seconds",
		Help:    "Wall-clock duration of a full turn.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"route"})
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthtwin_stage_duration_seconds",
		Help:    "Wall-clock duration per pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})
	stageFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtwin_stage_fallbacks_total",
		Help: "Stage results substituted with a safe default after a parse failure.",
	}, []string{"stage"})
	validatorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtwin_validator_outcomes_total",
		Help: "Validator verdicts by tier and outcome.",
	}, []string{"tier", "outcome"})
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthtwin_llm_tokens_total",
		Help: "LLM tokens consumed per model.",
	}, []string{"model"})
	droppedPersists = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthtwin_dropped_persists_total",
		Help: "Session writes dropped because the async persist queue was full.",
	})
)

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costTracker: CostTracker{
			CostByModel:  make(map[string]float64),
			CostByStage:  make(map[string]float64),
			TurnsByRoute: make(map[string]int64),
		},
	}
}

// RecordTurn records a completed turn.
func (t *Telemetry) RecordTurn(ev TurnEvent) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !ev.Success {
		outcome = "failure"
		t.logger.Printf("turn failed: session=%s route=%s err=%s", ev.SessionID, ev.Route, ev.Error)
	}
	turnsTotal.WithLabelValues(ev.Route, outcome).Inc()
	turnDuration.WithLabelValues(ev.Route).Observe(ev.Duration.Seconds())

	t.mu.Lock()
	t.costTracker.TurnsByRoute[ev.Route]++
	t.mu.Unlock()
}

// RecordStage records one stage invocation.
func (t *Telemetry) RecordStage(ev StageEvent) {
	if !t.config.Enabled {
		return
	}
	stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
	if ev.Fallback {
		stageFallbacks.WithLabelValues(ev.Stage).Inc()
	}
	if ev.Model != "" && ev.TokensUsed > 0 {
		llmTokens.WithLabelValues(ev.Model).Add(float64(ev.TokensUsed))
	}
	if !t.config.CostTracking {
		return
	}
	t.mu.Lock()
	t.costTracker.TotalCost += ev.Cost
	t.costTracker.TotalTokens += ev.TokensUsed
	if ev.Model != "" {
		t.costTracker.CostByModel[ev.Model] += ev.Cost
	}
	t.costTracker.CostByStage[ev.Stage] += ev.Cost
	t.mu.Unlock()
}

// RecordValidation records a validator verdict.
func (t *Telemetry) RecordValidation(tier string, approved bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "approved"
	if !approved {
		outcome = "rejected"
	}
	validatorOutcomes.WithLabelValues(tier, outcome).Inc()
}

// RecordDroppedPersist counts one abandoned fire-and-forget session write.
func (t *Telemetry) RecordDroppedPersist() {
	if !t.config.Enabled {
		return
	}
	droppedPersists.Inc()
}

// CostSummary returns a copy of the accumulated spend.
func (t *Telemetry) CostSummary() CostTracker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := CostTracker{
		TotalCost:    t.costTracker.TotalCost,
		TotalTokens:  t.costTracker.TotalTokens,
		CostByModel:  make(map[string]float64, len(t.costTracker.CostByModel)),
		CostByStage:  make(map[string]float64, len(t.costTracker.CostByStage)),
		TurnsByRoute: make(map[string]int64, len(t.costTracker.TurnsByRoute)),
	}
	for k, v := range t.costTracker.CostByModel {
		out.CostByModel[k] = v
	}
	for k, v := range t.costTracker.CostByStage {
		out.CostByStage[k] = v
	}
	for k, v := range t.costTracker.TurnsByRoute {
		out.TurnsByRoute[k] = v
	}
	return out
}
