package core

import (
	"context"
	"fmt"
	"time"

	"github.com/healthtwin-labs/healthtwin/internal/profile"
)

// Route is the dispatcher's classification of a turn. It selects which
// pipeline stages run.
type Route string

const (
	RouteGreeting Route = "greeting"
	RouteQuick    Route = "quick"
	RouteFollowup Route = "followup"
	RouteFull     Route = "full"
	RoutePhoto    Route = "photo"
)

// StageID identifies one reasoning step in a route's sequence.
type StageID string

const (
	StageAnalyzer  StageID = "analyzer"
	StagePlanner   StageID = "planner"
	StageValidator StageID = "validator"
	StageMonitor   StageID = "monitor"
	StagePhoto     StageID = "photo"
)

// routeStages maps each route to its ordered stage sequence. Adding or
// removing a stage from a route is a data change here, not a control-flow
// edit in the orchestrator.
var routeStages = map[Route][]StageID{
	RouteFull:     {StageAnalyzer, StagePlanner, StageValidator, StageMonitor},
	RouteFollowup: {StagePlanner, StageValidator, StageMonitor},
	RouteQuick:    {StageMonitor},
	RouteGreeting: {StageMonitor},
	RoutePhoto:    {StagePhoto},
}

// stageIndex locates a stage within a route's sequence, -1 when absent.
func stageIndex(stages []StageID, target StageID) int {
	for i, s := range stages {
		if s == target {
			return i
		}
	}
	return -1
}

// TurnRequest is one incoming user turn.
type TurnRequest struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	ImageB64  string    `json:"image,omitempty"` // base64 JPEG/PNG payload
	Timestamp time.Time `json:"timestamp"`
}

// AnalyzerResult is the structured health assessment for one turn.
type AnalyzerResult struct {
	Summary     string   `json:"summary"`
	EnergyScore int      `json:"energy_score"` // 0..100
	KeySignals  []string `json:"key_signals"`
	RiskFlags   []string `json:"risk_flags"`
}

// PlanRecommendation is the planner's structured output.
type PlanRecommendation struct {
	Summary          string   `json:"summary"`
	Diet             []string `json:"diet"`
	Exercise         []string `json:"exercise"`
	Hydration        string   `json:"hydration"`
	Recovery         string   `json:"recovery"`
	NutritionContext []string `json:"nutrition_context,omitempty"`
}

// ValidationResult is the validator's verdict on a plan.
type ValidationResult struct {
	Approved    bool     `json:"approved"`
	Conflicts   []string `json:"conflicts"`
	Suggestions []string `json:"suggestions,omitempty"`
	Reasoning   string   `json:"reasoning"`
}

// MonitorResult composes the user-facing reply and the cross-turn feedback
// loop: profile updates to merge and one adaptation note for the next
// turn's planner.
type MonitorResult struct {
	Reply          string          `json:"reply"`
	Tone           string          `json:"tone"`
	FeedbackPrompt string          `json:"feedback_prompt,omitempty"`
	AdaptationNote string          `json:"adaptation_note,omitempty"`
	UserFacts      []string        `json:"user_facts,omitempty"`
	ProfileUpdates profile.Updates `json:"profile_updates"`
}

// StageTiming is one stage's wall-clock record, surfaced for the caller's
// reasoning panel.
type StageTiming struct {
	Stage     StageID       `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TurnResult is the full response payload for one turn.
type TurnResult struct {
	TurnID     string              `json:"turn_id"`
	Route      Route               `json:"route"`
	Reply      string              `json:"reply"`
	Tone       string              `json:"tone,omitempty"`
	Feedback   string              `json:"feedback_prompt,omitempty"`
	Assessment *AnalyzerResult     `json:"assessment,omitempty"`
	Plan       *PlanRecommendation `json:"plan,omitempty"`
	Validation *ValidationResult   `json:"validation,omitempty"`
	Timings    []StageTiming       `json:"timings"`
	TotalTime  time.Duration       `json:"total_time"`
	CreatedAt  time.Time           `json:"created_at"`
}

// StageError is the typed failure for a stage call (timeout, unreachable or
// malformed completion service). It aborts the remaining pipeline for the
// turn; parse failures are recovered inside the stage and never become one.
type StageError struct {
	Stage     StageID
	SessionID string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for session %s: %v", e.Stage, e.SessionID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is one chat-completion history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the single abstracted capability the stages depend
// on: system prompt, user prompt, optional history and generation bounds.
// A non-empty ImageB64 routes the call through the multimodal path.
type CompletionRequest struct {
	Model        string // routing key from config (analysis, planning, ...)
	SystemPrompt string
	UserPrompt   string
	History      []Message
	MaxTokens    int
	Temperature  float64
	ImageB64     string
}

// CompletionResult carries the generated text and usage accounting.
type CompletionResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	ModelUsed    string
}

// LLMProvider is the completion-service contract. Implementations apply a
// hard timeout and are safe to retry.
type LLMProvider interface {
	Invoke(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}
