package server

import (
	"time"

	"github.com/healthtwin-labs/healthtwin/internal/agent/core"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ChatRequest is one user turn. Image is an optional base64 payload.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Image     string `json:"image,omitempty"`
}

// ChatResponse mirrors the pipeline result for the client, including the
// per-stage timing breakdown for the reasoning panel.
type ChatResponse struct {
	TurnID     string                   `json:"turn_id"`
	SessionID  string                   `json:"session_id"`
	Route      string                   `json:"route"`
	Reply      string                   `json:"reply"`
	Tone       string                   `json:"tone,omitempty"`
	Feedback   string                   `json:"feedback_prompt,omitempty"`
	Assessment *core.AnalyzerResult     `json:"assessment,omitempty"`
	Plan       *core.PlanRecommendation `json:"plan,omitempty"`
	Validation *core.ValidationResult   `json:"validation,omitempty"`
	Timings    []StageTimingResponse    `json:"timings"`
	TotalMs    int64                    `json:"total_ms"`
}

// StageTimingResponse is one stage's wall-clock record.
type StageTimingResponse struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
}

// HistoryMessage is one conversation entry in a history response.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the rolling window for one session.
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []HistoryMessage `json:"messages"`
}
