package core

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/healthtwin-labs/healthtwin/config"
	"github.com/healthtwin-labs/healthtwin/internal/agent/telemetry"
	"github.com/healthtwin-labs/healthtwin/internal/memory"
	"github.com/healthtwin-labs/healthtwin/internal/profile"
	"github.com/healthtwin-labs/healthtwin/internal/tools"
)

var coachTracer trace.Tracer = otel.Tracer("healthtwin/internal/agent/orchestrator")

const apologyReply = "I'm sorry, I ran into a problem putting your coaching response together. Nothing is lost; please try again in a moment."

// Per-stage completion budgets. The analyzer and planner emit larger
// structured payloads; the monitor composes a short reply and gets less.
const (
	analyzerMaxTokens = 700
	plannerMaxTokens  = 900
	monitorMaxTokens  = 450
	photoMaxTokens    = 700
)

// Orchestrator routes each turn through its stage sequence and owns the
// cross-turn state: session memory, the user's profile, and telemetry.
type Orchestrator struct {
	cfg       *config.Config
	provider  LLMProvider
	sessions  *memory.Store
	profiles  profile.Store
	nutrition *tools.NutritionIndex
	wearable  *tools.WearableClient
	validator *Validator
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(cfg *config.Config, provider LLMProvider, sessions *memory.Store,
	profiles profile.Store, nutrition *tools.NutritionIndex, wearable *tools.WearableClient,
	tel *telemetry.Telemetry) *Orchestrator {

	o := &Orchestrator{
		cfg:       cfg,
		provider:  provider,
		sessions:  sessions,
		profiles:  profiles,
		nutrition: nutrition,
		wearable:  wearable,
		validator: NewValidator(cfg, provider, tel),
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
	sessions.SetDroppedHook(tel.RecordDroppedPersist)
	return o
}

// turnState accumulates stage outputs while a turn runs.
type turnState struct {
	req        TurnRequest
	route      Route
	profile    *profile.HealthTwinProfile
	session    *memory.Session
	history    []Message
	notes      []string
	assessment *AnalyzerResult
	plan       *PlanRecommendation
	validation *ValidationResult
	monitor    *MonitorResult
	replanned  bool
	timings    []StageTiming
}

// ProcessTurn runs one user turn end to end. On a stage failure the returned
// result still carries an apologetic reply alongside the typed error, so the
// transport layer always has something to show the user.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	ctx, span := coachTracer.Start(ctx, "coach.process_turn",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	session := o.sessions.Get(ctx, req.SessionID)
	route := ClassifyRoute(req.Message, req.ImageB64 != "", len(session.Messages), Route(session.LastRoute))
	span.SetAttributes(attribute.String("turn.route", string(route)))

	st := &turnState{
		req:     req,
		route:   route,
		session: session,
		profile: profile.LoadOrNew(ctx, o.profiles, req.UserID, o.logger),
		notes:   append([]string(nil), session.AdaptationNotes...),
	}
	for _, m := range session.Messages {
		st.history = append(st.history, Message{Role: m.Role, Content: m.Content})
	}

	for i := 0; i < len(routeStages[route]); i++ {
		stage := routeStages[route][i]
		if err := o.runStage(ctx, stage, st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.telemetry.RecordTurn(telemetry.TurnEvent{
				SessionID: req.SessionID, Route: string(route),
				Duration: time.Since(start), Success: false, Error: err.Error(),
			})
			res := o.buildResult(st, apologyReply, "", "", start)
			o.recordTurnInMemory(ctx, st, res)
			return res, err
		}
		// One corrective replan: fold the conflicts into a fresh plan and
		// re-validate. A second rejection ships as-is, flagged to the user.
		if stage == StageValidator && st.validation != nil && !st.validation.Approved && !st.replanned {
			if p := stageIndex(routeStages[route], StagePlanner); p >= 0 {
				st.replanned = true
				i = p - 1 // loop increment lands on the planner
			}
		}
	}

	reply, tone, feedback := apologyReply, "", ""
	switch {
	case st.monitor != nil:
		reply, tone, feedback = st.monitor.Reply, st.monitor.Tone, st.monitor.FeedbackPrompt
	}

	res := o.buildResult(st, reply, tone, feedback, start)
	span.SetStatus(codes.Ok, "completed")
	span.SetAttributes(attribute.Int64("turn.duration_ms", time.Since(start).Milliseconds()))

	o.telemetry.RecordTurn(telemetry.TurnEvent{
		SessionID: req.SessionID, Route: string(route),
		Duration: time.Since(start), Success: true,
	})
	o.recordTurnInMemory(ctx, st, res)
	o.mergeProfile(st)
	return res, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage StageID, st *turnState) error {
	stageStart := time.Now()
	ctx, span := coachTracer.Start(ctx, "coach.stage."+string(stage))
	defer span.End()

	var err error
	switch stage {
	case StageAnalyzer:
		err = o.runAnalyzer(ctx, st)
	case StagePlanner:
		err = o.runPlanner(ctx, st)
	case StageValidator:
		o.runValidator(ctx, st)
	case StageMonitor:
		err = o.runMonitor(ctx, st)
	case StagePhoto:
		err = o.runPhoto(ctx, st)
	}

	st.timings = append(st.timings, StageTiming{Stage: stage, StartedAt: stageStart, Duration: time.Since(stageStart)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, SessionID: st.req.SessionID, Err: err}
	}
	return nil
}

// recordStageOutcome records a successful LLM stage with its token usage.
func (o *Orchestrator) recordStageOutcome(stage StageID, start time.Time, res CompletionResult, model string, parsed bool) {
	o.telemetry.RecordStage(telemetry.StageEvent{
		Stage:      string(stage),
		Duration:   time.Since(start),
		Success:    true,
		Fallback:   !parsed,
		TokensUsed: res.InputTokens + res.OutputTokens,
		Cost:       o.provider.CalculateCost(res.InputTokens, res.OutputTokens, model),
		Model:      res.ModelUsed,
	})
}

func (o *Orchestrator) runAnalyzer(ctx context.Context, st *turnState) error {
	start := time.Now()
	var wearableText string
	if o.wearable != nil {
		if snap, ok := o.wearable.Snapshot(ctx, st.req.SessionID); ok {
			wearableText = snap.Text()
			st.profile.ObserveVitals(snap.SleepHours, float64(snap.Steps))
		}
	}
	res, err := o.provider.Invoke(ctx, CompletionRequest{
		Model:        o.cfg.LLM.Routing.Analysis,
		SystemPrompt: analyzerSystemPrompt,
		UserPrompt:   buildAnalyzerPrompt(st.req.Message, st.profile.FormatText(), wearableText, st.notes),
		History:      st.history,
		MaxTokens:    analyzerMaxTokens,
		Temperature:  0.2,
	})
	if err != nil {
		o.telemetry.RecordStage(telemetry.StageEvent{Stage: string(StageAnalyzer), Duration: time.Since(start)})
		return err
	}
	assessment, parsed := parseAnalyzerResult(res.Text)
	if !parsed {
		o.logger.Printf("analyzer output unparseable for session %s, using safe default", st.req.SessionID)
	}
	st.assessment = &assessment
	o.recordStageOutcome(StageAnalyzer, start, res, o.cfg.LLM.Routing.Analysis, parsed)
	return nil
}

func (o *Orchestrator) runPlanner(ctx context.Context, st *turnState) error {
	start := time.Now()
	if st.assessment == nil {
		// Followup turns plan from the cached assessment; a missing cache
		// degrades to a neutral one rather than re-running analysis.
		st.assessment = o.cachedAssessment(st.session)
	}

	var nutrition []string
	if o.nutrition != nil {
		nutrition = o.nutrition.Lookup(st.req.Message+" "+st.assessment.Summary, 3)
	}
	var conflicts []string
	if st.replanned && st.validation != nil {
		conflicts = st.validation.Conflicts
	}
	res, err := o.provider.Invoke(ctx, CompletionRequest{
		Model:        o.cfg.LLM.Routing.Planning,
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   buildPlannerPrompt(*st.assessment, st.profile.FormatText(), st.notes, nutrition, conflicts),
		MaxTokens:    plannerMaxTokens,
		Temperature:  0.4,
	})
	if err != nil {
		o.telemetry.RecordStage(telemetry.StageEvent{Stage: string(StagePlanner), Duration: time.Since(start)})
		return err
	}
	plan, parsed := parsePlanResult(res.Text)
	if !parsed {
		o.logger.Printf("planner output unparseable for session %s, using safe default", st.req.SessionID)
	}
	if len(plan.NutritionContext) == 0 {
		plan.NutritionContext = nutrition
	}
	st.plan = &plan
	o.recordStageOutcome(StagePlanner, start, res, o.cfg.LLM.Routing.Planning, parsed)
	return nil
}

func (o *Orchestrator) runValidator(ctx context.Context, st *turnState) {
	if st.plan == nil {
		return
	}
	v := o.validator.Validate(ctx, *st.plan, st.assessment, st.profile.FormatText())
	st.validation = &v
}

func (o *Orchestrator) runMonitor(ctx context.Context, st *turnState) error {
	start := time.Now()
	res, err := o.provider.Invoke(ctx, CompletionRequest{
		Model:        o.cfg.LLM.Routing.Chat,
		SystemPrompt: monitorSystemPrompt,
		UserPrompt:   buildMonitorPrompt(st.route, st.req.Message, st.assessment, st.plan, st.validation, st.profile.FormatText()),
		History:      st.history,
		MaxTokens:    monitorMaxTokens,
		Temperature:  0.7,
	})
	if err != nil {
		o.telemetry.RecordStage(telemetry.StageEvent{Stage: string(StageMonitor), Duration: time.Since(start)})
		return err
	}
	mon, parsed := parseMonitorResult(res.Text)
	if !parsed {
		o.logger.Printf("monitor output unparseable for session %s, wrapping raw reply", st.req.SessionID)
	}
	st.monitor = &mon
	o.recordStageOutcome(StageMonitor, start, res, o.cfg.LLM.Routing.Chat, parsed)
	return nil
}

// runPhoto is the single multimodal stage: one vision call yields both the
// user-facing reply and an assessment cached for later followups.
func (o *Orchestrator) runPhoto(ctx context.Context, st *turnState) error {
	start := time.Now()
	res, err := o.provider.Invoke(ctx, CompletionRequest{
		Model:        o.cfg.LLM.Routing.Vision,
		SystemPrompt: photoSystemPrompt,
		UserPrompt:   buildPhotoPrompt(st.req.Message, st.profile.FormatText()),
		ImageB64:     st.req.ImageB64,
		MaxTokens:    photoMaxTokens,
		Temperature:  0.4,
	})
	if err != nil {
		o.telemetry.RecordStage(telemetry.StageEvent{Stage: string(StagePhoto), Duration: time.Since(start)})
		return err
	}

	var out struct {
		Reply string `json:"reply"`
		Tone  string `json:"tone"`
		AnalyzerResult
	}
	parsed := false
	if jsonErr := json.Unmarshal([]byte(extractFirstJSON(res.Text)), &out); jsonErr == nil && out.Reply != "" {
		parsed = true
	} else {
		out.Reply = "I couldn't read that photo clearly. Could you try another angle, or tell me what's on the plate?"
		out.Tone = "supportive"
	}
	st.monitor = &MonitorResult{Reply: out.Reply, Tone: out.Tone}
	if parsed && out.Summary != "" {
		st.assessment = &out.AnalyzerResult
	}
	o.recordStageOutcome(StagePhoto, start, res, o.cfg.LLM.Routing.Vision, parsed)
	return nil
}

// cachedAssessment returns the session's last assessment, or a neutral one.
func (o *Orchestrator) cachedAssessment(s *memory.Session) *AnalyzerResult {
	if len(s.LastAssessment) > 0 {
		var a AnalyzerResult
		if err := json.Unmarshal(s.LastAssessment, &a); err == nil && a.Summary != "" {
			return &a
		}
	}
	return &AnalyzerResult{
		Summary:     "Continuing an earlier conversation; no fresh assessment available.",
		EnergyScore: 50,
	}
}

func (o *Orchestrator) buildResult(st *turnState, reply, tone, feedback string, start time.Time) *TurnResult {
	return &TurnResult{
		TurnID:     uuid.New().String(),
		Route:      st.route,
		Reply:      reply,
		Tone:       tone,
		Feedback:   feedback,
		Assessment: st.assessment,
		Plan:       st.plan,
		Validation: st.validation,
		Timings:    st.timings,
		TotalTime:  time.Since(start),
		CreatedAt:  time.Now(),
	}
}

// recordTurnInMemory appends the turn to the rolling window and updates the
// session's derived state. The write to tier 2 is fire and forget.
func (o *Orchestrator) recordTurnInMemory(ctx context.Context, st *turnState, res *TurnResult) {
	maxMessages := o.sessions.MaxMessages()
	o.sessions.Update(ctx, st.req.SessionID, func(s *memory.Session) {
		s.AppendMessage(memory.ChatMessage{
			ID: uuid.New().String(), Role: memory.RoleUser,
			Content: st.req.Message, CreatedAt: time.Now(),
		}, maxMessages)
		s.AppendMessage(memory.ChatMessage{
			ID: uuid.New().String(), Role: memory.RoleAssistant, Agent: string(st.route),
			Content: res.Reply, CreatedAt: time.Now(),
		}, maxMessages)
		s.LastRoute = string(st.route)
		if st.monitor != nil {
			s.AddAdaptationNote(st.monitor.AdaptationNote)
			for _, f := range st.monitor.UserFacts {
				s.AddUserFact(f)
			}
		}
		if st.assessment != nil {
			if raw, err := json.Marshal(st.assessment); err == nil {
				s.LastAssessment = raw
			}
		}
	})
}

// mergeProfile applies this turn's profile delta and saves it off the hot
// path. A failed save is logged and swallowed; the reply already shipped.
func (o *Orchestrator) mergeProfile(st *turnState) {
	updates := profile.Updates{}
	if st.monitor != nil {
		updates = st.monitor.ProfileUpdates
	}
	if updates.IsEmpty() && st.assessment == nil {
		return
	}
	st.profile.Apply(updates)
	if st.assessment != nil {
		st.profile.AddSessionSummary(profile.SessionSummary{
			Date:        time.Now(),
			EnergyScore: st.assessment.EnergyScore,
			KeyFinding:  st.assessment.Summary,
		})
	}
	p := st.profile
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.profiles.Save(ctx, p); err != nil {
			o.logger.Printf("profile save for %s failed: %v", p.UserID, err)
		}
	}()
}

// EndSession flushes the session synchronously. Exposed for the transport's
// explicit session-close endpoint.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	return o.sessions.Flush(ctx, sessionID)
}

// CostSummary surfaces accumulated LLM spend for the admin endpoint.
func (o *Orchestrator) CostSummary() telemetry.CostTracker {
	return o.telemetry.CostSummary()
}
