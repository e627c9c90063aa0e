package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/healthtwin-labs/healthtwin/config"
	"github.com/healthtwin-labs/healthtwin/internal/agent/telemetry"
)

const (
	// Profiles shorter than this carry too little signal to check against.
	minProfileChars = 30
	// Profiles longer than this get the second, model-driven pass as well.
	deepValidationThreshold = 150
	// The verdict is a short structured payload; keep its budget tight.
	deepCheckMaxTokens = 400
)

// Validator checks a plan against the user's profile in two tiers: a
// deterministic rule pass that always runs on substantial profiles, and a
// model pass for long ones. The rule tier can only reject; the model tier
// fails open.
type Validator struct {
	provider  LLMProvider
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewValidator(cfg *config.Config, provider LLMProvider, tel *telemetry.Telemetry) *Validator {
	return &Validator{
		provider:  provider,
		cfg:       cfg,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[VALIDATOR] ", log.LstdFlags),
	}
}

// Validate runs the rule tier and, for long profiles, the model tier on top.
// profileText is the rendered profile; assessment is the turn's health
// snapshot, shown to the model tier for context and may be nil. An approved
// result with no conflicts means the plan is clean or the profile was too
// thin to check.
func (v *Validator) Validate(ctx context.Context, plan PlanRecommendation, assessment *AnalyzerResult, profileText string) ValidationResult {
	trimmed := strings.TrimSpace(profileText)
	if len(trimmed) < minProfileChars {
		return ValidationResult{Approved: true, Reasoning: "validation skipped: no usable profile data"}
	}

	res := v.ruleCheck(plan, trimmed)
	v.telemetry.RecordValidation("rules", res.Approved)
	// A rule rejection is final; the model tier never sees an already
	// rejected plan.
	if !res.Approved {
		return res
	}

	if len(trimmed) > deepValidationThreshold {
		deep := v.deepCheck(ctx, plan, assessment, trimmed)
		v.telemetry.RecordValidation("deep", deep.Approved)
		return deep
	}
	return res
}

// profileLabels are the rendered-profile sections the rule tier reads.
// Matching is plain substring work on lowercased text; no model involved.
var profileLabels = []string{"allergies:", "dislikes:", "avoids:", "conditions:"}

func (v *Validator) ruleCheck(plan PlanRecommendation, profileText string) ValidationResult {
	terms := extractLabeledTerms(profileText)
	planItems := append(append([]string{}, plan.Diet...), plan.Exercise...)
	planItems = append(planItems, plan.Summary, plan.Hydration, plan.Recovery)

	res := ValidationResult{Approved: true, Reasoning: "rule check passed"}
	for _, item := range planItems {
		low := strings.ToLower(item)
		for _, t := range terms {
			if termMatches(low, t) {
				res.Approved = false
				res.Conflicts = append(res.Conflicts, fmt.Sprintf("plan item %q conflicts with profile entry %q", item, t))
			}
		}
	}

	conditions := extractLabelTerms(profileText, "conditions:")
	for _, item := range plan.Exercise {
		low := strings.ToLower(item)
		for _, intense := range highIntensityKeywords {
			if !strings.Contains(low, intense) {
				continue
			}
			for _, cond := range conditions {
				for _, limiting := range limitingConditions {
					if strings.Contains(cond, limiting) {
						res.Approved = false
						res.Conflicts = append(res.Conflicts,
							fmt.Sprintf("SAFETY: %q is high intensity but the profile lists %q", item, cond))
					}
				}
			}
		}
	}

	if !res.Approved {
		res.Reasoning = "rule check found conflicts between the plan and the profile"
	}
	return res
}

// termMatches does a substring check tolerant of trivial plurals, so a
// profile entry "peanuts" still catches "peanut butter" in a plan item.
func termMatches(itemLow, term string) bool {
	if term == "" {
		return false
	}
	if strings.Contains(itemLow, term) {
		return true
	}
	if singular := strings.TrimSuffix(term, "s"); len(singular) > 2 && singular != term {
		return strings.Contains(itemLow, singular)
	}
	return false
}

var highIntensityKeywords = []string{"hiit", "sprint", "crossfit", "deadlift", "plyometric", "max effort"}

var limitingConditions = []string{"back pain", "knee pain", "arthritis", "injury", "heart condition", "hernia"}

// extractLabeledTerms collects every comma-separated term under the labels
// the rule tier knows about.
func extractLabeledTerms(profileText string) []string {
	var out []string
	for _, label := range profileLabels {
		out = append(out, extractLabelTerms(profileText, label)...)
	}
	return out
}

// extractLabelTerms returns the lowercased terms on the line carrying label.
func extractLabelTerms(profileText, label string) []string {
	var out []string
	for _, line := range strings.Split(strings.ToLower(profileText), "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, label)
		if idx < 0 {
			continue
		}
		for _, term := range strings.Split(line[idx+len(label):], ",") {
			term = strings.TrimSpace(term)
			if term != "" && term != "none" {
				out = append(out, term)
			}
		}
	}
	return out
}

func (v *Validator) deepCheck(ctx context.Context, plan PlanRecommendation, assessment *AnalyzerResult, profileText string) ValidationResult {
	prompt := buildValidatorPrompt(plan, assessment, profileText)
	model := v.cfg.LLM.Routing.Validation
	res, err := v.provider.Invoke(ctx, CompletionRequest{
		Model:        model,
		SystemPrompt: validatorSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    deepCheckMaxTokens,
		Temperature:  0.1,
	})
	if err != nil {
		// The deep tier must never block a plan the rules already passed.
		v.logger.Printf("deep validation unavailable: %v", err)
		return ValidationResult{Approved: true, Reasoning: "deep validation unavailable; rule check verdict stands"}
	}
	verdict, ok := parseValidationResult(res.Text)
	if !ok {
		v.logger.Printf("deep validation returned unparseable output, failing open")
	}
	return verdict
}
