package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/healthtwin-labs/healthtwin/config"
	"github.com/healthtwin-labs/healthtwin/internal/agent/telemetry"
)

// fakeProvider returns canned completions keyed by routing model, or an
// error when set. Calls, last prompts and token budgets are recorded per
// model.
type fakeProvider struct {
	responses map[string]string
	err       error
	calls     map[string]int
	prompts   map[string]string
	budgets   map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		responses: map[string]string{},
		calls:     map[string]int{},
		prompts:   map[string]string{},
		budgets:   map[string]int{},
	}
}

func (f *fakeProvider) Invoke(_ context.Context, req CompletionRequest) (CompletionResult, error) {
	f.calls[req.Model]++
	f.prompts[req.Model] = req.UserPrompt
	f.budgets[req.Model] = req.MaxTokens
	if f.err != nil {
		return CompletionResult{}, f.err
	}
	return CompletionResult{Text: f.responses[req.Model], InputTokens: 10, OutputTokens: 20, ModelUsed: req.Model}, nil
}

func (f *fakeProvider) CalculateCost(in, out int64, model string) float64 {
	return float64(in+out) / 1000.0
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Analysis:   "analysis",
				Planning:   "planning",
				Validation: "validation",
				Chat:       "chat",
				Vision:     "vision",
			},
		},
	}
}

func newTestValidator(p LLMProvider) *Validator {
	return NewValidator(testConfig(), p, telemetry.NewTelemetry(config.TelemetryConfig{}))
}

func TestValidatorRejectsAllergyConflict(t *testing.T) {
	v := newTestValidator(newFakeProvider())
	plan := PlanRecommendation{
		Summary:  "Protein-forward day",
		Diet:     []string{"Peanut butter toast with banana", "Grilled chicken salad"},
		Exercise: []string{"30 minute walk"},
	}
	profileText := "Allergies: peanuts\nConditions: none"

	res := v.Validate(context.Background(), plan, nil, profileText)
	if res.Approved {
		t.Fatalf("plan with a peanut item against a peanut allergy must be rejected")
	}
	found := false
	for _, c := range res.Conflicts {
		if strings.Contains(strings.ToLower(c), "peanut") {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflict must name the allergen, got %v", res.Conflicts)
	}
}

func TestValidatorFlagsIntensityAgainstCondition(t *testing.T) {
	v := newTestValidator(newFakeProvider())
	plan := PlanRecommendation{
		Summary:  "Push day",
		Exercise: []string{"HIIT sprints, 8 rounds", "Cooldown stretch"},
	}
	profileText := "Conditions: knee pain\nFood likes: rice"

	res := v.Validate(context.Background(), plan, nil, profileText)
	if res.Approved {
		t.Fatalf("high-intensity work against knee pain must be rejected")
	}
	found := false
	for _, c := range res.Conflicts {
		if strings.HasPrefix(c, "SAFETY:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a SAFETY conflict, got %v", res.Conflicts)
	}
}

func TestValidatorSkipsSparseProfiles(t *testing.T) {
	p := newFakeProvider()
	v := newTestValidator(p)
	plan := PlanRecommendation{Summary: "Anything goes", Diet: []string{"Peanut butter toast"}}

	res := v.Validate(context.Background(), plan, nil, "Allergies: x")
	if !res.Approved {
		t.Fatalf("profiles under the minimum length must skip validation entirely")
	}
	if p.calls["validation"] != 0 {
		t.Fatalf("sparse profile must not reach the model tier")
	}
}

func TestValidatorDeepTierFailsOpen(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("model unavailable")
	v := newTestValidator(p)

	plan := PlanRecommendation{
		Summary:  "Steady day",
		Diet:     []string{"Oatmeal with blueberries", "Lentil soup"},
		Exercise: []string{"30 minute walk"},
	}
	// long enough to trigger the deep tier, clean under the rules
	profileText := "Conditions: mild seasonal asthma\n" +
		"Food likes: oats, lentils, blueberries, salmon, rice, yogurt\n" +
		"Exercise likes: walking, swimming, light cycling\n" +
		"Lifestyle: desk job, two kids, sleeps about seven hours"

	res := v.Validate(context.Background(), plan, nil, profileText)
	if !res.Approved {
		t.Fatalf("deep-tier failure must not reject a plan the rules passed: %+v", res)
	}
	if p.calls["validation"] != 1 {
		t.Fatalf("deep tier should have been attempted once, got %d calls", p.calls["validation"])
	}
}

func TestValidatorDeepTierCanReject(t *testing.T) {
	p := newFakeProvider()
	p.responses["validation"] = `{"approved": false, "conflicts": ["late caffeine clashes with reported insomnia"], "reasoning": "stimulant timing"}`
	v := newTestValidator(p)

	plan := PlanRecommendation{
		Summary:  "Productivity day",
		Diet:     []string{"Double espresso at 9pm"},
		Exercise: []string{"Evening yoga"},
	}
	profileText := "Conditions: insomnia\n" +
		"Patterns: reports lying awake past midnight most nights\n" +
		"Lifestyle: shift worker, irregular meal times, heavy screen use late, " +
		"often skips breakfast and compensates with caffeine"

	res := v.Validate(context.Background(), plan, nil, profileText)
	if res.Approved {
		t.Fatalf("a deep-tier rejection must stick")
	}
	if len(res.Conflicts) == 0 {
		t.Fatalf("deep-tier conflicts must surface in the final verdict")
	}
}

// The model tier reviews the plan in the context of the assessment it
// responds to, not the plan alone.
func TestValidatorDeepTierSeesAssessment(t *testing.T) {
	p := newFakeProvider()
	p.responses["validation"] = `{"approved": true, "conflicts": [], "reasoning": "no conflicts"}`
	v := newTestValidator(p)

	plan := PlanRecommendation{
		Summary:  "Steady day",
		Diet:     []string{"Oatmeal with blueberries"},
		Exercise: []string{"30 minute walk"},
	}
	assessment := &AnalyzerResult{
		Summary:     "low energy after a poor night",
		EnergyScore: 30,
		RiskFlags:   []string{"possible overtraining"},
	}
	profileText := "Conditions: mild seasonal asthma\n" +
		"Food likes: oats, lentils, blueberries, salmon, rice, yogurt\n" +
		"Exercise likes: walking, swimming, light cycling\n" +
		"Lifestyle: desk job, two kids, sleeps about seven hours"

	v.Validate(context.Background(), plan, assessment, profileText)
	prompt := p.prompts["validation"]
	if !strings.Contains(prompt, "low energy after a poor night") || !strings.Contains(prompt, "possible overtraining") {
		t.Fatalf("deep-tier prompt must carry the assessment, got:\n%s", prompt)
	}
}

func TestValidatorRuleScenarios(t *testing.T) {
	v := newTestValidator(newFakeProvider())
	cases := []struct {
		name        string
		profileText string
		plan        PlanRecommendation
		wantOK      bool
		wantMention string
	}{
		{
			name:        "allergen in diet",
			profileText: "Allergies: chicken, shellfish\nConditions: none",
			plan:        PlanRecommendation{Summary: "p", Diet: []string{"Grilled chicken with rice"}},
			wantOK:      false,
			wantMention: "chicken",
		},
		{
			name:        "avoided exercise",
			profileText: "Preferences: Avoids: running, swimming",
			plan:        PlanRecommendation{Summary: "p", Exercise: []string{"30 min running", "Yoga"}},
			wantOK:      false,
			wantMention: "running",
		},
		{
			name:        "intensity against limiting condition",
			profileText: "Conditions: chronic back pain, knee injury",
			plan:        PlanRecommendation{Summary: "p", Exercise: []string{"HIIT training", "Heavy deadlifts"}},
			wantOK:      false,
			wantMention: "SAFETY",
		},
		{
			name:        "empty profile skips",
			profileText: "",
			plan:        PlanRecommendation{Summary: "p", Diet: []string{"Anything"}},
			wantOK:      true,
			wantMention: "",
		},
	}
	for _, tc := range cases {
		res := v.Validate(context.Background(), tc.plan, nil, tc.profileText)
		if res.Approved != tc.wantOK {
			t.Fatalf("%s: approved=%v want %v (%+v)", tc.name, res.Approved, tc.wantOK, res)
		}
		if tc.wantOK {
			if len(res.Conflicts) != 0 || !strings.Contains(res.Reasoning, "skipped") {
				t.Fatalf("%s: expected a clean skip, got %+v", tc.name, res)
			}
			continue
		}
		found := false
		for _, c := range res.Conflicts {
			if strings.Contains(c, tc.wantMention) {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: no conflict mentions %q: %v", tc.name, tc.wantMention, res.Conflicts)
		}
	}
}

// Tier 1 never calls the model; the same inputs always yield the same
// conflict list.
func TestValidatorRuleTierDeterministic(t *testing.T) {
	p := newFakeProvider()
	v := newTestValidator(p)
	plan := PlanRecommendation{Summary: "p", Diet: []string{"Shrimp stir fry"}, Exercise: []string{"Sprints"}}
	profileText := "Allergies: shellfish\nConditions: arthritis"

	first := v.Validate(context.Background(), plan, nil, profileText)
	for i := 0; i < 20; i++ {
		again := v.Validate(context.Background(), plan, nil, profileText)
		if again.Approved != first.Approved || len(again.Conflicts) != len(first.Conflicts) {
			t.Fatalf("verdict flapped: %+v vs %+v", first, again)
		}
	}
	if p.calls["validation"] != 0 {
		t.Fatalf("rule rejection must skip the model tier, got %d calls", p.calls["validation"])
	}
}

func TestExtractLabelTerms(t *testing.T) {
	text := "Conditions: Back Pain, asthma\nDislikes: cilantro\nAvoids: burpees, none"
	got := extractLabelTerms(text, "conditions:")
	if len(got) != 2 || got[0] != "back pain" || got[1] != "asthma" {
		t.Fatalf("unexpected terms %v", got)
	}
	got = extractLabelTerms(text, "avoids:")
	if len(got) != 1 || got[0] != "burpees" {
		t.Fatalf("none placeholder must be dropped, got %v", got)
	}
}
