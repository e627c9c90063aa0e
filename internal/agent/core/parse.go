package core

import (
	"encoding/json"
	"strings"
)

// extractFirstJSON returns the first balanced {...} span in s, or s itself
// when no balanced object is found. Models frequently wrap their JSON in
// prose or markdown fences; this strips both without a full parse.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}

// parseAnalyzerResult decodes a raw completion into an assessment. ok is
// false when the payload was unusable and the safe default was substituted.
func parseAnalyzerResult(raw string) (AnalyzerResult, bool) {
	var res AnalyzerResult
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &res); err == nil && res.Summary != "" {
		if res.EnergyScore < 0 {
			res.EnergyScore = 0
		}
		if res.EnergyScore > 100 {
			res.EnergyScore = 100
		}
		return res, true
	}
	return AnalyzerResult{
		Summary:     "General wellness check-in; no structured signals extracted this turn.",
		EnergyScore: 50,
		KeySignals:  []string{"conversational input only"},
	}, false
}

// parsePlanResult decodes a raw completion into a plan. The default keeps the
// turn moving with generic but safe guidance.
func parsePlanResult(raw string) (PlanRecommendation, bool) {
	var res PlanRecommendation
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &res); err == nil && res.Summary != "" {
		return res, true
	}
	return PlanRecommendation{
		Summary:   "Keep things steady today and focus on the basics.",
		Diet:      []string{"Balanced meals built around whole foods"},
		Exercise:  []string{"A 20-30 minute walk at a comfortable pace"},
		Hydration: "Around 2 liters of water through the day",
		Recovery:  "Aim for 7-8 hours of sleep tonight",
	}, false
}

// parseValidationResult decodes a validator completion. The default approves:
// a broken safety check must not block an otherwise clean plan, so tier two
// fails open and leaves tier one's verdict standing.
func parseValidationResult(raw string) (ValidationResult, bool) {
	var res ValidationResult
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &res); err == nil && res.Reasoning != "" {
		return res, true
	}
	return ValidationResult{
		Approved:  true,
		Reasoning: "deep validation unavailable; rule check verdict stands",
	}, false
}

// parseMonitorResult decodes the reply composition. The default wraps the raw
// text as the reply so the user still gets an answer, with no profile deltas.
func parseMonitorResult(raw string) (MonitorResult, bool) {
	var res MonitorResult
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &res); err == nil && res.Reply != "" {
		return res, true
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		reply = "Thanks for checking in! Tell me a bit about how you're feeling today and I'll tailor things from there."
	}
	return MonitorResult{Reply: reply, Tone: "supportive"}, false
}
