package core

import (
	"fmt"
	"strings"
)

const analyzerSystemPrompt = `You are the assessment step of a health coaching assistant.
You read one user message plus context and extract a structured snapshot of how the user is doing.
Be factual; never invent symptoms the user did not mention.
Respond ONLY as strict JSON with keys: {"summary": string, "energy_score": number (0-100), "key_signals": [string], "risk_flags": [string]}`

const plannerSystemPrompt = `You are the planning step of a health coaching assistant.
You turn a health assessment and the user's profile into one day of realistic, specific recommendations.
Respect every allergy, dislike and condition in the profile. Prefer small adjustments over dramatic ones.
Respond ONLY as strict JSON with keys: {"summary": string, "diet": [string], "exercise": [string], "hydration": string, "recovery": string}`

const validatorSystemPrompt = `You are the safety review step of a health coaching assistant.
You check a proposed plan against the user's profile for conflicts: allergies, conditions, stated dislikes, unsafe intensity.
Only flag genuine conflicts; do not nitpick style.
Respond ONLY as strict JSON with keys: {"approved": boolean, "conflicts": [string], "suggestions": [string], "reasoning": string}`

const monitorSystemPrompt = `You are the voice of a warm, encouraging health coach.
You compose the reply the user actually reads, weaving in the plan when one exists, and you extract durable facts worth remembering.
Keep the reply conversational, concrete and under 180 words. Never mention internal steps or validation.
Respond ONLY as strict JSON with keys: {"reply": string, "tone": string, "feedback_prompt": string, "adaptation_note": string, "user_facts": [string], "profile_updates": {"conditions": [string], "allergies": [string], "medications": [string], "food_likes": [string], "food_dislikes": [string], "exercise_likes": [string], "exercise_dislikes": [string], "patterns": [string], "lifestyle": [string]}}`

const photoSystemPrompt = `You are the meal photo step of a health coaching assistant.
You look at a food photo, estimate what is on the plate, and give brief friendly feedback tied to the user's goals.
If the image is not food, say so politely. Keep estimates honest and hedged.
Respond ONLY as strict JSON with keys: {"reply": string, "tone": string, "summary": string, "energy_score": number (0-100), "key_signals": [string], "risk_flags": [string]}`

func buildAnalyzerPrompt(message, profileText, wearableText string, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message:\n%s\n", message)
	if profileText != "" {
		fmt.Fprintf(&b, "\nWhat we know about this user:\n%s\n", profileText)
	}
	if wearableText != "" {
		fmt.Fprintf(&b, "\nWearable data:\n%s\n", wearableText)
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, "\nRecent coaching notes:\n- %s\n", strings.Join(notes, "\n- "))
	}
	b.WriteString("\nExtract the health assessment.")
	return b.String()
}

func buildPlannerPrompt(assessment AnalyzerResult, profileText string, notes, nutrition, conflicts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assessment:\nsummary: %s\nenergy: %d/100\nsignals: %s\nrisks: %s\n",
		assessment.Summary, assessment.EnergyScore,
		strings.Join(assessment.KeySignals, "; "), strings.Join(assessment.RiskFlags, "; "))
	if profileText != "" {
		fmt.Fprintf(&b, "\nUser profile:\n%s\n", profileText)
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, "\nAdaptation notes from earlier sessions:\n- %s\n", strings.Join(notes, "\n- "))
	}
	if len(nutrition) > 0 {
		fmt.Fprintf(&b, "\nNutrition facts that may help:\n- %s\n", strings.Join(nutrition, "\n- "))
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(&b, "\nA previous draft was rejected for these conflicts; the new plan MUST avoid them:\n- %s\n",
			strings.Join(conflicts, "\n- "))
	}
	b.WriteString("\nProduce today's plan.")
	return b.String()
}

func buildValidatorPrompt(plan PlanRecommendation, assessment *AnalyzerResult, profileText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposed plan:\nsummary: %s\ndiet: %s\nexercise: %s\nhydration: %s\nrecovery: %s\n",
		plan.Summary, strings.Join(plan.Diet, "; "), strings.Join(plan.Exercise, "; "),
		plan.Hydration, plan.Recovery)
	if assessment != nil {
		fmt.Fprintf(&b, "\nAssessment the plan responds to:\nsummary: %s\nenergy: %d/100\nrisks: %s\n",
			assessment.Summary, assessment.EnergyScore, strings.Join(assessment.RiskFlags, "; "))
	}
	fmt.Fprintf(&b, "\nUser profile:\n%s\n", profileText)
	b.WriteString("\nReview the plan for conflicts with the profile.")
	return b.String()
}

func buildMonitorPrompt(route Route, message string, assessment *AnalyzerResult, plan *PlanRecommendation, validation *ValidationResult, profileText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn type: %s\nUser message:\n%s\n", route, message)
	if assessment != nil {
		fmt.Fprintf(&b, "\nAssessment: %s (energy %d/100)\n", assessment.Summary, assessment.EnergyScore)
	}
	if plan != nil {
		fmt.Fprintf(&b, "\nPlan to deliver:\nsummary: %s\ndiet: %s\nexercise: %s\nhydration: %s\nrecovery: %s\n",
			plan.Summary, strings.Join(plan.Diet, "; "), strings.Join(plan.Exercise, "; "),
			plan.Hydration, plan.Recovery)
	}
	if validation != nil && !validation.Approved {
		fmt.Fprintf(&b, "\nThe plan did not fully clear safety review (%s). Present it cautiously and flag the concerns:\n- %s\n",
			validation.Reasoning, strings.Join(validation.Conflicts, "\n- "))
	}
	if profileText != "" {
		fmt.Fprintf(&b, "\nUser profile:\n%s\n", profileText)
	}
	b.WriteString("\nCompose the reply and extract anything new worth remembering about the user.")
	return b.String()
}

func buildPhotoPrompt(message, profileText string) string {
	var b strings.Builder
	b.WriteString("The user sent a photo of their meal.")
	if strings.TrimSpace(message) != "" {
		fmt.Fprintf(&b, " They wrote: %q.", message)
	}
	if profileText != "" {
		fmt.Fprintf(&b, "\n\nUser profile:\n%s\n", profileText)
	}
	b.WriteString("\nDescribe the meal and give feedback.")
	return b.String()
}
