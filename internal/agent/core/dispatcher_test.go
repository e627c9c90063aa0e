package core

import "testing"

func TestClassifyRouteImageAlwaysWins(t *testing.T) {
	cases := []string{
		"",
		"hi",
		"should I eat this?",
		"here's my lunch, I've been feeling exhausted all week and my back hurts",
	}
	for _, msg := range cases {
		if got := ClassifyRoute(msg, true, 10, RouteFull); got != RoutePhoto {
			t.Fatalf("ClassifyRoute(%q, image=true) = %s, want photo", msg, got)
		}
	}
}

func TestClassifyRouteGreetings(t *testing.T) {
	for _, msg := range []string{"hi", "Hello!", "hey", "good morning", "Hi there", "hello, how are you?"} {
		if got := ClassifyRoute(msg, false, 0, ""); got != RouteGreeting {
			t.Fatalf("ClassifyRoute(%q) = %s, want greeting", msg, got)
		}
	}
	// a greeting carrying real content goes through the full pipeline
	if got := ClassifyRoute("hi, my knee has been hurting since yesterday and I feel drained", false, 0, ""); got != RouteFull {
		t.Fatalf("greeting with content routed %s, want full", got)
	}
}

// Short first-contact symptom reports need assessment, not small talk.
func TestClassifyRouteShortSymptomsAreNotGreetings(t *testing.T) {
	for _, msg := range []string{"severe chest pain", "my back hurts", "feeling really dizzy"} {
		if got := ClassifyRoute(msg, false, 0, ""); got != RouteFull {
			t.Fatalf("ClassifyRoute(%q) = %s, want full", msg, got)
		}
	}
}

func TestClassifyRouteQuickQuestions(t *testing.T) {
	for _, msg := range []string{
		"how much water should I drink a day?",
		"is it ok to run after dinner?",
		"should I stretch before or after lifting?",
	} {
		if got := ClassifyRoute(msg, false, 4, ""); got != RouteQuick {
			t.Fatalf("ClassifyRoute(%q) = %s, want quick", msg, got)
		}
	}
}

func TestClassifyRouteFollowupNeedsPriorPlan(t *testing.T) {
	msg := "that workout was too hard, I couldn't finish it"
	if got := ClassifyRoute(msg, false, 6, RouteFull); got != RouteFollowup {
		t.Fatalf("feedback after a plan routed %s, want followup", got)
	}
	// same message with no prior plan is a fresh full turn
	if got := ClassifyRoute(msg, false, 6, RouteQuick); got == RouteFollowup {
		t.Fatalf("feedback without a prior plan must not route followup")
	}
}

func TestClassifyRouteDefaultsToFull(t *testing.T) {
	msg := "I've been sleeping badly for a week, skipping meals, and I want to get back on track"
	if got := ClassifyRoute(msg, false, 0, ""); got != RouteFull {
		t.Fatalf("ClassifyRoute(%q) = %s, want full", msg, got)
	}
}

// The dispatcher is a pure function: same inputs, same route, every time.
func TestClassifyRouteDeterministic(t *testing.T) {
	inputs := []struct {
		msg      string
		hasImage bool
		histLen  int
		last     Route
	}{
		{"hi", false, 0, ""},
		{"how much protein do I need?", false, 2, ""},
		{"that worked great", false, 8, RouteFull},
		{"plan my week", true, 0, ""},
		{"I feel awful today, barely slept", false, 3, RouteGreeting},
	}
	for _, in := range inputs {
		first := ClassifyRoute(in.msg, in.hasImage, in.histLen, in.last)
		for i := 0; i < 50; i++ {
			if got := ClassifyRoute(in.msg, in.hasImage, in.histLen, in.last); got != first {
				t.Fatalf("ClassifyRoute(%q) flapped: %s then %s", in.msg, first, got)
			}
		}
		if first == "" {
			t.Fatalf("ClassifyRoute(%q) returned no route", in.msg)
		}
	}
}
