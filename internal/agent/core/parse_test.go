package core

import "testing"

func TestExtractFirstJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Here is the result:\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{`prefix {"a":{"b":2}} suffix {"c":3}`, `{"a":{"b":2}}`},
		{`no json at all`, `no json at all`},
		{`broken { "a": 1`, `broken { "a": 1`},
	}
	for _, c := range cases {
		if got := extractFirstJSON(c.in); got != c.want {
			t.Fatalf("extractFirstJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseAnalyzerResultClampsAndDefaults(t *testing.T) {
	res, ok := parseAnalyzerResult(`{"summary":"tired but stable","energy_score":180,"key_signals":["poor sleep"]}`)
	if !ok {
		t.Fatalf("expected a parse, got fallback")
	}
	if res.EnergyScore != 100 {
		t.Fatalf("expected energy clamped to 100, got %d", res.EnergyScore)
	}

	res, ok = parseAnalyzerResult("I think the user seems fine overall.")
	if ok {
		t.Fatalf("prose must not parse")
	}
	if res.Summary == "" || res.EnergyScore != 50 {
		t.Fatalf("fallback assessment must be usable, got %+v", res)
	}
}

func TestParsePlanResultFallbackIsSafe(t *testing.T) {
	plan, ok := parsePlanResult("```\nnot json\n```")
	if ok {
		t.Fatalf("garbage must not parse")
	}
	if plan.Summary == "" || len(plan.Diet) == 0 || len(plan.Exercise) == 0 {
		t.Fatalf("fallback plan must carry generic guidance, got %+v", plan)
	}
}

func TestParseValidationResultFailsOpen(t *testing.T) {
	v, ok := parseValidationResult("the model rambled instead of answering")
	if ok {
		t.Fatalf("prose must not parse")
	}
	if !v.Approved {
		t.Fatalf("unparseable validation must approve, got %+v", v)
	}
}

func TestParseMonitorResultWrapsRawReply(t *testing.T) {
	mon, ok := parseMonitorResult("Great job on the walk today! Keep it up.")
	if ok {
		t.Fatalf("prose must not parse as structured output")
	}
	if mon.Reply != "Great job on the walk today! Keep it up." {
		t.Fatalf("raw text should become the reply, got %q", mon.Reply)
	}
	if !mon.ProfileUpdates.IsEmpty() {
		t.Fatalf("fallback must not invent profile updates")
	}
}
