package tools

import (
	"strings"
	"testing"
)

func TestNutritionLookupFindsRelevantFacts(t *testing.T) {
	idx, err := NewNutritionIndex(nil)
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	got := idx.Lookup("high protein chicken", 3)
	if len(got) == 0 {
		t.Fatalf("expected results for a protein query")
	}
	found := false
	for _, line := range got {
		if strings.Contains(strings.ToLower(line), "chicken") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a chicken fact, got %v", got)
	}
}

func TestNutritionLookupDegradesToFallback(t *testing.T) {
	idx, err := NewNutritionIndex(nil)
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	got := idx.Lookup("zzzzqqqq nonexistent", 3)
	if len(got) != 1 || got[0] != nutritionFallback {
		t.Fatalf("expected the generic fallback line, got %v", got)
	}
	got = idx.Lookup("", 3)
	if len(got) != 1 || got[0] != nutritionFallback {
		t.Fatalf("expected fallback for empty query, got %v", got)
	}
}
