package core

import "strings"

// ClassifyRoute decides which pipeline a turn runs. It is a pure function of
// its arguments: the same message, image flag, history length and prior route
// always yield the same route, and every input yields one.
//
// Precedence: an attached image always wins, then greeting, then quick
// question, then feedback on a previous plan, then the full pipeline.
func ClassifyRoute(message string, hasImage bool, historyLen int, lastRoute Route) Route {
	if hasImage {
		return RoutePhoto
	}

	msg := strings.ToLower(strings.TrimSpace(message))
	words := len(strings.Fields(msg))

	if isGreeting(msg, words) {
		return RouteGreeting
	}
	if lastRoute.deliveredPlan() && isFeedback(msg, words) {
		return RouteFollowup
	}
	if isQuickQuestion(msg, words) {
		return RouteQuick
	}
	return RouteFull
}

// deliveredPlan reports whether the route's stage sequence produced a plan
// the user could now be reacting to.
func (r Route) deliveredPlan() bool {
	return r == RouteFull || r == RouteFollowup
}

var greetingPhrases = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"morning", "yo", "hiya", "howdy", "hello there", "hi there",
}

// isGreeting matches small talk only. A short message that is not in the
// greeting lexicon falls through to the full pipeline; "severe chest pain"
// must never route as small talk just because it is three words.
func isGreeting(msg string, words int) bool {
	if words > 6 {
		return false
	}
	for _, g := range greetingPhrases {
		if msg == g || strings.HasPrefix(msg, g+" ") || strings.HasPrefix(msg, g+",") || strings.HasPrefix(msg, g+"!") {
			// A greeting that carries real content ("hi, my knee hurts")
			// still belongs to the full pipeline.
			rest := strings.TrimLeft(strings.TrimPrefix(msg, g), " ,!.")
			if rest == "" || isSmallTalk(rest) {
				return true
			}
		}
	}
	return false
}

func isSmallTalk(rest string) bool {
	switch rest {
	case "how are you", "how are you?", "how's it going", "how's it going?", "there":
		return true
	}
	return false
}

var quickMarkers = []string{
	"how many", "how much", "what is", "what's", "is it ok", "is it okay",
	"should i", "can i", "does ", "do i need", "when should", "quick question",
}

func isQuickQuestion(msg string, words int) bool {
	if words > 25 {
		return false
	}
	if !strings.Contains(msg, "?") {
		return false
	}
	for _, m := range quickMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	// A short bare question without assessment-worthy detail stays quick.
	return words <= 12
}

var feedbackMarkers = []string{
	"that worked", "didn't work", "didnt work", "too hard", "too easy",
	"i did it", "i tried", "felt great", "felt good", "felt bad", "loved it",
	"hated it", "couldn't finish", "couldnt finish", "too much", "not enough",
	"went well", "went badly", "skipped", "it was",
}

func isFeedback(msg string, words int) bool {
	if words > 40 {
		return false
	}
	for _, m := range feedbackMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
