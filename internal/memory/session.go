package memory

import (
	"encoding/json"
	"time"
)

// Caps on the per-session derived lists.
const (
	MaxAdaptationNotes = 10
	MaxUserFacts       = 20
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleAgent     = "agent"
)

// ChatMessage is one immutable conversation entry. Ordering is insertion
// order, which is chronological.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the rolling per-conversation record. It is owned by the
// orchestrator for the duration of a turn; all mutation goes through
// Store.Update so tier-1 locking and tier-2 persistence stay consistent.
type Session struct {
	ID              string          `json:"id"`
	Messages        []ChatMessage   `json:"messages,omitempty"`
	AdaptationNotes []string        `json:"adaptation_notes,omitempty"`
	UserFacts       []string        `json:"user_facts,omitempty"`
	LastAssessment  json.RawMessage `json:"last_assessment,omitempty"`
	LastRoute       string          `json:"last_route,omitempty"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
}

// AppendMessage adds a message to the rolling window, dropping the oldest
// entries beyond maxMessages.
func (s *Session) AppendMessage(msg ChatMessage, maxMessages int) {
	s.Messages = append(s.Messages, msg)
	if n := len(s.Messages); maxMessages > 0 && n > maxMessages {
		s.Messages = s.Messages[n-maxMessages:]
	}
}

// AddAdaptationNote records the note carried into the next turn's planning.
func (s *Session) AddAdaptationNote(note string) {
	if note == "" {
		return
	}
	s.AdaptationNotes = append(s.AdaptationNotes, note)
	if n := len(s.AdaptationNotes); n > MaxAdaptationNotes {
		s.AdaptationNotes = s.AdaptationNotes[n-MaxAdaptationNotes:]
	}
}

// AddUserFact records a fact with exact-string dedup.
func (s *Session) AddUserFact(fact string) {
	if fact == "" {
		return
	}
	for _, f := range s.UserFacts {
		if f == fact {
			return
		}
	}
	s.UserFacts = append(s.UserFacts, fact)
	if n := len(s.UserFacts); n > MaxUserFacts {
		s.UserFacts = s.UserFacts[n-MaxUserFacts:]
	}
}

// clone returns a deep-enough copy safe to hand to the async persist workers
// while the live session keeps mutating under its shard lock.
func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = append([]ChatMessage(nil), s.Messages...)
	cp.AdaptationNotes = append([]string(nil), s.AdaptationNotes...)
	cp.UserFacts = append([]string(nil), s.UserFacts...)
	cp.LastAssessment = append(json.RawMessage(nil), s.LastAssessment...)
	return &cp
}
