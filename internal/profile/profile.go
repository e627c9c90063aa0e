package profile

import (
	"fmt"
	"strings"
	"time"
)

// List caps. Oldest entries are evicted first when a cap is hit.
const (
	MaxListEntries      = 30
	MaxSessionSummaries = 20
)

// HealthTwinProfile is the durable, incrementally built per-user health
// record. All string lists are case-insensitively deduplicated and capped.
type HealthTwinProfile struct {
	UserID           string           `json:"user_id"`
	Conditions       []string         `json:"conditions,omitempty"`
	Allergies        []string         `json:"allergies,omitempty"`
	Medications      []string         `json:"medications,omitempty"`
	Preferences      Preferences      `json:"preferences"`
	Patterns         []string         `json:"patterns,omitempty"`
	Lifestyle        []string         `json:"lifestyle,omitempty"`
	SessionSummaries []SessionSummary `json:"session_summaries,omitempty"`
	Averages         Averages         `json:"averages"`
	CreatedAt        time.Time        `json:"created_at"`
	LastUpdatedAt    time.Time        `json:"last_updated_at"`
}

// Preferences groups likes and dislikes for food and exercise.
type Preferences struct {
	FoodLikes        []string `json:"food_likes,omitempty"`
	FoodDislikes     []string `json:"food_dislikes,omitempty"`
	ExerciseLikes    []string `json:"exercise_likes,omitempty"`
	ExerciseDislikes []string `json:"exercise_dislikes,omitempty"`
}

// SessionSummary captures one finished conversation.
type SessionSummary struct {
	Date        time.Time `json:"date"`
	Topics      []string  `json:"topics,omitempty"`
	EnergyScore int       `json:"energy_score"`
	KeyFinding  string    `json:"key_finding,omitempty"`
}

// Averages holds incrementally updated running means.
type Averages struct {
	EnergyScore   float64 `json:"energy_score"`
	SleepHours    float64 `json:"sleep_hours"`
	DailySteps    float64 `json:"daily_steps"`
	SessionsCount int     `json:"sessions_count"`
}

// Updates is the additive delta a turn may merge into a profile.
// There is no deletion path; absent fields leave the profile untouched.
type Updates struct {
	Conditions       []string `json:"conditions,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	Medications      []string `json:"medications,omitempty"`
	FoodLikes        []string `json:"food_likes,omitempty"`
	FoodDislikes     []string `json:"food_dislikes,omitempty"`
	ExerciseLikes    []string `json:"exercise_likes,omitempty"`
	ExerciseDislikes []string `json:"exercise_dislikes,omitempty"`
	Patterns         []string `json:"patterns,omitempty"`
	Lifestyle        []string `json:"lifestyle,omitempty"`
}

// IsEmpty reports whether the delta carries nothing to merge.
func (u Updates) IsEmpty() bool {
	return len(u.Conditions) == 0 && len(u.Allergies) == 0 && len(u.Medications) == 0 &&
		len(u.FoodLikes) == 0 && len(u.FoodDislikes) == 0 &&
		len(u.ExerciseLikes) == 0 && len(u.ExerciseDislikes) == 0 &&
		len(u.Patterns) == 0 && len(u.Lifestyle) == 0
}

// New creates an empty profile for a user on first contact.
func New(userID string) *HealthTwinProfile {
	now := time.Now()
	return &HealthTwinProfile{UserID: userID, CreatedAt: now, LastUpdatedAt: now}
}

// Apply merges an additive delta into the profile. Every affected list stays
// duplicate-free under case-insensitive comparison and within its cap.
// An empty delta only bumps LastUpdatedAt.
func (p *HealthTwinProfile) Apply(u Updates) {
	p.Conditions = appendCapped(p.Conditions, u.Conditions, MaxListEntries)
	p.Allergies = appendCapped(p.Allergies, u.Allergies, MaxListEntries)
	p.Medications = appendCapped(p.Medications, u.Medications, MaxListEntries)
	p.Preferences.FoodLikes = appendCapped(p.Preferences.FoodLikes, u.FoodLikes, MaxListEntries)
	p.Preferences.FoodDislikes = appendCapped(p.Preferences.FoodDislikes, u.FoodDislikes, MaxListEntries)
	p.Preferences.ExerciseLikes = appendCapped(p.Preferences.ExerciseLikes, u.ExerciseLikes, MaxListEntries)
	p.Preferences.ExerciseDislikes = appendCapped(p.Preferences.ExerciseDislikes, u.ExerciseDislikes, MaxListEntries)
	p.Patterns = appendCapped(p.Patterns, u.Patterns, MaxListEntries)
	p.Lifestyle = appendCapped(p.Lifestyle, u.Lifestyle, MaxListEntries)
	p.LastUpdatedAt = time.Now()
}

// AddSessionSummary appends a summary, evicting the oldest beyond the cap,
// and folds the session's energy score into the running averages.
func (p *HealthTwinProfile) AddSessionSummary(s SessionSummary) {
	p.SessionSummaries = append(p.SessionSummaries, s)
	if n := len(p.SessionSummaries); n > MaxSessionSummaries {
		p.SessionSummaries = p.SessionSummaries[n-MaxSessionSummaries:]
	}
	p.Averages.SessionsCount++
	n := float64(p.Averages.SessionsCount)
	p.Averages.EnergyScore += (float64(s.EnergyScore) - p.Averages.EnergyScore) / n
	p.LastUpdatedAt = time.Now()
}

// ObserveVitals folds a wearable reading into the running means. Zero values
// are treated as missing and skipped.
func (p *HealthTwinProfile) ObserveVitals(sleepHours float64, dailySteps float64) {
	n := float64(p.Averages.SessionsCount)
	if n < 1 {
		n = 1
	}
	if sleepHours > 0 {
		p.Averages.SleepHours += (sleepHours - p.Averages.SleepHours) / n
	}
	if dailySteps > 0 {
		p.Averages.DailySteps += (dailySteps - p.Averages.DailySteps) / n
	}
}

// appendCapped merges add into list, skipping case-insensitive duplicates and
// dropping the oldest entries once the cap is exceeded.
func appendCapped(list []string, add []string, limit int) []string {
	if len(add) == 0 {
		return list
	}
	seen := make(map[string]struct{}, len(list)+len(add))
	for _, s := range list {
		seen[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, s := range add {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		list = append(list, s)
	}
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

// FormatText renders the profile as the labeled text block consumed by stage
// prompts and by the validator's deterministic field extraction.
func (p *HealthTwinProfile) FormatText() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	writeList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.Join(items, ", "))
		b.WriteString("\n")
	}
	writeList("Conditions", p.Conditions)
	writeList("Allergies", p.Allergies)
	writeList("Medications", p.Medications)
	writeList("Food likes", p.Preferences.FoodLikes)
	writeList("Dislikes", p.Preferences.FoodDislikes)
	writeList("Avoids", p.Preferences.ExerciseDislikes)
	writeList("Exercise likes", p.Preferences.ExerciseLikes)
	writeList("Patterns", p.Patterns)
	writeList("Lifestyle", p.Lifestyle)
	if p.Averages.SessionsCount > 0 {
		b.WriteString(fmt.Sprintf("Averages: energy %.0f/100, sleep %.1fh, steps %.0f (%d sessions)\n",
			p.Averages.EnergyScore, p.Averages.SleepHours, p.Averages.DailySteps, p.Averages.SessionsCount))
	}
	if n := len(p.SessionSummaries); n > 0 {
		last := p.SessionSummaries[n-1]
		b.WriteString(fmt.Sprintf("Last session (%s): %s\n", last.Date.Format("2006-01-02"), last.KeyFinding))
	}
	return strings.TrimRight(b.String(), "\n")
}
