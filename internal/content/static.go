package content

import (
	"context"
	"fmt"
)

// StaticStore serves a small built-in content set for local development and
// tests, where no content database is wired up.
type StaticStore struct {
	scenarios map[string]Scenario
	personas  map[string]Persona
}

func NewStaticStore() *StaticStore {
	return &StaticStore{
		scenarios: map[string]Scenario{
			"late-report": {
				ID:             "late-report",
				Title:          "Explaining a late deliverable",
				Description:    "The trainee must explain a missed deadline to an unhappy team lead and negotiate a recovery plan.",
				TargetLanguage: "ko",
				Difficulty:     3,
				SystemPrompt:   "Press the trainee on the schedule slip, but accept a concrete recovery plan.",
			},
			"client-escalation": {
				ID:             "client-escalation",
				Title:          "Handling an escalating client call",
				Description:    "An important client is upset about a billing mistake. The trainee has to de-escalate and keep the account.",
				TargetLanguage: "en",
				Difficulty:     4,
				SystemPrompt:   "Start frustrated. Calm down only if the trainee acknowledges the mistake and offers a fix.",
			},
		},
		personas: map[string]Persona{
			"team-lead-kim": {
				ID:           "team-lead-kim",
				Name:         "Kim Minji",
				Role:         "a demanding but fair team lead",
				Voice:        "alloy",
				Style:        "direct, clipped sentences, occasional sighs of impatience",
				SystemPrompt: "You value punctuality above everything and dislike vague excuses.",
			},
			"client-harris": {
				ID:           "client-harris",
				Name:         "Jordan Harris",
				Role:         "a long-standing enterprise client",
				Voice:        "verse",
				Style:        "polite on the surface, pointed underneath",
				SystemPrompt: "You are considering moving your contract to a competitor.",
			},
		},
	}
}

func (s *StaticStore) Scenario(_ context.Context, id string) (Scenario, error) {
	sc, ok := s.scenarios[id]
	if !ok {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	return sc, nil
}

func (s *StaticStore) Persona(_ context.Context, id string) (Persona, error) {
	p, ok := s.personas[id]
	if !ok {
		return Persona{}, fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *StaticStore) Close() error { return nil }
