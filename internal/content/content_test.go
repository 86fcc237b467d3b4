package content

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStaticStoreLookup(t *testing.T) {
	s := NewStaticStore()
	sc, err := s.Scenario(context.Background(), "late-report")
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	if sc.TargetLanguage != "ko" {
		t.Errorf("TargetLanguage = %q", sc.TargetLanguage)
	}
	if _, err := s.Scenario(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing scenario err = %v, want ErrNotFound", err)
	}
	if _, err := s.Persona(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing persona err = %v, want ErrNotFound", err)
	}
}

func TestBuildInstructions(t *testing.T) {
	s := NewStaticStore()
	sc, _ := s.Scenario(context.Background(), "late-report")
	p, _ := s.Persona(context.Background(), "team-lead-kim")

	got := BuildInstructions(sc, p, "Lee Jiho")
	for _, want := range []string{
		"You are Kim Minji",
		"Stay in character",
		"Explaining a late deliverable",
		"Lee Jiho",
		"language with code ko",
		"never narrate stage directions",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q\n%s", want, got)
		}
	}
}

func TestBuildInstructionsWithoutTrainee(t *testing.T) {
	got := BuildInstructions(Scenario{Title: "t", Description: "d"}, Persona{Name: "P"}, "")
	if strings.Contains(got, "speaking with") {
		t.Errorf("unexpected trainee clause: %s", got)
	}
}
