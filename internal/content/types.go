// Package content is the read-only scenario and persona store the roleplay
// sessions are built from. Authoring happens in the admin tooling; this
// service only looks records up by id.
package content

import (
	"context"
	"strings"
)

// Scenario describes one training situation.
type Scenario struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	TargetLanguage string `json:"target_language"`
	Difficulty     int    `json:"difficulty"`
	SystemPrompt   string `json:"system_prompt"`
}

// Persona is the character the AI plays opposite the trainee.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Voice        string `json:"voice"`
	Style        string `json:"style"`
	SystemPrompt string `json:"system_prompt"`
}

// Store looks up authored content by id.
type Store interface {
	Scenario(ctx context.Context, id string) (Scenario, error)
	Persona(ctx context.Context, id string) (Persona, error)
	Close() error
}

// BuildInstructions renders the combined system prompt handed to the vendor
// session on connect and on every reconnect.
func BuildInstructions(sc Scenario, p Persona, traineeName string) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(p.Name)
	if p.Role != "" {
		b.WriteString(", ")
		b.WriteString(p.Role)
	}
	b.WriteString(". Stay in character for the whole conversation.\n")
	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n")
	}
	if p.Style != "" {
		b.WriteString("Speaking style: ")
		b.WriteString(p.Style)
		b.WriteString("\n")
	}
	b.WriteString("Scenario: ")
	b.WriteString(sc.Title)
	b.WriteString(". ")
	b.WriteString(sc.Description)
	b.WriteString("\n")
	if sc.SystemPrompt != "" {
		b.WriteString(sc.SystemPrompt)
		b.WriteString("\n")
	}
	if traineeName != "" {
		b.WriteString("You are speaking with ")
		b.WriteString(traineeName)
		b.WriteString(".\n")
	}
	if sc.TargetLanguage != "" {
		b.WriteString("Speak only in the language with code ")
		b.WriteString(sc.TargetLanguage)
		b.WriteString(". Never switch languages, never narrate stage directions, never explain your reasoning.")
	}
	return b.String()
}
