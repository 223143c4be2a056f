package generate

import (
	"strings"

	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// identityPreamble composes the agent's system identity text.
func identityPreamble(agent *models.Agent) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(agent.Name)
	b.WriteString(".")
	if agent.Description != "" {
		b.WriteString(" ")
		b.WriteString(agent.Description)
	}
	if agent.SystemPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(agent.SystemPrompt)
	}
	return b.String()
}

// BuildTurns converts the conversation history into provider-format turns.
// The system identity is injected both before and after the history so the
// agent's constraints survive long contexts. Only the most recent
// historyLimit messages are kept.
func BuildTurns(agent *models.Agent, history []*models.Message, historyLimit int) []Turn {
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	identity := identityPreamble(agent)
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Text: identity})

	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		switch msg.Type {
		case models.MessageTypeAgent:
			turns = append(turns, Turn{Role: RoleAssistant, Text: msg.Content})
		case models.MessageTypeSystem:
			turns = append(turns, Turn{Role: RoleSystem, Text: msg.Content})
		default:
			turns = append(turns, Turn{Role: RoleUser, Text: msg.Content})
		}
	}

	turns = append(turns, Turn{Role: RoleSystem, Text: identity})
	return turns
}
