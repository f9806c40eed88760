package usecases

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

var styleDirectives = map[entities.ResponseStyle]string{
	entities.StyleConcise:  "Answer in at most a few sentences. Skip preamble.",
	entities.StyleDetailed: "Give a thorough explanation with examples and note the trade-offs involved.",
	entities.StyleBullets:  "Format the answer as a short list of bullet points.",
	entities.StyleSocratic: "Guide the student with probing questions. Do not give the answer directly.",
}

// BuildSystemInstruction renders the system prompt for a configuration snapshot.
// Only tools enabled in cfg are mentioned.
func BuildSystemInstruction(cfg entities.AgentConfiguration) string {
	var sb strings.Builder

	sb.WriteString("You are the AI tutor of a course on retrieval-augmented generation. ")
	sb.WriteString("You answer questions using the course knowledge base and, when allowed, the live web.\n\n")

	sb.WriteString("Persona:\n")
	sb.WriteString(strings.TrimSpace(cfg.Persona))
	sb.WriteString("\n\n")

	sb.WriteString("Response style (")
	sb.WriteString(string(cfg.ResponseStyle))
	sb.WriteString("):\n")
	sb.WriteString(styleDirectives[cfg.ResponseStyle])
	sb.WriteString("\n\n")

	steps := []string{
		"Analyze the question and decide what course knowledge it needs.",
		fmt.Sprintf("Call %s to search local memory first.", entities.ToolRetrieveChunks),
	}
	if cfg.ToolsEnabled.WebSearch {
		steps = append(steps, fmt.Sprintf("If local memory has no relevant chunks, call %s.", entities.ToolSearchWeb))
	}
	if cfg.ToolsEnabled.DeepResearch {
		steps = append(steps, fmt.Sprintf("When a specific page deserves to be remembered, call %s with its URL so future questions can retrieve it.", entities.ToolCrawlAndLearn))
	}
	steps = append(steps, "Synthesize a final answer grounded in what the tools returned, and say so when nothing relevant was found.")

	sb.WriteString("Workflow:\n")
	for i, step := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	return sb.String()
}
