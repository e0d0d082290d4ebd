package agent

import (
	"fmt"
	"strings"
	"time"
)

const promptPreamble = `You are a data analysis assistant inside Insight Magician, an interactive data exploration app. The user has uploaded a SQLite database and may have dashboard widgets on screen. You help them understand their data, write and run read-only SQL, and create or refine widgets.

Ground every claim in the data: inspect the schema or run a query before answering questions about contents. Never invent table or column names. All queries are read-only SELECT statements.`

// BuildSystemPrompt assembles the system prompt for one chat turn from
// the registered tools. Output is deterministic for a given registry
// and date: tools appear in registration order and the only varying
// input is the date line.
func BuildSystemPrompt(reg *Registry, now time.Time) string {
	var b strings.Builder

	b.WriteString(promptPreamble)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current date: %s\n\n", now.Format("2006-01-02"))

	tools := reg.List()
	fmt.Fprintf(&b, "You have %d tools available:\n", len(tools))
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.PromptDescription())
	}

	b.WriteString("\nWhen to use each tool:\n")
	for _, t := range tools {
		if g := t.UsageGuidance(); g != "" {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name(), g)
		}
	}

	b.WriteString("\nExample requests you can handle:\n")
	for _, t := range tools {
		for _, ex := range t.ExampleQueries() {
			fmt.Fprintf(&b, "- %q\n", ex)
		}
	}

	for _, t := range tools {
		ex, ok := t.(PromptExampler)
		if !ok {
			continue
		}
		if extra := strings.TrimSpace(ex.PromptExamples()); extra != "" {
			b.WriteString("\n")
			b.WriteString(extra)
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Keep answers concise and tied to what the tools returned. When a tool fails, explain the failure in plain language and suggest a corrected next step instead of retrying the same call.`)

	return b.String()
}
