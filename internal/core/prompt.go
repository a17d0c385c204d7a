package core

import (
	"fmt"
	"regexp"
	"strings"
)

const mermaidSystemInstruction = `You are an expert in Mermaid.js diagramming syntax.
Your task is to convert the user's natural language description into valid Mermaid.js code.

Rules:
1. Return ONLY the code. Do not include markdown code fences (like ` + "```" + `mermaid).
2. Do not include explanations or conversational text.
3. If the user asks for a specific diagram type (Sequence, Flowchart, Class, etc.), use that.
4. If unspecified, choose the best diagram type for the data.
5. Ensure syntax is valid and error-free.`

const generationTemperature = 0.2

// ThinkingBudgets are the budgets offered in settings; 0 disables thinking.
var ThinkingBudgets = []int{0, 1024, 2048, 8192}

// buildSystemInstruction adds the current diagram when refining.
func buildSystemInstruction(contextCode string) string {
	if strings.TrimSpace(contextCode) == "" {
		return mermaidSystemInstruction
	}
	return fmt.Sprintf(`%s

You are modifying an existing diagram. Apply the user's instructions to the code below and
return the complete updated diagram. Preserve its structure, node ids and styling unless the
instructions say otherwise.

--- Current Diagram ---
%s
--- End Current Diagram ---`, mermaidSystemInstruction, contextCode)
}

// appendSourceContent attaches textual input below the user's instructions.
func appendSourceContent(prompt, name, content string) string {
	return fmt.Sprintf("%s\n\n--- Source Content (%s) ---\n%s\n", prompt, name, content)
}

// supportsThinking reports whether the model accepts a thinking budget.
func supportsThinking(model string) bool {
	return strings.Contains(model, "gemini-2.5-flash")
}

var (
	// The info string may name any language, e.g. mmd or text.
	leadingFence  = regexp.MustCompile("(?i)^```[\\w+-]*")
	trailingFence = regexp.MustCompile("```$")
)

// CleanResponse strips a markdown code fence the model may add despite the
// instructions.
func CleanResponse(text string) string {
	clean := strings.TrimSpace(text)
	clean = leadingFence.ReplaceAllString(clean, "")
	clean = trailingFence.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}
