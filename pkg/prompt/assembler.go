package prompt

import (
	"fmt"
	"strings"

	"personal-knowledge-be/internal/constant"
	"personal-knowledge-be/pkg/llm"
	"personal-knowledge-be/pkg/retrieval"
)

// AssemblyError marks malformed prompt inputs. Always fatal for the turn.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "prompt assembly: " + e.Reason
}

// Assembler composes the ordered message list sent to the model: system
// prompt first, prior turns in conversation order, the labeled context block
// (or the fallback instruction) immediately before the new user turn, and
// the new user turn last.
type Assembler struct {
	systemPrompt string
}

func NewAssembler(systemPrompt string) *Assembler {
	return &Assembler{systemPrompt: systemPrompt}
}

// Assemble never mutates history; it returns a fresh slice. withContext
// distinguishes "context not requested" (no block at all) from "context
// requested but empty" (fallback instruction substituted).
func (a *Assembler) Assemble(history []llm.Message, userMessage string, snippets []retrieval.ContextSnippet, withContext bool) ([]llm.Message, error) {
	if strings.TrimSpace(a.systemPrompt) == "" {
		return nil, &AssemblyError{Reason: "system prompt is empty"}
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: a.systemPrompt,
	})

	for _, msg := range history {
		// The stored leading system turn is superseded by systemPrompt.
		if msg.Role == llm.RoleSystem {
			continue
		}
		messages = append(messages, msg)
	}

	if withContext {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: buildContextBlock(snippets),
		})
	}

	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: userMessage,
	})

	return messages, nil
}

func buildContextBlock(snippets []retrieval.ContextSnippet) string {
	if len(snippets) == 0 {
		return constant.NoContextFallbackInstruction
	}

	var block strings.Builder
	block.WriteString("<reference_material>\n")
	for i, snippet := range snippets {
		fmt.Fprintf(&block, "[%d] source: %s\n", i+1, snippet.SourceID)
		block.WriteString(snippet.Text)
		block.WriteString("\n\n")
	}
	block.WriteString("</reference_material>")
	return block.String()
}
