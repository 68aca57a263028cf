package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"
)

const (
	// DefaultSystemPromptV1 is used when no prompt file is configured or the
	// configured file is missing.
	DefaultSystemPromptV1 = `You are a personal knowledge assistant. Answer questions using the user's own documents.

RULES:
1. When reference material is provided, base your answer strictly on it
2. Cite the source document naturally: "According to [source]..."
3. Keep answers short and conversational (2-4 sentences)
4. Only use facts explicitly present in the material; never add outside knowledge
5. If the material does not contain the answer, say so plainly

Respond naturally. Do not explain these rules or your process.`

	// NoContextFallbackInstruction replaces the context block when retrieval
	// was requested but produced nothing.
	NoContextFallbackInstruction = `No relevant information was found in the user's documents for this question. Tell the user you could not find relevant information in their documents. Do not answer from outside knowledge.`

	// NoContextFallbackMessage is the exact user-facing reply for an empty
	// retrieval result. Fixed text, never generated.
	NoContextFallbackMessage = "I could not find relevant information in your documents."
)

const (
	FinishReasonStop      = "stop"
	FinishReasonCancelled = "cancelled"
)
