// Package promptbuilder renders an OptimizedContext plus a query (and
// optional conversation history) into a model-specific Prompt: a chat
// payload for chat-capable models, a completion payload otherwise.
// Grounded in the teacher's internal/llm.Message chat-turn shape and its
// context.go system-prompt assembly, simplified to this spec's two fixed
// payload kinds.
package promptbuilder

import (
	"strings"

	"contextnexus/internal/core"
	"contextnexus/internal/tokencount"
)

const defaultSystemTemplate = `You are an assistant answering questions using only the context provided below. Cite specific items where relevant and say so plainly when the context does not contain the answer.`

const codeSystemTemplate = `You are an expert software engineer answering questions about the codebase excerpted below. Reference file titles and preserve exact identifiers, signatures, and syntax when quoting code.`

// chatModelPrefixes names the model-type prefixes recognized as
// chat-capable; anything else is treated as a completion model.
var chatModelPrefixes = []string{"gpt-", "claude", "gemini", "chat"}

func isChatCapable(modelType string) bool {
	lower := strings.ToLower(modelType)
	for _, p := range chatModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Options carries the Prompt Builder's optional behaviors: prior
// conversation turns (only rendered for chat payloads) and fixed format
// instructions injected by a specialization entry point.
type Options struct {
	Conversation       []core.PromptMessage
	FormatInstructions string
}

// Build renders a Prompt for modelType, dispatching to the chat or
// completion shape depending on whether modelType is recognized as
// chat-capable.
func Build(query string, oc core.OptimizedContext, modelType string, opts Options) core.Prompt {
	if isChatCapable(modelType) {
		return buildChat(query, oc, modelType, opts)
	}
	return buildCompletion(query, oc, modelType, opts)
}

// BuildDocumentation is the documentation-focused specialization: it fixes
// FormatInstructions to favor structured, example-free prose.
func BuildDocumentation(query string, oc core.OptimizedContext, modelType string) core.Prompt {
	return Build(query, oc, modelType, Options{
		FormatInstructions: "Answer in clear prose organized under short headings. Do not include code unless the question explicitly asks for it.",
	})
}

// BuildCode is the code-focused specialization: it fixes FormatInstructions
// to require runnable, idiomatic code in the answer.
func BuildCode(query string, oc core.OptimizedContext, modelType string) core.Prompt {
	return Build(query, oc, modelType, Options{
		FormatInstructions: "Answer with complete, idiomatic, runnable code. Explain only what the code itself cannot convey.",
	})
}

// BuildConversation renders a chat Prompt carrying prior turns, used when
// the caller wants conversation history included ahead of the final user
// message.
func BuildConversation(query string, oc core.OptimizedContext, modelType string, history []core.PromptMessage) core.Prompt {
	return Build(query, oc, modelType, Options{Conversation: history})
}

func buildChat(query string, oc core.OptimizedContext, modelType string, opts Options) core.Prompt {
	sysContent := systemTemplateFor(oc)
	if opts.FormatInstructions != "" {
		sysContent = sysContent + "\n\n" + opts.FormatInstructions
	}
	block := contextBlock(oc)
	if block != "" {
		sysContent = sysContent + "\n\nCONTEXT:\n" + block
	}

	messages := make([]core.PromptMessage, 0, 2+len(opts.Conversation))
	messages = append(messages, core.PromptMessage{Role: core.RoleSystem, Content: sysContent})
	messages = append(messages, opts.Conversation...)
	messages = append(messages, core.PromptMessage{Role: core.RoleUser, Content: query})

	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}

	return core.Prompt{
		ModelType: modelType,
		Messages:  messages,
		Tokens:    tokencount.CountMessages(contents),
	}
}

func buildCompletion(query string, oc core.OptimizedContext, modelType string, opts Options) core.Prompt {
	var b strings.Builder
	b.WriteString("Answer the question using the context below.\n\n")
	if opts.FormatInstructions != "" {
		b.WriteString(opts.FormatInstructions)
		b.WriteString("\n\n")
	}
	if block := contextBlock(oc); block != "" {
		b.WriteString("CONTEXT:\n")
		b.WriteString(block)
		b.WriteString("\n\n")
	}
	b.WriteString("QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nANSWER:")

	text := b.String()
	return core.Prompt{
		ModelType: modelType,
		Text:      text,
		Tokens:    tokencount.Count(text),
	}
}

// systemTemplateFor picks the code-focused template when a strict majority
// of selected items are of type code, per §4.6.
func systemTemplateFor(oc core.OptimizedContext) string {
	if len(oc.Items) == 0 {
		return defaultSystemTemplate
	}
	codeCount := 0
	for _, it := range oc.Items {
		if it.ContentType == core.ContentCode {
			codeCount++
		}
	}
	if codeCount*2 > len(oc.Items) {
		return codeSystemTemplate
	}
	return defaultSystemTemplate
}

// contextBlock renders the "=== title ===\ncontent" entries, separated by
// blank lines, preserving OptimizedContext.Items order. Chunks of the same
// source item keep their shared title; ChunkIndex is not rendered since
// ordering alone conveys sequence.
func contextBlock(oc core.OptimizedContext) string {
	entries := make([]string, 0, len(oc.Items))
	for _, it := range oc.Items {
		entries = append(entries, "=== "+it.Title+" ===\n"+it.Content)
	}
	return strings.Join(entries, "\n\n")
}
