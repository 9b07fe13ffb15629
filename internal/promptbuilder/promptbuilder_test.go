package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
	"contextnexus/internal/tokencount"
)

func sampleContext() core.OptimizedContext {
	return core.OptimizedContext{
		Items: []core.OptimizedContentItem{
			{ID: "a", Title: "Doc A", Content: "alpha content", ContentType: core.ContentText, Tokens: 3},
			{ID: "b", Title: "Doc B", Content: "beta content", ContentType: core.ContentText, Tokens: 2},
		},
	}
}

func TestBuildChatIncludesSystemAndUserMessages(t *testing.T) {
	p := Build("what is alpha?", sampleContext(), "claude-3", Options{})
	require.True(t, p.IsChat())
	require.Len(t, p.Messages, 2)
	require.Equal(t, core.RoleSystem, p.Messages[0].Role)
	require.Contains(t, p.Messages[0].Content, "=== Doc A ===")
	require.Contains(t, p.Messages[0].Content, "alpha content")
	require.Equal(t, core.RoleUser, p.Messages[1].Role)
	require.Equal(t, "what is alpha?", p.Messages[1].Content)
}

func TestBuildChatTokensIncludeOverhead(t *testing.T) {
	p := Build("q", sampleContext(), "gpt-4", Options{})
	contents := make([]string, len(p.Messages))
	for i, m := range p.Messages {
		contents[i] = m.Content
	}
	require.Equal(t, tokencount.CountMessages(contents), p.Tokens)
}

func TestBuildConversationOrdersHistoryBeforeFinalUserMessage(t *testing.T) {
	history := []core.PromptMessage{
		{Role: core.RoleUser, Content: "earlier question"},
		{Role: core.RoleAssistant, Content: "earlier answer"},
	}
	p := BuildConversation("follow up", sampleContext(), "claude-3", history)
	require.Len(t, p.Messages, 4)
	require.Equal(t, "earlier question", p.Messages[1].Content)
	require.Equal(t, "earlier answer", p.Messages[2].Content)
	require.Equal(t, "follow up", p.Messages[3].Content)
}

func TestBuildCompletionForNonChatModel(t *testing.T) {
	p := Build("what is alpha?", sampleContext(), "davinci-002", Options{})
	require.False(t, p.IsChat())
	require.True(t, strings.HasSuffix(p.Text, "ANSWER:"))
	require.Contains(t, p.Text, "QUESTION: what is alpha?")
	require.Contains(t, p.Text, "CONTEXT:")
	require.Equal(t, tokencount.Count(p.Text), p.Tokens)
}

func TestSystemTemplatePicksCodeOnMajority(t *testing.T) {
	oc := core.OptimizedContext{Items: []core.OptimizedContentItem{
		{Title: "a", ContentType: core.ContentCode, Content: "func f() {}"},
		{Title: "b", ContentType: core.ContentCode, Content: "func g() {}"},
		{Title: "c", ContentType: core.ContentText, Content: "prose"},
	}}
	p := Build("q", oc, "claude-3", Options{})
	require.Contains(t, p.Messages[0].Content, "expert software engineer")
}

func TestBuildCodeInjectsFormatInstructions(t *testing.T) {
	p := BuildCode("q", sampleContext(), "claude-3")
	require.Contains(t, p.Messages[0].Content, "runnable code")
}
