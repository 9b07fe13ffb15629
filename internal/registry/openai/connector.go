// Package openai implements registry.Connector over
// github.com/openai/openai-go/v2's Chat Completions API. Grounded in the
// teacher's internal/llm/openai/client.go and schema.go message adaptation
// (sdk.SystemMessage/UserMessage/AssistantMessage helpers,
// comp.Choices[0].Message.Content extraction), trimmed to this spec's
// tool-free prompt-in/text-out Connector surface.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"contextnexus/internal/core"
	"contextnexus/internal/registry"
)

// Connector wraps one OpenAI chat model.
type Connector struct {
	sdk   sdk.Client
	model string
	info  registry.Info
}

// Config is the subset of connection settings the connector needs.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Capabilities []string
}

// New builds a Connector for cfg.Model. httpClient may be nil to use
// http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = []string{"chat", "completion"}
	}
	capSet := map[string]struct{}{}
	for _, c := range caps {
		capSet[c] = struct{}{}
	}

	return &Connector{
		sdk:   sdk.NewClient(opts...),
		model: model,
		info:  registry.Info{ID: model, Capabilities: capSet},
	}
}

func (c *Connector) Info() registry.Info { return c.info }

func (c *Connector) Send(ctx context.Context, prompt core.Prompt, opts registry.SendOptions) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(prompt),
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai send: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

func (c *Connector) Stream(ctx context.Context, prompt core.Prompt, opts registry.SendOptions) (<-chan registry.StreamChunk, error) {
	ch := make(chan registry.StreamChunk, 1)
	go func() {
		defer close(ch)
		text, err := c.Send(ctx, prompt, opts)
		if err != nil {
			return
		}
		select {
		case ch <- registry.StreamChunk{Text: text, Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func adaptMessages(prompt core.Prompt) []sdk.ChatCompletionMessageParamUnion {
	if !prompt.IsChat() {
		return []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(prompt.Text)}
	}
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
