// Package anthropic implements registry.Connector over
// github.com/anthropics/anthropic-sdk-go. Grounded in the teacher's
// internal/llm/anthropic/client.go message-conversion and
// block-accumulation pattern, trimmed to this spec's prompt-in/text-out
// Connector surface (no tool-calling, no thinking-block bookkeeping).
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"contextnexus/internal/core"
	"contextnexus/internal/registry"
)

const defaultMaxTokens int64 = 1024

// Connector wraps one Anthropic model.
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
		model = string(sdk.ModelClaude3_7SonnetLatest)
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
	params := c.buildParams(prompt, opts)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic send: %w", err)
	}
	return extractText(resp), nil
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

func (c *Connector) buildParams(prompt core.Prompt, opts registry.SendOptions) sdk.MessageNewParams {
	var system []sdk.TextBlockParam
	messages := make([]sdk.MessageParam, 0, len(prompt.Messages)+1)

	if prompt.IsChat() {
		for _, m := range prompt.Messages {
			switch m.Role {
			case core.RoleSystem:
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			case core.RoleAssistant:
				messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
			default:
				messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
			}
		}
	} else {
		messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(prompt.Text)))
	}

	maxTokens := defaultMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	return params
}

func extractText(resp *sdk.Message) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}
