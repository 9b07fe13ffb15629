// Package google implements registry.Connector over
// google.golang.org/genai. Grounded in the teacher's
// internal/llm/google/client.go (genai.NewClient construction,
// Models.GenerateContent call, candidate/part text extraction), trimmed to
// this spec's tool-free prompt-in/text-out Connector surface.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"contextnexus/internal/core"
	"contextnexus/internal/registry"
)

// Connector wraps one Gemini model.
type Connector struct {
	client *genai.Client
	model  string
	info   registry.Info
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
func New(ctx context.Context, cfg Config, httpClient *http.Client) (*Connector, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
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
		client: client,
		model:  model,
		info:   registry.Info{ID: model, Capabilities: capSet},
	}, nil
}

func (c *Connector) Info() registry.Info { return c.info }

func (c *Connector) Send(ctx context.Context, prompt core.Prompt, opts registry.SendOptions) (string, error) {
	contents := toContents(prompt)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", fmt.Errorf("google send: %w", err)
	}
	return extractText(resp)
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

func toContents(prompt core.Prompt) []*genai.Content {
	if !prompt.IsChat() {
		return []*genai.Content{genai.NewContentFromParts([]*genai.Part{{Text: prompt.Text}}, genai.RoleUser)}
	}
	out := make([]*genai.Content, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		role := genai.RoleUser
		if m.Role == core.RoleAssistant {
			role = genai.RoleModel
		}
		// Gemini has no distinct system role in Contents; a system message is
		// sent as its own user-role turn so its instructions survive the
		// conversion.
		out = append(out, genai.NewContentFromParts([]*genai.Part{{Text: m.Content}}, role))
	}
	return out
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("nil response from google provider")
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in google response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
