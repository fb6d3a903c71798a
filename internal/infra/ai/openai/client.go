package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client is an inspections.Analyzer backed by a chat-completion model.
type Client struct {
	*openai.Client
	Model     string
	Extractor inspections.TextExtractor
}

func NewClient(apiKey, model string, extractor inspections.TextExtractor) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, Extractor: extractor}
}

func (c *Client) model() string {
	if c.Model == "" {
		return openai.GPT4oMini
	}
	return c.Model
}

func (c *Client) Name() string { return "openai/" + c.model() }

func (c *Client) InspectBytes(ctx context.Context, name string, data []byte) (inspections.Findings, error) {
	if c.Extractor == nil {
		return inspections.Findings{}, fmt.Errorf("%w: no text extractor configured", custody.ErrAnalyzer)
	}
	return c.InspectText(ctx, name, c.Extractor.ExtractText(name, data))
}

func (c *Client) InspectText(ctx context.Context, name, text string) (inspections.Findings, error) {
	model := c.model()
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(name, text)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return inspections.Findings{}, fmt.Errorf("%w: failed to create chat completion: %v", custody.ErrAnalyzer, err)
	}
	if len(resp.Choices) == 0 {
		return inspections.Findings{}, fmt.Errorf("%w: empty completion", custody.ErrAnalyzer)
	}
	return ParseFindings(name, resp.Choices[0].Message.Content)
}

// ParseFindings decodes a model reply into findings and normalizes it: the
// filename is forced, risk is upper-cased, zero counts are dropped and
// categories are derived from counts when missing.
func ParseFindings(name, content string) (inspections.Findings, error) {
	var f inspections.Findings
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &f); err != nil {
		return inspections.Findings{}, fmt.Errorf("%w: decoding model reply: %v", custody.ErrAnalyzer, err)
	}
	f.Filename = name
	f.Error = ""

	patterns := make(map[string]int, len(f.PatternsFound))
	for k, n := range f.PatternsFound {
		if n > 0 {
			patterns[k] = n
		}
	}
	f.PatternsFound = patterns
	if len(f.CUICategories) == 0 {
		f.CUICategories = inspections.Findings{PatternsFound: patterns}.SortedCategoriesFromPatterns()
	}

	switch risk := inspections.RiskLevel(strings.ToUpper(strings.TrimSpace(string(f.RiskLevel)))); risk {
	case inspections.RiskLow, inspections.RiskMedium, inspections.RiskHigh:
		f.RiskLevel = risk
	default:
		return inspections.Findings{}, fmt.Errorf("%w: unknown risk level %q", custody.ErrAnalyzer, f.RiskLevel)
	}
	if f.CUIDetected == nil {
		detected := len(patterns) > 0
		f.CUIDetected = &detected
	}
	return f, nil
}

var _ inspections.Analyzer = (*Client)(nil)
