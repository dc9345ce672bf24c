package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

const systemPrompt = `You are an analyst tracking companies and markets over time.
Reply with a single JSON object and nothing else, shaped as:
{"metrics": {"<snake_case_name>": <number>, ...},
 "narrative": {"<snake_case_field>": "<one sentence>", ...},
 "sources": ["<url or publication>", ...]}
Use the same metric and narrative names on every call for the same entity.`

// OpenAIProducer asks a chat model for a JSON analysis of the entity
type OpenAIProducer struct {
	client *openai.Client
	model  string
	logger *logger.Logger
}

// NewOpenAIProducer creates a producer against the public OpenAI API
func NewOpenAIProducer(apiKey, model string, log *logger.Logger) *OpenAIProducer {
	return NewOpenAIProducerWithConfig(openai.DefaultConfig(apiKey), model, log)
}

// NewOpenAIProducerWithConfig creates a producer from a client config, which
// may point at a compatible endpoint.
func NewOpenAIProducerWithConfig(cfg openai.ClientConfig, model string, log *logger.Logger) *OpenAIProducer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProducer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log,
	}
}

// Produce requests one analysis and decodes the model's JSON reply
func (p *OpenAIProducer) Produce(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(entity, category, frameworks)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	payload, err := decodePayload(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(map[string]interface{}{
		"entity":  entity,
		"model":   p.model,
		"metrics": len(payload.Metrics),
		"tokens":  resp.Usage.TotalTokens,
	}).Debug("Produced analysis")

	return payload, nil
}

func buildPrompt(entity, category string, frameworks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s\n", entity)
	if category != "" {
		fmt.Fprintf(&b, "Category: %s\n", category)
	}
	if len(frameworks) > 0 {
		fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(frameworks, ", "))
	}
	b.WriteString("Report the latest quantitative metrics and a short narrative for each framework.")
	return b.String()
}

func decodePayload(content string) (*snapshot.Payload, error) {
	var payload snapshot.Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if len(payload.Metrics) == 0 && len(payload.Narrative) == 0 {
		return nil, fmt.Errorf("model returned an empty analysis")
	}
	return &payload, nil
}
