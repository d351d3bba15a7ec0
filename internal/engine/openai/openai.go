package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	openaigo "github.com/sashabaranov/go-openai"

	"github.com/aviklund/questline/internal/config"
	"github.com/aviklund/questline/internal/engine"
)

const systemPrompt = `You are the narrator of a short interactive text adventure.
Respond to every message with a single JSON object and nothing else:
{"narration": "<2-4 sentences of second-person narration>", "choices": ["<action>", "<action>", "<action>"]}
Offer 2-4 choices. When the story reaches a natural ending, return an empty choices array.`

// Engine generates scenes through an OpenAI-compatible chat completion
// API. Any endpoint speaking that protocol works; base_url selects it.
type Engine struct {
	client      *openaigo.Client
	model       string
	temperature float32
	maxTokens   int
}

// New creates an engine from config.
func New(cfg config.EngineConfig) *Engine {
	clientCfg := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Engine{
		client:      openaigo.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (e *Engine) Name() string { return "openai" }

// Open generates the opening scene of a fresh adventure.
func (e *Engine) Open(ctx context.Context) (*engine.Scene, error) {
	return e.complete(ctx, nil, "Begin a new adventure.")
}

// Advance continues the story from the transcript so far.
func (e *Engine) Advance(ctx context.Context, history []engine.Turn, choice string) (*engine.Scene, error) {
	return e.complete(ctx, history, choice)
}

func (e *Engine) complete(ctx context.Context, history []engine.Turn, prompt string) (*engine.Scene, error) {
	messages := make([]openaigo.ChatCompletionMessage, 0, 2*len(history)+2)
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleAssistant,
			Content: turn.Narration,
		})
		if turn.Choice != "" {
			messages = append(messages, openaigo.ChatCompletionMessage{
				Role:    openaigo.ChatMessageRoleUser,
				Content: turn.Choice,
			})
		}
	}
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := e.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       e.model,
		Messages:    messages,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	scene, err := parseScene(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}

	slog.Debug("scene generated", "model", e.model, "scene_id", scene.ID,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return scene, nil
}

// scenePayload is the wire shape the model is prompted to produce.
type scenePayload struct {
	Narration string   `json:"narration"`
	Choices   []string `json:"choices"`
}

// parseScene decodes a model response into a Scene. Models wrap JSON in
// code fences or emit slightly broken JSON often enough that both get a
// recovery path before giving up.
func parseScene(raw string) (*engine.Scene, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload scenePayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("unmarshal scene (repair also failed: %v): %w", repairErr, err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal repaired scene: %w", err)
		}
		slog.Debug("scene JSON repaired")
	}

	if payload.Narration == "" {
		return nil, fmt.Errorf("scene has no narration")
	}

	return &engine.Scene{
		ID:        uuid.NewString(),
		Narration: payload.Narration,
		Choices:   payload.Choices,
	}, nil
}
