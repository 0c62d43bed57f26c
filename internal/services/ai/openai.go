package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/pmorelli/braindump/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

const extractionSystemMessage = "You are a task extraction assistant. " +
	"Parse text and extract all actionable tasks/todos. Respond with JSON only."

// OpenAIProvider implements ExtractionProvider using OpenAI's API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Extract parses free-form text into todo candidates
func (p *OpenAIProvider) Extract(ctx context.Context, text string) ([]models.TodoCandidate, error) {
	prompt := buildExtractionPrompt(text)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(extractionSystemMessage),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	requestID := ExtractRequestID(ctx)
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "extract"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("user_id", ExtractUserID(ctx)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "extract"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Duration("latency_ms", latency),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "extract"),
			zap.String("model", p.model),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("request_id", requestID),
			zap.Duration("latency_ms", latency),
		)
	}

	return ParseCandidates(content)
}

// buildExtractionPrompt builds the prompt for todo extraction
func buildExtractionPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString(`Parse the following text and extract all actionable tasks/todos.
Return ONLY a valid JSON array (no markdown, no explanation) with this structure:
[{"content": "task description", "priority": "p1"|"p2"|"p3"|"p4", "dueDate": "YYYY-MM-DD"|null}]

Priority rules:
- p1: urgent, ASAP, critical, today, emergency
- p2: soon, this week, important, high priority
- p3: normal, sometime this month, regular task
- p4: low priority, backlog, nice to have

Text to process:
`)
	sb.WriteString(text)
	sb.WriteString("\n\nReturn empty array [] if no tasks found.")
	return sb.String()
}

// ErrMalformedCandidates is returned when the response is array-shaped but
// an entry does not match the candidate structure. The whole batch is
// rejected, not individual entries.
var ErrMalformedCandidates = errors.New("extraction response contains malformed candidates")

// ParseCandidates extracts the candidate array from a model response.
// The response may be a bare JSON array, fenced in markdown, or wrapped in
// a single-key envelope object (todos/items/tasks/data). A response that is
// not array-shaped at all is treated as an empty result. A response that is
// array-shaped but whose entries cannot be decoded fails the whole batch.
func ParseCandidates(content string) ([]models.TodoCandidate, error) {
	cleaned := stripFences(content)

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, nil
	}

	entries, ok := arrayEntries(raw)
	if !ok {
		// Envelope object: unwrap the first recognized key holding an array
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, nil
		}
		for _, key := range []string{"todos", "items", "tasks", "data"} {
			inner, found := envelope[key]
			if !found {
				continue
			}
			if entries, ok = arrayEntries(inner); ok {
				break
			}
		}
		if !ok {
			return nil, nil
		}
	}

	candidates := make([]models.TodoCandidate, 0, len(entries))
	for _, entry := range entries {
		var c models.TodoCandidate
		if err := json.Unmarshal(entry, &c); err != nil {
			return nil, ErrMalformedCandidates
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func arrayEntries(raw json.RawMessage) ([]json.RawMessage, bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// stripFences removes markdown code fences around a JSON payload
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
