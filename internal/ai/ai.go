// Package ai generates support replies through an OpenAI-compatible
// chat-completions endpoint, with a deterministic keyword fallback used when
// no credential is configured or the provider call fails.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/real-rm/golog"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/util"
)

// DefaultEndpoint is the OpenAI API base URL
const DefaultEndpoint = "https://api.openai.com/v1"

const systemPrompt = "You are a helpful customer support assistant. Be friendly, concise, and helpful."

// Turn is one prior message fed to the responder as conversation context
type Turn struct {
	Sender  string // "user", "admin" or "ai"
	Content string
}

// Responder produces support replies. Without an API key every reply comes
// from the keyword fallback.
type Responder struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	logger   *golog.Logger
}

// NewResponder creates a responder. apiKey may be empty (fallback-only mode).
func NewResponder(apiKey, endpoint, model string, logger *golog.Logger) *Responder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = constants.DefaultAIModel
	}
	return &Responder{
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    model,
		client: &http.Client{
			Timeout: constants.AIRequestTimeout,
		},
		logger: logger.WithGroup("ai"),
	}
}

// completionRequest is the chat-completions request body
type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse is the chat-completions response body
type completionResponse struct {
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Message completionMessage `json:"message"`
}

// ProviderConfigured reports whether a provider API key is set. Without one
// every reply comes from the canned fallback table.
func (r *Responder) ProviderConfigured() bool {
	return r.apiKey != ""
}

// Respond generates a reply to the visitor's message. The provider call
// never fails the caller: any error falls back to the canned response.
func (r *Responder) Respond(ctx context.Context, userMessage string, history []Turn) string {
	// No else needed: early return pattern (guard clause)
	if r.apiKey == "" {
		metrics.AIFallbacks.Inc()
		return FallbackResponse(userMessage)
	}

	reply, err := r.complete(ctx, userMessage, history)
	// No else needed: error handling with fallback
	if err != nil {
		util.LogError(r.logger, "ai", "generate completion", err)
		metrics.AIFallbacks.Inc()
		return FallbackResponse(userMessage)
	}
	return reply
}

// complete performs the chat-completions call
func (r *Responder) complete(ctx context.Context, userMessage string, history []Turn) (string, error) {
	start := time.Now()
	metrics.AIRequests.Inc()
	defer func() {
		metrics.AILatency.Observe(time.Since(start).Seconds())
	}()

	messages := make([]completionMessage, 0, len(history)+2)
	messages = append(messages, completionMessage{
		Role:    "system",
		Content: systemPrompt,
	})

	// Only the most recent turns provide context
	turns := history
	if len(turns) > constants.HistoryTurnLimit {
		turns = turns[len(turns)-constants.HistoryTurnLimit:]
	}
	for _, turn := range turns {
		role := "assistant"
		if turn.Sender == constants.SenderUser {
			role = "user"
		}
		messages = append(messages, completionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	messages = append(messages, completionMessage{
		Role:    "user",
		Content: userMessage,
	})

	reqBody := completionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   constants.AIMaxTokens,
		Temperature: constants.AITemperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/chat/completions", bytes.NewReader(bodyBytes))
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// No else needed: early return pattern (guard clause)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxAIErrorBodySize))
		return "", fmt.Errorf("AI provider error (status %d): %s", resp.StatusCode, string(body))
	}

	var completion completionResponse
	// No else needed: early return pattern (guard clause)
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	// No else needed: early return pattern (guard clause)
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no choices in response")
	}

	return completion.Choices[0].Message.Content, nil
}

// FallbackResponse returns a canned reply keyed on the visitor's wording.
// Category priority: greeting, help, thanks, farewell, pricing, contact,
// then the generic acknowledgement.
func FallbackResponse(userMessage string) string {
	message := strings.ToLower(userMessage)

	if containsAny(message, "hello", "hi", "hey") {
		return "Hello! How can I help you today?"
	}

	if strings.Contains(message, "help") {
		return "I'm here to help! What do you need assistance with?"
	}

	if strings.Contains(message, "thank") {
		return "You're welcome! Is there anything else I can help you with?"
	}

	if containsAny(message, "bye", "goodbye") {
		return "Goodbye! Have a great day!"
	}

	if containsAny(message, "price", "cost") {
		return "For pricing information, please contact our sales team. They'll be happy to assist you!"
	}

	if containsAny(message, "support", "contact") {
		return "Our support team is available 24/7. You can reach us through this chat or email us at support@example.com"
	}

	return "Thank you for your message. Our team will get back to you shortly. Is there anything specific you'd like to know?"
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
