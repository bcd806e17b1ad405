package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatflow/chatflow/internal/config"
)

const systemPrompt = "You are a helpful AI assistant in a chat platform. " +
	"Provide clear, helpful, and engaging responses. Be concise but informative."

const fallbackModel = "fallback"

type CompletionParams struct {
	Temperature float64
	MaxTokens   int
}

// AssistantReply is the normalized result of a completion call.
// Fallback marks replies synthesized locally because no provider
// credential is configured.
type AssistantReply struct {
	Content    string
	TokensUsed int
	Model      string
	Fallback   bool
}

// CompletionProvider is the orchestrator's view of the AI backend.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []ChatMessage, params CompletionParams) (*AssistantReply, error)
	CompleteStream(ctx context.Context, messages []ChatMessage, params CompletionParams, onToken func(string)) (*AssistantReply, error)
	FallbackMode() bool
}

// AIGateway calls an OpenAI-compatible chat-completions API. A failed
// call is retried once after a short backoff before surfacing
// ErrProviderUnavailable. With no API key configured it serves
// deterministic fallback replies instead of failing.
type AIGateway struct {
	apiURL       string
	apiKey       string
	model        string
	client       *http.Client
	streamClient *http.Client // no timeout for SSE streaming
	retryBackoff time.Duration
}

func NewAIGateway(cfg *config.Config) *AIGateway {
	return &AIGateway{
		apiURL: cfg.AIAPIURL,
		apiKey: cfg.AIAPIKey,
		model:  cfg.AIModel,
		client: &http.Client{
			Timeout: time.Duration(cfg.AITimeoutSeconds) * time.Second,
		},
		streamClient: &http.Client{
			Timeout: 0,
		},
		retryBackoff: 500 * time.Millisecond,
	}
}

func (g *AIGateway) FallbackMode() bool {
	return g.apiKey == ""
}

func (g *AIGateway) Complete(ctx context.Context, messages []ChatMessage, params CompletionParams) (*AssistantReply, error) {
	if g.FallbackMode() {
		return g.fallbackReply(messages), nil
	}

	body, err := json.Marshal(g.buildRequest(messages, params, false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := g.doWithRetry(ctx, g.client, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &completion); err != nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: malformed completion response", ErrProviderUnavailable)
	}

	content := completion.Choices[0].Message.Content
	tokens := completion.Usage.TotalTokens
	if tokens == 0 {
		tokens = approxTokens(messages, content)
	}

	return &AssistantReply{
		Content:    content,
		TokensUsed: tokens,
		Model:      g.model,
	}, nil
}

// CompleteStream streams the reply token by token through onToken and
// returns the assembled reply. Fallback replies are streamed word by
// word so both paths look the same to the caller.
func (g *AIGateway) CompleteStream(ctx context.Context, messages []ChatMessage, params CompletionParams, onToken func(string)) (*AssistantReply, error) {
	if g.FallbackMode() {
		reply := g.fallbackReply(messages)
		for _, tok := range strings.SplitAfter(reply.Content, " ") {
			onToken(tok)
		}
		return reply, nil
	}

	body, err := json.Marshal(g.buildRequest(messages, params, true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := g.doWithRetry(ctx, g.streamClient, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if token := chunk.Choices[0].Delta.Content; token != "" {
			full.WriteString(token)
			onToken(token)
		}
		if chunk.Choices[0].FinishReason != nil {
			break
		}
	}

	content := full.String()
	if content == "" {
		return nil, fmt.Errorf("%w: empty streamed completion", ErrProviderUnavailable)
	}

	return &AssistantReply{
		Content:    content,
		TokensUsed: approxTokens(messages, content),
		Model:      g.model,
	}, nil
}

func (g *AIGateway) buildRequest(messages []ChatMessage, params CompletionParams, stream bool) map[string]any {
	payload := make([]ChatMessage, 0, len(messages)+1)
	if len(messages) == 0 || messages[0].Role != "system" {
		payload = append(payload, ChatMessage{Role: "system", Content: systemPrompt})
	}
	payload = append(payload, messages...)

	return map[string]any{
		"model":       g.model,
		"messages":    payload,
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
		"stream":      stream,
	}
}

// doWithRetry sends the request, retrying once on transport failure or
// a 5xx response. Anything else that isn't a 2xx surfaces immediately.
func (g *AIGateway) doWithRetry(ctx context.Context, client *http.Client, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.retryBackoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			slog.Warn("AI provider call failed", "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			slog.Warn("AI provider returned server error", "attempt", attempt+1, "status", resp.StatusCode)
			lastErr = fmt.Errorf("provider status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: provider status %d", ErrProviderUnavailable, resp.StatusCode)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

// fallbackReply synthesizes a deterministic reply keyed off the last
// user message, so the service works with zero external configuration.
func (g *AIGateway) fallbackReply(messages []ChatMessage) *AssistantReply {
	var userMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			userMessage = messages[i].Content
			break
		}
	}

	responses := []string{
		"I'm a demo AI assistant. To get real responses, please configure an AI_API_KEY.",
		"This is a demo response from the AI service. The system is working correctly!",
		"Hello! I'm responding in demo mode. Please set up an AI provider for real responses.",
		fmt.Sprintf("You said: '%s'. I'm a placeholder response until an AI provider is configured.", userMessage),
	}
	content := responses[len([]rune(userMessage))%len(responses)]

	return &AssistantReply{
		Content:    content,
		TokensUsed: len(strings.Fields(content)) + len(strings.Fields(userMessage)),
		Model:      fallbackModel,
		Fallback:   true,
	}
}

func approxTokens(messages []ChatMessage, reply string) int {
	n := len(strings.Fields(reply))
	if len(messages) > 0 {
		n += len(strings.Fields(messages[len(messages)-1].Content))
	}
	return n
}
