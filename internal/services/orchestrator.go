package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatflow/chatflow/internal/config"
	"github.com/chatflow/chatflow/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	maxMessageLen  = 2000
	minTemperature = 0.0
	maxTemperature = 2.0
	minMaxTokens   = 1
	maxMaxTokens   = 4000

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000

	// Margin on top of the gateway timeout so storage work before and
	// after the completion call fits under the overall deadline.
	storageDeadlineMargin = 15 * time.Second
)

// Orchestrator runs one chat turn end to end: resolve the conversation,
// persist the user message (and first-message title), build the bounded
// context, call the AI provider, persist the assistant reply.
type Orchestrator struct {
	store    *ConversationStore
	provider CompletionProvider
	cfg      *config.Config
}

func NewOrchestrator(store *ConversationStore, provider CompletionProvider, cfg *config.Config) *Orchestrator {
	return &Orchestrator{store: store, provider: provider, cfg: cfg}
}

type ChatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      *int     `json:"max_tokens"`
}

// Turn is the committed state of a chat request after the user message
// is durable but before the completion call.
type Turn struct {
	Principal    Principal
	Conversation *models.Conversation
	UserMessage  *models.Message
	Context      []ChatMessage
	Params       CompletionParams
	startedAt    time.Time
}

type ChatResult struct {
	ConversationID   uuid.UUID       `json:"conversation_id"`
	Title            string          `json:"title"`
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
	TokensUsed       int             `json:"tokens_used"`
	ResponseTimeMs   int             `json:"response_time_ms"`
	IsGuest          bool            `json:"is_guest"`
}

// Chat handles one turn. On ErrProviderUnavailable the returned result
// is non-nil and carries the state that stayed committed (conversation
// id, title, user message); everything before the completion call is
// durable by design and is not rolled back.
func (o *Orchestrator) Chat(ctx context.Context, principal Principal, req ChatRequest) (*ChatResult, error) {
	ctx, cancel := o.turnContext(ctx)
	defer cancel()

	turn, err := o.Prepare(ctx, principal, req)
	if err != nil {
		return nil, err
	}

	reply, err := o.provider.Complete(ctx, turn.Context, turn.Params)
	if err != nil {
		return o.failTurn(ctx, turn, err)
	}

	return o.finishTurn(ctx, turn, reply)
}

// ChatStream behaves like Chat but streams reply tokens through
// onToken as they arrive. The assistant message is persisted only once
// the stream has been fully assembled.
func (o *Orchestrator) ChatStream(ctx context.Context, turn *Turn, onToken func(string)) (*ChatResult, error) {
	reply, err := o.provider.CompleteStream(ctx, turn.Context, turn.Params, onToken)
	if err != nil {
		return o.failTurn(ctx, turn, err)
	}
	return o.finishTurn(ctx, turn, reply)
}

// Prepare validates the request, loads or creates the conversation,
// persists the user message (deriving the title for a first message in
// the same transaction) and builds the provider context. After Prepare
// returns, the user's message is durable no matter what the provider
// does.
func (o *Orchestrator) Prepare(ctx context.Context, principal Principal, req ChatRequest) (*Turn, error) {
	start := time.Now()

	message, params, err := validateChatRequest(req)
	if err != nil {
		return nil, err
	}

	var conv *models.Conversation
	if req.ConversationID != "" {
		id, parseErr := uuid.Parse(req.ConversationID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid conversation id", ErrValidation)
		}
		conv, err = o.store.GetConversation(ctx, principal, id)
	} else {
		conv, err = o.store.CreateConversation(ctx, principal, "")
	}
	if err != nil {
		return nil, err
	}

	userMsg, conv, err := o.store.AppendMessage(ctx, conv.ID, models.RoleUser, message, nil)
	if err != nil {
		return nil, err
	}

	history, err := o.store.ListMessages(ctx, principal, conv.ID)
	if err != nil {
		return nil, err
	}

	return &Turn{
		Principal:    principal,
		Conversation: conv,
		UserMessage:  userMsg,
		Context:      BuildContext(history, o.cfg.ContextMaxMessages, o.cfg.ContextMaxChars),
		Params:       params,
		startedAt:    start,
	}, nil
}

// turnContext detaches the request flow from client cancellation and
// puts the whole turn under one deadline, so a disconnect after the
// user message is committed never aborts the flow mid-transaction.
func (o *Orchestrator) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline := time.Duration(o.cfg.AITimeoutSeconds)*time.Second + storageDeadlineMargin
	return context.WithTimeout(context.WithoutCancel(ctx), deadline)
}

// TurnContextFor is the exported variant for handlers that drive the
// turn themselves (streaming, websocket).
func (o *Orchestrator) TurnContextFor(ctx context.Context) (context.Context, context.CancelFunc) {
	return o.turnContext(ctx)
}

func (o *Orchestrator) finishTurn(ctx context.Context, turn *Turn, reply *AssistantReply) (*ChatResult, error) {
	metadata := datatypes.JSONMap{
		"tokens_used": reply.TokensUsed,
		"model":       reply.Model,
		"fallback":    reply.Fallback,
		"temperature": turn.Params.Temperature,
		"max_tokens":  turn.Params.MaxTokens,
	}

	assistantMsg, conv, err := o.store.AppendMessage(ctx, turn.Conversation.ID, models.RoleAssistant, reply.Content, metadata)
	if err != nil {
		return nil, err
	}

	latency := int(time.Since(turn.startedAt).Milliseconds())
	o.recordUsage(ctx, turn.Principal, reply.TokensUsed, latency, 200)

	return &ChatResult{
		ConversationID:   conv.ID,
		Title:            conv.Title,
		UserMessage:      turn.UserMessage,
		AssistantMessage: assistantMsg,
		TokensUsed:       reply.TokensUsed,
		ResponseTimeMs:   latency,
		IsGuest:          turn.Principal.Guest,
	}, nil
}

// failTurn reports a completion failure. The user message and any
// title update stay committed; no assistant placeholder is stored.
func (o *Orchestrator) failTurn(ctx context.Context, turn *Turn, cause error) (*ChatResult, error) {
	latency := int(time.Since(turn.startedAt).Milliseconds())
	o.recordUsage(ctx, turn.Principal, 0, latency, 502)

	slog.Error("Completion failed, user message retained",
		"conversation_id", turn.Conversation.ID,
		"error", cause,
	)

	return &ChatResult{
		ConversationID: turn.Conversation.ID,
		Title:          turn.Conversation.Title,
		UserMessage:    turn.UserMessage,
		ResponseTimeMs: latency,
		IsGuest:        turn.Principal.Guest,
	}, cause
}

func (o *Orchestrator) recordUsage(ctx context.Context, principal Principal, tokens, latency, status int) {
	if err := o.store.RecordUsage(ctx, principal, "chat", tokens, latency, status); err != nil {
		slog.Warn("Failed to record usage", "error", err)
	}
}

func validateChatRequest(req ChatRequest) (string, CompletionParams, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", CompletionParams{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if len([]rune(message)) > maxMessageLen {
		return "", CompletionParams{}, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLen)
	}

	params := CompletionParams{
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if req.Temperature != nil {
		if *req.Temperature < minTemperature || *req.Temperature > maxTemperature {
			return "", CompletionParams{}, fmt.Errorf("%w: temperature must be between %g and %g", ErrValidation, minTemperature, maxTemperature)
		}
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens < minMaxTokens || *req.MaxTokens > maxMaxTokens {
			return "", CompletionParams{}, fmt.Errorf("%w: max_tokens must be between %d and %d", ErrValidation, minMaxTokens, maxMaxTokens)
		}
		params.MaxTokens = *req.MaxTokens
	}
	return message, params, nil
}
