package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/prepstand/interviewd/internal/ai"
)

const (
	defaultModel   = "gemini-2.5-pro"
	defaultTimeout = 30 * time.Second

	// maxQuotaDelay caps how long a rate-limit hint is worth waiting for.
	// Longer suggested delays fail the call instead of stalling the session.
	maxQuotaDelay = 10 * time.Second
)

// newTimer is swappable so retry tests do not wait for real backoff.
var newTimer = time.NewTimer

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	client *genai.Client
}

func (g *genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := g.client.Chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Generator wraps the Google GenAI client with per-call timeouts and bounded
// retry. It is the only component that talks to the provider.
type Generator struct {
	chats   chatCreator
	model   string
	policy  Policy
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, timeout time.Duration, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	policy := DefaultPolicy
	if maxRetries > 0 {
		policy.MaxAttempts = maxRetries
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		chats:   &genaiChats{client: client},
		model:   model,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// GenerateContent sends the message to Gemini under the given system
// instruction and returns the first textual response. Transient provider
// failures are retried per the generator's policy; exhaustion or a
// non-retryable failure yields a typed *ai.Error.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	state := g.policy.Start()
	for {
		output, err := g.send(ctx, config, message)
		if err == nil {
			return output, nil
		}

		// A cancelled parent context means the session is gone; do not retry.
		if ctx.Err() != nil {
			return "", ai.NewError(ai.KindTimeout, ctx.Err())
		}

		kind, delay := classify(err)
		if !retryable(kind) {
			return "", ai.NewError(kind, err)
		}

		if delay > maxQuotaDelay {
			g.logger.Warn("provider asked to wait too long, giving up",
				zap.Duration("suggested_delay", delay),
			)
			return "", ai.NewError(kind, err)
		}

		next, ok := g.policy.Next(state)
		if !ok {
			return "", ai.NewError(kind, err)
		}
		state = next

		if delay > state.NextDelay {
			state.NextDelay = delay
		}

		g.logger.Debug("retrying provider call",
			zap.Int("attempt", state.Attempt),
			zap.Duration("delay", state.NextDelay),
			zap.Error(err),
		)

		if err := wait(ctx, state.NextDelay); err != nil {
			return "", ai.NewError(ai.KindTimeout, err)
		}
	}
}

// Model returns the configured model identifier.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) send(ctx context.Context, config *genai.GenerateContentConfig, message string) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	chat, err := g.chats.Create(callCtx, g.model, config, nil)
	if err != nil {
		return "", err
	}

	resp, err := chat.SendMessage(callCtx, genai.Part{Text: message})
	if err != nil {
		return "", err
	}

	output := collectText(resp)
	if output == "" {
		return "", ai.NewError(ai.KindInvalidResponse, errors.New("gemini api returned empty response"))
	}

	return output, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// classify maps a provider error to its failure kind and, for rate limits, the
// delay the provider suggested.
func classify(err error) (ai.ErrorKind, time.Duration) {
	if kind, ok := ai.KindOf(err); ok {
		return kind, 0
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ai.KindTimeout, 0
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return ai.KindRateLimited, suggestedDelay(apiErr.Message)
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout:
			return ai.KindTimeout, 0
		case apiErr.Code >= 500:
			return ai.KindProviderFault, 0
		default:
			// Client-fault responses are never retried.
			return ai.KindInvalidResponse, 0
		}
	}

	return ai.KindProviderFault, 0
}

func retryable(kind ai.ErrorKind) bool {
	switch kind {
	case ai.KindTimeout, ai.KindRateLimited, ai.KindProviderFault:
		return true
	default:
		return false
	}
}

func suggestedDelay(message string) time.Duration {
	match := retryAfterPattern.FindStringSubmatch(strings.ToLower(message))
	if len(match) != 2 {
		return 0
	}
	seconds, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// wait blocks for d or until ctx is cancelled, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := newTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
