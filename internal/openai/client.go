package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the hosted service endpoint used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// defaultTimeout bounds a single completion round trip.
const defaultTimeout = 120 * time.Second

// maxErrorBodyBytes caps how much of an error response body is read.
const maxErrorBodyBytes = 64 << 10

// Sentinel errors for client construction.
var (
	// ErrMissingAPIKey indicates the client was constructed without a credential.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrEmptyChoices indicates the service returned a response with no choices.
	ErrEmptyChoices = errors.New("response contains no choices")
)

// TransportError describes a failed exchange with the completion service:
// network failures, non-2xx statuses, and malformed reply bodies.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 when the request never completed.
	StatusCode int

	// Kind is the service-reported error type (e.g. "invalid_request_error"),
	// or a client-side classification such as "network_error".
	Kind string

	// Message is the human-readable cause.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion service: %s (%s, status %d)", e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("completion service: %s (%s)", e.Message, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config contains all parameters for Client construction.
type Config struct {
	// APIKey authenticates every request. Required.
	APIKey string

	// BaseURL overrides the service endpoint. Default: DefaultBaseURL.
	BaseURL string

	// Timeout bounds a single round trip. Zero uses defaultTimeout.
	Timeout time.Duration

	// RateLimiter is waited on before each request. Nil disables proactive
	// rate limiting.
	RateLimiter *rate.Limiter

	// HTTPClient overrides the transport. Nil constructs one with Timeout.
	HTTPClient *http.Client

	// Logger for request diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Client sends chat completion requests to an OpenAI-compatible service.
//
// Client is stateless between calls: it retains no conversation data, does
// not retry, and never reorders messages. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: cfg.RateLimiter,
		logger:  logger,
	}, nil
}

// Complete sends the ordered message sequence and optional tool schemas to
// the service and returns the first choice's message. The returned message is
// either final (non-empty content, no tool calls) or deferred (one or more
// tool calls, possibly empty content).
//
// One network round trip per call. Failures are reported as *TransportError.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, tools []ToolSchema) (Message, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Message{}, &TransportError{Kind: "rate_limit_wait", Message: err.Error(), Err: err}
		}
	}

	body, err := json.Marshal(completionRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return Message{}, &TransportError{Kind: "encode_error", Message: err.Error(), Err: err}
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Message{}, &TransportError{Kind: "request_error", Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("sending completion request",
		"model", model,
		"messages", len(messages),
		"tools", len(tools),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, &TransportError{Kind: "network_error", Message: err.Error(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("closing response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Message{}, c.statusError(resp)
	}

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Message{}, &TransportError{
			StatusCode: resp.StatusCode,
			Kind:       "decode_error",
			Message:    err.Error(),
			Err:        err,
		}
	}

	if len(payload.Choices) == 0 {
		return Message{}, &TransportError{
			StatusCode: resp.StatusCode,
			Kind:       "empty_response",
			Message:    ErrEmptyChoices.Error(),
			Err:        ErrEmptyChoices,
		}
	}

	msg := payload.Choices[0].Message
	c.logger.Debug("completion response received",
		"finish_reason", payload.Choices[0].FinishReason,
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", payload.Usage.PromptTokens,
		"completion_tokens", payload.Usage.CompletionTokens,
	)
	return msg, nil
}

// statusError converts a non-2xx response into a TransportError, extracting
// the service's error envelope when the body parses.
func (c *Client) statusError(resp *http.Response) *TransportError {
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if readErr != nil {
		return &TransportError{
			StatusCode: resp.StatusCode,
			Kind:       "http_error",
			Message:    resp.Status,
			Err:        readErr,
		}
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		kind := envelope.Error.Type
		if kind == "" {
			kind = "http_error"
		}
		return &TransportError{
			StatusCode: resp.StatusCode,
			Kind:       kind,
			Message:    envelope.Error.Message,
		}
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}
	return &TransportError{
		StatusCode: resp.StatusCode,
		Kind:       "http_error",
		Message:    msg,
	}
}
