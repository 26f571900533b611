// Package qa answers operator questions about the current reading through an
// OpenAI-compatible chat completions endpoint.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/httpclient"
	"github.com/crimson-sun/nocdash/internal/model"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 30 * time.Second

	defaultSystemPrompt = "You are a network operations assistant. Answer using only the system status, metrics and thresholds provided. Be concise."
)

// ErrEmptyQuestion is returned by Ask when the question is blank.
var ErrEmptyQuestion = errors.New("qa: question is empty")

// EndpointError covers every failure talking to the model endpoint:
// transport, non-2xx status, undecodable body, empty reply, or timeout.
type EndpointError struct {
	Op  string
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("qa: %s: %v", e.Op, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Config holds endpoint settings.
type Config struct {
	APIKey       string
	Endpoint     string // base URL; "/chat/completions" is appended
	Model        string
	Timeout      time.Duration
	MaxTokens    int
	SystemPrompt string
}

type request struct {
	Model               string    `json:"model"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	Messages            []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client sends questions to the model endpoint.
type Client struct {
	http         *httpclient.Client
	model        string
	timeout      time.Duration
	maxTokens    int
	systemPrompt string
}

// New creates a Client, filling blank settings with defaults.
func New(cfg Config) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	system := strings.TrimSpace(cfg.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Client{
		// The per-call context carries the deadline.
		http:         httpclient.New(endpoint, strings.TrimSpace(cfg.APIKey), httpclient.WithTimeout(0), httpclient.WithMaxRetries(1)),
		model:        model,
		timeout:      timeout,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: system,
	}
}

// Ask builds the prompt for the reading and returns the sanitized answer.
// The whole exchange, retries included, is bounded by the configured timeout.
func (c *Client) Ask(ctx context.Context, p *rules.Profile, r model.Reading, v model.Verdict, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := request{
		Model:               c.model,
		MaxCompletionTokens: c.maxTokens,
		Messages: []message{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: BuildPrompt(p, r, v, question)},
		},
	}

	var resp response
	if err := c.http.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", &EndpointError{Op: "timeout", Err: err}
		}
		return "", &EndpointError{Op: "call", Err: err}
	}
	if resp.Error != nil {
		return "", &EndpointError{Op: "response", Err: errors.New(resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return "", &EndpointError{Op: "response", Err: errors.New("no choices returned")}
	}
	answer := Sanitize(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", &EndpointError{Op: "response", Err: errors.New("empty answer")}
	}
	return answer, nil
}

// Sanitize NFC-normalizes a reply, removes emphasis asterisks and trims it.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}
