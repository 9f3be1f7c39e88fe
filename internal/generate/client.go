// Package generate produces candidate rule XML from log samples through an
// OpenAI-compatible chat-completion endpoint.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	// MaxSampleLines bounds how much of the sample goes into the prompt.
	// Excess lines are truncated, not an error.
	MaxSampleLines = 50

	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"

	maxAttempts  = 3
	initialDelay = 2 * time.Second
	maxDelay     = 30 * time.Second
)

// RateLimitError marks a transient rate-limit rejection from the generation
// service after the internal retry budget is spent.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("generation service rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

type Config struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint; defaults to the Groq API
	Model   string
}

type Client struct {
	api   *openai.Client
	model string

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
		sleep: sleepCtx,
	}
}

// Generate builds a prompt from at most MaxSampleLines lines and asks the
// model for a rule. Rate-limit responses are retried here with exponential
// backoff; any other failure aborts immediately. This retry is nested inside
// and invisible to the job-level retry.
func (c *Client) Generate(ctx context.Context, lines []string, requestedRuleID *int) (string, error) {
	if len(lines) > MaxSampleLines {
		lines = lines[:MaxSampleLines]
	}
	prompt := buildPrompt(lines, requestedRuleID)

	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert in security detection rules and XML formatting. Always return valid XML without markdown code blocks.",
				},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.3,
			MaxTokens:   2000,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", errors.New("generation service returned no choices")
			}
			return stripCodeFence(resp.Choices[0].Message.Content), nil
		}

		if !isRateLimit(err) {
			return "", fmt.Errorf("generation request failed: %w", err)
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		// An explicit retry-after hint from the service overrides the
		// backoff schedule.
		wait := delay
		if hint, ok := retryAfterHint(err); ok {
			wait = hint + time.Second
		} else {
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}
		log.Printf("[generate] rate limited, retrying in %s (attempt %d/%d)", wait, attempt, maxAttempts)
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", &RateLimitError{Err: lastErr}
}

func buildPrompt(lines []string, requestedRuleID *int) string {
	var b strings.Builder
	b.WriteString("You are a Wazuh rule creation expert.\n\n")
	b.WriteString("Given the following example log lines:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nGenerate a valid Wazuh rule in XML format that detects similar patterns.\nInclude:\n")
	if requestedRuleID != nil {
		b.WriteString("- rule id " + strconv.Itoa(*requestedRuleID) + "\n")
	} else {
		b.WriteString("- unique rule id (>=100000)\n")
	}
	b.WriteString(`- level (10-12)
- description
- decoder name if possible
- pattern matching for the log structure

Return ONLY the XML rule, no explanations. The XML should be properly formatted and valid.

Example format:
<rule id="100001" level="10">
    <decoder>custom_decoder</decoder>
    <regex>pattern here</regex>
    <description>Description of what this rule detects</description>
</rule>
`)
	return b.String()
}

// stripCodeFence removes surrounding markdown fences the model sometimes
// wraps its answer in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```xml") {
		s = s[len("```xml"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}

var reRetryAfter = regexp.MustCompile(`retry in ([\d.]+)s`)

func retryAfterHint(err error) (time.Duration, bool) {
	m := reRetryAfter.FindStringSubmatch(strings.ToLower(err.Error()))
	if m == nil {
		return 0, false
	}
	secs, convErr := strconv.ParseFloat(m[1], 64)
	if convErr != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
