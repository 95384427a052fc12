package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nubohq/knowcheck/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Gateway is the boundary to the external evaluator. All methods return the
// evaluator's raw text verdict; callers decide how to surface failures.
type Gateway interface {
	// EvaluateAttempt judges a single answer attempt for one question.
	EvaluateAttempt(ctx context.Context, question, answer, topic string, attempt int) (string, error)
	// EvaluateSession produces the final aggregate report for one session.
	EvaluateSession(ctx context.Context, pairs []model.QAPair, topic string) (string, error)
	// EvaluateTeam produces team-level findings from archived transcripts.
	EvaluateTeam(ctx context.Context, topic string, chats []string) (string, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

var _ Gateway = (*Client)(nil)

// New creates a new evaluator client. A non-zero timeout bounds every API
// call so a hung evaluator cannot block a session's turn indefinitely.
func New(baseURL, apiKey, modelName string, timeout time.Duration) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}
}

// Ping verifies the evaluator endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("evaluator health check: %w", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// EvaluateAttempt sends one answer attempt to the evaluator and returns its
// free-text verdict. The verdict may contain the continue marker phrase.
func (c *Client) EvaluateAttempt(ctx context.Context, question, answer, topic string, attempt int) (string, error) {
	prompt := buildAttemptPrompt(question, answer, topic, attempt)
	return c.complete(ctx, prompt, 0.7)
}

// EvaluateSession sends all recorded Q/A pairs in a single call and returns
// the overall evaluation text.
func (c *Client) EvaluateSession(ctx context.Context, pairs []model.QAPair, topic string) (string, error) {
	prompt := buildSessionPrompt(pairs, topic)
	return c.complete(ctx, prompt, 0.3)
}

// EvaluateTeam combines archived transcripts for a topic into one call and
// returns team-level findings.
func (c *Client) EvaluateTeam(ctx context.Context, topic string, chats []string) (string, error) {
	prompt := buildTeamPrompt(topic, chats)
	return c.complete(ctx, prompt, 0.3)
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("evaluator API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("evaluator returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("evaluator response", "raw", raw)
	return raw, nil
}

func buildAttemptPrompt(question, answer, topic string, attempt int) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly knowledge-assessment assistant interviewing an employee about the topic: " + topic + ".\n\n")
	sb.WriteString("QUESTION: " + question + "\n\n")
	sb.WriteString("EMPLOYEE ANSWER: " + answer + "\n\n")
	sb.WriteString(fmt.Sprintf("This is attempt %d on this question.\n\n", attempt))
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Judge whether the answer shows sufficient understanding of the question.\n")
	sb.WriteString("- If it does, give one or two sentences of feedback and include the exact phrase " + model.ContinueMarker + " in your reply.\n")
	sb.WriteString("- If it does not, ask ONE short clarifying follow-up question instead. Do not include the phrase " + model.ContinueMarker + ".\n")
	sb.WriteString("- If the answer is off-topic, say so briefly and restate the question.\n")
	sb.WriteString("- Do not reveal the expected answer.\n")
	return sb.String()
}

func buildSessionPrompt(pairs []model.QAPair, topic string) string {
	var sb strings.Builder
	sb.WriteString("You are a knowledge-assessment assistant. An employee has just finished a question session about the topic: " + topic + ".\n\n")
	sb.WriteString("Here are the questions and the employee's answers:\n\n")
	for _, p := range pairs {
		sb.WriteString("Q: " + p.Question + "\n")
		sb.WriteString("A: " + p.Answer + "\n\n")
	}
	sb.WriteString("Provide an overall evaluation of the employee's knowledge of this topic: ")
	sb.WriteString("their strengths, the gaps you noticed, and two or three concrete suggestions for what to learn next. ")
	sb.WriteString("Address the employee directly and keep it encouraging.\n")
	return sb.String()
}

func buildTeamPrompt(topic string, chats []string) string {
	var sb strings.Builder
	sb.WriteString("You are preparing a summary for a manager. Below are knowledge-check transcripts from multiple employees on the topic: " + topic + ".\n\n")
	for i, chat := range chats {
		sb.WriteString(fmt.Sprintf("--- Transcript %d ---\n", i+1))
		sb.WriteString(chat + "\n\n")
	}
	sb.WriteString("Produce TEAM-LEVEL findings only: common strengths, shared knowledge gaps, and recommended training priorities. ")
	sb.WriteString("Do NOT evaluate or name individual employees.\n")
	return sb.String()
}
