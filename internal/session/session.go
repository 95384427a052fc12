package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nubohq/knowcheck/internal/catalog"
	"github.com/nubohq/knowcheck/internal/evaluator"
	"github.com/nubohq/knowcheck/internal/model"
)

// DefaultMaxAttempts is the number of answers a user may spend on one
// question before the session advances regardless of the verdict.
const DefaultMaxAttempts = 2

var (
	// ErrTurnInProgress is returned when an answer is submitted while the
	// previous turn's verdict is still unresolved. This guard prevents rapid
	// resubmission from double-advancing the session.
	ErrTurnInProgress = errors.New("previous turn still in progress")
	// ErrSessionCompleted is returned when an answer is submitted after the
	// session has completed.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrEmptyAnswer is returned for blank answer submissions.
	ErrEmptyAnswer = errors.New("answer cannot be empty")
	// ErrNoQuestions indicates a catalog misconfiguration; the catalog must
	// never return an empty question set.
	ErrNoQuestions = errors.New("no questions for topic")
)

// continueMarkers are the phrases whose presence in a verdict advances the
// session. Matching is case-sensitive substring search.
var continueMarkers = []string{
	model.ContinueMarker,
	"Let's move on to the next question",
}

var transitionRemarks = []string{
	"Thanks for your reply. I was also wondering...",
	"Thanks for your reply. That makes me curious about...",
	"Interesting! It also makes me think about...",
	"Thanks for sharing that. I'm curious how you see...",
	"I appreciate your input. What's your take on...",
	"Thanks for your answer. It makes me wonder...",
	"Hmm, that's helpful. What about...",
	"Great, thank you! I'm also interested in...",
	"That's a good point. How would you approach...",
	"Thanks for your thoughts! I'm thinking about...",
	"Appreciate that! Let's explore this further...",
}

// ContainsContinueMarker reports whether a verdict signals the session
// should move to the next question.
func ContainsContinueMarker(text string) bool {
	for _, m := range continueMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Summarizer produces the aggregate report when a session completes.
type Summarizer interface {
	Summarize(ctx context.Context, s *Session) (model.Report, error)
}

// Session holds all conversation state for one assessment. It is mutated
// only by Engine methods; callers must serialize access per session.
type Session struct {
	Topic         string
	Questions     []string
	ActiveIndex   int
	AttemptCount  int
	Recorded      []model.QAPair
	Completed     bool
	AwaitingInput bool
	Transcript    []model.Message

	summarized bool
}

// ActiveQuestion returns the question currently awaiting an answer.
func (s *Session) ActiveQuestion() (string, bool) {
	if s.ActiveIndex >= len(s.Questions) {
		return "", false
	}
	return s.Questions[s.ActiveIndex], true
}

func (s *Session) say(content string) model.Message {
	m := model.Message{Role: model.RoleAssistant, Content: content}
	s.Transcript = append(s.Transcript, m)
	return m
}

// TurnResult holds the outcome of one submitted answer.
type TurnResult struct {
	// Messages are the new display messages produced by this turn, in order.
	Messages []model.Message
	// SessionComplete is true when this turn finished the session.
	SessionComplete bool
	// Report is set on the completing turn if summary generation succeeded.
	Report *model.Report
}

// Engine drives session state transitions. It is stateless itself; all
// per-conversation state lives in the Session value.
type Engine struct {
	gateway     evaluator.Gateway
	summarizer  Summarizer
	maxAttempts int
}

// NewEngine creates an Engine. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewEngine(gw evaluator.Gateway, sum Summarizer, maxAttempts int) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{gateway: gw, summarizer: sum, maxAttempts: maxAttempts}
}

// Start creates a session for a topic, snapshotting the question set, and
// puts the first question on the transcript.
func (e *Engine) Start(topic string) (*Session, error) {
	questions := catalog.QuestionsFor(topic)
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoQuestions, topic)
	}
	s := &Session{
		Topic:         topic,
		Questions:     questions,
		AwaitingInput: true,
	}
	s.say(questions[0])
	return s, nil
}

// Submit processes one answer for the active question and returns the new
// display messages. The transition rule: advance when the attempt count
// reaches the maximum or the verdict contains a continue marker; otherwise
// keep the same question and treat the verdict as a follow-up prompt.
func (e *Engine) Submit(ctx context.Context, s *Session, answer string) (TurnResult, error) {
	if s.Completed {
		return TurnResult{}, ErrSessionCompleted
	}
	if !s.AwaitingInput {
		return TurnResult{}, ErrTurnInProgress
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return TurnResult{}, ErrEmptyAnswer
	}

	s.AwaitingInput = false
	s.Transcript = append(s.Transcript, model.Message{Role: model.RoleUser, Content: answer})

	question, ok := s.ActiveQuestion()
	if !ok {
		return TurnResult{}, ErrSessionCompleted
	}
	s.AttemptCount++

	verdict, err := e.gateway.EvaluateAttempt(ctx, question, answer, s.Topic, s.AttemptCount)
	if err != nil {
		// Fold the fault into the verdict channel so the turn still produces
		// a transcript line and bookkeeping stays intact.
		slog.Error("evaluation failed", "topic", s.Topic, "question_index", s.ActiveIndex, "error", err)
		verdict = "Error: evaluation failed: " + err.Error()
	}

	var result TurnResult
	result.Messages = append(result.Messages, s.say(verdict))

	if s.AttemptCount < e.maxAttempts && !ContainsContinueMarker(verdict) {
		// Retry: same question, verdict stands as the follow-up prompt.
		s.AwaitingInput = true
		return result, nil
	}

	// Advance: only the final attempt's answer is recorded.
	s.Recorded = append(s.Recorded, model.QAPair{Question: question, Answer: answer})
	s.ActiveIndex++
	s.AttemptCount = 0

	if s.ActiveIndex < len(s.Questions) {
		remark := transitionRemarks[(s.ActiveIndex-1)%len(transitionRemarks)]
		result.Messages = append(result.Messages, s.say(remark))
		result.Messages = append(result.Messages, s.say(s.Questions[s.ActiveIndex]))
		s.AwaitingInput = true
		return result, nil
	}

	// All questions exhausted: complete and summarize exactly once.
	s.Completed = true
	result.SessionComplete = true
	if !s.summarized {
		s.summarized = true
		report, err := e.summarizer.Summarize(ctx, s)
		if err != nil {
			slog.Error("summary generation failed", "topic", s.Topic, "error", err)
			result.Messages = append(result.Messages, s.say("Error: could not generate the overall evaluation: "+err.Error()))
			return result, nil
		}
		result.Messages = append(result.Messages, s.say(report.Text))
		result.Report = &report
	}
	return result, nil
}
