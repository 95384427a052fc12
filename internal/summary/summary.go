package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nubohq/knowcheck/internal/evaluator"
	"github.com/nubohq/knowcheck/internal/model"
	"github.com/nubohq/knowcheck/internal/session"
)

// ErrNoTranscripts is returned when a team summary is requested for a topic
// with no archived sessions.
var ErrNoTranscripts = errors.New("no archived transcripts for topic")

// TranscriptArchive is the durable store of completed session transcripts.
type TranscriptArchive interface {
	Append(topic, chat string) error
	ReadByTopic(topic string) ([]string, error)
	ListTopics() ([]string, error)
}

// Aggregator produces aggregate reports: the per-session final evaluation
// and the cross-session team summary for the manager view.
type Aggregator struct {
	gateway evaluator.Gateway
	archive TranscriptArchive
}

var _ session.Summarizer = (*Aggregator)(nil)

func New(gw evaluator.Gateway, ar TranscriptArchive) *Aggregator {
	return &Aggregator{gateway: gw, archive: ar}
}

// Summarize issues one session-level evaluator call over all recorded Q/A
// pairs and archives the transcript. An archive write failure is non-fatal:
// the report is still returned with Archived set to false.
func (a *Aggregator) Summarize(ctx context.Context, s *session.Session) (model.Report, error) {
	verdict, err := a.gateway.EvaluateSession(ctx, s.Recorded, s.Topic)
	if err != nil {
		return model.Report{}, fmt.Errorf("session evaluation: %w", err)
	}

	report := model.Report{
		Topic:     s.Topic,
		Text:      verdict,
		Archived:  true,
		CreatedAt: time.Now(),
	}
	if err := a.archive.Append(s.Topic, FormatChat(s.Recorded)); err != nil {
		slog.Error("archive write failed", "topic", s.Topic, "error", err)
		report.Archived = false
	}
	return report, nil
}

// TeamSummary concatenates all archived transcripts for a topic and issues a
// single evaluator call producing team-level findings.
func (a *Aggregator) TeamSummary(ctx context.Context, topic string) (model.Report, error) {
	chats, err := a.archive.ReadByTopic(topic)
	if err != nil {
		return model.Report{}, fmt.Errorf("read archive: %w", err)
	}
	if len(chats) == 0 {
		return model.Report{}, fmt.Errorf("%w: %q", ErrNoTranscripts, topic)
	}

	verdict, err := a.gateway.EvaluateTeam(ctx, topic, chats)
	if err != nil {
		return model.Report{}, fmt.Errorf("team evaluation: %w", err)
	}
	return model.Report{Topic: topic, Text: verdict, CreatedAt: time.Now()}, nil
}

// Topics lists the topics with archived sessions.
func (a *Aggregator) Topics() ([]string, error) {
	return a.archive.ListTopics()
}

// FormatChat renders recorded Q/A pairs in the archive's line format.
func FormatChat(pairs []model.QAPair) string {
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = "Q: " + p.Question + " A: " + p.Answer
	}
	return strings.Join(lines, "\n")
}
