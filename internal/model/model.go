package model

import "time"

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a session transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// QAPair holds one concluded question with the answer that settled it.
// Only the final attempt's answer is recorded for each question.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Report is an aggregate evaluation produced from one or more sessions.
type Report struct {
	Topic     string    `json:"topic"`
	Text      string    `json:"text"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// ContinueMarker is the phrase the evaluator includes in a verdict to signal
// that the session should advance to the next question. Matching is
// case-sensitive substring search (see session.ContainsContinueMarker).
const ContinueMarker = "LET'S MOVE ON"
