package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nubohq/knowcheck/internal/archive"
	"github.com/nubohq/knowcheck/internal/evaluator"
	appI18n "github.com/nubohq/knowcheck/internal/i18n"
	"github.com/nubohq/knowcheck/internal/model"
	"github.com/nubohq/knowcheck/internal/session"
	"github.com/nubohq/knowcheck/internal/summary"
)

const testManagerPassword = "letmein"

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeGateway always produces a verdict carrying the continue marker, so
// every answer advances the session.
type fakeGateway struct{}

func (fakeGateway) EvaluateAttempt(context.Context, string, string, string, int) (string, error) {
	return "Good answer. " + model.ContinueMarker, nil
}

func (fakeGateway) EvaluateSession(_ context.Context, _ []model.QAPair, topic string) (string, error) {
	return "overall evaluation for " + topic, nil
}

func (fakeGateway) EvaluateTeam(_ context.Context, topic string, _ []string) (string, error) {
	return "team findings for " + topic, nil
}

// slowGateway stalls each attempt evaluation so tests can overlap requests.
type slowGateway struct {
	fakeGateway
	delay time.Duration
}

func (g slowGateway) EvaluateAttempt(ctx context.Context, question, answer, topic string, attempt int) (string, error) {
	time.Sleep(g.delay)
	return g.fakeGateway.EvaluateAttempt(ctx, question, answer, topic, attempt)
}

// failingArchive rejects every append.
type failingArchive struct{}

func (failingArchive) Append(string, string) error          { return errors.New("disk full") }
func (failingArchive) ReadByTopic(string) ([]string, error) { return nil, nil }
func (failingArchive) ListTopics() ([]string, error)        { return nil, nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWith(t, fakeGateway{}, nil)
}

func newTestRouterWith(t *testing.T, gw evaluator.Gateway, ar summary.TranscriptArchive) http.Handler {
	t.Helper()
	if ar == nil {
		store, err := archive.New(":memory:")
		if err != nil {
			t.Fatalf("open archive: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		ar = store
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testManagerPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	agg := summary.New(gw, ar)
	engine := session.NewEngine(gw, agg, 0)
	h := New(engine, agg, hash)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w
}

func startSession(t *testing.T, r http.Handler, topic string) sessionResponse {
	t.Helper()
	var resp sessionResponse
	w := doJSON(t, r, http.MethodPost, "/api/sessions", map[string]string{"topic": topic}, &resp)
	if w.Code != http.StatusCreated {
		t.Fatalf("start session: status %d: %s", w.Code, w.Body.String())
	}
	return resp
}

func TestTopicsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	var resp struct {
		Topics []string `json:"topics"`
	}
	w := doJSON(t, r, http.MethodGet, "/api/topics", nil, &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if len(resp.Topics) != 5 {
		t.Errorf("expected 4 curated topics plus the sentinel, got %v", resp.Topics)
	}
	if resp.Topics[len(resp.Topics)-1] != "Other" {
		t.Errorf("sentinel topic should come last, got %v", resp.Topics)
	}
}

func TestSessionFlow(t *testing.T) {
	r := newTestRouter(t)

	resp := startSession(t, r, "GDPR")
	if resp.SessionID == "" {
		t.Fatal("missing session ID")
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("expected 1 opening message, got %d", len(resp.Messages))
	}

	// Marker verdicts advance on every answer; 3 questions take 3 turns.
	for i := 0; i < 3; i++ {
		var turn turnResponse
		w := doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
			map[string]string{"answer": "my answer"}, &turn)
		if w.Code != http.StatusOK {
			t.Fatalf("answer %d: status %d: %s", i+1, w.Code, w.Body.String())
		}
		wantComplete := i == 2
		if turn.SessionComplete != wantComplete {
			t.Errorf("turn %d: session_complete = %v, want %v", i+1, turn.SessionComplete, wantComplete)
		}
	}

	var state sessionResponse
	w := doJSON(t, r, http.MethodGet, "/api/sessions/"+resp.SessionID, nil, &state)
	if w.Code != http.StatusOK {
		t.Fatalf("get session: status %d", w.Code)
	}
	if !state.SessionComplete {
		t.Error("session should be complete")
	}

	// Further answers are rejected without re-running the summary.
	w = doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
		map[string]string{"answer": "one more"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("answer after completion: status %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestStartValidation(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/sessions", map[string]string{"topic": "  "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank topic: status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAnswerValidation(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/sessions/nope/answers", map[string]string{"answer": "x"}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want %d", w.Code, http.StatusNotFound)
	}

	resp := startSession(t, r, "GDPR")
	w = doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
		map[string]string{"answer": "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank answer: status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestReset(t *testing.T) {
	r := newTestRouter(t)

	resp := startSession(t, r, "Cybersecurity")
	doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
		map[string]string{"answer": "progress"}, nil)

	var fresh sessionResponse
	w := doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/reset", nil, &fresh)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d", w.Code)
	}
	if len(fresh.Messages) != 1 {
		t.Errorf("reset session should start over with the first question, got %d messages", len(fresh.Messages))
	}
	if fresh.Topic != "Cybersecurity" {
		t.Errorf("reset should keep the topic, got %q", fresh.Topic)
	}
}

func TestRapidResubmissionRejected(t *testing.T) {
	r := newTestRouterWith(t, slowGateway{delay: 300 * time.Millisecond}, nil)
	resp := startSession(t, r, "GDPR")

	first := make(chan int, 1)
	go func() {
		body, _ := json.Marshal(map[string]string{"answer": "my answer"})
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers", bytes.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		first <- w.Code
	}()

	// Resubmit while the first turn is still being evaluated. It must be
	// rejected, not queued as the answer to the next question.
	time.Sleep(50 * time.Millisecond)
	w := doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
		map[string]string{"answer": "my answer"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("concurrent submit: status %d, want %d", w.Code, http.StatusConflict)
	}
	if code := <-first; code != http.StatusOK {
		t.Errorf("in-flight submit: status %d, want %d", code, http.StatusOK)
	}

	var state sessionResponse
	doJSON(t, r, http.MethodGet, "/api/sessions/"+resp.SessionID, nil, &state)
	var userTurns int
	for _, m := range state.Messages {
		if m.Role == model.RoleUser {
			userTurns++
		}
	}
	if userTurns != 1 {
		t.Errorf("expected exactly 1 accepted answer in the transcript, got %d", userTurns)
	}
	if state.SessionComplete {
		t.Error("session advanced more than one question")
	}
}

func TestArchiveFailureNoticeInTranscript(t *testing.T) {
	r := newTestRouterWith(t, fakeGateway{}, failingArchive{})
	resp := startSession(t, r, "Other")

	var turn turnResponse
	w := doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
		map[string]string{"answer": "Kubernetes"}, &turn)
	if w.Code != http.StatusOK {
		t.Fatalf("answer: status %d: %s", w.Code, w.Body.String())
	}
	if !turn.SessionComplete {
		t.Fatal("single-question session should complete")
	}
	last := turn.Messages[len(turn.Messages)-1]
	if !strings.Contains(last.Content, "could not be archived") {
		t.Fatalf("expected archive-failure notice in response, got %q", last.Content)
	}

	// The notice must also survive in the transcript.
	var state sessionResponse
	doJSON(t, r, http.MethodGet, "/api/sessions/"+resp.SessionID, nil, &state)
	lastLine := state.Messages[len(state.Messages)-1]
	if lastLine.Content != last.Content {
		t.Errorf("transcript is missing the archive-failure notice, last line: %q", lastLine.Content)
	}
}

func TestManagerAuth(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/manager/topics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: status %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/manager/topics", nil)
	req.SetBasicAuth("manager", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/manager/topics", nil)
	req.SetBasicAuth("manager", testManagerPassword)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid credentials: status %d, want %d", w.Code, http.StatusOK)
	}
}

func TestTeamSummaryEndpoint(t *testing.T) {
	r := newTestRouter(t)

	// Complete one session so a transcript gets archived.
	resp := startSession(t, r, "GDPR")
	for i := 0; i < 3; i++ {
		doJSON(t, r, http.MethodPost, "/api/sessions/"+resp.SessionID+"/answers",
			map[string]string{"answer": "my answer"}, nil)
	}

	body, _ := json.Marshal(map[string]string{"topic": "GDPR"})
	req := httptest.NewRequest(http.MethodPost, "/api/manager/summary", bytes.NewReader(body))
	req.SetBasicAuth("manager", testManagerPassword)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("team summary: status %d: %s", w.Code, w.Body.String())
	}
	var resp2 struct {
		Title  string       `json:"title"`
		Report model.Report `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp2.Report.Text != "team findings for GDPR" {
		t.Errorf("unexpected report text: %q", resp2.Report.Text)
	}
	if resp2.Title != "Team summary for GDPR" {
		t.Errorf("unexpected title: %q", resp2.Title)
	}

	// A topic with no archived sessions is a 404.
	body, _ = json.Marshal(map[string]string{"topic": "Unknown"})
	req = httptest.NewRequest(http.MethodPost, "/api/manager/summary", bytes.NewReader(body))
	req.SetBasicAuth("manager", testManagerPassword)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown topic: status %d, want %d", w.Code, http.StatusNotFound)
	}
}
