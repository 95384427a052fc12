package archive

import (
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndReadAll(t *testing.T) {
	s := newTestStore(t)

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty archive, got %d entries", count)
	}

	if err := s.Append("GDPR", "Q: q1 A: a1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append("Cybersecurity", "Q: q2 A: a2"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Topic != "GDPR" || entries[0].Chat != "Q: q1 A: a1" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
}

func TestReadByTopic(t *testing.T) {
	s := newTestStore(t)
	for _, e := range []struct{ topic, chat string }{
		{"GDPR", "chat one"},
		{"Cybersecurity", "chat two"},
		{"GDPR", "chat three"},
	} {
		if err := s.Append(e.topic, e.chat); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	chats, err := s.ReadByTopic("GDPR")
	if err != nil {
		t.Fatalf("ReadByTopic: %v", err)
	}
	if !reflect.DeepEqual(chats, []string{"chat one", "chat three"}) {
		t.Errorf("unexpected chats: %v", chats)
	}

	chats, err = s.ReadByTopic("Unknown")
	if err != nil {
		t.Fatalf("ReadByTopic: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("expected no chats for unknown topic, got %v", chats)
	}
}

func TestListTopics(t *testing.T) {
	s := newTestStore(t)

	topics, err := s.ListTopics()
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(topics) != 0 {
		t.Fatalf("expected no topics, got %v", topics)
	}

	for _, e := range []struct{ topic, chat string }{
		{"GDPR", "a"},
		{"Cybersecurity", "b"},
		{"GDPR", "c"},
	} {
		if err := s.Append(e.topic, e.chat); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	topics, err = s.ListTopics()
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if !reflect.DeepEqual(topics, []string{"GDPR", "Cybersecurity"}) {
		t.Errorf("expected distinct topics in first-seen order, got %v", topics)
	}
}
