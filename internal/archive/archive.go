package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable archive of completed session transcripts. Each
// completed session is appended as a single row; SQLite's own atomicity
// keeps concurrent appends from different sessions intact.
type Store struct {
	db *sql.DB
}

// Entry is one archived transcript.
type Entry struct {
	ID        int64
	Topic     string
	Chat      string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		chat TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_topic ON transcripts(topic);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a completed session's transcript under its topic.
func (s *Store) Append(topic, chat string) error {
	_, err := s.db.Exec(
		`INSERT INTO transcripts (topic, chat, created_at) VALUES (?, ?, ?)`,
		topic, chat, time.Now(),
	)
	return err
}

// ReadAll returns every archived transcript, oldest first.
func (s *Store) ReadAll() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT id, topic, chat, created_at FROM transcripts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Topic, &e.Chat, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReadByTopic returns the transcripts archived for a topic, oldest first.
func (s *Store) ReadByTopic(topic string) ([]string, error) {
	rows, err := s.db.Query(`SELECT chat FROM transcripts WHERE topic = ? ORDER BY id`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []string
	for rows.Next() {
		var chat string
		if err := rows.Scan(&chat); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// ListTopics returns the distinct topics with archived transcripts, in
// first-seen order.
func (s *Store) ListTopics() ([]string, error) {
	rows, err := s.db.Query(`SELECT topic FROM transcripts GROUP BY topic ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Count returns the number of archived transcripts.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}
