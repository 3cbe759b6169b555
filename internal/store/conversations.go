package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const DefaultTitle = "New Conversation"

var ErrNotFound = errors.New("conversation not found")

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

func (s *Store) CreateConversation(id string) (*Conversation, error) {
	c := &Conversation{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     DefaultTitle,
		Messages:  []Message{},
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, title, created_at)
		VALUES (?, ?, ?)`,
		c.ID, c.Title, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns the conversation with its messages, or nil if it does not exist.
func (s *Store) GetConversation(id string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRow(`
		SELECT id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := s.getMessages(id)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return c, nil
}

// ListConversations returns the conversation summaries, newest first.
func (s *Store) ListConversations() ([]ConversationSummary, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.title, c.created_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	list := []ConversationSummary{}
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.CreatedAt, &cs.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		list = append(list, cs)
	}
	return list, rows.Err()
}

func (s *Store) UpdateConversationTitle(id, title string) error {
	res, err := s.db.Exec(`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update conversation title %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages. It reports whether
// anything was deleted.
func (s *Store) DeleteConversation(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ImportConversation stores c with its messages, replacing any conversation with
// the same id.
func (s *Store) ImportConversation(c *Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, c.ID); err != nil {
		return fmt.Errorf("import conversation %s: %w", c.ID, err)
	}
	title := c.Title
	if title == "" {
		title = DefaultTitle
	}
	if _, err := tx.Exec(`
		INSERT INTO conversations (id, title, created_at)
		VALUES (?, ?, ?)`,
		c.ID, title, c.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("import conversation %s: %w", c.ID, err)
	}
	for _, m := range c.Messages {
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, role, content, council_type, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, m.Role, m.Content, nullString(m.CouncilType), nullString(string(m.Payload)), m.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("import message for %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
