package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Assistant messages carry the council
// outcome as an opaque JSON payload.
type Message struct {
	Role        string          `json:"role"`
	Content     string          `json:"content,omitempty"`
	CouncilType string          `json:"council_type,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (s *Store) AddUserMessage(conversationID, content string) error {
	return s.addMessage(conversationID, Message{Role: RoleUser, Content: content})
}

// AddAssistantMessage stores a council outcome. payload is kept verbatim.
func (s *Store) AddAssistantMessage(conversationID, councilType string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("add assistant message: payload is not valid JSON")
	}
	return s.addMessage(conversationID, Message{Role: RoleAssistant, CouncilType: councilType, Payload: payload})
}

func (s *Store) addMessage(conversationID string, m Message) error {
	res, err := s.db.Exec(`
		INSERT INTO messages (conversation_id, role, content, council_type, payload, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM conversations WHERE id = ?)`,
		conversationID, m.Role, m.Content, nullString(m.CouncilType), nullString(string(m.Payload)),
		time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("add %s message: %w", m.Role, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("add %s message to %s: %w", m.Role, conversationID, ErrNotFound)
	}
	return nil
}

func (s *Store) getMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, council_type, payload, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var councilType, payload sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &councilType, &payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CouncilType = councilType.String
		if payload.Valid {
			m.Payload = json.RawMessage(payload.String)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
