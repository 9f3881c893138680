package store

import (
	"context"
	"fmt"

	"github.com/nidhogg/secgraph/internal/provider"
)

// FindOrCreateSession returns the session for a platform/channel pair,
// creating it on first contact.
func (s *Store) FindOrCreateSession(ctx context.Context, platform, channelID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, platform, channel_id, status)
		VALUES (gen_random_uuid(), $1, $2, 'active')
		ON CONFLICT (platform, channel_id)
		DO UPDATE SET status = 'active'
		RETURNING id`,
		platform, channelID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("find or create session: %w", err)
	}
	return id, nil
}

// AppendMessage stores one message in the given session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg provider.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content)
		VALUES (gen_random_uuid(), $1, $2, $3)`,
		sessionID, msg.Role, msg.Content,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// AppendReasoning stores a turn's reasoning trace alongside its messages.
func (s *Store) AppendReasoning(ctx context.Context, sessionID string, trace []string) error {
	for _, entry := range trace {
		_, err := s.db.Exec(ctx, `
			INSERT INTO reasoning (id, session_id, entry)
			VALUES (gen_random_uuid(), $1, $2)`,
			sessionID, entry,
		)
		if err != nil {
			return fmt.Errorf("append reasoning: %w", err)
		}
	}
	return nil
}

// GetMessages retrieves the most recent messages of a session, oldest
// first. The window holds the newest turns, so a long-lived channel still
// replays its latest history rather than the first messages ever stored.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]provider.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content FROM (
			SELECT role, content, seq
			FROM messages
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []provider.Message
	for rows.Next() {
		var msg provider.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
