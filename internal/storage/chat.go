// internal/storage/chat.go
package storage

import (
	"context"
	"time"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/database"
	"ihydro/internal/models"
)

var chatMigrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, id)`,
}

// ChatStore keeps assistant conversations per session.
type ChatStore struct {
	pg  *database.PostgresClient
	now func() time.Time
}

func NewChatStore(pg *database.PostgresClient) *ChatStore {
	return &ChatStore{pg: pg, now: time.Now}
}

func (s *ChatStore) Migrate(ctx context.Context) error {
	return s.pg.Migrate(ctx, chatMigrations)
}

func (s *ChatStore) Append(ctx context.Context, sessionID string, msg models.ChatMessage) error {
	_, err := s.pg.DB.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		sessionID, msg.Role, msg.Content, s.now().UTC())
	if err != nil {
		return apperrors.NewStorageInsertFailedError(err)
	}
	return nil
}

// History returns the last limit messages of a session, oldest first.
func (s *ChatStore) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	rows, err := s.pg.DB.QueryContext(ctx,
		`SELECT role, content FROM chat_messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, apperrors.NewStorageQueryFailedError("chat_history", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, apperrors.NewStorageQueryFailedError("chat_history", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageQueryFailedError("chat_history", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
