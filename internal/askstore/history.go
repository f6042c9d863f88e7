package askstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	MessageID string    `json:"message_id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SQLQuery  string    `json:"sql_query,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository is an append-only log of conversation messages.
// Messages are never updated or deleted by the service.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *HistoryRepository) AppendMessage(ctx context.Context, in Message) (Message, error) {
	if in.MessageID == "" {
		in.MessageID = uuid.NewString()
	}

	query := `
INSERT INTO conversation_messages (message_id, tenant_id, session_id, role, content, sql_query)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query,
		in.MessageID, in.TenantID, in.SessionID, in.Role, in.Content, in.SQLQuery,
	).Scan(&in.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("append conversation message: %w", err)
	}
	return in, nil
}

func (r *HistoryRepository) ListMessages(ctx context.Context, tenantID, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT message_id, tenant_id, session_id, role, content, sql_query, created_at
FROM conversation_messages
WHERE tenant_id = $1 AND session_id = $2
ORDER BY created_at ASC
LIMIT $3`, tenantID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.MessageID, &msg.TenantID, &msg.SessionID, &msg.Role, &msg.Content, &msg.SQLQuery, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation message rows: %w", err)
	}
	return messages, nil
}
