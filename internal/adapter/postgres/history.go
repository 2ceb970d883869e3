package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/StreamForge/internal/domain"
	"github.com/Strob0t/StreamForge/internal/domain/history"
)

// HistoryStore implements historystore.Store on PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a store backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append inserts msg at the end of the workspace history. The sequence is
// assigned inside the insert so concurrent appends for one workspace cannot
// collide, and is stamped back onto msg.
func (s *HistoryStore) Append(ctx context.Context, workspaceID string, msg *history.Message) error {
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}

	var seq int
	err = s.pool.QueryRow(ctx,
		`INSERT INTO workspace_messages
		   (workspace_id, id, role, parts, history_sequence, model, system_message_tokens, created_at)
		 VALUES ($1, $2, $3, $4,
		   COALESCE((SELECT MAX(history_sequence) FROM workspace_messages WHERE workspace_id = $1), 0) + 1,
		   $5, $6, $7)
		 RETURNING history_sequence`,
		workspaceID, msg.ID, msg.Role, parts,
		msg.Metadata.Model, msg.Metadata.SystemMessageTokens, msg.Metadata.Timestamp,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}

	msg.Metadata.HistorySequence = &seq
	return nil
}

// History returns all messages for the workspace in sequence order.
func (s *HistoryStore) History(ctx context.Context, workspaceID string) ([]history.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, parts, history_sequence, model, system_message_tokens, created_at
		 FROM workspace_messages WHERE workspace_id = $1 ORDER BY history_sequence ASC`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var result []history.Message
	for rows.Next() {
		var (
			m     history.Message
			parts []byte
			seq   int
		)
		if err := rows.Scan(&m.ID, &m.Role, &parts, &seq,
			&m.Metadata.Model, &m.Metadata.SystemMessageTokens, &m.Metadata.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal parts for %s: %w", m.ID, err)
		}
		m.Metadata.HistorySequence = &seq
		result = append(result, m)
	}
	return result, rows.Err()
}

// Update replaces the stored message content and metadata, keeping its
// sequence number.
func (s *HistoryStore) Update(ctx context.Context, workspaceID string, msg *history.Message) error {
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE workspace_messages
		 SET role = $3, parts = $4, model = $5, system_message_tokens = $6
		 WHERE workspace_id = $1 AND id = $2`,
		workspaceID, msg.ID, msg.Role, parts,
		msg.Metadata.Model, msg.Metadata.SystemMessageTokens)
	if err != nil {
		return fmt.Errorf("update message %s: %w", msg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message %s: %w", msg.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteMessage removes one message. Deleting a missing message is a no-op.
func (s *HistoryStore) DeleteMessage(ctx context.Context, workspaceID, messageID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM workspace_messages WHERE workspace_id = $1 AND id = $2`,
		workspaceID, messageID)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}
