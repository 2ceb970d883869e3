// Package historystore defines the port interface for the persisted,
// sequence-numbered chat history.
package historystore

import (
	"context"

	"github.com/Strob0t/StreamForge/internal/domain/history"
)

// Store is the port interface for workspace chat history. Append stamps the
// message with the workspace's next history sequence; implementations own
// the sequence computation so concurrent appends cannot collide.
type Store interface {
	// Append persists msg at the end of the workspace history and stamps
	// its Metadata.HistorySequence.
	Append(ctx context.Context, workspaceID string, msg *history.Message) error

	// History returns all messages for the workspace in sequence order.
	History(ctx context.Context, workspaceID string) ([]history.Message, error)

	// Update replaces the stored message with the same ID.
	Update(ctx context.Context, workspaceID string, msg *history.Message) error

	// DeleteMessage removes one message by ID. Deleting a missing message
	// is not an error.
	DeleteMessage(ctx context.Context, workspaceID, messageID string) error
}
