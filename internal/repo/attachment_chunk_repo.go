package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mchat/internal/model"
)

type AttachmentChunkRepo struct {
	db *sql.DB
}

func NewAttachmentChunkRepo(db *sql.DB) *AttachmentChunkRepo {
	return &AttachmentChunkRepo{db: db}
}

const insertAttachmentChunk = `
INSERT INTO attachment_chunks (assistant_id, conversation_id, message_id, chunk_index, content, embedding, ctime)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *AttachmentChunkRepo) CreateBatch(ctx context.Context, chunks []*model.AttachmentChunk) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertAttachmentChunk)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err = stmt.ExecContext(ctx, c.AssistantID, c.ConversationID, c.MessageID, c.ChunkIndex,
			c.Content, pgvector.NewVector(c.Embedding), c.Ctime); err != nil {
			return fmt.Errorf("insert attachment chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ListByScope returns every attachment chunk of one conversation in upload order.
func (r *AttachmentChunkRepo) ListByScope(ctx context.Context, assistantID int64, conversationID string) ([]*model.AttachmentChunk, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, assistant_id, conversation_id, message_id, chunk_index, content, embedding, ctime
		FROM attachment_chunks WHERE assistant_id = $1 AND conversation_id = $2 ORDER BY message_id, chunk_index`,
		assistantID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.AttachmentChunk, 0)
	for rows.Next() {
		var c model.AttachmentChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.AssistantID, &c.ConversationID, &c.MessageID, &c.ChunkIndex,
			&c.Content, &vec, &c.Ctime); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		items = append(items, &c)
	}
	return items, rows.Err()
}
