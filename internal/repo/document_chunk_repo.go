package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mchat/internal/model"
)

type DocumentChunkRepo struct {
	db *sql.DB
}

func NewDocumentChunkRepo(db *sql.DB) *DocumentChunkRepo {
	return &DocumentChunkRepo{db: db}
}

const insertDocumentChunk = `
INSERT INTO document_chunks (document_id, assistant_id, chunk_index, content, embedding, embedding_model, metadata, ctime, mtime)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// ReplaceForDocument swaps every chunk of a document in one transaction.
func (r *DocumentChunkRepo) ReplaceForDocument(ctx context.Context, documentID int64, chunks []*model.DocumentChunk) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if len(chunks) > 0 {
		stmt, perr := tx.PrepareContext(ctx, insertDocumentChunk)
		if perr != nil {
			err = perr
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			metadata, jerr := encodeJSON(c.Metadata)
			if jerr != nil {
				err = jerr
				return err
			}
			if _, err = stmt.ExecContext(ctx, documentID, nullInt64(c.AssistantID), c.ChunkIndex, c.Content,
				pgvector.NewVector(c.Embedding), c.EmbeddingModel, metadata, c.Ctime, c.Mtime); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
			}
		}
	}
	return tx.Commit()
}

func (r *DocumentChunkRepo) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

// ListByDocuments returns at most limit chunks ordered by (document_id, chunk_index).
func (r *DocumentChunkRepo) ListByDocuments(ctx context.Context, documentIDs []int64, limit int) ([]*model.DocumentChunk, error) {
	if len(documentIDs) == 0 {
		return []*model.DocumentChunk{}, nil
	}
	query := `SELECT id, document_id, assistant_id, chunk_index, content, embedding, embedding_model, metadata, ctime, mtime
		FROM document_chunks WHERE document_id IN (?) ORDER BY document_id, chunk_index LIMIT ?`
	query, args, err := sqlx.In(query, documentIDs, limit)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]*model.DocumentChunk, 0)
	for rows.Next() {
		var c model.DocumentChunk
		var assistantID sql.NullInt64
		var vec pgvector.Vector
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &assistantID, &c.ChunkIndex, &c.Content, &vec,
			&c.EmbeddingModel, &metadata, &c.Ctime, &c.Mtime); err != nil {
			return nil, err
		}
		c.AssistantID = int64Ptr(assistantID)
		c.Embedding = vec.Slice()
		if c.Metadata, err = decodeJSONMap(metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
