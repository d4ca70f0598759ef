package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	data := map[string]interface{}{
		"id":           c.ID,
		"assistant_id": c.AssistantID,
		"title":        c.Title,
		"ctime":        c.Ctime,
		"mtime":        c.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("conversations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, assistantID int64, id string) (*model.Conversation, error) {
	where := map[string]interface{}{"assistant_id": assistantID, "id": id}
	items, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

func (r *ConversationRepo) ListByAssistant(ctx context.Context, assistantID int64, limit, offset uint) ([]*model.Conversation, error) {
	where := map[string]interface{}{
		"assistant_id": assistantID,
		"_orderby":     "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.query(ctx, where)
}

func (r *ConversationRepo) Touch(ctx context.Context, assistantID int64, id, title string, mtime int64) error {
	update := map[string]interface{}{"mtime": mtime}
	if title != "" {
		update["title"] = title
	}
	sqlStr, args, err := builder.BuildUpdate("conversations", map[string]interface{}{"assistant_id": assistantID, "id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Delete removes the conversation with its messages and attachment chunks.
func (r *ConversationRepo) Delete(ctx context.Context, assistantID int64, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM attachment_chunks WHERE assistant_id = $1 AND conversation_id = $2`, assistantID, id); err != nil {
		return fmt.Errorf("delete attachment chunks: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE assistant_id = $1 AND conversation_id = $2`, assistantID, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE assistant_id = $1 AND id = $2`, assistantID, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = appErr.ErrNotFound
		return err
	}
	return tx.Commit()
}

func (r *ConversationRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Conversation, error) {
	sqlStr, args, err := builder.BuildSelect("conversations", where, []string{"id", "assistant_id", "title", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.Conversation, 0)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.AssistantID, &c.Title, &c.Ctime, &c.Mtime); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}
