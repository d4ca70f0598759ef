package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/dbutil"
)

var messageColumns = []string{
	"id", "conversation_id", "assistant_id", "role", "content", "message_type", "attachments", "hide_name", "ctime",
}

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	attachments, err := encodeJSONList(msg.Attachments)
	if err != nil {
		return err
	}
	if msg.MessageType == "" {
		msg.MessageType = model.MessageTypeText
	}
	data := map[string]interface{}{
		"conversation_id": msg.ConversationID,
		"assistant_id":    msg.AssistantID,
		"role":            msg.Role,
		"content":         msg.Content,
		"message_type":    msg.MessageType,
		"attachments":     attachments,
		"hide_name":       msg.HideName,
		"ctime":           msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&msg.ID)
}

// ListByConversation returns messages in insertion order.
func (r *MessageRepo) ListByConversation(ctx context.Context, assistantID int64, conversationID string) ([]*model.Message, error) {
	where := map[string]interface{}{
		"assistant_id":    assistantID,
		"conversation_id": conversationID,
		"_orderby":        "id asc",
	}
	sqlStr, args, err := builder.BuildSelect("messages", where, messageColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.Message, 0)
	for rows.Next() {
		var m model.Message
		var attachments []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AssistantID, &m.Role, &m.Content,
			&m.MessageType, &attachments, &m.HideName, &m.Ctime); err != nil {
			return nil, err
		}
		m.Attachments = []model.Attachment{}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
				return nil, err
			}
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
