package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

var assistantColumns = []string{
	"id", "name", "icon", "description", "prompt_content", "system_prompt", "scene_prompt",
	"user_prefill", "opening_message", "model_parameters", "knowledge_ids", "ctime", "mtime",
}

type AssistantRepo struct {
	db *sql.DB
}

func NewAssistantRepo(db *sql.DB) *AssistantRepo {
	return &AssistantRepo{db: db}
}

func assistantData(a *model.Assistant) (map[string]interface{}, error) {
	params, err := encodeJSON(a.ModelParameters)
	if err != nil {
		return nil, err
	}
	ids, err := encodeJSONList(a.KnowledgeIDs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"name":             a.Name,
		"icon":             a.Icon,
		"description":      a.Description,
		"prompt_content":   a.PromptContent,
		"system_prompt":    a.SystemPrompt,
		"scene_prompt":     a.ScenePrompt,
		"user_prefill":     a.UserPrefill,
		"opening_message":  a.OpeningMessage,
		"model_parameters": params,
		"knowledge_ids":    ids,
		"mtime":            a.Mtime,
	}, nil
}

func (r *AssistantRepo) Create(ctx context.Context, a *model.Assistant) error {
	data, err := assistantData(a)
	if err != nil {
		return err
	}
	data["ctime"] = a.Ctime
	sqlStr, args, err := builder.BuildInsert("assistants", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&a.ID)
}

func (r *AssistantRepo) Update(ctx context.Context, a *model.Assistant) error {
	data, err := assistantData(a)
	if err != nil {
		return err
	}
	sqlStr, args, err := builder.BuildUpdate("assistants", map[string]interface{}{"id": a.ID}, data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *AssistantRepo) Delete(ctx context.Context, id int64) error {
	sqlStr, args, err := builder.BuildDelete("assistants", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *AssistantRepo) GetByID(ctx context.Context, id int64) (*model.Assistant, error) {
	sqlStr, args, err := builder.BuildSelect("assistants", map[string]interface{}{"id": id}, assistantColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanAssistant(rows)
}

func (r *AssistantRepo) List(ctx context.Context) ([]*model.Assistant, error) {
	where := map[string]interface{}{"_orderby": "id asc"}
	sqlStr, args, err := builder.BuildSelect("assistants", where, assistantColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.Assistant, 0)
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *AssistantRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM assistants").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanAssistant(rows *sql.Rows) (*model.Assistant, error) {
	var a model.Assistant
	var params, ids []byte
	if err := rows.Scan(&a.ID, &a.Name, &a.Icon, &a.Description, &a.PromptContent, &a.SystemPrompt, &a.ScenePrompt,
		&a.UserPrefill, &a.OpeningMessage, &params, &ids, &a.Ctime, &a.Mtime); err != nil {
		return nil, err
	}
	var err error
	if a.ModelParameters, err = decodeJSONMap(params); err != nil {
		return nil, err
	}
	a.KnowledgeIDs = []int64{}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &a.KnowledgeIDs); err != nil {
			return nil, err
		}
	}
	return &a, nil
}
