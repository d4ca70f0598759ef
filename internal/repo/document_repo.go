package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

var documentColumns = []string{
	"id", "name", "original_filename", "file_key", "file_size", "content_type", "assistant_id",
	"parse_status", "parsed_at", "parameters", "parse_result", "description", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	params, err := encodeJSON(doc.Parameters)
	if err != nil {
		return err
	}
	result, err := encodeJSON(doc.ParseResult)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"name":              doc.Name,
		"original_filename": doc.OriginalFilename,
		"file_key":          doc.FileKey,
		"file_size":         doc.FileSize,
		"content_type":      doc.ContentType,
		"assistant_id":      nullInt64(doc.AssistantID),
		"parse_status":      doc.ParseStatus,
		"parsed_at":         doc.ParsedAt,
		"parameters":        params,
		"parse_result":      result,
		"description":       doc.Description,
		"ctime":             doc.Ctime,
		"mtime":             doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&doc.ID)
}

// Update writes the admin editable fields.
func (r *DocumentRepo) Update(ctx context.Context, doc *model.Document) error {
	params, err := encodeJSON(doc.Parameters)
	if err != nil {
		return err
	}
	return r.update(ctx, doc.ID, map[string]interface{}{
		"name":         doc.Name,
		"description":  doc.Description,
		"parameters":   params,
		"assistant_id": nullInt64(doc.AssistantID),
		"mtime":        doc.Mtime,
	})
}

func (r *DocumentRepo) UpdateParseState(ctx context.Context, doc *model.Document) error {
	result, err := encodeJSON(doc.ParseResult)
	if err != nil {
		return err
	}
	return r.update(ctx, doc.ID, map[string]interface{}{
		"parse_status": doc.ParseStatus,
		"parsed_at":    doc.ParsedAt,
		"parse_result": result,
		"mtime":        doc.Mtime,
	})
}

func (r *DocumentRepo) update(ctx context.Context, id int64, data map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": id}, data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, id int64) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	docs, err := r.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

func (r *DocumentRepo) List(ctx context.Context, limit, offset uint) ([]*model.Document, error) {
	where := map[string]interface{}{"_orderby": "id desc"}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.query(ctx, where)
}

// ListByIDs returns the documents that still exist among ids.
func (r *DocumentRepo) ListByIDs(ctx context.Context, ids []int64) ([]*model.Document, error) {
	if len(ids) == 0 {
		return []*model.Document{}, nil
	}
	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return r.query(ctx, map[string]interface{}{
		"_custom_ids": builder.In{"id": values},
		"_orderby":    "id asc",
	})
}

func (r *DocumentRepo) ListByStatus(ctx context.Context, status string, limit uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"parse_status": status,
		"_orderby":     "id asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		var doc model.Document
		var assistantID sql.NullInt64
		var params, result []byte
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.OriginalFilename, &doc.FileKey, &doc.FileSize, &doc.ContentType,
			&assistantID, &doc.ParseStatus, &doc.ParsedAt, &params, &result, &doc.Description, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		doc.AssistantID = int64Ptr(assistantID)
		if doc.Parameters, err = decodeJSONMap(params); err != nil {
			return nil, err
		}
		if doc.ParseResult, err = decodeJSONMap(result); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
