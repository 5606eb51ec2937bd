package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// WorkflowRepo is the postgres-backed store.WorkflowStore.
type WorkflowRepo struct {
	db DB
}

func NewWorkflowRepo(db DB) *WorkflowRepo { return &WorkflowRepo{db: db} }

type dagVersionRow struct {
	WorkflowID string `db:"workflow_id"`
	Version    int    `db:"version"`
	Document   []byte `db:"document"`
}

func (r *WorkflowRepo) SaveDAG(ctx context.Context, v *store.DAGVersion) error {
	raw, err := json.Marshal(v.Document)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	sql, args, err := squirrel.Insert("dag_versions").
		Columns("workflow_id", "version", "document").
		Values(v.WorkflowID, v.Version, raw).
		PlaceholderFormat(squirrel.Dollar).
		Suffix("ON CONFLICT (workflow_id, version) DO UPDATE SET document = EXCLUDED.document").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("saving dag version: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) LoadDAG(ctx context.Context, workflowID string, version int) (*store.DAGVersion, error) {
	sqlStr, args, err := squirrel.Select("workflow_id", "version", "document").
		From("dag_versions").
		Where(squirrel.Eq{"workflow_id": workflowID, "version": version}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	return r.scanOne(ctx, sqlStr, args...)
}

func (r *WorkflowRepo) LoadLatestDAG(ctx context.Context, workflowID string) (*store.DAGVersion, error) {
	sqlStr, args, err := squirrel.Select("workflow_id", "version", "document").
		From("dag_versions").
		Where(squirrel.Eq{"workflow_id": workflowID}).
		OrderBy("version DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	return r.scanOne(ctx, sqlStr, args...)
}

func (r *WorkflowRepo) scanOne(ctx context.Context, sqlStr string, args ...any) (*store.DAGVersion, error) {
	var row dagVersionRow
	if err := pgxscan.Get(ctx, r.db, &row, sqlStr, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning dag version: %w", err)
	}
	var doc dag.Document
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return &store.DAGVersion{WorkflowID: row.WorkflowID, Version: row.Version, Document: &doc}, nil
}

func (r *WorkflowRepo) ListVersions(ctx context.Context, workflowID string) ([]int, error) {
	sqlStr, args, err := squirrel.Select("version").
		From("dag_versions").
		Where(squirrel.Eq{"workflow_id": workflowID}).
		OrderBy("version ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var versions []int
	if err := pgxscan.Select(ctx, r.db, &versions, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("scanning versions: %w", err)
	}
	return versions, nil
}
