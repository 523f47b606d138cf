package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"

	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
)

var dedupRunFields = []string{
	"id", "user_id", "near_threshold", "total", "unique_count", "duplicates",
	"partial", "degraded", "state", "stats", "report_key", "ctime", "mtime",
}

type DedupRunRepo struct {
	db *sql.DB
}

func NewDedupRunRepo(db *sql.DB) *DedupRunRepo {
	return &DedupRunRepo{db: db}
}

// Create stores a run and its groups in one transaction.
func (r *DedupRunRepo) Create(ctx context.Context, run *model.DedupRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	data := map[string]interface{}{
		"id":             run.ID,
		"user_id":        run.UserID,
		"near_threshold": run.NearThreshold,
		"total":          run.Total,
		"unique_count":   run.Unique,
		"duplicates":     run.Duplicates,
		"partial":        run.Partial,
		"degraded":       run.Degraded,
		"state":          run.State,
		"stats":          run.Stats,
		"report_key":     run.ReportKey,
		"ctime":          run.Ctime,
		"mtime":          run.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("dedup_runs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	const groupQuery = `
		INSERT INTO dedup_groups (run_id, group_index, canonical_id, member_ids, tiers)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, g := range run.Groups {
		if _, err := tx.ExecContext(ctx, groupQuery, run.ID, i, g.CanonicalID, pq.Array(g.MemberIDs), pq.Array(g.Tiers)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *DedupRunRepo) GetByID(ctx context.Context, userID, runID string) (*model.DedupRun, error) {
	runs, err := r.selectRuns(ctx, map[string]interface{}{"id": runID, "user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, appErr.ErrNotFound
	}
	run := &runs[0]
	groups, err := r.listGroups(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Groups = groups
	return run, nil
}

// List returns a user's runs, newest first, without their groups.
func (r *DedupRunRepo) List(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc, id desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.selectRuns(ctx, where)
}

// MarkApplied moves a completed run to applied. A run that is already applied
// (or missing) yields ErrConflict / ErrNotFound.
func (r *DedupRunRepo) MarkApplied(ctx context.Context, userID, runID string) error {
	where := map[string]interface{}{
		"id":      runID,
		"user_id": userID,
		"state":   model.DedupRunStateCompleted,
	}
	update := map[string]interface{}{
		"state": model.DedupRunStateApplied,
		"mtime": time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("dedup_runs", where, update)
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
	if affected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, userID, runID); err != nil {
		return err
	}
	return appErr.ErrConflict
}

func (r *DedupRunRepo) SetReportKey(ctx context.Context, runID, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dedup_runs SET report_key = $1 WHERE id = $2`, key, runID)
	return err
}

func (r *DedupRunRepo) selectRuns(ctx context.Context, where map[string]interface{}) ([]model.DedupRun, error) {
	sqlStr, args, err := builder.BuildSelect("dedup_runs", where, dedupRunFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := make([]model.DedupRun, 0)
	for rows.Next() {
		var run model.DedupRun
		if err := rows.Scan(&run.ID, &run.UserID, &run.NearThreshold, &run.Total, &run.Unique, &run.Duplicates,
			&run.Partial, &run.Degraded, &run.State, &run.Stats, &run.ReportKey, &run.Ctime, &run.Mtime); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *DedupRunRepo) listGroups(ctx context.Context, runID string) ([]model.DedupGroup, error) {
	const query = `
		SELECT run_id, group_index, canonical_id, member_ids, tiers
		FROM dedup_groups
		WHERE run_id = $1
		ORDER BY group_index ASC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	groups := make([]model.DedupGroup, 0)
	for rows.Next() {
		var g model.DedupGroup
		var members, tiers pq.StringArray
		if err := rows.Scan(&g.RunID, &g.Index, &g.CanonicalID, &members, &tiers); err != nil {
			return nil, err
		}
		g.MemberIDs = []string(members)
		g.Tiers = []string(tiers)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
