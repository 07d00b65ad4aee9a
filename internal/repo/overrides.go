package repo

import (
	"context"
	"database/sql"
	"strings"

	"certline/internal/domain"
)

func (r Repo) ListOverrides(ctx context.Context, tenantID string) ([]domain.Override, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,status,completed_at,updated_at FROM task_overrides WHERE tenant_id=? ORDER BY task_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Override
	for rows.Next() {
		var o domain.Override
		var status string
		var completedAt sql.NullString
		if err := rows.Scan(&o.TaskID, &status, &completedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.TaskStatus(status)
		if completedAt.Valid {
			v := completedAt.String
			o.CompletedAt = &v
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// Overrides binds override persistence to a tenant.
func (r Repo) Overrides(tenantID string) OverrideStore {
	return OverrideStore{repo: r, tenantID: tenantID}
}

type OverrideStore struct {
	repo     Repo
	tenantID string
}

func (s OverrideStore) SaveOverride(ctx context.Context, o domain.Override) error {
	_, err := s.repo.DB.ExecContext(ctx, `INSERT INTO task_overrides(tenant_id,task_id,status,completed_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(tenant_id,task_id) DO UPDATE SET status=excluded.status, completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		s.tenantID, o.TaskID, string(o.Status), nullableStringPtr(o.CompletedAt), o.UpdatedAt)
	return err
}

func (s OverrideStore) DeleteOverrides(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(taskIDs)), ",")
	args := make([]any, 0, len(taskIDs)+1)
	args = append(args, s.tenantID)
	for _, id := range taskIDs {
		args = append(args, id)
	}
	_, err := s.repo.DB.ExecContext(ctx, `DELETE FROM task_overrides WHERE tenant_id=? AND task_id IN (`+placeholders+`)`, args...)
	return err
}
