package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, tenantID, actorID, role string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(tenant_id, actor_id, role) VALUES (?,?,?)`, tenantID, actorID, role)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, tenantID, actorID, role string) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM actor_roles WHERE tenant_id=? AND actor_id=? AND role=?`, tenantID, actorID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActorRoles(ctx context.Context, tx *sql.Tx, tenantID, actorID string) ([]string, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT role FROM actor_roles WHERE tenant_id=? AND actor_id=? ORDER BY role`, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RoleAssignment is one actor/role pair within a tenant.
type RoleAssignment struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

func (r Repo) ListRoleAssignments(ctx context.Context, tenantID string) ([]RoleAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, role FROM actor_roles WHERE tenant_id=? ORDER BY actor_id, role`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.ActorID, &a.Role); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
