package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"certline/internal/domain"
)

func (r Repo) UpsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO departments(id,tenant_id,name) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET tenant_id=excluded.tenant_id, name=excluded.name`, d.ID, d.TenantID, d.Name)
	return err
}

func (r Repo) UpsertPosition(ctx context.Context, tx *sql.Tx, p domain.Position) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO positions(id,tenant_id,name) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET tenant_id=excluded.tenant_id, name=excluded.name`, p.ID, p.TenantID, p.Name)
	return err
}

func (r Repo) UpsertPersonnel(ctx context.Context, tx *sql.Tx, p domain.Personnel) error {
	if p.PersonnelType == "" {
		p.PersonnelType = domain.PersonnelEmployee
	}
	if p.Status == "" {
		p.Status = "active"
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO personnel(id,tenant_id,full_name,position_id,department_id,personnel_type,status) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET tenant_id=excluded.tenant_id, full_name=excluded.full_name, position_id=excluded.position_id,
department_id=excluded.department_id, personnel_type=excluded.personnel_type, status=excluded.status`,
		p.ID, p.TenantID, p.FullName, nullable(p.PositionID), nullable(p.DepartmentID), string(p.PersonnelType), p.Status)
	return err
}

// ReplaceTemplate stores the required areas of a position, dropping previous ones.
func (r Repo) ReplaceTemplate(ctx context.Context, tx *sql.Tx, t domain.CompetencyTemplate) error {
	c := r.conn(tx)
	if _, err := c.ExecContext(ctx, `DELETE FROM competency_requirements WHERE position_id=?`, t.PositionID); err != nil {
		return err
	}
	for _, req := range t.RequiredAreas {
		areas, err := json.Marshal(req.Areas)
		if err != nil {
			return err
		}
		if _, err := c.ExecContext(ctx, `INSERT INTO competency_requirements(position_id,category,areas_json) VALUES (?,?,?)
ON CONFLICT(position_id,category) DO UPDATE SET areas_json=excluded.areas_json`, t.PositionID, string(req.Category), string(areas)); err != nil {
			return fmt.Errorf("template %s/%s: %w", t.PositionID, req.Category, err)
		}
	}
	return nil
}

func (r Repo) GetPersonnel(ctx context.Context, tx *sql.Tx, id string) (domain.Personnel, error) {
	var p domain.Personnel
	var kind string
	err := r.conn(tx).QueryRowContext(ctx, `SELECT id,tenant_id,full_name,COALESCE(position_id,''),COALESCE(department_id,''),personnel_type,status FROM personnel WHERE id=?`, id).
		Scan(&p.ID, &p.TenantID, &p.FullName, &p.PositionID, &p.DepartmentID, &kind, &p.Status)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.PersonnelType = domain.PersonnelType(kind)
	return p, err
}

func (r Repo) ListPersonnel(ctx context.Context, tenantID string) ([]domain.Personnel, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,full_name,COALESCE(position_id,''),COALESCE(department_id,''),personnel_type,status
FROM personnel WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Personnel
	for rows.Next() {
		var p domain.Personnel
		var kind string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.FullName, &p.PositionID, &p.DepartmentID, &kind, &p.Status); err != nil {
			return nil, err
		}
		p.PersonnelType = domain.PersonnelType(kind)
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListDepartments(ctx context.Context, tenantID string) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name FROM departments WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListPositions(ctx context.Context, tenantID string) ([]domain.Position, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name FROM positions WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListTemplates(ctx context.Context, tenantID string) ([]domain.CompetencyTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT cr.position_id,cr.category,cr.areas_json
FROM competency_requirements cr JOIN positions p ON p.id=cr.position_id
WHERE p.tenant_id=? ORDER BY cr.position_id, cr.category`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byPosition := map[string]*domain.CompetencyTemplate{}
	var order []string
	for rows.Next() {
		var positionID, category, areasJSON string
		if err := rows.Scan(&positionID, &category, &areasJSON); err != nil {
			return nil, err
		}
		var areas []string
		if err := json.Unmarshal([]byte(areasJSON), &areas); err != nil {
			return nil, fmt.Errorf("template %s/%s: %w", positionID, category, err)
		}
		t, ok := byPosition[positionID]
		if !ok {
			t = &domain.CompetencyTemplate{PositionID: positionID}
			byPosition[positionID] = t
			order = append(order, positionID)
		}
		t.RequiredAreas = append(t.RequiredAreas, domain.AreaRequirement{Category: domain.Category(category), Areas: areas})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(order)
	res := make([]domain.CompetencyTemplate, 0, len(order))
	for _, id := range order {
		res = append(res, *byPosition[id])
	}
	return res, nil
}

// LoadSnapshot reads everything one evaluation of a tenant needs.
func (r Repo) LoadSnapshot(ctx context.Context, tenantID string) (domain.Snapshot, error) {
	snap := domain.Snapshot{TenantID: tenantID}
	var err error
	if snap.Personnel, err = r.ListPersonnel(ctx, tenantID); err != nil {
		return snap, fmt.Errorf("load personnel: %w", err)
	}
	if snap.Positions, err = r.ListPositions(ctx, tenantID); err != nil {
		return snap, fmt.Errorf("load positions: %w", err)
	}
	if snap.Departments, err = r.ListDepartments(ctx, tenantID); err != nil {
		return snap, fmt.Errorf("load departments: %w", err)
	}
	if snap.Templates, err = r.ListTemplates(ctx, tenantID); err != nil {
		return snap, fmt.Errorf("load templates: %w", err)
	}
	if snap.Certifications, err = r.ListCertifications(ctx, tenantID, ""); err != nil {
		return snap, fmt.Errorf("load certifications: %w", err)
	}
	return snap, nil
}
