package repo

import (
	"context"
	"database/sql"
	"errors"

	"certline/internal/domain"
)

const certColumns = `c.id,c.person_id,c.category,c.area,c.issue_date,c.expiry_date,
COALESCE(c.protocol_number,''),COALESCE(c.protocol_date,''),c.verified,COALESCE(c.verified_date,'')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertification(s rowScanner) (domain.Certification, error) {
	var c domain.Certification
	var category string
	var verified int
	err := s.Scan(&c.ID, &c.PersonID, &category, &c.Area, &c.IssueDate, &c.ExpiryDate,
		&c.ProtocolNumber, &c.ProtocolDate, &verified, &c.VerifiedDate)
	c.Category = domain.Category(category)
	c.Verified = verified != 0
	return c, err
}

func (r Repo) InsertCertification(ctx context.Context, tx *sql.Tx, c domain.Certification) error {
	verified := 0
	if c.Verified {
		verified = 1
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO certifications(id,person_id,category,area,issue_date,expiry_date,protocol_number,protocol_date,verified,verified_date)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET person_id=excluded.person_id, category=excluded.category, area=excluded.area,
issue_date=excluded.issue_date, expiry_date=excluded.expiry_date, protocol_number=excluded.protocol_number,
protocol_date=excluded.protocol_date, verified=excluded.verified, verified_date=excluded.verified_date`,
		c.ID, c.PersonID, string(c.Category), c.Area, c.IssueDate, c.ExpiryDate,
		nullable(c.ProtocolNumber), nullable(c.ProtocolDate), verified, nullable(c.VerifiedDate))
	return err
}

func (r Repo) GetCertification(ctx context.Context, tx *sql.Tx, id string) (domain.Certification, error) {
	c, err := scanCertification(r.conn(tx).QueryRowContext(ctx, `SELECT `+certColumns+` FROM certifications c WHERE c.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// ListCertifications returns a tenant's certifications, optionally for one person.
func (r Repo) ListCertifications(ctx context.Context, tenantID, personID string) ([]domain.Certification, error) {
	query := `SELECT ` + certColumns + ` FROM certifications c JOIN personnel p ON p.id=c.person_id WHERE p.tenant_id=?`
	args := []any{tenantID}
	if personID != "" {
		query += ` AND c.person_id=?`
		args = append(args, personID)
	}
	query += ` ORDER BY c.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Certification
	for rows.Next() {
		c, err := scanCertification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SetCertificationVerified flips the verification flag; verifiedDate is cleared when unverifying.
func (r Repo) SetCertificationVerified(ctx context.Context, tx *sql.Tx, id string, verified bool, verifiedDate string) error {
	flag := 0
	if verified {
		flag = 1
	} else {
		verifiedDate = ""
	}
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE certifications SET verified=?, verified_date=? WHERE id=?`, flag, nullable(verifiedDate), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
