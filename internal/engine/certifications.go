package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"certline/internal/compliance"
	"certline/internal/domain"
	"certline/internal/engine/auth"
	"certline/internal/events"
	"certline/internal/repo"
)

// CertificationView is a stored certification with its current classification.
type CertificationView struct {
	domain.Certification
	Status   domain.LifecycleStatus `json:"status,omitempty" enum:"valid,expiring_soon,expired"`
	DaysLeft *int                   `json:"days_left,omitempty"`
}

// Certifications lists a tenant's certifications, optionally for one person.
// Records with an unparsable expiry carry no status.
func (e Engine) Certifications(ctx context.Context, personID string) ([]CertificationView, error) {
	certs, err := e.Repo.ListCertifications(ctx, e.TenantID(), personID)
	if err != nil {
		return nil, err
	}
	ref := e.ReferenceDate()
	out := make([]CertificationView, 0, len(certs))
	for _, c := range certs {
		v := CertificationView{Certification: c}
		if cls, err := compliance.ClassifyDate(c.ExpiryDate, ref); err == nil {
			days := cls.DaysLeft
			v.Status, v.DaysLeft = cls.Status, &days
		}
		out = append(out, v)
	}
	return out, nil
}

// SetCertificationVerified marks a certification as checked against its protocol, or clears the mark.
func (e Engine) SetCertificationVerified(ctx context.Context, id string, verified bool, actorID string) (domain.Certification, error) {
	if err := e.requireActor(ctx, actorID, auth.PermCertificationVerify); err != nil {
		return domain.Certification{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Certification{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCertification(ctx, tx, id)
	if err != nil {
		return domain.Certification{}, err
	}
	if person, err := e.Repo.GetPersonnel(ctx, tx, c.PersonID); err != nil || person.TenantID != e.TenantID() {
		return domain.Certification{}, fmt.Errorf("%w: certification %s", repo.ErrNotFound, id)
	}
	verifiedDate := e.ReferenceDate().Format(compliance.DateLayout)
	if err := e.Repo.SetCertificationVerified(ctx, tx, id, verified, verifiedDate); err != nil {
		return domain.Certification{}, err
	}
	evt := events.CertificationUnverified
	if verified {
		evt = events.CertificationVerified
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: evt, TenantID: e.TenantID(), EntityKind: "certification", EntityID: id, ActorID: actorID,
		Payload: events.EventPayload{"person_id": c.PersonID, "area": c.Area},
	}); err != nil {
		return domain.Certification{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Certification{}, err
	}
	return e.Repo.GetCertification(ctx, nil, id)
}

// ImportRecord is one input row of a bulk certification import. Missing
// fields are reported per row rather than rejecting the request.
type ImportRecord struct {
	PersonnelID    string `json:"personnel_id" yaml:"personnel_id" required:"false"`
	Category       string `json:"category" yaml:"category" required:"false"`
	Area           string `json:"area" yaml:"area" required:"false"`
	IssueDate      string `json:"issue_date" yaml:"issue_date" required:"false"`
	ExpiryDate     string `json:"expiry_date" yaml:"expiry_date" required:"false"`
	ProtocolNumber string `json:"protocol_number,omitempty" yaml:"protocol_number"`
	ProtocolDate   string `json:"protocol_date,omitempty" yaml:"protocol_date"`
}

// LoadImportFile reads import records from a YAML or JSON file holding either
// a list of records or an object with a records key.
func LoadImportFile(path string) ([]ImportRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid import file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	var records []ImportRecord
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&records)
	case yaml.MappingNode:
		var wrapped struct {
			Records []ImportRecord `yaml:"records"`
		}
		err = root.Decode(&wrapped)
		records = wrapped.Records
	default:
		err = errors.New("expected a list of records")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid import file: %w", err)
	}
	return records, nil
}

const (
	RowValid   = "valid"
	RowWarning = "warning"
	RowError   = "error"
)

// ImportRow reports how one record was classified and, unless it failed or
// the run was dry, the id it was stored under.
type ImportRow struct {
	Index           int      `json:"index"`
	Status          string   `json:"status" enum:"valid,warning,error"`
	Messages        []string `json:"messages,omitempty"`
	CertificationID string   `json:"certification_id,omitempty"`
	PersonName      string   `json:"person_name,omitempty"`
}

type ImportReport struct {
	DryRun   bool        `json:"dry_run"`
	Valid    int         `json:"valid"`
	Warnings int         `json:"warnings"`
	Errors   int         `json:"errors"`
	Imported int         `json:"imported"`
	Rows     []ImportRow `json:"rows"`
}

// ImportCertifications validates records and stores the valid and warning
// rows in one transaction. Error rows are reported and skipped.
func (e Engine) ImportCertifications(ctx context.Context, records []ImportRecord, dryRun bool, actorID string) (ImportReport, error) {
	if err := e.requireActor(ctx, actorID, auth.PermCertificationImport); err != nil {
		return ImportReport{}, err
	}
	people, err := e.Repo.ListPersonnel(ctx, e.TenantID())
	if err != nil {
		return ImportReport{}, err
	}
	byID := make(map[string]domain.Personnel, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}

	report := ImportReport{DryRun: dryRun, Rows: make([]ImportRow, 0, len(records))}
	var accepted []domain.Certification
	for i, rec := range records {
		row, cert := e.validateImport(i, rec, byID)
		switch row.Status {
		case RowValid:
			report.Valid++
		case RowWarning:
			report.Warnings++
		default:
			report.Errors++
		}
		if row.Status != RowError {
			cert.ID = uuid.NewString()
			if !dryRun {
				row.CertificationID = cert.ID
			}
			accepted = append(accepted, cert)
		}
		report.Rows = append(report.Rows, row)
	}
	if dryRun || len(accepted) == 0 {
		return report, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ImportReport{}, err
	}
	defer tx.Rollback()
	for _, c := range accepted {
		if err := e.Repo.InsertCertification(ctx, tx, c); err != nil {
			return ImportReport{}, fmt.Errorf("insert certification for %s: %w", c.PersonID, err)
		}
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.CertificationImported, TenantID: e.TenantID(), EntityKind: "certification", ActorID: actorID,
		Payload: events.EventPayload{"imported": len(accepted), "warnings": report.Warnings, "errors": report.Errors},
	}); err != nil {
		return ImportReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportReport{}, err
	}
	report.Imported = len(accepted)
	e.Logger.Info("certifications imported", "tenant_id", e.TenantID(), "imported", report.Imported,
		"warnings", report.Warnings, "errors", report.Errors)
	return report, nil
}

func (e Engine) validateImport(i int, rec ImportRecord, people map[string]domain.Personnel) (ImportRow, domain.Certification) {
	row := ImportRow{Index: i, Status: RowValid}
	fail := func(msg string) {
		row.Status = RowError
		row.Messages = append(row.Messages, msg)
	}
	cert := domain.Certification{
		PersonID:       strings.TrimSpace(rec.PersonnelID),
		Category:       domain.Category(strings.TrimSpace(rec.Category)),
		Area:           strings.TrimSpace(rec.Area),
		ProtocolNumber: strings.TrimSpace(rec.ProtocolNumber),
	}
	if p, ok := people[cert.PersonID]; ok {
		row.PersonName = p.FullName
	} else {
		fail(fmt.Sprintf("personnel %q not found", rec.PersonnelID))
	}
	if !cert.Category.Valid() {
		fail(fmt.Sprintf("unknown category %q", rec.Category))
	}
	if cert.Area == "" {
		fail("area is required")
	}
	issue, issueErr := e.normalizeDate(rec.IssueDate)
	if issueErr != nil {
		fail("issue_date: " + issueErr.Error())
	}
	expiry, expiryErr := e.normalizeDate(rec.ExpiryDate)
	if expiryErr != nil {
		fail("expiry_date: " + expiryErr.Error())
	}
	if rec.ProtocolDate != "" {
		pd, err := e.normalizeDate(rec.ProtocolDate)
		if err != nil {
			fail("protocol_date: " + err.Error())
		}
		cert.ProtocolDate = pd.Format(compliance.DateLayout)
	}
	if issueErr == nil && expiryErr == nil {
		cert.IssueDate = issue.Format(compliance.DateLayout)
		cert.ExpiryDate = expiry.Format(compliance.DateLayout)
		if expiry.Before(issue) && row.Status != RowError {
			row.Status = RowWarning
			row.Messages = append(row.Messages, "expiry date is before issue date")
		}
	}
	return row, cert
}

// normalizeDate accepts the canonical layout, RFC3339 or the tenant's configured layout.
func (e Engine) normalizeDate(s string) (time.Time, error) {
	t, err := compliance.ParseDate(s, e.location())
	if err == nil {
		return t, nil
	}
	if e.Config != nil && e.Config.Dates.Layout != "" && e.Config.Dates.Layout != compliance.DateLayout {
		if t, lerr := time.ParseInLocation(e.Config.Dates.Layout, strings.TrimSpace(s), e.location()); lerr == nil {
			return t, nil
		}
	}
	if !errors.Is(err, compliance.ErrInvalidDate) {
		err = fmt.Errorf("%w: %v", compliance.ErrInvalidDate, err)
	}
	return time.Time{}, err
}
