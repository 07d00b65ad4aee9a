package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certline/internal/compliance"
	"certline/internal/domain"
	"certline/internal/repo"
)

// ComplianceReport is the compliance view of a tenant. Warnings covers the
// whole tenant: missing templates and certifications with unreadable dates.
type ComplianceReport struct {
	Records     []domain.ComplianceRecord `json:"records"`
	Stats       domain.FleetStats         `json:"stats"`
	Departments []string                  `json:"departments"`
	Warnings    []compliance.Warning      `json:"warnings"`
}

func (e Engine) evaluate(ctx context.Context) ([]domain.ComplianceRecord, []compliance.Warning, error) {
	start := time.Now()
	defer e.Metrics.ObserveEvaluation(start)
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, warnings := compliance.ComputeCompliance(snap, e.ReferenceDate())
	e.reportWarnings(warnings)
	return records, warnings, nil
}

// Compliance returns records, optionally for one department. Stats follow the
// filtered records; the fleet gauge always reflects the whole tenant.
func (e Engine) Compliance(ctx context.Context, department string) (ComplianceReport, error) {
	records, warnings, err := e.evaluate(ctx)
	if err != nil {
		return ComplianceReport{}, err
	}
	if warnings == nil {
		warnings = []compliance.Warning{}
	}
	e.Metrics.SetAvgCompliance(compliance.Summarize(records).AvgCompliance)
	filtered := compliance.FilterRecords(records, department)
	return ComplianceReport{
		Records:     filtered,
		Stats:       compliance.Summarize(filtered),
		Departments: compliance.RecordDepartments(records),
		Warnings:    warnings,
	}, nil
}

// PersonCompliance returns the record of one person.
func (e Engine) PersonCompliance(ctx context.Context, personID string) (domain.ComplianceRecord, error) {
	records, _, err := e.evaluate(ctx)
	if err != nil {
		return domain.ComplianceRecord{}, err
	}
	for _, r := range records {
		if r.PersonID == personID {
			return r, nil
		}
	}
	return domain.ComplianceRecord{}, fmt.Errorf("%w: person %s", repo.ErrNotFound, personID)
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
