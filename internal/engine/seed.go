package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"certline/internal/domain"
	"certline/internal/events"
)

// SeedData is the reference data of a tenant as loaded from a seed file.
type SeedData struct {
	Departments    []domain.Department         `yaml:"departments"`
	Positions      []domain.Position           `yaml:"positions"`
	Personnel      []domain.Personnel          `yaml:"personnel"`
	Templates      []domain.CompetencyTemplate `yaml:"templates"`
	Certifications []domain.Certification      `yaml:"certifications"`
}

// SeedSummary counts what a seed run wrote.
type SeedSummary struct {
	Departments    int `json:"departments"`
	Positions      int `json:"positions"`
	Personnel      int `json:"personnel"`
	Templates      int `json:"templates"`
	Certifications int `json:"certifications"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (SeedData, error) {
	var data SeedData
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, err
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("invalid seed yaml: %w", err)
	}
	return data, nil
}

// Seed upserts reference data into the engine's tenant in one transaction.
// Certifications without an id get a fresh one.
func (e Engine) Seed(ctx context.Context, data SeedData, actorID string) (SeedSummary, error) {
	tenantID := e.TenantID()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SeedSummary{}, err
	}
	defer tx.Rollback()

	var sum SeedSummary
	for _, d := range data.Departments {
		d.TenantID = tenantID
		if err := e.Repo.UpsertDepartment(ctx, tx, d); err != nil {
			return SeedSummary{}, fmt.Errorf("department %s: %w", d.ID, err)
		}
		sum.Departments++
	}
	for _, p := range data.Positions {
		p.TenantID = tenantID
		if err := e.Repo.UpsertPosition(ctx, tx, p); err != nil {
			return SeedSummary{}, fmt.Errorf("position %s: %w", p.ID, err)
		}
		sum.Positions++
	}
	for _, p := range data.Personnel {
		p.TenantID = tenantID
		if err := e.Repo.UpsertPersonnel(ctx, tx, p); err != nil {
			return SeedSummary{}, fmt.Errorf("personnel %s: %w", p.ID, err)
		}
		sum.Personnel++
	}
	for _, tmpl := range data.Templates {
		for _, req := range tmpl.RequiredAreas {
			if !req.Category.Valid() {
				return SeedSummary{}, fmt.Errorf("template %s: unknown category %q", tmpl.PositionID, req.Category)
			}
		}
		if err := e.Repo.ReplaceTemplate(ctx, tx, tmpl); err != nil {
			return SeedSummary{}, err
		}
		sum.Templates++
	}
	for _, c := range data.Certifications {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		// dates are stored as given; unparsable ones surface as warnings at evaluation time
		if err := e.Repo.InsertCertification(ctx, tx, c); err != nil {
			return SeedSummary{}, fmt.Errorf("certification %s: %w", c.ID, err)
		}
		sum.Certifications++
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.SeedLoaded, TenantID: tenantID, EntityKind: "tenant", EntityID: tenantID, ActorID: actorID,
		Payload: events.EventPayload{
			"departments": sum.Departments, "positions": sum.Positions, "personnel": sum.Personnel,
			"templates": sum.Templates, "certifications": sum.Certifications,
		},
	}); err != nil {
		return SeedSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return SeedSummary{}, err
	}
	return sum, nil
}
