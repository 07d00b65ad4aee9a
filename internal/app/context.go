package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/engine/auth"
	"certline/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures the tenant and
// its config exist, seeding defaults when missing. An explicit tenant wins,
// then the only tenant of the workspace.
func ResolveTenantAndConfig(ctx context.Context, tenantOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		t, err := r.SingleTenant(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("no tenant found; run certline init --tenant <id>")
			}
			return "", nil, err
		}
		tenantID = t.ID
	}
	seedCfg := config.Default(tenantID)

	if _, err := r.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := CreateTenant(ctx, r, tenantID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := r.UpsertTenantConfig(ctx, nil, tenantID, seedCfg); err != nil {
			return "", nil, fmt.Errorf("seed tenant config: %w", err)
		}
		cfg = seedCfg
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}

// CreateTenant inserts the tenant, its config and an admin role for actorID.
func CreateTenant(ctx context.Context, r repo.Repo, tenantID string, cfg *config.Config, actorID string) error {
	if cfg == nil {
		cfg = config.Default(tenantID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	name := cfg.Tenant.Name
	if name == "" {
		name = tenantID
	}
	if err := r.InsertTenant(ctx, tx, domain.Tenant{ID: tenantID, Name: name, CreatedAt: now}); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	if err := r.UpsertTenantConfig(ctx, tx, tenantID, cfg); err != nil {
		return fmt.Errorf("insert tenant config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if err := r.AssignRole(ctx, tx, tenantID, actorID, auth.RoleAdmin); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	return tx.Commit()
}
