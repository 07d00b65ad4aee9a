package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certline/internal/domain"
	"certline/internal/engine/auth"
	"certline/internal/repo"
)

// GrantRole assigns a catalog role to an actor within the tenant.
func (e Engine) GrantRole(ctx context.Context, actorID, role, grantedBy string) error {
	if err := e.requireActor(ctx, grantedBy, auth.PermRolesManage); err != nil {
		return err
	}
	if !auth.KnownRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, e.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, e.TenantID(), actorID, role); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actorID, role, revokedBy string) error {
	if err := e.requireActor(ctx, revokedBy, auth.PermRolesManage); err != nil {
		return err
	}
	return e.Repo.RevokeRole(ctx, nil, e.TenantID(), actorID, role)
}

func (e Engine) RoleAssignments(ctx context.Context) ([]repo.RoleAssignment, error) {
	return e.Repo.ListRoleAssignments(ctx, e.TenantID())
}

// CreateAPIKey issues a key for actorID. The plaintext key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "cl_" + hex.EncodeToString(buf)
	now := e.now().UTC().Format(time.RFC3339)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
