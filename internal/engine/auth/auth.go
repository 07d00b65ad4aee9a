package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"certline/internal/repo"
)

const (
	PermTasksRead           = "tasks.read"
	PermTasksUpdate         = "tasks.update"
	PermComplianceRead      = "compliance.read"
	PermCertificationVerify = "certifications.verify"
	PermCertificationImport = "certifications.import"
	PermOverridesCollect    = "overrides.collect"
	PermEventsRead          = "events.read"
	PermRolesManage         = "roles.manage"
)

const (
	RoleAdmin     = "admin"
	RoleHRManager = "hr_manager"
	RoleViewer    = "viewer"
)

var readPerms = []string{PermTasksRead, PermComplianceRead, PermEventsRead}

// RolePermissions is the fixed role catalog.
var RolePermissions = map[string][]string{
	RoleViewer: readPerms,
	RoleHRManager: append(append([]string{}, readPerms...),
		PermTasksUpdate, PermCertificationVerify, PermCertificationImport, PermOverridesCollect),
	RoleAdmin: append(append([]string{}, readPerms...),
		PermTasksUpdate, PermCertificationVerify, PermCertificationImport, PermOverridesCollect, PermRolesManage),
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// KnownRole reports whether role is in the catalog.
func KnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// Service resolves actor permissions from stored role assignments.
type Service struct {
	Repo repo.Repo
}

func (s Service) Permissions(ctx context.Context, tx *sql.Tx, tenantID, actorID string) ([]string, error) {
	roles, err := s.Repo.ActorRoles(ctx, tx, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, role := range roles {
		for _, p := range RolePermissions[role] {
			set[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// Require returns ForbiddenError unless the actor holds perm in the tenant.
func (s Service) Require(ctx context.Context, tx *sql.Tx, tenantID, actorID, perm string) error {
	perms, err := s.Permissions(ctx, tx, tenantID, actorID)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p == perm {
			return nil
		}
	}
	return ForbiddenError{Permission: perm}
}
