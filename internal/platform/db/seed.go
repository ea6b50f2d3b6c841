package db

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"

	"perfhrm/internal/domain/auth"
)

// Seed installs the permission catalogue and role grants. It is idempotent and
// revokes grants that are no longer part of auth.RolePermissions.
func Seed(ctx context.Context, q Querier) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("seed rollback failed", "err", rbErr)
		}
	}()

	if err := ensurePermissions(ctx, tx); err != nil {
		return err
	}
	if err := ensureRoles(ctx, tx); err != nil {
		return err
	}
	if err := ensureRolePermissions(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func ensurePermissions(ctx context.Context, tx pgx.Tx) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := tx.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, tx pgx.Tx) error {
	for _, roleName := range roleNames() {
		_, err := tx.Exec(ctx, "INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", roleName)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRolePermissions(ctx context.Context, tx pgx.Tx) error {
	for _, roleName := range roleNames() {
		perms := auth.RolePermissions[roleName]
		for _, permKey := range perms {
			_, err := tx.Exec(ctx, "INSERT INTO role_permissions (role_name, permission_key) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleName, permKey)
			if err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, "DELETE FROM role_permissions WHERE role_name = $1 AND NOT (permission_key = ANY($2::text[]))", roleName, perms)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			slog.Info("revoked stale grants", "role", roleName, "count", tag.RowsAffected())
		}
	}
	return nil
}

func roleNames() []string {
	names := make([]string, 0, len(auth.RolePermissions))
	for name := range auth.RolePermissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
