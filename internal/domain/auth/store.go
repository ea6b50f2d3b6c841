package auth

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
)

// StaticPermissions answers permission checks from RolePermissions.
// Role ids are role names.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	return slices.Contains(RolePermissions[roleID], permission), nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads the role grants seeded into Postgres.
type Store struct {
	DB rowQuerier
}

func NewStore(q rowQuerier) *Store {
	return &Store{DB: q}
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions
    WHERE role_name = $1 AND permission_key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
