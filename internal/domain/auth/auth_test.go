package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", TenantID: "t1", RoleID: RoleHR, RoleName: RoleHR}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if parsed.UserID != claims.UserID || parsed.TenantID != claims.TenantID || parsed.RoleID != claims.RoleID || parsed.RoleName != claims.RoleName {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	token, err := GenerateToken("secret-a", Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret-b", token); err == nil {
		t.Fatal("expected signature mismatch")
	}

	expired, err := GenerateToken("secret-a", Claims{UserID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret-a", expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	anonymous, err := GenerateToken("secret-a", Claims{}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret-a", anonymous); err == nil {
		t.Fatal("expected token without user to fail")
	}
}

func TestRolePermissionsAreKnown(t *testing.T) {
	known := map[string]bool{}
	for _, perm := range DefaultPermissions {
		known[perm] = true
	}
	for role, perms := range RolePermissions {
		for _, perm := range perms {
			if !known[perm] {
				t.Fatalf("role %s grants unknown permission %s", role, perm)
			}
		}
	}
}

func TestStaticPermissions(t *testing.T) {
	store := StaticPermissions{}
	ctx := context.Background()

	ok, err := store.HasPermission(ctx, RoleEvaluator, PermEvaluationApprove)
	if err != nil || !ok {
		t.Fatalf("expected evaluator to approve, got %v %v", ok, err)
	}
	ok, _ = store.HasPermission(ctx, RoleEmployee, PermEvaluationApprove)
	if ok {
		t.Fatal("expected employee not to approve")
	}
	ok, _ = store.HasPermission(ctx, "ghost", PermEvaluationRead)
	if ok {
		t.Fatal("expected unknown role to have no permissions")
	}
}

type countRow struct {
	count int
	err   error
}

func (r countRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int) = r.count
	return nil
}

type grantQuerier struct {
	grants map[string]bool
	err    error
}

func (q grantQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if q.err != nil {
		return countRow{err: q.err}
	}
	if q.grants[args[0].(string)+"/"+args[1].(string)] {
		return countRow{count: 1}
	}
	return countRow{}
}

func TestStoreHasPermission(t *testing.T) {
	store := NewStore(grantQuerier{grants: map[string]bool{RoleHR + "/" + PermAuditRead: true}})
	ctx := context.Background()

	ok, err := store.HasPermission(ctx, RoleHR, PermAuditRead)
	if err != nil || !ok {
		t.Fatalf("expected hr to read audit, got %v %v", ok, err)
	}
	ok, err = store.HasPermission(ctx, RoleEmployee, PermAuditRead)
	if err != nil || ok {
		t.Fatalf("expected employee without audit grant, got %v %v", ok, err)
	}

	boom := errors.New("db down")
	if _, err := NewStore(grantQuerier{err: boom}).HasPermission(ctx, RoleHR, PermAuditRead); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}
