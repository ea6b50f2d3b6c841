package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"perfhrm/internal/domain/auth"
	"perfhrm/internal/platform/config"
)

func newTokenCommand() *cobra.Command {
	var (
		userID, tenantID, role string
		ttl                    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for development and operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if _, ok := auth.RolePermissions[role]; !ok {
				return fmt.Errorf("unknown role %q (known: %v)", role, knownRoles())
			}
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{
				UserID:   userID,
				TenantID: tenantID,
				RoleID:   role,
				RoleName: role,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id carried in the token")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id carried in the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleEmployee, "Role name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default TOKEN_TTL)")
	return cmd
}

func knownRoles() []string {
	roles := make([]string, 0, len(auth.RolePermissions))
	for name := range auth.RolePermissions {
		roles = append(roles, name)
	}
	slices.Sort(roles)
	return roles
}
