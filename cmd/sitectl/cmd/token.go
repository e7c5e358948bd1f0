package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/http/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for a user and role",
	Long: `Sign an HS256 bearer token the API accepts. The secret must match the
server's AUTH_JWT_SECRET and is read from --secret or AUTH_JWT_SECRET.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("sub")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("AUTH_JWT_SECRET")
		}

		token, err := signToken(secret, subject, name, domain.Role(role), ttl, time.Now())
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func signToken(secret, subject, name string, role domain.Role, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("a signing secret is required (--secret or AUTH_JWT_SECRET)")
	}
	if subject == "" {
		return "", errors.New("--sub is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("role must be ADMIN, ENGINEER or ACCOUNTANT, got %q", role)
	}

	claims := middleware.Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return middleware.SignToken([]byte(secret), claims)
}

func init() {
	tokenCmd.Flags().String("sub", "", "user id the token authenticates")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().String("role", string(domain.RoleAdmin), "ADMIN, ENGINEER or ACCOUNTANT")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	tokenCmd.Flags().String("secret", "", "HS256 signing secret")
	rootCmd.AddCommand(tokenCmd)
}
