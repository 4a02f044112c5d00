package auth

import (
	"context"
	"os"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"
)

const (
	RoleMember    = "MEMBER"
	RoleLibrarian = "LIBRARIAN"
	RoleAdmin     = "ADMIN"
)

var JWTKey = []byte(getEnv("JWT_KEY", "secret"))

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type Profile struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	Profile Profile `json:"profile"`
}

type ctxKey int

const authKey ctxKey = iota

func SetAuthContext(ctx context.Context, username, role string) context.Context {
	return context.WithValue(ctx, authKey, Profile{Username: username, Role: role})
}

func FromContext(ctx context.Context) (Profile, error) {
	p, ok := ctx.Value(authKey).(Profile)
	if !ok || p.Username == "" {
		return Profile{}, errors.New("no auth profile in context")
	}
	return p, nil
}

// IsStaff reports whether the profile may perform librarian operations.
func (p Profile) IsStaff() bool {
	return p.Role == RoleLibrarian || p.Role == RoleAdmin
}
