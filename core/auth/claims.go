package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
)

// Claims represents the authorization claims transmitted via a JWT.
// They describe the one membership that governs the session.
type Claims struct {
	UserID       string             `json:"uid"`
	Name         string             `json:"name,omitempty"`
	Email        string             `json:"email"`
	Role         tenant.Role        `json:"role"`
	TenantID     string             `json:"tid"`
	TenantName   string             `json:"tenant_name"`
	Permissions  tenant.Permissions `json:"permissions,omitempty"`
	Status       user.Status        `json:"status"`
	OrigIssuedAt int64              `json:"oriat,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) IsSuperAdmin() bool { return c.Role == tenant.RoleSuperAdmin }

// NewClaims builds the claims of a session governed by mbr.
// origIat is kept across refreshes, defaulting to now.
func NewClaims(usr user.User, mbr tenant.Member, issuer string, ttl time.Duration, now time.Time, origIat ...int64) Claims {
	oriat := now.Unix()
	if len(origIat) > 0 && origIat[0] > 0 {
		oriat = origIat[0]
	}
	return Claims{
		UserID:       usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         mbr.Role,
		TenantID:     mbr.TenantID,
		TenantName:   mbr.TenantName,
		Permissions:  mbr.Permissions,
		Status:       usr.Status,
		OrigIssuedAt: oriat,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   usr.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
