package auth

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrInvalidCredentials = core.NewAuthError("invalid credentials")
	ErrNoMembership       = core.NewAuthError("no active membership")
	ErrAccountInactive    = core.NewAuthError("account is not active")
	ErrTenantInactive     = core.NewAuthError("school is not active")
	ErrInvalidToken       = core.NewAuthError("invalid or expired jwt")
	ErrRefreshExpired     = core.NewAuthError("refresh has expired")
)

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Tenant   string `json:"tenant"` // id or slug
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Tenant = core.CleanString(c.Tenant)
	return validate.Struct(c)
}

type SwitchTenant struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

func (st *SwitchTenant) Validate(validate *validator.Validate) error {
	st.TenantID = core.CleanString(st.TenantID)
	return validate.Struct(st)
}

// Session is a signed token along with the claims it carries.
type Session struct {
	Token  string `json:"token"`
	Claims Claims `json:"claims"`
}

type Service struct {
	users      *user.Service
	tenants    *tenant.Service
	secret     []byte
	issuer     string
	ttl        time.Duration
	refreshTTL time.Duration
}

func NewService(users *user.Service, tenants *tenant.Service, conf *core.Config) *Service {
	return &Service{
		users:      users,
		tenants:    tenants,
		secret:     []byte(conf.SecretKey),
		issuer:     conf.AppName,
		ttl:        conf.Server.JWTExpirationDelta,
		refreshTTL: conf.Server.JWTRefreshExpirationDelta,
	}
}

// SignIn checks the credentials and resolves the session's membership: the one matching
// creds.Tenant (id or slug) when given, otherwise the user's oldest active membership.
// The user's last login is the only write.
func (svc *Service) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	usr, err := svc.users.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		if core.IsNotFound(err) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.Wrap(err, "authenticating")
	}
	if !usr.IsActive() {
		return Session{}, ErrAccountInactive
	}

	mbr, err := svc.resolveMember(ctx, usr.ID, creds.Tenant)
	if err != nil {
		return Session{}, err
	}

	if usr, err = svc.users.SetLastLogin(ctx, usr); err != nil {
		return Session{}, err
	}
	return svc.newSession(NewClaims(usr, mbr, svc.issuer, svc.ttl, core.NowFunc()))
}

func (svc *Service) resolveMember(ctx context.Context, userID, tenantRef string) (tenant.Member, error) {
	members, err := svc.tenants.ListUserMembers(ctx, userID)
	if err != nil {
		return tenant.Member{}, errors.Wrap(err, "listing memberships")
	}
	var inactiveTenant bool
	for _, m := range members {
		if tenantRef != "" && m.TenantID != tenantRef && m.TenantSlug != tenantRef {
			continue
		}
		if !m.IsActive() {
			continue
		}
		if m.Role != tenant.RoleSuperAdmin && m.TenantStatus != tenant.StatusActive {
			inactiveTenant = true
			continue
		}
		return m, nil
	}
	if inactiveTenant {
		return tenant.Member{}, ErrTenantInactive
	}
	return tenant.Member{}, ErrNoMembership
}

// Resolve verifies the token's signature and expiry. It does not read the store.
func (svc *Service) Resolve(token string) (Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return svc.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Role == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Refresh re-reads the user and the membership behind claims and issues a new session, as long as
// the original sign-in is recent enough.
func (svc *Service) Refresh(ctx context.Context, claims Claims) (Session, error) {
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(svc.refreshTTL)
	if core.NowFunc().After(expTime) {
		return Session{}, ErrRefreshExpired
	}
	return svc.reissue(ctx, claims.UserID, claims.TenantID, claims.OrigIssuedAt)
}

// SwitchTenant moves the session to another active membership of the same user.
func (svc *Service) SwitchTenant(ctx context.Context, claims Claims, tenantRef string) (Session, error) {
	return svc.reissue(ctx, claims.UserID, tenantRef, 0)
}

func (svc *Service) reissue(ctx context.Context, userID, tenantRef string, oriat int64) (Session, error) {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return Session{}, core.ErrUnauthenticated
		}
		return Session{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive() {
		return Session{}, ErrAccountInactive
	}
	mbr, err := svc.resolveMember(ctx, usr.ID, tenantRef)
	if err != nil {
		return Session{}, err
	}
	return svc.newSession(NewClaims(usr, mbr, svc.issuer, svc.ttl, core.NowFunc(), oriat))
}

// Issue signs claims into a HS256 JWT.
func (svc *Service) Issue(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(svc.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (svc *Service) newSession(claims Claims) (Session, error) {
	token, err := svc.Issue(claims)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Claims: claims}, nil
}
