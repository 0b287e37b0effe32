package tenant

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// PlatformSlug is the slug of the tenant holding SUPERADMIN memberships.
const PlatformSlug = "platform"

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("tenant")
	ErrMemberNotFound = core.NewNotFoundError("member")
	ErrSlugExists     = errors.New("a school with this slug already exists")
	ErrMembershipSelf = core.NewForbiddenError("you cannot change your own membership")

	errNoPermsToSetRole = "not enough rights to set this role"
)

type (
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		GetTenantByID(ctx context.Context, id string, exec ...core.DBExecutor) (Tenant, error)
		GetTenantBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Tenant, error)
		QueryTenants(ctx context.Context, filter TenantFilter, ords []core.DBOrdering, page core.Pagination) ([]Tenant, int, error)
		UpdateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		// ActivatePendingTenants activates the PENDING tenants where userID holds an ADMIN membership.
		ActivatePendingTenants(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)

		CreateMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) (Membership, error)
		UpdateMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) (Membership, error)
		// GetMember finds a membership by id; tenantID == "" matches any tenant.
		GetMember(ctx context.Context, tenantID, id string, exec ...core.DBExecutor) (Member, error)
		GetMemberByUser(ctx context.Context, tenantID, userID string, exec ...core.DBExecutor) (Member, error)
		QueryMembers(ctx context.Context, filter MemberFilter, ords []core.DBOrdering, page core.Pagination) ([]Member, int, error)
		// ListUserMembers returns every membership of the user, oldest first.
		ListUserMembers(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Member, error)
	}

	// ProfileLinker attaches a user account to existing school profiles (teacher / students).
	ProfileLinker interface {
		LinkProfiles(ctx context.Context, tenantID string, role Role, userID, teacherID string, studentIDs []string, exec core.DBExecutor) error
	}

	Service struct {
		repo   Repository
		users  *user.Service
		tx     core.Transactor
		queue  core.JobQueue
		linker ProfileLinker
		conf   *core.Config
	}
)

func NewService(
	repo Repository,
	users *user.Service,
	tx core.Transactor,
	queue core.JobQueue,
	linker ProfileLinker,
	conf *core.Config,
) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		tx:     tx,
		queue:  queue,
		linker: linker,
		conf:   conf,
	}
}

func (svc *Service) checkSlugUniqueness(ctx context.Context, slug string, exec ...core.DBExecutor) error {
	_, err := svc.repo.GetTenantBySlug(ctx, slug, exec...)
	switch {
	case err == nil:
		return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	case core.IsNotFound(err):
		return nil
	default:
		return errors.Wrap(err, "finding tenant by slug")
	}
}

func (svc *Service) newMembership(userID, tenantID string, role Role, perms Permissions) Membership {
	now := core.NowFunc()
	if perms == nil {
		perms = Permissions{}
	}
	return Membership{
		ID:          uuid.New().String(),
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		Permissions: perms,
		Status:      MembershipActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RegisterSchool creates a PENDING tenant, its PENDING admin and their membership, then enqueues
// the verification email. The tenant becomes ACTIVE once the admin verifies their email.
func (svc *Service) RegisterSchool(ctx context.Context, rs RegisterSchool) (Tenant, user.User, error) {
	var (
		tnt   Tenant
		usr   user.User
		token string
	)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkSlugUniqueness(ctx, rs.Slug, exec); err != nil {
			return err
		}

		var err error
		now := core.NowFunc()
		tnt, err = svc.repo.CreateTenant(ctx, Tenant{
			ID:        uuid.New().String(),
			Name:      rs.SchoolName,
			Slug:      rs.Slug,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating tenant")
		}

		usr, err = svc.users.Create(ctx, *rs.User(), exec)
		if err != nil {
			return err
		}
		usr, token, err = svc.users.IssueVerification(ctx, usr, exec)
		if err != nil {
			return err
		}

		_, err = svc.repo.CreateMembership(ctx, svc.newMembership(usr.ID, tnt.ID, RoleAdmin, nil), exec)
		return errors.Wrap(err, "creating membership")
	})
	if err != nil {
		return Tenant{}, user.User{}, err
	}

	msg := svc.newEmail(usr, "Verify your email", core.TemplateVerifyEmail, map[string]interface{}{
		"name":    usr.Name,
		"school":  tnt.Name,
		"token":   token,
		"expires": usr.VerificationExpiresAt.Time.Format("2006-01-02 15:04 MST"),
	})
	if err := svc.enqueueEmail(ctx, tnt.ID, msg); err != nil {
		return Tenant{}, user.User{}, err
	}
	return tnt, usr, nil
}

// VerifyEmail activates the user owning the token along with the PENDING schools they administer.
func (svc *Service) VerifyEmail(ctx context.Context, ve user.VerifyEmail) (user.User, error) {
	var usr user.User
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if usr, err = svc.users.Verify(ctx, ve, exec); err != nil {
			return err
		}
		_, err = svc.repo.ActivatePendingTenants(ctx, usr.ID, exec)
		return errors.Wrap(err, "activating pending tenants")
	})
	return usr, err
}

// Invite adds a user to the tenant with the given role. Existing users are reused; a REVOKED
// membership is reactivated. New users receive a verification link to set their password.
func (svc *Service) Invite(ctx context.Context, inviter Member, inv Invite) (Member, error) {
	if inv.Role.Priority() > inviter.Role.Priority() {
		return Member{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}
	if inv.Role == RoleSuperAdmin {
		return Member{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	var (
		mbr   Member
		usr   user.User
		token string
	)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		usr, err = svc.users.GetByEmail(ctx, inv.Email, exec)
		switch {
		case core.IsNotFound(err):
			usr, err = svc.users.Create(ctx, user.NewUser{Name: inv.Name, Email: inv.Email}, exec)
			if err != nil {
				return err
			}
			if usr, token, err = svc.users.IssueVerification(ctx, usr, exec); err != nil {
				return err
			}
		case err != nil:
			return errors.Wrap(err, "finding user by email")
		}

		existing, err := svc.repo.GetMemberByUser(ctx, inviter.TenantID, usr.ID, exec)
		switch {
		case err == nil:
			if existing.IsActive() {
				return core.NewInvariantError(
					core.ReasonDuplicateAction,
					fmt.Sprintf("%s is already a member of this school", usr.Email),
					map[string]interface{}{"member_id": existing.ID},
				)
			}
			m := existing.Membership
			m.Role = inv.Role
			m.Permissions = inv.Permissions
			if m.Permissions == nil {
				m.Permissions = Permissions{}
			}
			m.Status = MembershipActive
			m.UpdatedAt = core.NowFunc()
			if _, err = svc.repo.UpdateMembership(ctx, m, exec); err != nil {
				return errors.Wrap(err, "reactivating membership")
			}
		case core.IsNotFound(err):
			m := svc.newMembership(usr.ID, inviter.TenantID, inv.Role, inv.Permissions)
			if _, err = svc.repo.CreateMembership(ctx, m, exec); err != nil {
				return errors.Wrap(err, "creating membership")
			}
		default:
			return errors.Wrap(err, "finding membership")
		}

		if inv.TeacherID != "" || len(inv.StudentIDs) > 0 {
			if err = svc.linker.LinkProfiles(ctx, inviter.TenantID, inv.Role, usr.ID, inv.TeacherID, inv.StudentIDs, exec); err != nil {
				return err
			}
		}

		mbr, err = svc.repo.GetMemberByUser(ctx, inviter.TenantID, usr.ID, exec)
		return errors.Wrap(err, "reloading member")
	})
	if err != nil {
		return Member{}, err
	}

	msg := svc.newEmail(usr, "You have been invited to "+mbr.TenantName, core.TemplateInvite, map[string]interface{}{
		"name":    usr.Name,
		"inviter": inviter.Name,
		"school":  mbr.TenantName,
		"role":    string(mbr.Role),
		"token":   token,
	})
	if err := svc.enqueueEmail(ctx, mbr.TenantID, msg); err != nil {
		return Member{}, err
	}
	return mbr, nil
}

func (svc *Service) GetMember(ctx context.Context, tenantID, id string) (Member, error) {
	return svc.repo.GetMember(ctx, tenantID, id)
}

func (svc *Service) GetMemberByUser(ctx context.Context, tenantID, userID string) (Member, error) {
	return svc.repo.GetMemberByUser(ctx, tenantID, userID)
}

func (svc *Service) ListUserMembers(ctx context.Context, userID string) ([]Member, error) {
	return svc.repo.ListUserMembers(ctx, userID)
}

func (svc *Service) QueryMembers(
	ctx context.Context,
	filter MemberFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Member], error) {
	if err := MembershipLifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Member]{}, err
	}
	ords = MemberOrdering.Resolve(ords, core.DBOrdering{Field: "created_at"})
	members, total, err := svc.repo.QueryMembers(ctx, filter, ords, page)
	if err != nil {
		return core.Page[Member]{}, errors.Wrap(err, "querying members")
	}
	return core.NewPage(members, page, total), nil
}

// ActiveMembers lists the ACTIVE members of a tenant among userIDs and/or holding one of roles.
// Requested ids that are not active members are reported in a NotFoundError.
func (svc *Service) ActiveMembers(ctx context.Context, tenantID string, userIDs []string, roles []Role) ([]Member, error) {
	out := make([]Member, 0, len(userIDs))
	seen := make(map[string]bool)
	if len(userIDs) > 0 {
		members, _, err := svc.repo.QueryMembers(ctx, MemberFilter{TenantID: tenantID, UserIDs: userIDs, Status: MembershipActive}, nil, core.Pagination{})
		if err != nil {
			return nil, errors.Wrap(err, "querying members by user")
		}
		for _, m := range members {
			seen[m.UserID] = true
			out = append(out, m)
		}
		var missing []string
		for _, id := range userIDs {
			if !seen[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil, core.NewNotFoundError("member", missing...)
		}
	}
	if len(roles) > 0 {
		members, _, err := svc.repo.QueryMembers(ctx, MemberFilter{TenantID: tenantID, Roles: roles, Status: MembershipActive}, nil, core.Pagination{})
		if err != nil {
			return nil, errors.Wrap(err, "querying members by role")
		}
		for _, m := range members {
			if !seen[m.UserID] {
				seen[m.UserID] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// UpdateMember changes a member's role, permissions or status.
// Nobody can grant a role above their own, nor change their own membership.
func (svc *Service) UpdateMember(ctx context.Context, actor Member, mbr Member, um UpdateMember) (Member, error) {
	if actor.UserID == mbr.UserID {
		return Member{}, ErrMembershipSelf
	}
	if mbr.Role.Priority() > actor.Role.Priority() {
		return Member{}, core.ErrForbidden
	}
	m := mbr.Membership
	if um.Role != "" && um.Role != m.Role {
		if um.Role.Priority() > actor.Role.Priority() || um.Role == RoleSuperAdmin {
			return Member{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
		}
		m.Role = um.Role
	}
	if um.Permissions != nil {
		m.Permissions = um.Permissions
	}
	if um.Status != "" {
		if err := MembershipLifecycle.Transition(m.Status, um.Status); err != nil {
			return Member{}, err
		}
		m.Status = um.Status
	}
	m.UpdatedAt = core.NowFunc()
	if _, err := svc.repo.UpdateMembership(ctx, m); err != nil {
		return Member{}, errors.Wrap(err, "updating membership")
	}
	return svc.repo.GetMember(ctx, m.TenantID, m.ID)
}

func (svc *Service) RevokeMember(ctx context.Context, actor Member, mbr Member) (Member, error) {
	return svc.UpdateMember(ctx, actor, mbr, UpdateMember{Status: MembershipRevoked})
}

func (svc *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenantByID(ctx, id)
}

// FindTenant resolves a tenant by id or slug.
func (svc *Service) FindTenant(ctx context.Context, idOrSlug string) (Tenant, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return svc.repo.GetTenantByID(ctx, idOrSlug)
	}
	return svc.repo.GetTenantBySlug(ctx, core.CleanString(idOrSlug, true /* lower */))
}

func (svc *Service) QueryTenants(
	ctx context.Context,
	filter TenantFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Tenant], error) {
	if err := Lifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Tenant]{}, err
	}
	ords = TenantOrdering.Resolve(ords, core.DBOrdering{Field: "created_at"})
	tenants, total, err := svc.repo.QueryTenants(ctx, filter, ords, page)
	if err != nil {
		return core.Page[Tenant]{}, errors.Wrap(err, "querying tenants")
	}
	return core.NewPage(tenants, page, total), nil
}

func (svc *Service) UpdateTenantStatus(ctx context.Context, tnt Tenant, status Status) (Tenant, error) {
	if err := Lifecycle.Transition(tnt.Status, status); err != nil {
		return Tenant{}, err
	}
	tnt.Status = status
	tnt.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateTenant(ctx, tnt)
}

// CreateSuperAdmin creates (or reuses) an ACTIVE user holding a SUPERADMIN membership on the
// platform tenant, creating the latter if needed.
func (svc *Service) CreateSuperAdmin(ctx context.Context, nu user.NewUser) (Member, error) {
	var mbr Member
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		platform, err := svc.repo.GetTenantBySlug(ctx, PlatformSlug, exec)
		if core.IsNotFound(err) {
			now := core.NowFunc()
			platform, err = svc.repo.CreateTenant(ctx, Tenant{
				ID:        uuid.New().String(),
				Name:      svc.conf.AppName,
				Slug:      PlatformSlug,
				Status:    StatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
		}
		if err != nil {
			return errors.Wrap(err, "getting platform tenant")
		}

		nu.Status = user.StatusActive
		usr, err := svc.users.Create(ctx, nu, exec)
		if err != nil {
			return err
		}
		if _, err = svc.repo.CreateMembership(ctx, svc.newMembership(usr.ID, platform.ID, RoleSuperAdmin, nil), exec); err != nil {
			return errors.Wrap(err, "creating membership")
		}
		mbr, err = svc.repo.GetMemberByUser(ctx, platform.ID, usr.ID, exec)
		return errors.Wrap(err, "reloading member")
	})
	return mbr, err
}

func (svc *Service) newEmail(usr user.User, subject, tmpl string, data map[string]interface{}) core.EmailMessage {
	return core.EmailMessage{
		To:              []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:         subject,
		TemplateName:    tmpl,
		TemplateData:    data,
		FrontendBaseURL: svc.conf.FrontendBaseURL,
		AppName:         svc.conf.AppName,
	}
}

func (svc *Service) enqueueEmail(ctx context.Context, tenantID string, msg core.EmailMessage) error {
	job, err := core.NewEmailJob(tenantID, msg)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.queue.Enqueue(ctx, job), "enqueuing email")
}
