package staff

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/audit"
	"osutourney.org/internal/notify"
	"osutourney.org/internal/obs"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/session"
)

const maxRoleNameLength = 45

const addedToStaffTemplate = "You've been added as a staff member for {tournament}"

var (
	canMutateStaff = []perm.Permission{perm.Host, perm.Debug, perm.MutateStaffMembers}
	canDeleteStaff = []perm.Permission{perm.Host, perm.Debug, perm.DeleteStaffMembers}
	canViewStaff   = []perm.Permission{perm.Host, perm.Debug, perm.ViewStaffMembers, perm.MutateStaffMembers}
)

// Notifier is the part of the notification engine used here.
type Notifier interface {
	CreateTx(ctx context.Context, tx *sql.Tx, message string, recipients notify.Selector) (int64, error)
}

// Service manages a tournament's staff roles and members on behalf of a
// signed-in staff member.
type Service struct {
	auth     *Authorizer
	store    Store
	notifier Notifier
}

func NewService(auth *Authorizer, store Store, notifier Notifier) *Service {
	return &Service{auth: auth, store: store, notifier: notifier}
}

// actor resolves the tournament and the caller's membership, then checks
// required.
func (s *Service) actor(ctx context.Context, claims *session.Claims, tournament string, required []perm.Permission) (*Tournament, *StaffMember, error) {
	t, err := s.auth.GetTournament(ctx, tournament, TournamentFields{}, true)
	if err != nil {
		return nil, nil, err
	}
	member, err := s.auth.GetStaffMember(ctx, claims, t.ID, true)
	if err != nil {
		return nil, nil, err
	}
	if err := RequirePermissions(member, required...); err != nil {
		return nil, nil, err
	}
	return t, member, nil
}

func (s *Service) ListRoles(ctx context.Context, claims *session.Claims, tournament string) ([]Role, error) {
	t, _, err := s.actor(ctx, claims, tournament, canViewStaff)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.Roles(ctx, t.ID)
	if err != nil {
		return nil, apperr.Unexpected(ctx, "getting the staff roles", err)
	}
	return roles, nil
}

func (s *Service) CreateRole(ctx context.Context, claims *session.Claims, tournament, name string, color Color) (Role, error) {
	name, err := validRoleName(name)
	if err != nil {
		return Role{}, err
	}
	if !color.Valid() {
		return Role{}, apperr.BadRequest("Invalid role color %q", color)
	}
	t, _, err := s.actor(ctx, claims, tournament, canMutateStaff)
	if err != nil {
		return Role{}, err
	}

	role, err := s.store.CreateRole(ctx, t.ID, name, color)
	if errors.Is(err, ErrConflict) {
		return Role{}, apperr.BadRequest("A role with the name %q already exists", name)
	}
	if err != nil {
		return Role{}, apperr.Unexpected(ctx, "creating the staff role", err)
	}
	_ = audit.LogEvent(ctx, audit.RoleCreated, obs.TournamentID(t.ID), zap.Int64("role_id", role.ID))
	return role, nil
}

func (s *Service) UpdateRole(ctx context.Context, claims *session.Claims, tournament string, roleID int64, upd RoleUpdate) (Role, error) {
	if upd.Name != nil {
		name, err := validRoleName(*upd.Name)
		if err != nil {
			return Role{}, err
		}
		upd.Name = &name
	}
	if upd.Color != nil && !upd.Color.Valid() {
		return Role{}, apperr.BadRequest("Invalid role color %q", *upd.Color)
	}
	t, member, err := s.actor(ctx, claims, tournament, canMutateStaff)
	if err != nil {
		return Role{}, err
	}
	role, err := s.roleOf(ctx, t.ID, roleID)
	if err != nil {
		return Role{}, err
	}

	var added, removed []perm.Permission
	if upd.Permissions != nil {
		if role.IsHost() {
			return Role{}, apperr.Forbidden("The host role's permissions can't be changed")
		}
		next := perm.NewSet(*upd.Permissions...).Sorted()
		upd.Permissions = &next
		added, removed = perm.Diff(role.Permissions, next)
		if err := perm.CanGrant(member.Permissions, append(append([]perm.Permission{}, added...), removed...)); err != nil {
			obs.AuthzDenials.WithLabelValues(string(apperr.KindForbidden)).Inc()
			return Role{}, apperr.Forbidden("%s", grantMessage(err))
		}
	}

	updated, err := s.store.UpdateRole(ctx, role.ID, upd)
	if errors.Is(err, ErrConflict) {
		name := role.Name
		if upd.Name != nil {
			name = *upd.Name
		}
		return Role{}, apperr.BadRequest("A role with the name %q already exists", name)
	}
	if errors.Is(err, ErrNotFound) {
		return Role{}, apperr.NotFound("Staff role with ID %d doesn't exist", roleID)
	}
	if err != nil {
		return Role{}, apperr.Unexpected(ctx, "updating the staff role", err)
	}
	_ = audit.LogEvent(ctx, audit.RoleUpdated, obs.TournamentID(t.ID), zap.Int64("role_id", role.ID),
		zap.Strings("granted", perm.Strings(added)), zap.Strings("revoked", perm.Strings(removed)))
	return updated, nil
}

func (s *Service) DeleteRole(ctx context.Context, claims *session.Claims, tournament string, roleID int64) error {
	t, _, err := s.actor(ctx, claims, tournament, canDeleteStaff)
	if err != nil {
		return err
	}
	role, err := s.roleOf(ctx, t.ID, roleID)
	if err != nil {
		return err
	}
	if role.IsHost() {
		return apperr.Forbidden("The host role can't be deleted")
	}
	if err := s.store.DeleteRole(ctx, role.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return apperr.Unexpected(ctx, "deleting the staff role", err)
	}
	_ = audit.LogEvent(ctx, audit.RoleDeleted, obs.TournamentID(t.ID), zap.Int64("role_id", role.ID))
	return nil
}

// SwapRoleOrder exchanges the display order of two roles atomically.
func (s *Service) SwapRoleOrder(ctx context.Context, claims *session.Claims, tournament string, roleA, roleB int64) error {
	if roleA == roleB {
		return apperr.BadRequest("Can't swap a role with itself")
	}
	t, _, err := s.actor(ctx, claims, tournament, canMutateStaff)
	if err != nil {
		return err
	}
	for _, id := range []int64{roleA, roleB} {
		if _, err := s.roleOf(ctx, t.ID, id); err != nil {
			return err
		}
	}
	if err := s.store.SwapRoleOrder(ctx, t.ID, roleA, roleB); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("One of the staff roles doesn't exist")
		}
		return apperr.Unexpected(ctx, "swapping the staff role order", err)
	}
	_ = audit.LogEvent(ctx, audit.RolesReordered, obs.TournamentID(t.ID),
		zap.Int64("role_a", roleA), zap.Int64("role_b", roleB))
	return nil
}

// AddStaffMember adds userID to the staff with roleIDs and notifies them in
// the same transaction.
func (s *Service) AddStaffMember(ctx context.Context, claims *session.Claims, tournament string, userID int64, roleIDs []int64) (Member, error) {
	if userID <= 0 {
		return Member{}, apperr.BadRequest("Invalid user ID %d", userID)
	}
	t, actor, err := s.actor(ctx, claims, tournament, canMutateStaff)
	if err != nil {
		return Member{}, err
	}
	roles, err := s.rolesOf(ctx, t.ID, roleIDs)
	if err != nil {
		return Member{}, err
	}
	if containsHost(roles) && !actor.Permissions.Has(perm.Host) {
		return Member{}, apperr.Forbidden("Only hosts can assign the host role")
	}
	if err := perm.CanGrant(actor.Permissions, changedPermissions(nil, roles)); err != nil {
		obs.AuthzDenials.WithLabelValues(string(apperr.KindForbidden)).Inc()
		return Member{}, apperr.Forbidden("%s", grantMessage(err))
	}

	message := notify.Render(addedToStaffTemplate, map[string]string{"tournament": t.Name})
	member, err := s.store.AddMember(ctx, t.ID, userID, roleIDs, func(tx *sql.Tx) error {
		_, err := s.notifier.CreateTx(ctx, tx, message, notify.Users(userID))
		return err
	})
	switch {
	case errors.Is(err, ErrConflict):
		return Member{}, apperr.BadRequest("User with ID %d is already a staff member", userID)
	case errors.Is(err, ErrNotFound):
		return Member{}, apperr.NotFound("User with ID %d doesn't exist", userID)
	case err != nil:
		return Member{}, apperr.Unexpected(ctx, "adding the staff member", err)
	}
	_ = audit.LogEvent(ctx, audit.MemberAdded, obs.TournamentID(t.ID),
		obs.StaffMemberID(member.ID), zap.Int64s("role_ids", roleIDs))
	return member, nil
}

// SetMemberRoles replaces the roles of a staff member. Moving the host role
// in either direction requires host. Every other token on a role that is added
// or removed must be grantable by the actor.
func (s *Service) SetMemberRoles(ctx context.Context, claims *session.Claims, tournament string, memberID int64, roleIDs []int64) error {
	t, actor, err := s.actor(ctx, claims, tournament, canMutateStaff)
	if err != nil {
		return err
	}
	member, err := s.memberOf(ctx, t.ID, memberID)
	if err != nil {
		return err
	}
	roles, err := s.rolesOf(ctx, t.ID, roleIDs)
	if err != nil {
		return err
	}
	if member.HasHostRole() != containsHost(roles) && !actor.Permissions.Has(perm.Host) {
		return apperr.Forbidden("Only hosts can assign or remove the host role")
	}
	if err := perm.CanGrant(actor.Permissions, changedPermissions(member.Roles, roles)); err != nil {
		obs.AuthzDenials.WithLabelValues(string(apperr.KindForbidden)).Inc()
		return apperr.Forbidden("%s", grantMessage(err))
	}

	if err := s.store.SetMemberRoles(ctx, member.ID, roleIDs); err != nil {
		if errors.Is(err, ErrLastHost) {
			return apperr.Forbidden("The tournament must have at least one host")
		}
		return apperr.Unexpected(ctx, "setting the staff member's roles", err)
	}
	_ = audit.LogEvent(ctx, audit.MemberRolesSet, obs.TournamentID(t.ID),
		obs.StaffMemberID(member.ID), zap.Int64s("role_ids", roleIDs))
	return nil
}

// RemoveStaffMember soft deletes a staff member.
func (s *Service) RemoveStaffMember(ctx context.Context, claims *session.Claims, tournament string, memberID int64) error {
	t, actor, err := s.actor(ctx, claims, tournament, canDeleteStaff)
	if err != nil {
		return err
	}
	member, err := s.memberOf(ctx, t.ID, memberID)
	if err != nil {
		return err
	}
	if member.HasHostRole() && !actor.Permissions.Has(perm.Host) {
		return apperr.Forbidden("Only hosts can remove another host")
	}
	if err := s.store.RemoveMember(ctx, member.ID); err != nil {
		if errors.Is(err, ErrLastHost) {
			return apperr.Forbidden("The tournament must have at least one host")
		}
		return apperr.Unexpected(ctx, "removing the staff member", err)
	}
	_ = audit.LogEvent(ctx, audit.MemberRemoved, obs.TournamentID(t.ID), obs.StaffMemberID(member.ID))
	return nil
}

func (s *Service) roleOf(ctx context.Context, tournamentID, roleID int64) (Role, error) {
	role, err := s.store.Role(ctx, roleID)
	if errors.Is(err, ErrNotFound) || (err == nil && role.TournamentID != tournamentID) {
		return Role{}, apperr.NotFound("Staff role with ID %d doesn't exist", roleID)
	}
	if err != nil {
		return Role{}, apperr.Unexpected(ctx, "getting the staff role", err)
	}
	return role, nil
}

func (s *Service) rolesOf(ctx context.Context, tournamentID int64, roleIDs []int64) ([]Role, error) {
	all, err := s.store.Roles(ctx, tournamentID)
	if err != nil {
		return nil, apperr.Unexpected(ctx, "getting the staff roles", err)
	}
	byID := make(map[int64]Role, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}
	roles := make([]Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		r, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("Staff role with ID %d doesn't exist", id)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func (s *Service) memberOf(ctx context.Context, tournamentID, memberID int64) (Member, error) {
	member, err := s.store.Member(ctx, memberID)
	if errors.Is(err, ErrNotFound) || (err == nil && member.TournamentID != tournamentID) {
		return Member{}, apperr.NotFound("Staff member with ID %d doesn't exist", memberID)
	}
	if err != nil {
		return Member{}, apperr.Unexpected(ctx, "getting the staff member", err)
	}
	return member, nil
}

func validRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.BadRequest("Role name is required")
	}
	if utf8.RuneCountInString(name) > maxRoleNameLength {
		return "", apperr.BadRequest("Role name can't be longer than %d characters", maxRoleNameLength)
	}
	return name, nil
}

func containsHost(roles []Role) bool {
	for _, r := range roles {
		if r.IsHost() {
			return true
		}
	}
	return false
}

// changedPermissions returns the tokens carried by the roles that differ
// between before and after. Host is left out since moving the host role is
// checked separately.
func changedPermissions(before, after []Role) []perm.Permission {
	prev := make(map[int64]bool, len(before))
	for _, r := range before {
		prev[r.ID] = true
	}
	next := make(map[int64]bool, len(after))
	for _, r := range after {
		next[r.ID] = true
	}
	var lists [][]perm.Permission
	for _, r := range after {
		if !prev[r.ID] {
			lists = append(lists, r.Permissions)
		}
	}
	for _, r := range before {
		if !next[r.ID] {
			lists = append(lists, r.Permissions)
		}
	}
	changed := perm.Union(lists...)
	delete(changed, perm.Host)
	return changed.Sorted()
}

func grantMessage(err error) string {
	switch {
	case errors.Is(err, perm.ErrGrantHost):
		return "The host permission can't be granted to a role"
	case errors.Is(err, perm.ErrGrantDebug):
		return "Only staff members with the debug permission can grant it"
	default:
		msg := err.Error()
		return strings.ToUpper(msg[:1]) + msg[1:]
	}
}
