package staff

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/config"
	"osutourney.org/internal/obs"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/session"
)

// Verifier decodes session tokens.
type Verifier interface {
	Verify(token string) (*session.Claims, bool)
}

// Overrides is the non-production side channel consulted before the role
// based computation.
type Overrides interface {
	Owner(ctx context.Context, userID int64) (bool, bool, error)
	StaffPermissions(ctx context.Context, staffMemberID int64) ([]perm.Permission, bool, error)
}

// Authorizer answers "who is this and what may they do in this tournament".
type Authorizer struct {
	store     Store
	sessions  Verifier
	overrides Overrides
	ownerID   int64
}

// NewAuthorizer wires an Authorizer. In production the overrides are dropped
// here and can't be reintroduced for the life of the value.
func NewAuthorizer(store Store, sessions Verifier, overrides Overrides, env config.Env, ownerID int64) *Authorizer {
	if env.IsProduction() {
		overrides = nil
	}
	return &Authorizer{store: store, sessions: sessions, overrides: overrides, ownerID: ownerID}
}

// GetSession verifies token. Missing and invalid tokens are the same thing.
func (a *Authorizer) GetSession(token string, mustBeSignedIn bool) (*session.Claims, error) {
	claims, ok := a.sessions.Verify(token)
	if !ok {
		if mustBeSignedIn {
			return nil, apperr.Unauthorized("You must be logged in to perform this action")
		}
		return nil, nil
	}
	return claims, nil
}

// IsOwner reports whether claims belong to the platform owner. Outside
// production the owner:<userId> override takes precedence.
func (a *Authorizer) IsOwner(ctx context.Context, claims *session.Claims) bool {
	if claims == nil {
		return false
	}
	if a.overrides != nil {
		owner, found, err := a.overrides.Owner(ctx, claims.UserID)
		if err != nil {
			obs.From(ctx).Warn("owner override lookup failed", obs.UserID(claims.UserID), zap.Error(err))
		} else if found {
			return owner
		}
	}
	return a.ownerID != 0 && claims.UserID == a.ownerID
}

// GetStaffMember resolves the caller's staff membership in tournamentID.
// Without a membership it returns nil, nil unless mustBeStaffMember is set.
func (a *Authorizer) GetStaffMember(ctx context.Context, claims *session.Claims, tournamentID int64, mustBeStaffMember bool) (*StaffMember, error) {
	if claims == nil {
		if mustBeStaffMember {
			return nil, apperr.Unauthorized("You must be logged in to perform this action")
		}
		return nil, nil
	}

	member, err := a.store.MemberByUser(ctx, claims.UserID, tournamentID)
	if errors.Is(err, ErrNotFound) {
		if mustBeStaffMember {
			return nil, apperr.Unauthorized("You're not a staff member for this tournament")
		}
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unexpected(ctx, "getting the staff member", err)
	}

	lists := make([][]perm.Permission, 0, len(member.Roles))
	for _, r := range member.Roles {
		lists = append(lists, r.Permissions)
	}
	effective := perm.Union(lists...)

	if a.overrides != nil {
		override, found, err := a.overrides.StaffPermissions(ctx, member.ID)
		if err != nil {
			obs.From(ctx).Warn("staff permission override lookup failed",
				obs.StaffMemberID(member.ID), zap.Error(err))
		} else if found {
			obs.From(ctx).Debug("using staff permission override", obs.StaffMemberID(member.ID))
			effective = perm.NewSet(override...)
		}
	}

	return &StaffMember{ID: member.ID, Permissions: effective}, nil
}

var slugPattern = regexp.MustCompile(`^[a-z0-9_-]{1,16}$`)

// GetTournament looks a tournament up by numeric id or slug.
func (a *Authorizer) GetTournament(ctx context.Context, idOrSlug string, fields TournamentFields, mustExist bool) (*Tournament, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)

	var (
		t   Tournament
		err error
	)
	if id, convErr := strconv.ParseInt(idOrSlug, 10, 64); convErr == nil {
		if id <= 0 {
			return nil, apperr.BadRequest("Invalid tournament ID %d", id)
		}
		t, err = a.store.TournamentByID(ctx, id, fields)
	} else {
		if !slugPattern.MatchString(idOrSlug) {
			return nil, apperr.BadRequest("Invalid tournament ID or slug %q", idOrSlug)
		}
		t, err = a.store.TournamentBySlug(ctx, idOrSlug, fields)
	}

	if errors.Is(err, ErrNotFound) {
		if mustExist {
			return nil, apperr.NotFound("Tournament with ID or slug %q doesn't exist", idOrSlug)
		}
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unexpected(ctx, "getting the tournament", err)
	}
	return &t, nil
}

// RequirePermissions fails unless member holds any of required.
func RequirePermissions(member *StaffMember, required ...perm.Permission) error {
	if member != nil && perm.HasPermissions(member.Permissions, required) {
		return nil
	}
	obs.AuthzDenials.WithLabelValues(string(apperr.KindUnauthorized)).Inc()
	return apperr.Unauthorized("You do not have the required permissions to perform this action. Requires any of: %s",
		strings.Join(perm.Strings(required), ", "))
}
