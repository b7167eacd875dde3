// Package staff resolves tournament staff membership and effective
// permissions, and manages staff roles and members.
package staff

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"osutourney.org/internal/perm"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrLastHost is returned when a change would leave a tournament
	// without any staff member holding the host role.
	ErrLastHost = errors.New("tournament must keep at least one host")
)

// Color is a role's display color.
type Color string

const (
	ColorSlate   Color = "slate"
	ColorGray    Color = "gray"
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
	ColorYellow  Color = "yellow"
	ColorLime    Color = "lime"
	ColorGreen   Color = "green"
	ColorEmerald Color = "emerald"
	ColorCyan    Color = "cyan"
	ColorBlue    Color = "blue"
	ColorIndigo  Color = "indigo"
	ColorPurple  Color = "purple"
	ColorFuchsia Color = "fuchsia"
	ColorPink    Color = "pink"
)

var colors = map[Color]struct{}{
	ColorSlate: {}, ColorGray: {}, ColorRed: {}, ColorOrange: {}, ColorYellow: {},
	ColorLime: {}, ColorGreen: {}, ColorEmerald: {}, ColorCyan: {}, ColorBlue: {},
	ColorIndigo: {}, ColorPurple: {}, ColorFuchsia: {}, ColorPink: {},
}

func (c Color) Valid() bool {
	_, ok := colors[c]
	return ok
}

type Tournament struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Slug    string           `json:"urlSlug"`
	Acronym string           `json:"acronym"`
	Type    string           `json:"type"`
	Dates   *TournamentDates `json:"dates,omitempty"`
}

type TournamentDates struct {
	PublishedAt       *time.Time `json:"publishedAt"`
	ConcludesAt       *time.Time `json:"concludesAt"`
	PlayerRegsOpenAt  *time.Time `json:"playerRegsOpenAt"`
	PlayerRegsCloseAt *time.Time `json:"playerRegsCloseAt"`
	StaffRegsOpenAt   *time.Time `json:"staffRegsOpenAt"`
	StaffRegsCloseAt  *time.Time `json:"staffRegsCloseAt"`
}

// TournamentFields selects the optional parts loaded with a tournament.
type TournamentFields struct {
	Dates bool
}

type Role struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Color        Color             `json:"color"`
	Order        int               `json:"order"`
	Permissions  []perm.Permission `json:"permissions"`
	TournamentID int64             `json:"tournamentId"`
}

// IsHost reports whether r is the tournament's host role, the only one
// allowed to carry the host token.
func (r Role) IsHost() bool {
	for _, p := range r.Permissions {
		if p == perm.Host {
			return true
		}
	}
	return false
}

type RoleUpdate struct {
	Name        *string
	Color       *Color
	Permissions *[]perm.Permission
}

// Member is a staff member row with its assigned roles.
type Member struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	TournamentID int64     `json:"tournamentId"`
	JoinedAt     time.Time `json:"joinedAt"`
	Roles        []Role    `json:"roles"`
}

func (m Member) HasHostRole() bool {
	for _, r := range m.Roles {
		if r.IsHost() {
			return true
		}
	}
	return false
}

// StaffMember is the resolved view used for authorization.
type StaffMember struct {
	ID          int64
	Permissions perm.Set
}

// Store is the persistence surface of this package.
type Store interface {
	TournamentByID(ctx context.Context, id int64, fields TournamentFields) (Tournament, error)
	TournamentBySlug(ctx context.Context, slug string, fields TournamentFields) (Tournament, error)

	MemberByUser(ctx context.Context, userID, tournamentID int64) (Member, error)
	Member(ctx context.Context, memberID int64) (Member, error)
	// AddMember inserts the member and its role links, then runs within on
	// the same transaction.
	AddMember(ctx context.Context, tournamentID, userID int64, roleIDs []int64, within func(*sql.Tx) error) (Member, error)
	// SetMemberRoles and RemoveMember return ErrLastHost instead of
	// committing a change that leaves the tournament hostless.
	SetMemberRoles(ctx context.Context, memberID int64, roleIDs []int64) error
	RemoveMember(ctx context.Context, memberID int64) error

	Roles(ctx context.Context, tournamentID int64) ([]Role, error)
	Role(ctx context.Context, roleID int64) (Role, error)
	CreateRole(ctx context.Context, tournamentID int64, name string, color Color) (Role, error)
	UpdateRole(ctx context.Context, roleID int64, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, roleID int64) error
	SwapRoleOrder(ctx context.Context, tournamentID, roleA, roleB int64) error
}
