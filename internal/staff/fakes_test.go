package staff

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"osutourney.org/internal/notify"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/session"
)

type fakeStore struct {
	tournaments map[int64]Tournament
	roles       map[int64]Role
	members     map[int64]Member
	nextID      int64
	failWith    error
	swapped     [][2]int64
}

func newFakeStore() *fakeStore {
	f := &fakeStore{
		tournaments: map[int64]Tournament{
			1: {ID: 1, Name: "osu! World Cup", Slug: "owc", Acronym: "OWC", Type: "teams"},
			2: {ID: 2, Name: "Other Cup", Slug: "other", Acronym: "OC", Type: "solo"},
		},
		roles: map[int64]Role{
			10: {ID: 10, Name: "Host", Color: ColorRed, Order: 0, TournamentID: 1, Permissions: []perm.Permission{perm.Host}},
			11: {ID: 11, Name: "Admin", Color: ColorBlue, Order: 1, TournamentID: 1, Permissions: []perm.Permission{perm.MutateStaffMembers, perm.DeleteStaffMembers, perm.ViewStaffMembers}},
			12: {ID: 12, Name: "Referee", Color: ColorGreen, Order: 2, TournamentID: 1, Permissions: []perm.Permission{perm.RefMatches, perm.ViewMatches}},
			13: {ID: 13, Name: "Registrations", Color: ColorLime, Order: 3, TournamentID: 1, Permissions: []perm.Permission{perm.ViewRegs}},
			20: {ID: 20, Name: "Host", Color: ColorRed, Order: 0, TournamentID: 2, Permissions: []perm.Permission{perm.Host}},
		},
		members: map[int64]Member{},
		nextID:  100,
	}
	f.addMember(1, 1, 1, 10)     // host
	f.addMember(2, 2, 1, 11)     // admin
	f.addMember(3, 3, 1, 12, 13) // referee
	return f
}

func (f *fakeStore) addMember(id, userID, tournamentID int64, roleIDs ...int64) {
	m := Member{ID: id, UserID: userID, TournamentID: tournamentID}
	for _, r := range roleIDs {
		m.Roles = append(m.Roles, f.roles[r])
	}
	f.members[id] = m
}

func (f *fakeStore) TournamentByID(_ context.Context, id int64, _ TournamentFields) (Tournament, error) {
	if f.failWith != nil {
		return Tournament{}, f.failWith
	}
	t, ok := f.tournaments[id]
	if !ok {
		return Tournament{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) TournamentBySlug(_ context.Context, slug string, _ TournamentFields) (Tournament, error) {
	if f.failWith != nil {
		return Tournament{}, f.failWith
	}
	for _, t := range f.tournaments {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Tournament{}, ErrNotFound
}

func (f *fakeStore) MemberByUser(_ context.Context, userID, tournamentID int64) (Member, error) {
	for _, m := range f.members {
		if m.UserID == userID && m.TournamentID == tournamentID {
			return m, nil
		}
	}
	return Member{}, ErrNotFound
}

func (f *fakeStore) Member(_ context.Context, id int64) (Member, error) {
	m, ok := f.members[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) AddMember(_ context.Context, tournamentID, userID int64, roleIDs []int64, within func(*sql.Tx) error) (Member, error) {
	if _, err := f.MemberByUser(context.Background(), userID, tournamentID); err == nil {
		return Member{}, ErrConflict
	}
	if err := within(nil); err != nil {
		return Member{}, err
	}
	f.nextID++
	f.addMember(f.nextID, userID, tournamentID, roleIDs...)
	return f.members[f.nextID], nil
}

func (f *fakeStore) hosts(tournamentID int64) int {
	n := 0
	for _, m := range f.members {
		if m.TournamentID == tournamentID && m.HasHostRole() {
			n++
		}
	}
	return n
}

func (f *fakeStore) SetMemberRoles(_ context.Context, memberID int64, roleIDs []int64) error {
	before := f.members[memberID]
	f.addMember(memberID, before.UserID, before.TournamentID, roleIDs...)
	if f.hosts(before.TournamentID) == 0 {
		f.members[memberID] = before
		return ErrLastHost
	}
	return nil
}

func (f *fakeStore) RemoveMember(_ context.Context, memberID int64) error {
	m := f.members[memberID]
	delete(f.members, memberID)
	if f.hosts(m.TournamentID) == 0 {
		f.members[memberID] = m
		return ErrLastHost
	}
	return nil
}

func (f *fakeStore) Roles(_ context.Context, tournamentID int64) ([]Role, error) {
	var out []Role
	for _, r := range f.roles {
		if r.TournamentID == tournamentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeStore) Role(_ context.Context, id int64) (Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) CreateRole(_ context.Context, tournamentID int64, name string, color Color) (Role, error) {
	maxOrder := -1
	for _, r := range f.roles {
		if r.TournamentID != tournamentID {
			continue
		}
		if r.Name == name {
			return Role{}, ErrConflict
		}
		if r.Order > maxOrder {
			maxOrder = r.Order
		}
	}
	f.nextID++
	r := Role{ID: f.nextID, Name: name, Color: color, Order: maxOrder + 1, TournamentID: tournamentID, Permissions: []perm.Permission{}}
	f.roles[r.ID] = r
	return r, nil
}

func (f *fakeStore) UpdateRole(_ context.Context, id int64, upd RoleUpdate) (Role, error) {
	r := f.roles[id]
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Color != nil {
		r.Color = *upd.Color
	}
	if upd.Permissions != nil {
		r.Permissions = *upd.Permissions
	}
	f.roles[id] = r
	return r, nil
}

func (f *fakeStore) DeleteRole(_ context.Context, id int64) error {
	delete(f.roles, id)
	return nil
}

func (f *fakeStore) SwapRoleOrder(_ context.Context, _ int64, a, b int64) error {
	ra, rb := f.roles[a], f.roles[b]
	ra.Order, rb.Order = rb.Order, ra.Order
	f.roles[a], f.roles[b] = ra, rb
	f.swapped = append(f.swapped, [2]int64{a, b})
	return nil
}

type fakeVerifier map[string]*session.Claims

func (v fakeVerifier) Verify(token string) (*session.Claims, bool) {
	c, ok := v[token]
	return c, ok
}

type fakeOverrides struct {
	staff map[int64][]perm.Permission
	owner map[int64]bool
	err   error
	calls int
}

func (o *fakeOverrides) Owner(_ context.Context, userID int64) (bool, bool, error) {
	o.calls++
	if o.err != nil {
		return false, false, o.err
	}
	v, ok := o.owner[userID]
	return v, ok, nil
}

func (o *fakeOverrides) StaffPermissions(_ context.Context, id int64) ([]perm.Permission, bool, error) {
	o.calls++
	if o.err != nil {
		return nil, false, o.err
	}
	v, ok := o.staff[id]
	return v, ok, nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) CreateTx(_ context.Context, _ *sql.Tx, message string, recipients notify.Selector) (int64, error) {
	if n.err != nil {
		return 0, n.err
	}
	if recipients == nil {
		return 0, errors.New("no recipients")
	}
	n.messages = append(n.messages, message)
	return int64(len(n.messages)), nil
}

func claimsFor(userID int64) *session.Claims {
	return &session.Claims{SessionID: "s", UserID: userID}
}
