package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"osutourney.org/internal/db"
	"osutourney.org/internal/perm"
	"osutourney.org/internal/staff"
)

var _ staff.Store = (*Store)(nil)

const roleColumns = `id, name, color, "order", permissions, tournament_id`

// Constraint names from 0001_init.up.sql.
const (
	roleNameConstraint  = "staff_role_name_uni"
	roleOrderConstraint = "staff_role_order_uni"
)

func scanRole(row interface{ Scan(...any) error }) (staff.Role, error) {
	var (
		r     staff.Role
		color string
		perms pq.StringArray
	)
	if err := row.Scan(&r.ID, &r.Name, &color, &r.Order, &perms, &r.TournamentID); err != nil {
		return staff.Role{}, err
	}
	r.Color = staff.Color(color)
	parsed, err := parsePermissions(perms)
	if err != nil {
		return staff.Role{}, fmt.Errorf("staff role %d: %w", r.ID, err)
	}
	r.Permissions = parsed
	return r, nil
}

func (s *Store) Roles(ctx context.Context, tournamentID int64) ([]staff.Role, error) {
	if s.db == nil {
		return nil, db.ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from staff_role
		where tournament_id = $1
		order by "order"
	`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []staff.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Role(ctx context.Context, roleID int64) (staff.Role, error) {
	if s.db == nil {
		return staff.Role{}, db.ErrUnavailable
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+` from staff_role where id = $1
	`, roleID))
	if errors.Is(err, sql.ErrNoRows) {
		return staff.Role{}, staff.ErrNotFound
	}
	return r, err
}

// CreateRole appends a role after the tournament's last one.
func (s *Store) CreateRole(ctx context.Context, tournamentID int64, name string, color staff.Color) (staff.Role, error) {
	if s.db == nil {
		return staff.Role{}, db.ErrUnavailable
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, `
		insert into staff_role (name, color, "order", tournament_id)
		select $1, $2, coalesce(max("order"), -1) + 1, $3
		from staff_role where tournament_id = $3
		returning `+roleColumns,
		name, string(color), tournamentID))
	if isUniqueViolation(err, roleNameConstraint) {
		return staff.Role{}, staff.ErrConflict
	}
	if isUniqueViolation(err, roleOrderConstraint) {
		return staff.Role{}, fmt.Errorf("staff role order taken by a concurrent insert: %w", err)
	}
	if isPgCode(err, pgErrForeignKeyViolation) {
		return staff.Role{}, staff.ErrNotFound
	}
	return r, err
}

func (s *Store) UpdateRole(ctx context.Context, roleID int64, upd staff.RoleUpdate) (staff.Role, error) {
	if s.db == nil {
		return staff.Role{}, db.ErrUnavailable
	}
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Color != nil {
		setClauses = append(setClauses, fmt.Sprintf("color = $%d", idx))
		args = append(args, string(*upd.Color))
		idx++
	}
	if upd.Permissions != nil {
		setClauses = append(setClauses, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, pq.Array(perm.Strings(*upd.Permissions)))
		idx++
	}
	if len(setClauses) == 0 {
		return s.Role(ctx, roleID)
	}
	args = append(args, roleID)
	query := fmt.Sprintf(`update staff_role set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), idx, roleColumns)

	r, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return staff.Role{}, staff.ErrNotFound
	case isUniqueViolation(err, roleNameConstraint):
		return staff.Role{}, staff.ErrConflict
	}
	return r, err
}

// DeleteRole removes a role; its member links go with it.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	if s.db == nil {
		return db.ErrUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from staff_role where id = $1`, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staff.ErrNotFound
	}
	return nil
}

// SwapRoleOrder exchanges the order of two roles of the same tournament. The
// order uniqueness constraint is deferred, so both updates land at commit.
func (s *Store) SwapRoleOrder(ctx context.Context, tournamentID, roleA, roleB int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select id, "order" from staff_role
			where tournament_id = $1 and id = any($2::bigint[])
			for update
		`, tournamentID, pq.Array([]int64{roleA, roleB}))
		if err != nil {
			return err
		}
		orders := make(map[int64]int, 2)
		for rows.Next() {
			var id int64
			var order int
			if err := rows.Scan(&id, &order); err != nil {
				rows.Close()
				return err
			}
			orders[id] = order
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(orders) != 2 {
			return staff.ErrNotFound
		}

		for _, u := range []struct {
			id    int64
			order int
		}{{roleA, orders[roleB]}, {roleB, orders[roleA]}} {
			if _, err := tx.ExecContext(ctx, `update staff_role set "order" = $1 where id = $2`, u.order, u.id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) MemberByUser(ctx context.Context, userID, tournamentID int64) (staff.Member, error) {
	if s.db == nil {
		return staff.Member{}, db.ErrUnavailable
	}
	return loadMember(ctx, s.db, `user_id = $1 and tournament_id = $2`, userID, tournamentID)
}

func (s *Store) Member(ctx context.Context, memberID int64) (staff.Member, error) {
	if s.db == nil {
		return staff.Member{}, db.ErrUnavailable
	}
	return loadMember(ctx, s.db, `id = $1`, memberID)
}

func loadMember(ctx context.Context, q db.Querier, where string, args ...any) (staff.Member, error) {
	var m staff.Member
	err := q.QueryRowContext(ctx, `
		select id, user_id, tournament_id, joined_at
		from staff_member
		where `+where+` and deleted_at is null
	`, args...).Scan(&m.ID, &m.UserID, &m.TournamentID, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return staff.Member{}, staff.ErrNotFound
	}
	if err != nil {
		return staff.Member{}, err
	}
	roles, err := memberRoles(ctx, q, m.ID)
	if err != nil {
		return staff.Member{}, err
	}
	m.Roles = roles
	return m, nil
}

func memberRoles(ctx context.Context, q db.Querier, memberID int64) ([]staff.Role, error) {
	rows, err := q.QueryContext(ctx, `
		select sr.id, sr.name, sr.color, sr."order", sr.permissions, sr.tournament_id
		from staff_member_role smr
		inner join staff_role sr on sr.id = smr.staff_role_id
		where smr.staff_member_id = $1
		order by sr."order"
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []staff.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// AddMember inserts a staff member, reviving a soft deleted row for the
// same user, links its roles and runs within before committing.
func (s *Store) AddMember(ctx context.Context, tournamentID, userID int64, roleIDs []int64, within func(*sql.Tx) error) (staff.Member, error) {
	var member staff.Member
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			insert into staff_member (user_id, tournament_id)
			values ($1, $2)
			on conflict (user_id, tournament_id) do update
				set deleted_at = null, joined_at = now()
				where staff_member.deleted_at is not null
			returning id
		`, userID, tournamentID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return staff.ErrConflict
		}
		if isPgCode(err, pgErrForeignKeyViolation) {
			return staff.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := replaceMemberRoles(ctx, tx, id, roleIDs); err != nil {
			return err
		}
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		member, err = loadMember(ctx, tx, `id = $1`, id)
		return err
	})
	if err != nil {
		return staff.Member{}, err
	}
	return member, nil
}

func (s *Store) SetMemberRoles(ctx context.Context, memberID int64, roleIDs []int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tournamentID, err := lockMemberTournament(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if err := replaceMemberRoles(ctx, tx, memberID, roleIDs); err != nil {
			return err
		}
		return requireHost(ctx, tx, tournamentID)
	})
}

// RemoveMember soft deletes a staff member.
func (s *Store) RemoveMember(ctx context.Context, memberID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tournamentID, err := lockMemberTournament(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update staff_member set deleted_at = now() where id = $1
		`, memberID); err != nil {
			return err
		}
		return requireHost(ctx, tx, tournamentID)
	})
}

// lockMemberTournament serializes host changes within one tournament.
func lockMemberTournament(ctx context.Context, tx *sql.Tx, memberID int64) (int64, error) {
	var tournamentID int64
	err := tx.QueryRowContext(ctx, `
		select t.id from tournament t
		inner join staff_member sm on sm.tournament_id = t.id
		where sm.id = $1 and sm.deleted_at is null
		for update of t
	`, memberID).Scan(&tournamentID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, staff.ErrNotFound
	}
	return tournamentID, err
}

func replaceMemberRoles(ctx context.Context, tx *sql.Tx, memberID int64, roleIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `delete from staff_member_role where staff_member_id = $1`, memberID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		insert into staff_member_role (staff_member_id, staff_role_id)
		select $1, unnest($2::bigint[])
		on conflict do nothing
	`, memberID, pq.Array(roleIDs))
	if isPgCode(err, pgErrForeignKeyViolation) {
		return staff.ErrNotFound
	}
	return err
}

func requireHost(ctx context.Context, tx *sql.Tx, tournamentID int64) error {
	var hosts int
	err := tx.QueryRowContext(ctx, `
		select count(distinct sm.id)
		from staff_member sm
		inner join staff_member_role smr on smr.staff_member_id = sm.id
		inner join staff_role sr on sr.id = smr.staff_role_id
		where sm.tournament_id = $1 and sm.deleted_at is null
			and 'host' = any(sr.permissions)
	`, tournamentID).Scan(&hosts)
	if err != nil {
		return err
	}
	if hosts == 0 {
		return staff.ErrLastHost
	}
	return nil
}
