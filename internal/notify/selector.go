package notify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"osutourney.org/internal/db"
	"osutourney.org/internal/perm"
)

// Query is a parameterized select projecting a user_id column. Placeholders
// are numbered from $1. Union renumbers them, so the SQL must not carry
// literal $n text outside single-quoted strings: dollar-quoted bodies and
// quoted identifiers containing $n are renumbered too.
type Query struct {
	SQL  string
	Args []any
}

// Selector describes a recipient set without loading it. It receives the
// handle the fan-out runs on, so it may inspect state inside that
// transaction before returning its query.
type Selector func(q db.Querier) Query

// Users selects a fixed list of users.
func Users(userIDs ...int64) Selector {
	ids := append([]int64(nil), userIDs...)
	return func(db.Querier) Query {
		return Query{
			SQL:  `select unnest($1::bigint[]) as user_id`,
			Args: []any{pq.Array(ids)},
		}
	}
}

// StaffOf selects every active staff member of a tournament.
func StaffOf(tournamentID int64) Selector {
	return func(db.Querier) Query {
		return Query{
			SQL: `select user_id from staff_member
				where tournament_id = $1 and deleted_at is null`,
			Args: []any{tournamentID},
		}
	}
}

// PlayersOf selects every registered player of a tournament.
func PlayersOf(tournamentID int64) Selector {
	return func(db.Querier) Query {
		return Query{
			SQL: `select user_id from player
				where tournament_id = $1 and deleted_at is null`,
			Args: []any{tournamentID},
		}
	}
}

// StaffWith selects staff members holding any of perms through one of their
// roles.
func StaffWith(tournamentID int64, perms ...perm.Permission) Selector {
	tokens := perm.Strings(perms)
	return func(db.Querier) Query {
		return Query{
			SQL: `select sm.user_id from staff_member sm
				inner join staff_member_role smr on smr.staff_member_id = sm.id
				inner join staff_role sr on sr.id = smr.staff_role_id
				where sm.tournament_id = $1 and sm.deleted_at is null
				and sr.permissions && $2::text[]`,
			Args: []any{tournamentID, pq.Array(tokens)},
		}
	}
}

// Union concatenates selectors. Users present in several of them are
// collapsed by the fan-out insert.
func Union(selectors ...Selector) Selector {
	return func(q db.Querier) Query {
		if len(selectors) == 0 {
			return Query{SQL: `select null::bigint as user_id where false`}
		}
		var (
			parts []string
			args  []any
		)
		for _, sel := range selectors {
			sub := sel(q)
			parts = append(parts, "("+shiftPlaceholders(sub.SQL, len(args))+")")
			args = append(args, sub.Args...)
		}
		return Query{SQL: strings.Join(parts, "\nunion all\n"), Args: args}
	}
}

// placeholder matches a single-quoted literal or a $n placeholder. Literals
// are matched only so they can be skipped.
var placeholder = regexp.MustCompile(`'(?:[^']|'')*'|\$(\d+)`)

// shiftPlaceholders renumbers $n to $(n+offset), leaving single-quoted
// literals alone.
func shiftPlaceholders(sql string, offset int) string {
	if offset == 0 {
		return sql
	}
	return placeholder.ReplaceAllStringFunc(sql, func(m string) string {
		if m[0] == '\'' {
			return m
		}
		n, _ := strconv.Atoi(m[1:])
		return "$" + strconv.Itoa(n+offset)
	})
}
