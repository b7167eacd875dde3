package pg

import (
	"context"
	"database/sql"
	"errors"

	"osutourney.org/internal/db"
	"osutourney.org/internal/staff"
)

const tournamentColumns = `t.id, t.name, t.url_slug, t.acronym, t.type`

const tournamentDateColumns = `, td.published_at, td.concludes_at,
	td.player_regs_open_at, td.player_regs_close_at,
	td.staff_regs_open_at, td.staff_regs_close_at`

func (s *Store) TournamentByID(ctx context.Context, id int64, fields staff.TournamentFields) (staff.Tournament, error) {
	return s.tournament(ctx, "t.id = $1", id, fields)
}

func (s *Store) TournamentBySlug(ctx context.Context, slug string, fields staff.TournamentFields) (staff.Tournament, error) {
	return s.tournament(ctx, "t.url_slug = $1", slug, fields)
}

func (s *Store) tournament(ctx context.Context, where string, arg any, fields staff.TournamentFields) (staff.Tournament, error) {
	if s.db == nil {
		return staff.Tournament{}, db.ErrUnavailable
	}
	query := `select ` + tournamentColumns
	if fields.Dates {
		query += tournamentDateColumns + `
			from tournament t
			inner join tournament_dates td on td.tournament_id = t.id`
	} else {
		query += ` from tournament t`
	}
	query += ` where ` + where + ` and t.deleted_at is null`

	var t staff.Tournament
	dest := []any{&t.ID, &t.Name, &t.Slug, &t.Acronym, &t.Type}
	var d staff.TournamentDates
	if fields.Dates {
		dest = append(dest, &d.PublishedAt, &d.ConcludesAt,
			&d.PlayerRegsOpenAt, &d.PlayerRegsCloseAt,
			&d.StaffRegsOpenAt, &d.StaffRegsCloseAt)
	}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return staff.Tournament{}, staff.ErrNotFound
	}
	if err != nil {
		return staff.Tournament{}, err
	}
	if fields.Dates {
		t.Dates = &d
	}
	return t, nil
}
