package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"osutourney.org/internal/db"
	"osutourney.org/internal/session"
)

var _ session.Store = (*Store)(nil)

func (s *Store) User(ctx context.Context, userID int64) (session.User, error) {
	if s.db == nil {
		return session.User{}, db.ErrUnavailable
	}
	var u session.User
	err := s.db.QueryRowContext(ctx, `
		select id, admin, approved_host, updated_api_data_at,
			osu_user_id, osu_username,
			coalesce(discord_user_id, ''), coalesce(discord_username, '')
		from "user"
		where id = $1
	`, userID).Scan(&u.ID, &u.Admin, &u.ApprovedHost, &u.UpdatedAt,
		&u.Osu.ID, &u.Osu.Username, &u.Discord.ID, &u.Discord.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return session.User{}, session.ErrNotFound
	}
	if err != nil {
		return session.User{}, err
	}
	return u, nil
}

// HasActiveBan reports whether userID has a ban that is neither revoked nor
// lifted at now.
func (s *Store) HasActiveBan(ctx context.Context, userID int64, now time.Time) (bool, error) {
	if s.db == nil {
		return false, db.ErrUnavailable
	}
	var banned bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from ban
			where issued_to_user_id = $1
				and revoked_at is null
				and (lift_at is null or lift_at > $2)
		)
	`, userID, now).Scan(&banned)
	return banned, err
}

func (s *Store) Session(ctx context.Context, id string) (session.Session, error) {
	if s.db == nil {
		return session.Session{}, db.ErrUnavailable
	}
	var row session.Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, expired, ip_address, user_agent, created_at, last_active_at
		from session
		where id = $1
	`, id).Scan(&row.ID, &row.UserID, &row.Expired, &row.IPAddress, &row.UserAgent, &row.CreatedAt, &row.LastActiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	return row, nil
}

func (s *Store) CreateSession(ctx context.Context, row session.Session) error {
	if s.db == nil {
		return db.ErrUnavailable
	}
	return insertSession(ctx, s.db, row)
}

// ReplaceSession expires expireID and creates next atomically.
func (s *Store) ReplaceSession(ctx context.Context, expireID string, next session.Session) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `update session set expired = true where id = $1`, expireID); err != nil {
			return err
		}
		return insertSession(ctx, tx, next)
	})
}

func (s *Store) ExpireSession(ctx context.Context, id string) error {
	if s.db == nil {
		return db.ErrUnavailable
	}
	res, err := s.db.ExecContext(ctx, `update session set expired = true where id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func insertSession(ctx context.Context, q db.Querier, row session.Session) error {
	_, err := q.ExecContext(ctx, `
		insert into session (id, user_id, ip_address, user_agent, created_at, last_active_at)
		values ($1, $2, $3, $4, $5, $6)
	`, row.ID, row.UserID, row.IPAddress, row.UserAgent, row.CreatedAt, row.LastActiveAt)
	return err
}
