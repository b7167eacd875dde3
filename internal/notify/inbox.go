package notify

import (
	"context"
	"time"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/db"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// Notification is one entry of a user's inbox.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// Inbox reads and updates the recipient side of notifications. Every query
// is scoped to the calling user.
type Inbox struct {
	db db.Querier
}

func NewInbox(q db.Querier) *Inbox {
	return &Inbox{db: q}
}

func (in *Inbox) List(ctx context.Context, userID int64, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := in.db.QueryContext(ctx, `
		select n.id, n.message, n.created_at, nr.read
		from notification_recipient nr
		inner join notification n on n.id = nr.notification_id
		where nr.user_id = $1
		order by n.created_at desc, n.id desc
		limit $2 offset $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apperr.Unexpected(ctx, "getting the notifications", err)
	}
	defer rows.Close()

	result := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Message, &n.CreatedAt, &n.Read); err != nil {
			return nil, apperr.Unexpected(ctx, "getting the notifications", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unexpected(ctx, "getting the notifications", err)
	}
	return result, nil
}

func (in *Inbox) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := in.db.QueryRowContext(ctx, `
		select count(*) from notification_recipient
		where user_id = $1 and read = false
	`, userID).Scan(&count)
	if err != nil {
		return 0, apperr.Unexpected(ctx, "counting the unread notifications", err)
	}
	return count, nil
}

// MarkRead flips the read flag of one notification for userID.
func (in *Inbox) MarkRead(ctx context.Context, userID, notificationID int64, read bool) error {
	res, err := in.db.ExecContext(ctx, `
		update notification_recipient set read = $3
		where user_id = $1 and notification_id = $2
	`, userID, notificationID, read)
	if err != nil {
		return apperr.Unexpected(ctx, "updating the notification", err)
	}
	return requireRow(ctx, res, notificationID, "updating the notification")
}

// MarkAllRead returns the number of notifications that changed.
func (in *Inbox) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := in.db.ExecContext(ctx, `
		update notification_recipient set read = true
		where user_id = $1 and read = false
	`, userID)
	if err != nil {
		return 0, apperr.Unexpected(ctx, "updating the notifications", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Unexpected(ctx, "updating the notifications", err)
	}
	return n, nil
}

// Delete removes the notification from userID's inbox only.
func (in *Inbox) Delete(ctx context.Context, userID, notificationID int64) error {
	res, err := in.db.ExecContext(ctx, `
		delete from notification_recipient
		where user_id = $1 and notification_id = $2
	`, userID, notificationID)
	if err != nil {
		return apperr.Unexpected(ctx, "deleting the notification", err)
	}
	return requireRow(ctx, res, notificationID, "deleting the notification")
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(ctx context.Context, res rowsAffecter, notificationID int64, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Unexpected(ctx, op, err)
	}
	if n == 0 {
		return apperr.NotFound("Notification with ID %d doesn't exist", notificationID)
	}
	return nil
}
