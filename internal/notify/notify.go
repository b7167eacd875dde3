// Package notify creates notifications and links them to their recipients
// in a single transaction, and serves each user's inbox.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"osutourney.org/internal/apperr"
	"osutourney.org/internal/db"
	"osutourney.org/internal/obs"
)

// Engine fans notifications out to the users a Selector describes.
type Engine struct {
	db *sql.DB
}

func NewEngine(conn *sql.DB) *Engine {
	return &Engine{db: conn}
}

// Create runs the fan-out in a transaction of its own.
func (e *Engine) Create(ctx context.Context, message string, recipients Selector) (int64, error) {
	return e.CreateTx(ctx, nil, message, recipients)
}

// CreateTx inserts the notification and one recipient row per distinct user
// returned by recipients. A non-nil tx is reused and left open. If the
// recipient insert fails the notification insert is rolled back with it; an
// empty recipient set is not a failure and leaves the notification in place.
func (e *Engine) CreateTx(ctx context.Context, tx *sql.Tx, message string, recipients Selector) (int64, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, apperr.BadRequest("Notification message is required")
	}
	if recipients == nil {
		return 0, apperr.BadRequest("Notification recipients are required")
	}

	var id, linked int64
	err := db.InTx(ctx, e.db, tx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`insert into notification (message) values ($1) returning id`, message,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}

		q := recipients(tx)
		args := make([]any, 0, len(q.Args)+1)
		args = append(args, q.Args...)
		args = append(args, id)
		res, err := tx.ExecContext(ctx, fanOutSQL(q.SQL, len(args)), args...)
		if err != nil {
			return fmt.Errorf("insert notification recipients: %w", err)
		}
		linked, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperr.Unexpected(ctx, "creating the notification", err)
	}

	obs.NotificationsCreated.Inc()
	obs.NotificationRecipients.Observe(float64(linked))
	obs.From(ctx).Debug("notification created", obs.NotificationID(id), zap.Int64("recipients", linked))
	return id, nil
}

// fanOutSQL wraps the recipient query in a CTE; idParam is the placeholder
// index carrying the notification id.
func fanOutSQL(recipients string, idParam int) string {
	return fmt.Sprintf(`with recipients as (%s)
		insert into notification_recipient (notification_id, user_id)
		select distinct $%d::bigint, user_id from recipients
		where user_id is not null`, recipients, idParam)
}

// Render substitutes {name} placeholders in template. Unknown placeholders
// are left as they are.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
