// Package audit records security-relevant state changes (impersonation,
// role and membership edits) as structured log events.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"osutourney.org/internal/obs"
)

// Event names.
const (
	SessionImpersonate = "session.impersonate"
	SessionLogout      = "session.logout"
	RoleCreated        = "staff_role.created"
	RoleUpdated        = "staff_role.updated"
	RoleDeleted        = "staff_role.deleted"
	RolesReordered     = "staff_role.reordered"
	MemberAdded        = "staff_member.added"
	MemberRolesSet     = "staff_member.roles_set"
	MemberRemoved      = "staff_member.removed"
	OverrideSet        = "override.set"
	OverridePersisted  = "override.persisted"
	OverrideDeleted    = "override.deleted"
)

// LogEvent writes an audit entry through the request-scoped logger, so the
// request id and acting user attached by the HTTP middleware come along.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("type", "audit"), zap.String("event", event))
	all = append(all, fields...)
	obs.From(ctx).Named("audit").Info(event, all...)
	return nil
}
