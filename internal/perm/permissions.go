// Package perm defines the closed set of staff permission tokens and the
// predicates evaluated over them.
package perm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Permission is a single staff capability. Values outside the constants below
// are rejected by Parse.
type Permission string

const (
	Host  Permission = "host"
	Debug Permission = "debug"

	MutateTournament Permission = "mutate_tournament"

	ViewStaffMembers   Permission = "view_staff_members"
	MutateStaffMembers Permission = "mutate_staff_members"
	DeleteStaffMembers Permission = "delete_staff_members"

	ViewRegs   Permission = "view_regs"
	MutateRegs Permission = "mutate_regs"
	DeleteRegs Permission = "delete_regs"

	ViewPoolStructure     Permission = "view_pool_structure"
	MutatePoolStructure   Permission = "mutate_pool_structure"
	ViewPoolSuggestions   Permission = "view_pool_suggestions"
	MutatePoolSuggestions Permission = "mutate_pool_suggestions"
	DeletePoolSuggestions Permission = "delete_pool_suggestions"
	ViewPooledMaps        Permission = "view_pooled_maps"
	MutatePooledMaps      Permission = "mutate_pooled_maps"
	DeletePooledMaps      Permission = "delete_pooled_maps"
	CanPlaytest           Permission = "can_playtest"
	ViewFeedback          Permission = "view_feedback"
	CanSubmitReplays      Permission = "can_submit_replays"

	ViewMatches       Permission = "view_matches"
	MutateMatches     Permission = "mutate_matches"
	DeleteMatches     Permission = "delete_matches"
	RefMatches        Permission = "ref_matches"
	CommentateMatches Permission = "commentate_matches"
	StreamMatches     Permission = "stream_matches"

	ViewStats   Permission = "view_stats"
	MutateStats Permission = "mutate_stats"
	DeleteStats Permission = "delete_stats"

	CanPlay Permission = "can_play"
)

// All lists every known permission in declaration order.
var All = []Permission{
	Host, Debug, MutateTournament,
	ViewStaffMembers, MutateStaffMembers, DeleteStaffMembers,
	ViewRegs, MutateRegs, DeleteRegs,
	ViewPoolStructure, MutatePoolStructure, ViewPoolSuggestions, MutatePoolSuggestions,
	DeletePoolSuggestions, ViewPooledMaps, MutatePooledMaps, DeletePooledMaps,
	CanPlaytest, ViewFeedback, CanSubmitReplays,
	ViewMatches, MutateMatches, DeleteMatches, RefMatches, CommentateMatches, StreamMatches,
	ViewStats, MutateStats, DeleteStats,
	CanPlay,
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(All))
	for _, p := range All {
		m[p] = struct{}{}
	}
	return m
}()

// Valid reports whether p belongs to the canonical set.
func (p Permission) Valid() bool {
	_, ok := known[p]
	return ok
}

func (p Permission) String() string { return string(p) }

// UnmarshalJSON only accepts canonical tokens.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse converts raw into a Permission, rejecting unknown tokens.
func Parse(raw string) (Permission, error) {
	p := Permission(strings.TrimSpace(raw))
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", raw)
	}
	return p, nil
}

// ParseList parses every token and collapses duplicates, keeping first-seen order.
func ParseList(raw []string) ([]Permission, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seen := make(map[Permission]struct{}, len(raw))
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Strings converts perms back to their raw form, e.g. for a text[] column.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
