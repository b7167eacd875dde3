// Package override is the non-production side channel used to try out
// privilege combinations without touching role assignments. Values live in a
// key/value backend keyed by owner:<userId> and staff_permissions:<memberId>.
package override

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"osutourney.org/internal/perm"
)

// ErrNotFound is returned by Persist and Delete for unknown keys.
var ErrNotFound = errors.New("override not found")

// Backend is the raw key/value contract both the redis and memory stores meet.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Persist(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

func OwnerKey(userID int64) string {
	return "owner:" + strconv.FormatInt(userID, 10)
}

func StaffPermissionsKey(staffMemberID int64) string {
	return "staff_permissions:" + strconv.FormatInt(staffMemberID, 10)
}

// Store exposes typed accessors on top of a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
}

// New wraps backend. ttl applies to every Set; zero keeps values until
// deleted.
func New(backend Backend, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

// Owner reports the overridden platform-owner status for userID. found is
// false when no override is stored.
func (s *Store) Owner(ctx context.Context, userID int64) (owner bool, found bool, err error) {
	raw, ok, err := s.backend.Get(ctx, OwnerKey(userID))
	if err != nil || !ok {
		return false, false, err
	}
	if err := json.Unmarshal(raw, &owner); err != nil {
		return false, false, fmt.Errorf("decode %s: %w", OwnerKey(userID), err)
	}
	return owner, true, nil
}

func (s *Store) SetOwner(ctx context.Context, userID int64, owner bool) error {
	raw, _ := json.Marshal(owner)
	return s.backend.Set(ctx, OwnerKey(userID), raw, s.ttl)
}

// StaffPermissions returns the overridden permission list for a staff member.
// Unknown tokens make the whole value invalid.
func (s *Store) StaffPermissions(ctx context.Context, staffMemberID int64) ([]perm.Permission, bool, error) {
	key := StaffPermissionsKey(staffMemberID)
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	perms, err := perm.ParseList(tokens)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return perms, true, nil
}

func (s *Store) SetStaffPermissions(ctx context.Context, staffMemberID int64, perms []perm.Permission) error {
	raw, err := json.Marshal(perm.Strings(perms))
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, StaffPermissionsKey(staffMemberID), raw, s.ttl)
}

// Persist drops the expiry of an existing key.
func (s *Store) Persist(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.backend.Persist(ctx, key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}

// validKey restricts raw-key operations to the two override namespaces.
func validKey(key string) error {
	prefix, id, ok := strings.Cut(key, ":")
	if !ok || (prefix != "owner" && prefix != "staff_permissions") {
		return fmt.Errorf("invalid override key %q", key)
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("invalid override key %q", key)
	}
	return nil
}
