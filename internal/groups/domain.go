// Package groups implements group management and the bulk membership
// operations, with audit snapshots and permission-cache coherence.
package groups

import (
	"errors"
	"time"
)

// Group represents a named collection of users carrying base roles and
// ad-hoc permission grants inherited by every member.
type Group struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a group member's identity as recorded in audit snapshots.
type Member struct {
	ID   int64
	Name string
}

// MembershipResult summarises a bulk membership operation for the caller.
type MembershipResult struct {
	Added   int
	Removed int
	Skipped int
	Message string
}

var (
	// ErrGroupExists indicates a name/slug collision.
	ErrGroupExists = errors.New("groups: a group with that name already exists")
	// ErrGroupNotEmpty rejects deleting a group that still has members.
	ErrGroupNotEmpty = errors.New("groups: group still has members; remove them before deleting")
)
