package groups

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

// DefaultLargeGroupThreshold is the member count above which audit snapshots
// switch to count placeholders.
const DefaultLargeGroupThreshold = 100

// Invalidator clears cached permission data after membership changes.
// Implemented by rbac.PermissionCache.
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) error
	InvalidateGroup(ctx context.Context, groupID int64, memberIDs []int64) error
}

// Service applies bulk membership mutations with consistent auditing and
// cache invalidation. Audit dispatch and invalidation run strictly after the
// membership transaction commits; membership is authoritative, the audit
// trail is best-effort.
type Service struct {
	store    Store
	cache    Invalidator
	recorder audit.Recorder
	settings shared.Settings
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, cache Invalidator, recorder audit.Recorder, settings shared.Settings, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, recorder: recorder, settings: settings, logger: logger}
}

// GetGroup fetches a group by id.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.store.GetGroup(ctx, id)
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.store.ListGroups(ctx)
}

// Members returns the group's current roster.
func (s *Service) Members(ctx context.Context, groupID int64) ([]Member, error) {
	var roster []Member
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		var err error
		roster, err = tx.MemberRoster(ctx, groupID)
		return err
	})
	return roster, err
}

// CreateGroup inserts a new group with a normalized slug.
func (s *Service) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("groups: name required")
	}
	group, err := s.store.CreateGroup(ctx, name, Slugify(name), strings.TrimSpace(description))
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventCreated,
		AuditableType: "group",
		AuditableID:   group.ID,
		NewValues:     map[string]any{"name": group.Name, "slug": group.Slug, "description": group.Description},
		Tags:          []string{"groups"},
	})
	return group, nil
}

// UpdateGroup renames a group, recomputing the slug.
func (s *Service) UpdateGroup(ctx context.Context, id int64, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("groups: name required")
	}
	current, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	group, err := s.store.UpdateGroup(ctx, id, name, Slugify(name), strings.TrimSpace(description))
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventUpdated,
		AuditableType: "group",
		AuditableID:   group.ID,
		OldValues:     map[string]any{"name": current.Name, "slug": current.Slug, "description": current.Description},
		NewValues:     map[string]any{"name": group.Name, "slug": group.Slug, "description": group.Description},
		Tags:          []string{"groups"},
	})
	return group, nil
}

// DeleteGroup removes an empty group. Groups that still have members are
// rejected with ErrGroupNotEmpty before any mutation.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	var group Group
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		group, err = tx.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrGroupNotEmpty
		}
		return tx.DeleteGroup(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventDeleted,
		AuditableType: "group",
		AuditableID:   id,
		OldValues:     map[string]any{"name": group.Name, "slug": group.Slug, "description": group.Description},
		Tags:          []string{"groups"},
	})
	s.invalidateGroup(ctx, id, nil)
	return nil
}

// AddMembers adds the users not already in the group. Requests where every
// user is already a member change nothing: no audit entry, no cache clear.
func (s *Service) AddMembers(ctx context.Context, groupID int64, userIDs []int64) (MembershipResult, error) {
	requested := dedupeIDs(userIDs)
	var (
		group   Group
		before  memberSnapshot
		after   memberSnapshot
		added   []Member
		skipped int
	)
	threshold := s.threshold()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		existing, err := tx.MembersAmong(ctx, groupID, requested)
		if err != nil {
			return err
		}
		toAdd := differenceIDs(requested, existing)
		skipped = len(requested) - len(toAdd)
		if len(toAdd) == 0 {
			return nil
		}
		names, err := resolveNames(ctx, tx, toAdd)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, groupID)
		if err != nil {
			return err
		}
		before, err = takeSnapshot(ctx, tx, groupID, count, threshold)
		if err != nil {
			return err
		}
		if _, err := tx.InsertMembers(ctx, groupID, toAdd); err != nil {
			return err
		}
		added = membersOf(toAdd, names)
		after = before.withAdded(added)
		return nil
	})
	if err != nil {
		return MembershipResult{}, err
	}
	if len(added) == 0 {
		return MembershipResult{
			Skipped: skipped,
			Message: fmt.Sprintf("No members added to %s; %d already member(s)", group.Name, skipped),
		}, nil
	}
	s.auditMembership(ctx, group, before, after)
	s.invalidateUsers(ctx, idsOf(added))
	msg := fmt.Sprintf("Added %d member(s) to %s", len(added), group.Name)
	if skipped > 0 {
		msg += fmt.Sprintf(", %d already member(s)", skipped)
	}
	return MembershipResult{Added: len(added), Skipped: skipped, Message: msg}, nil
}

// RemoveMembers removes the users that are actually members. The returned
// count reflects rows deleted, never the size of the request.
func (s *Service) RemoveMembers(ctx context.Context, groupID int64, userIDs []int64) (MembershipResult, error) {
	requested := dedupeIDs(userIDs)
	var (
		group   Group
		before  memberSnapshot
		after   memberSnapshot
		removed []int64
		skipped int
	)
	threshold := s.threshold()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		toRemove, err := tx.MembersAmong(ctx, groupID, requested)
		if err != nil {
			return err
		}
		skipped = len(requested) - len(toRemove)
		if len(toRemove) == 0 {
			return nil
		}
		count, err := tx.CountMembers(ctx, groupID)
		if err != nil {
			return err
		}
		before, err = takeSnapshot(ctx, tx, groupID, count, threshold)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteMembers(ctx, groupID, toRemove); err != nil {
			return err
		}
		removed = toRemove
		after = before.withRemoved(toRemove)
		return nil
	})
	if err != nil {
		return MembershipResult{}, err
	}
	if len(removed) == 0 {
		return MembershipResult{
			Skipped: skipped,
			Message: fmt.Sprintf("No members removed from %s; %d not member(s)", group.Name, skipped),
		}, nil
	}
	s.auditMembership(ctx, group, before, after)
	s.invalidateUsers(ctx, removed)
	msg := fmt.Sprintf("Removed %d member(s) from %s", len(removed), group.Name)
	if skipped > 0 {
		msg += fmt.Sprintf(", %d not member(s)", skipped)
	}
	return MembershipResult{Removed: len(removed), Skipped: skipped, Message: msg}, nil
}

// TransferMembers removes the users from the source group unconditionally
// and adds to the target only those not already present. Both groups are
// mutated in one transaction; each affected group gets its own audit entry,
// and a target that gains nothing gets none.
func (s *Service) TransferMembers(ctx context.Context, sourceID, targetID int64, userIDs []int64) (MembershipResult, error) {
	requested := dedupeIDs(userIDs)
	var (
		source, target       Group
		srcBefore, srcAfter  memberSnapshot
		tgtBefore, tgtAfter  memberSnapshot
		removedIDs, addedIDs []int64
	)
	threshold := s.threshold()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		source, err = tx.GetGroup(ctx, sourceID)
		if err != nil {
			return err
		}
		target, err = tx.GetGroup(ctx, targetID)
		if err != nil {
			return err
		}
		names, err := resolveNames(ctx, tx, requested)
		if err != nil {
			return err
		}
		removedIDs, err = tx.MembersAmong(ctx, sourceID, requested)
		if err != nil {
			return err
		}
		inTarget, err := tx.MembersAmong(ctx, targetID, requested)
		if err != nil {
			return err
		}
		addedIDs = differenceIDs(requested, inTarget)
		if len(removedIDs) == 0 && len(addedIDs) == 0 {
			return nil
		}
		if len(removedIDs) > 0 {
			count, err := tx.CountMembers(ctx, sourceID)
			if err != nil {
				return err
			}
			srcBefore, err = takeSnapshot(ctx, tx, sourceID, count, threshold)
			if err != nil {
				return err
			}
			if _, err := tx.DeleteMembers(ctx, sourceID, removedIDs); err != nil {
				return err
			}
			srcAfter = srcBefore.withRemoved(removedIDs)
		}
		if len(addedIDs) > 0 {
			count, err := tx.CountMembers(ctx, targetID)
			if err != nil {
				return err
			}
			tgtBefore, err = takeSnapshot(ctx, tx, targetID, count, threshold)
			if err != nil {
				return err
			}
			if _, err := tx.InsertMembers(ctx, targetID, addedIDs); err != nil {
				return err
			}
			tgtAfter = tgtBefore.withAdded(membersOf(addedIDs, names))
		}
		return nil
	})
	if err != nil {
		return MembershipResult{}, err
	}
	if len(removedIDs) == 0 && len(addedIDs) == 0 {
		return MembershipResult{
			Skipped: len(requested),
			Message: fmt.Sprintf("No members transferred from %s to %s", source.Name, target.Name),
		}, nil
	}
	if len(removedIDs) > 0 {
		s.auditMembership(ctx, source, srcBefore, srcAfter)
	}
	if len(addedIDs) > 0 {
		s.auditMembership(ctx, target, tgtBefore, tgtAfter)
	}
	s.invalidateUsers(ctx, unionIDs(removedIDs, addedIDs))
	msg := fmt.Sprintf("Transferred %d member(s) from %s to %s", len(addedIDs), source.Name, target.Name)
	if skipped := len(requested) - len(addedIDs); skipped > 0 {
		msg += fmt.Sprintf(", %d already in target", skipped)
	}
	return MembershipResult{
		Added:   len(addedIDs),
		Removed: len(removedIDs),
		Skipped: len(requested) - len(addedIDs),
		Message: msg,
	}, nil
}

func (s *Service) threshold() int {
	return s.settings.Int(shared.SettingLargeGroupThreshold, DefaultLargeGroupThreshold)
}

func (s *Service) auditMembership(ctx context.Context, group Group, before, after memberSnapshot) {
	s.record(ctx, audit.Entry{
		Event:         audit.EventUpdated,
		AuditableType: "group",
		AuditableID:   group.ID,
		OldValues:     before.values(),
		NewValues:     after.values(),
		Tags:          []string{"groups", "membership"},
	})
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("event", entry.Event), slog.Any("error", err))
	}
}

func (s *Service) invalidateUsers(ctx context.Context, userIDs []int64) {
	if err := s.cache.InvalidateUsers(ctx, userIDs); err != nil {
		s.logger.Warn("permission cache invalidation failed",
			slog.Int("users", len(userIDs)), slog.Any("error", err))
	}
}

func (s *Service) invalidateGroup(ctx context.Context, groupID int64, memberIDs []int64) {
	if err := s.cache.InvalidateGroup(ctx, groupID, memberIDs); err != nil {
		s.logger.Warn("group cache invalidation failed",
			slog.Int64("group_id", groupID), slog.Any("error", err))
	}
}

// resolveNames looks up display names for every id, failing with ErrNotFound
// when a requested user does not exist. The check runs before any write so a
// bad id aborts the whole transaction.
func resolveNames(ctx context.Context, tx TxStore, userIDs []int64) (map[int64]string, error) {
	names, err := tx.UserNames(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if _, ok := names[id]; !ok {
			return nil, fmt.Errorf("groups: user %d: %w", id, shared.ErrNotFound)
		}
	}
	return names, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func differenceIDs(ids, exclude []int64) []int64 {
	excluded := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := excluded[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func unionIDs(a, b []int64) []int64 {
	return dedupeIDs(append(append([]int64{}, a...), b...))
}

func membersOf(ids []int64, names map[int64]string) []Member {
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, Member{ID: id, Name: names[id]})
	}
	return members
}

func idsOf(members []Member) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
