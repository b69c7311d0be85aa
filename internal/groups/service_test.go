package groups

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

type memoryGroupStore struct {
	groups  map[int64]Group
	users   map[int64]string
	members map[int64][]int64
	nextID  int64
}

func newMemoryGroupStore() *memoryGroupStore {
	return &memoryGroupStore{
		groups:  make(map[int64]Group),
		users:   make(map[int64]string),
		members: make(map[int64][]int64),
		nextID:  1,
	}
}

func (s *memoryGroupStore) addGroup(name string) Group {
	g := Group{ID: s.nextID, Name: name, Slug: Slugify(name), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.nextID++
	s.groups[g.ID] = g
	return g
}

func (s *memoryGroupStore) addUser(id int64, name string) {
	s.users[id] = name
}

func (s *memoryGroupStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return fn(ctx, s)
}

func (s *memoryGroupStore) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	return g, nil
}

func (s *memoryGroupStore) GetGroupBySlug(ctx context.Context, slug string) (Group, error) {
	for _, g := range s.groups {
		if g.Slug == slug {
			return g, nil
		}
	}
	return Group{}, shared.ErrNotFound
}

func (s *memoryGroupStore) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *memoryGroupStore) CreateGroup(ctx context.Context, name, slug, description string) (Group, error) {
	for _, g := range s.groups {
		if g.Slug == slug {
			return Group{}, ErrGroupExists
		}
	}
	g := s.addGroup(name)
	g.Description = description
	s.groups[g.ID] = g
	return g, nil
}

func (s *memoryGroupStore) UpdateGroup(ctx context.Context, id int64, name, slug, description string) (Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	g.Name, g.Slug, g.Description = name, slug, description
	g.UpdatedAt = time.Now()
	s.groups[id] = g
	return g, nil
}

func (s *memoryGroupStore) CountMembers(ctx context.Context, groupID int64) (int, error) {
	return len(s.members[groupID]), nil
}

func (s *memoryGroupStore) MemberRoster(ctx context.Context, groupID int64) ([]Member, error) {
	ids := append([]int64{}, s.members[groupID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	roster := make([]Member, 0, len(ids))
	for _, id := range ids {
		roster = append(roster, Member{ID: id, Name: s.users[id]})
	}
	return roster, nil
}

func (s *memoryGroupStore) MembersAmong(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error) {
	current := make(map[int64]struct{}, len(s.members[groupID]))
	for _, id := range s.members[groupID] {
		current[id] = struct{}{}
	}
	var ids []int64
	for _, id := range userIDs {
		if _, ok := current[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memoryGroupStore) UserNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *memoryGroupStore) InsertMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error) {
	current := make(map[int64]struct{}, len(s.members[groupID]))
	for _, id := range s.members[groupID] {
		current[id] = struct{}{}
	}
	var inserted int64
	for _, id := range userIDs {
		if _, ok := current[id]; ok {
			continue
		}
		s.members[groupID] = append(s.members[groupID], id)
		inserted++
	}
	return inserted, nil
}

func (s *memoryGroupStore) DeleteMembers(ctx context.Context, groupID int64, userIDs []int64) (int64, error) {
	gone := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		gone[id] = struct{}{}
	}
	kept := s.members[groupID][:0]
	var deleted int64
	for _, id := range s.members[groupID] {
		if _, ok := gone[id]; ok {
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.members[groupID] = kept
	return deleted, nil
}

func (s *memoryGroupStore) DeleteGroup(ctx context.Context, id int64) error {
	if _, ok := s.groups[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (r *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type captureInvalidator struct {
	userBatches [][]int64
	groupIDs    []int64
}

func (c *captureInvalidator) InvalidateUsers(ctx context.Context, userIDs []int64) error {
	c.userBatches = append(c.userBatches, append([]int64{}, userIDs...))
	return nil
}

func (c *captureInvalidator) InvalidateGroup(ctx context.Context, groupID int64, memberIDs []int64) error {
	c.groupIDs = append(c.groupIDs, groupID)
	return nil
}

func newTestService(store *memoryGroupStore, settings shared.Settings) (*Service, *captureRecorder, *captureInvalidator) {
	if settings == nil {
		settings = shared.StaticSettings{}
	}
	recorder := &captureRecorder{}
	invalidator := &captureInvalidator{}
	svc := NewService(store, invalidator, recorder, settings, slog.Default())
	return svc, recorder, invalidator
}

func seedEditors(store *memoryGroupStore) Group {
	store.addUser(1, "Alice")
	store.addUser(2, "Bob")
	store.addUser(3, "Carol")
	store.addUser(4, "Dave")
	g := store.addGroup("Editors")
	store.members[g.ID] = []int64{1, 2, 3}
	return g
}

func TestRemoveMembersCountsOnlyActualRemovals(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, invalidator := newTestService(store, nil)

	res, err := svc.RemoveMembers(context.Background(), g.ID, []int64{2, 4})
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed)
	require.Equal(t, 1, res.Skipped)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, audit.EventUpdated, entry.Event)
	require.Equal(t, "group", entry.AuditableType)
	require.Equal(t, g.ID, entry.AuditableID)
	require.Equal(t, []string{"Alice", "Bob", "Carol"}, entry.OldValues["members"])
	require.Equal(t, []int64{1, 2, 3}, entry.OldValues["member_ids"])
	require.Equal(t, []string{"Alice", "Carol"}, entry.NewValues["members"])
	require.Equal(t, []int64{1, 3}, entry.NewValues["member_ids"])

	require.Equal(t, [][]int64{{2}}, invalidator.userBatches)
}

func TestAddMembersAllExistingIsSilent(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, invalidator := newTestService(store, nil)

	res, err := svc.AddMembers(context.Background(), g.ID, []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, 0, res.Added)
	require.Equal(t, 2, res.Skipped)
	require.Empty(t, recorder.entries)
	require.Empty(t, invalidator.userBatches)
	require.ElementsMatch(t, []int64{1, 2, 3}, store.members[g.ID])
}

func TestAddMembersSkipsExistingAndDedupes(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, invalidator := newTestService(store, nil)

	res, err := svc.AddMembers(context.Background(), g.ID, []int64{2, 4, 4})
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, res.Skipped)
	require.ElementsMatch(t, []int64{1, 2, 3, 4}, store.members[g.ID])

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, []string{"Alice", "Bob", "Carol"}, entry.OldValues["members"])
	require.Equal(t, []string{"Alice", "Bob", "Carol", "Dave"}, entry.NewValues["members"])
	require.Equal(t, []int64{1, 2, 3, 4}, entry.NewValues["member_ids"])

	require.Equal(t, [][]int64{{4}}, invalidator.userBatches)
}

func TestAddMembersUnknownUserFails(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, _ := newTestService(store, nil)

	_, err := svc.AddMembers(context.Background(), g.ID, []int64{4, 99})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, recorder.entries)
	require.ElementsMatch(t, []int64{1, 2, 3}, store.members[g.ID])
}

func TestRemoveMembersIdempotent(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, invalidator := newTestService(store, nil)

	_, err := svc.RemoveMembers(context.Background(), g.ID, []int64{2})
	require.NoError(t, err)

	res, err := svc.RemoveMembers(context.Background(), g.ID, []int64{2})
	require.NoError(t, err)
	require.Equal(t, 0, res.Removed)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, recorder.entries, 1)
	require.Len(t, invalidator.userBatches, 1)
}

func TestTransferMembers(t *testing.T) {
	store := newMemoryGroupStore()
	src := seedEditors(store)
	tgt := store.addGroup("Writers")
	store.members[tgt.ID] = []int64{2}
	svc, recorder, invalidator := newTestService(store, nil)

	res, err := svc.TransferMembers(context.Background(), src.ID, tgt.ID, []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 2, res.Removed)
	require.Equal(t, 1, res.Skipped)
	require.ElementsMatch(t, []int64{3}, store.members[src.ID])
	require.ElementsMatch(t, []int64{1, 2}, store.members[tgt.ID])

	require.Len(t, recorder.entries, 2)
	require.Equal(t, src.ID, recorder.entries[0].AuditableID)
	require.Equal(t, []string{"Carol"}, recorder.entries[0].NewValues["members"])
	require.Equal(t, tgt.ID, recorder.entries[1].AuditableID)
	require.Equal(t, []string{"Alice", "Bob"}, recorder.entries[1].NewValues["members"])

	require.Len(t, invalidator.userBatches, 1)
	require.ElementsMatch(t, []int64{1, 2}, invalidator.userBatches[0])
}

func TestTransferMembersNoChangeIsSilent(t *testing.T) {
	store := newMemoryGroupStore()
	src := seedEditors(store)
	tgt := store.addGroup("Writers")
	store.members[tgt.ID] = []int64{4}
	svc, recorder, invalidator := newTestService(store, nil)

	// User 4 is not in the source and already in the target.
	res, err := svc.TransferMembers(context.Background(), src.ID, tgt.ID, []int64{4})
	require.NoError(t, err)
	require.Equal(t, 0, res.Added)
	require.Equal(t, 0, res.Removed)
	require.Equal(t, 1, res.Skipped)
	require.Empty(t, recorder.entries)
	require.Empty(t, invalidator.userBatches)
}

func TestTransferMembersUnknownUserFails(t *testing.T) {
	store := newMemoryGroupStore()
	src := seedEditors(store)
	tgt := store.addGroup("Writers")
	svc, recorder, _ := newTestService(store, nil)

	_, err := svc.TransferMembers(context.Background(), src.ID, tgt.ID, []int64{1, 99})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, recorder.entries)
	require.ElementsMatch(t, []int64{1, 2, 3}, store.members[src.ID])
	require.Empty(t, store.members[tgt.ID])
}

func TestLargeGroupSnapshotsUsePlaceholders(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	settings := shared.StaticSettings{shared.SettingLargeGroupThreshold: 2}
	svc, recorder, _ := newTestService(store, settings)

	res, err := svc.RemoveMembers(context.Background(), g.ID, []int64{2})
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	require.Equal(t, []string{"[3 members]"}, entry.OldValues["members"])
	require.Equal(t, []string{"[3 members]"}, entry.OldValues["member_ids"])
	require.Equal(t, []string{"[2 members]"}, entry.NewValues["members"])
	require.Equal(t, []string{"[2 members]"}, entry.NewValues["member_ids"])
}

func TestSmallGroupAtThresholdKeepsRoster(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	settings := shared.StaticSettings{shared.SettingLargeGroupThreshold: 3}
	svc, recorder, _ := newTestService(store, settings)

	_, err := svc.RemoveMembers(context.Background(), g.ID, []int64{3})
	require.NoError(t, err)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, []string{"Alice", "Bob", "Carol"}, recorder.entries[0].OldValues["members"])
}

func TestDeleteGroupRequiresEmpty(t *testing.T) {
	store := newMemoryGroupStore()
	g := seedEditors(store)
	svc, recorder, invalidator := newTestService(store, nil)

	err := svc.DeleteGroup(context.Background(), g.ID)
	require.ErrorIs(t, err, ErrGroupNotEmpty)
	require.Empty(t, recorder.entries)

	_, err = svc.RemoveMembers(context.Background(), g.ID, []int64{1, 2, 3})
	require.NoError(t, err)

	err = svc.DeleteGroup(context.Background(), g.ID)
	require.NoError(t, err)
	require.NotContains(t, store.groups, g.ID)

	last := recorder.entries[len(recorder.entries)-1]
	require.Equal(t, audit.EventDeleted, last.Event)
	require.Equal(t, "Editors", last.OldValues["name"])
	require.Equal(t, []int64{g.ID}, invalidator.groupIDs)
}

func TestCreateGroupSlugAndAudit(t *testing.T) {
	store := newMemoryGroupStore()
	svc, recorder, _ := newTestService(store, nil)

	g, err := svc.CreateGroup(context.Background(), "  Content Team ", "writes things")
	require.NoError(t, err)
	require.Equal(t, "Content Team", g.Name)
	require.Equal(t, "content-team", g.Slug)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.EventCreated, recorder.entries[0].Event)
	require.Equal(t, "content-team", recorder.entries[0].NewValues["slug"])

	_, err = svc.CreateGroup(context.Background(), "Content Team", "dup")
	require.ErrorIs(t, err, ErrGroupExists)
}
