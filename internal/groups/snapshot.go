package groups

import (
	"context"
	"fmt"
	"sort"
)

// memberSnapshot is the audit view of a group's membership at a point in
// time. Small groups carry the full roster; groups over the threshold carry
// only a count, rendered as a "[N members]" placeholder. Whether a group is
// large is decided once, from the pre-change count, and sticks for the
// after-state too.
type memberSnapshot struct {
	large  bool
	count  int
	roster []Member
}

// takeSnapshot captures the current membership. The roster is only loaded
// for small groups; for large ones the count alone is enough.
func takeSnapshot(ctx context.Context, tx TxStore, groupID int64, count, threshold int) (memberSnapshot, error) {
	if count > threshold {
		return memberSnapshot{large: true, count: count}, nil
	}
	roster, err := tx.MemberRoster(ctx, groupID)
	if err != nil {
		return memberSnapshot{}, err
	}
	return memberSnapshot{count: count, roster: roster}, nil
}

// withAdded derives the after-state from a committed insert without
// re-reading the roster.
func (s memberSnapshot) withAdded(added []Member) memberSnapshot {
	next := memberSnapshot{large: s.large, count: s.count + len(added)}
	if !s.large {
		next.roster = append(append([]Member{}, s.roster...), added...)
	}
	return next
}

// withRemoved derives the after-state from a committed delete.
func (s memberSnapshot) withRemoved(removed []int64) memberSnapshot {
	next := memberSnapshot{large: s.large, count: s.count - len(removed)}
	if !s.large {
		gone := make(map[int64]struct{}, len(removed))
		for _, id := range removed {
			gone[id] = struct{}{}
		}
		next.roster = make([]Member, 0, len(s.roster))
		for _, m := range s.roster {
			if _, ok := gone[m.ID]; !ok {
				next.roster = append(next.roster, m)
			}
		}
	}
	return next
}

// values renders the snapshot as audit old/new values. Names and ids are
// sorted so equal memberships always serialize identically.
func (s memberSnapshot) values() map[string]any {
	if s.large {
		placeholder := fmt.Sprintf("[%d members]", s.count)
		return map[string]any{
			"members":    []string{placeholder},
			"member_ids": []string{placeholder},
		}
	}
	names := make([]string, 0, len(s.roster))
	ids := make([]int64, 0, len(s.roster))
	for _, m := range s.roster {
		names = append(names, m.Name)
		ids = append(ids, m.ID)
	}
	sort.Strings(names)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return map[string]any{
		"members":    names,
		"member_ids": ids,
	}
}
