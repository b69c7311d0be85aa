package rbac

import (
	"context"
	"log/slog"
)

// ActiveUserSource yields the users worth pre-warming, most recently active
// first.
type ActiveUserSource interface {
	ActiveUserIDs(ctx context.Context, limit int) ([]int64, error)
}

// PermissionLoader computes a user's effective permission set, populating the
// cache as a side effect. Satisfied by Service.
type PermissionLoader interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Warmer pre-computes permission cache entries so the first request after an
// invalidation sweep does not pay the recomputation cost.
type Warmer struct {
	source ActiveUserSource
	perms  PermissionLoader
	logger *slog.Logger
}

// NewWarmer constructs a Warmer.
func NewWarmer(source ActiveUserSource, perms PermissionLoader, logger *slog.Logger) *Warmer {
	return &Warmer{source: source, perms: perms, logger: logger}
}

// WarmPermissions loads permissions for up to limit active users. Per-user
// failures are logged and skipped; the sweep keeps going.
func (w *Warmer) WarmPermissions(ctx context.Context, limit int) error {
	ids, err := w.source.ActiveUserIDs(ctx, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := w.perms.EffectivePermissions(ctx, id); err != nil {
			w.logger.Warn("permission warmup", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
	return nil
}
