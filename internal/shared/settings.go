package shared

import "time"

// Setting names consumed across the application.
const (
	SettingLargeGroupThreshold = "groups.large_group_threshold"
	SettingCacheChunkSize      = "cache.chunk_size"
	SettingPermissionCacheTTL  = "cache.permission_ttl"
	SettingSessionTTL          = "auth.session_ttl"
)

// Settings resolves named configuration values, falling back to the
// caller-supplied default when a value is absent or of the wrong kind.
type Settings interface {
	Int(name string, fallback int) int
	Duration(name string, fallback time.Duration) time.Duration
}

// StaticSettings serves lookups from a fixed map, typically assembled from
// the environment config at startup.
type StaticSettings map[string]any

// Int returns the named integer setting.
func (s StaticSettings) Int(name string, fallback int) int {
	switch v := s[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

// Duration returns the named duration setting.
func (s StaticSettings) Duration(name string, fallback time.Duration) time.Duration {
	if v, ok := s[name].(time.Duration); ok {
		return v
	}
	return fallback
}
