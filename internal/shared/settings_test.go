package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticSettingsLookups(t *testing.T) {
	s := StaticSettings{
		SettingLargeGroupThreshold: 250,
		SettingPermissionCacheTTL:  30 * time.Minute,
		"oddly.typed":              "nope",
	}

	require.Equal(t, 250, s.Int(SettingLargeGroupThreshold, 100))
	require.Equal(t, 100, s.Int("missing", 100))
	require.Equal(t, 7, s.Int("oddly.typed", 7))
	require.Equal(t, 30*time.Minute, s.Duration(SettingPermissionCacheTTL, time.Hour))
	require.Equal(t, time.Hour, s.Duration("missing", time.Hour))
}
