package groups

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Editors":            "editors",
		"  Content Team  ":   "content-team",
		"Ops / On-Call":      "ops-on-call",
		"Führungskräfte":     "f-hrungskr-fte",
		"--weird--input--":   "weird-input",
		"ALL CAPS  &  MORE!": "all-caps-more",
	}
	for input, want := range cases {
		require.Equal(t, want, Slugify(input), "input %q", input)
	}
}
