package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	cases := []struct {
		name, in, mustNotContain string
	}{
		{"email", "write to ward.office@city.gov.in today", "ward.office@"},
		{"indian mobile", "call +91 98765 43210 after 6", "43210"},
		{"dashed", "landline 080-2345-6789", "2345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := RedactPII(tc.in)
			assert.NotContains(t, out, tc.mustNotContain)
			assert.Contains(t, out, "[redacted")
		})
	}
}

func TestRedactPII_KeepsShortNumbers(t *testing.T) {
	in := "House 42, Ward 7, pothole 3 ft wide"
	assert.Equal(t, in, RedactPII(in))
	assert.Equal(t, "", RedactPII(""))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "short", Summary("short", 10))

	out := Summary("the drain near the school is blocked", 14)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Equal(t, "the drain near…", out)

	assert.Equal(t, "abcdef…", Summary("abcdefghijkl", 6))
}
