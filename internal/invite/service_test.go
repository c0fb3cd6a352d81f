package invite_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/riffle/internal/invite"
)

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := invite.NewCode()
		require.NoError(t, err)
		require.Len(t, code, 8)
		assert.False(t, strings.ContainsAny(code, "01ILO"), "code %q should avoid look-alike characters", code)
		seen[code] = true
	}

	assert.Greater(t, len(seen), 95, "codes should be random")
}

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"abcd-efgh":    "ABCDEFGH",
		"  ABCD EFGH ": "ABCDEFGH",
		"":             "",
	}

	for in, want := range tests {
		assert.Equal(t, want, invite.NormalizeCode(in), "input %q", in)
	}
}
