package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		plaintext string
		minLength int
		groups    string
		reason    Reason
	}{
		{name: "too short", plaintext: "abc", minLength: 6, reason: ReasonTooShort},
		{name: "missing class", plaintext: "abcdef", minLength: 6, groups: "0-9", reason: ReasonMissingClass},
		{name: "digit present", plaintext: "abc123", minLength: 6, groups: "0-9"},
		{name: "no policy", plaintext: ""},
		{name: "any group suffices", plaintext: "abcdef", minLength: 6, groups: "0-9|a-z"},
		{name: "runes not bytes", plaintext: "ééé", minLength: 4, reason: ReasonTooShort},
		{name: "escaped pipe", plaintext: "abc|de", minLength: 6, groups: `0-9 | \|`},
		{name: "default policy", plaintext: "hunter22", minLength: DefaultMinLength, groups: DefaultCharacterGroups},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.plaintext, tc.minLength, tc.groups)
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			var violation *PolicyViolation
			require.True(t, errors.As(err, &violation))
			require.Equal(t, tc.reason, violation.Reason)
			require.ErrorIs(t, err, ErrPolicyViolation)
		})
	}
}

func TestValidateMessages(t *testing.T) {
	err := Validate("abc", 6, "")
	require.EqualError(t, err, "Password must be at least 6 characters")

	err = Validate("abcdef", 0, "0-9|  ~!  ")
	require.EqualError(t, err, "Password must contain at least one of {0-9}, {~!}")
}

func TestParseGroups(t *testing.T) {
	groups := ParseGroups(DefaultCharacterGroups)
	require.Len(t, groups, 2)
	require.Equal(t, "A-Za-z0-9", groups[0].Source)
	require.True(t, groups[0].Contains('q'))
	require.True(t, groups[0].Contains('Q'))
	require.True(t, groups[0].Contains('7'))
	require.False(t, groups[0].Contains('-'))

	require.True(t, strings.HasSuffix(groups[1].Source, "?|"))
	for _, r := range "~`-(|\\^'\"" {
		require.True(t, groups[1].Contains(r), "rune %q", r)
	}
	require.False(t, groups[1].Contains('a'))

	require.Empty(t, ParseGroups("  |  | "))
}

func TestParseGroupsMixedRangeIsLiteral(t *testing.T) {
	groups := ParseGroups("a-Z")
	require.Len(t, groups, 1)
	require.True(t, groups[0].Contains('a'))
	require.True(t, groups[0].Contains('-'))
	require.True(t, groups[0].Contains('Z'))
	require.False(t, groups[0].Contains('m'))
}

func TestHashDeterministic(t *testing.T) {
	salt := "pepper"
	first := Hash("alice", "secret", salt)
	require.Equal(t, first, Hash("alice", "secret", salt))
	require.Len(t, first, 64)

	require.NotEqual(t, first, Hash("alicf", "secret", salt))
	require.NotEqual(t, first, Hash("alice", "secreu", salt))
	require.NotEqual(t, first, Hash("alice", "secret", "peppes"))
}

func TestHashNormalizesUnicode(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	require.Equal(t, Hash("bob", composed, "s"), Hash("bob", decomposed, "s"))
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, a, saltLength)
	for _, r := range a {
		require.True(t, strings.ContainsRune(saltPool, r))
	}

	b, err := GenerateSalt()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "", Describe(0, ""))
	require.Equal(t, "Note: passwords must be at least 6 characters long.", Describe(6, ""))
	require.Equal(t,
		"Note: passwords must be at least 8 characters long and contain at least one character from {0-9}.",
		Describe(8, "0-9"))
	require.Equal(t,
		"Note: passwords must contain at least one character from each of the following groups: {0-9}, {a-z}.",
		Describe(0, "0-9|a-z"))
}
