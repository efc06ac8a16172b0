package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	props := map[string]any{
		"MessageFormat": "Version 1.1",
		"priority":      int32(7),
		"weight":        2.5,
		"urgent":        true,
		"region":        "eu-west",
		"path":          "100%_done",
	}

	tests := []struct {
		selector string
		want     bool
	}{
		{"", true},
		{"MessageFormat = 'Version 1.1'", true},
		{"MessageFormat = 'Version 1.0'", false},
		{"MessageFormat <> 'Version 1.0'", true},
		{"messageformat = 'Version 1.1'", false},
		{"priority > 5", true},
		{"priority >= 7 AND priority <= 7", true},
		{"priority < 5 OR weight = 2.5", true},
		{"priority + 1 = 8", true},
		{"weight * 2 = 5", true},
		{"-priority < 0", true},
		{"NOT (priority > 5)", false},
		{"urgent", true},
		{"urgent = TRUE", true},
		{"urgent = false", false},
		{"priority BETWEEN 1 AND 9", true},
		{"priority NOT BETWEEN 1 AND 9", false},
		{"region IN ('us-east', 'eu-west')", true},
		{"region NOT IN ('us-east', 'eu-west')", false},
		{"region LIKE 'eu-%'", true},
		{"region LIKE 'eu-_est'", true},
		{"region LIKE 'us%'", false},
		{"region NOT LIKE 'us%'", true},
		{`path LIKE '100\%\_%' ESCAPE '\'`, true},
		{`path LIKE '100\%x%' ESCAPE '\'`, false},
		{"missing IS NULL", true},
		{"region IS NOT NULL", true},
		{"region is not null and priority between 1 and 9", true},
		{"MessageFormat = 'it''s'", false},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			s, err := Parse(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Matches(props))
		})
	}
}

func TestUnknownNeverMatches(t *testing.T) {
	props := map[string]any{"a": "x"}

	for _, expr := range []string{
		"missing = 'x'",
		"missing <> 'x'",
		"NOT (missing = 'x')",
		"missing > 1",
		"missing LIKE 'x%'",
		"missing IN ('x')",
		"missing BETWEEN 1 AND 2",
		"a = 'x' AND missing = 'y'",
	} {
		assert.False(t, MustParse(expr).Matches(props), expr)
	}

	// unknown OR true is true
	assert.True(t, MustParse("missing = 'y' OR a = 'x'").Matches(props))
	// unknown AND false is false, so its negation is true
	assert.True(t, MustParse("NOT (missing = 'y' AND a = 'z')").Matches(props))
}

func TestMismatchedTypesCompareFalse(t *testing.T) {
	props := map[string]any{"n": 5, "s": "5"}

	assert.False(t, MustParse("n = '5'").Matches(props))
	assert.False(t, MustParse("s = 5").Matches(props))
	assert.False(t, MustParse("s > 'a'").Matches(props))
	assert.False(t, MustParse("n LIKE '5'").Matches(props))
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{
		"MessageFormat = ",
		"MessageFormat = 'unterminated",
		"(a = 1",
		"a = 1)",
		"a BETWEEN 1 2",
		"a IN ()",
		"a IN (1, 2)",
		"a LIKE 5",
		"a LIKE 'x' ESCAPE 'ab'",
		"a IS 1",
		"a NOT = 1",
		"a # b",
		"AND",
	} {
		_, err := Parse(expr)
		require.Error(t, err, expr)
		assert.True(t, errors.Is(err, ErrSyntax), expr)
	}
}

func TestString(t *testing.T) {
	s := MustParse("MessageFormat = 'Version 1.1'")
	assert.Equal(t, "MessageFormat = 'Version 1.1'", s.String())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("a =") })
}
