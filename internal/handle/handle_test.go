package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already normalized", "acme", "acme"},
		{"company with punctuation", "Acme Co.", "acme-co"},
		{"uppercase", "BETA", "beta"},
		{"whitespace run", "big   \t bold", "big-bold"},
		{"leading and trailing space", "  acme ", "-acme-"},
		{"disallowed characters", "a_b!c@d#1", "abcd1"},
		{"keeps hyphens", "my-club-2", "my-club-2"},
		{"non-ascii letters dropped", "Café Société", "caf-socit"},
		{"empty", "", ""},
		{"fully stripped", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "Acme Co.", "  spaced   out  ", "ÜBER club", "a--b", "x\ny\tz", "123 Main St."}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		assert.Equal(t, once, Normalize(in), "deterministic for %q", in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("acme-co"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("Acme"))
}
