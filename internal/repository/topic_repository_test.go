package repository

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordPattern(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     string
	}{
		{name: "joins keywords", keywords: []string{"Momentum", "Impulse"}, want: "Momentum|Impulse"},
		{name: "escapes metacharacters", keywords: []string{"C++", "a.b", "(x)"}, want: `C\+\+|a\.b|\(x\)`},
		{name: "skips blanks", keywords: []string{" ", "Torque", ""}, want: "Torque"},
		{name: "empty", keywords: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeywordPattern(tt.keywords))
		})
	}
}

func TestKeywordPattern_MatchesLiterally(t *testing.T) {
	re := regexp.MustCompile("(?i)" + KeywordPattern([]string{"Ohm's", "v=ir"}))

	assert.True(t, re.MatchString("Applying OHM'S law"))
	assert.True(t, re.MatchString("use V=IR here"))
	assert.False(t, re.MatchString("vXir"))
}
