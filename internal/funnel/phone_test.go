package funnel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxbridge-edu/admissions-bot/internal/funnel"
)

func TestValidatePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"local seven digits", "1234567", true},
		{"formatted uzbek number", "+998 90 123 45 67", true},
		{"digits with separators", "90-123-45-67", true},
		{"too short", "12345", false},
		{"words only", "call me", false},
		{"empty", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, funnel.ValidatePhone(tc.input))
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare nine digits gets country code", "901234567", "+998901234567"},
		{"bare seven digits gets country code", "1234567", "+9981234567"},
		{"nine digits with separators", "90 123 45 67", "+998901234567"},
		{"full international untouched", "+998901234567", "+998901234567"},
		{"long number without plus", "998901234567", "+998901234567"},
		{"strips punctuation", "+998 (90) 123-45-67", "+998901234567"},
		{"short odd input kept as digits", "12345", "12345"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, funnel.NormalizePhone(tc.input))
		})
	}
}
