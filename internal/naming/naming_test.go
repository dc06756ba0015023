package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"reserved characters", `Lecture: 01 "Intro" <HD>`, "Lecture_ 01 _Intro_ _HD_"},
		{"path separators", `Analysis/2021\WS`, "Analysis_2021_WS"},
		{"whitespace collapse", "Linear  Algebra\n\tWeek 2  ", "Linear Algebra Week 2"},
		{"already clean", "Diskrete Strukturen", "Diskrete Strukturen"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, "\\")
			assert.Equal(t, got, SanitizeName(got), "sanitization must be idempotent")
		})
	}
}

func TestSanitizeNameNeverLeaksReserved(t *testing.T) {
	got := SanitizeName(`a\b/c*d?e:f"g<h>i|j`)
	for _, r := range `\/*?:"<>|` {
		assert.NotContains(t, got, string(r))
	}
}

func TestDeriveYearOrFallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/course/2021/S/ma0005", "2021"},
		{"/course/noyear/ma0005", "course/noyear/ma0005"},
		{"/2024", "2024"},
		{"/old/1999/ma0001", "old/1999/ma0001"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveYearOrFallback(tt.in), "input %q", tt.in)
	}
}
