package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "empty", input: []string{}, expected: []string{}},
		{name: "env style list", input: []string{"app://camino", " http://localhost:3000", "", "app://camino"}, expected: []string{"app://camino", "http://localhost:3000"}},
		{name: "only blanks", input: []string{" ", ""}, expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestRoutePrefixes(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "already clean", input: []string{"/login", "/auth"}, expected: []string{"/login", "/auth"}},
		{name: "missing leading slash", input: []string{"login"}, expected: []string{"/login"}},
		{name: "trailing slash", input: []string{"/auth/", "/auth"}, expected: []string{"/auth"}},
		{name: "root dropped", input: []string{"/", " / ", "/healthz"}, expected: []string{"/healthz"}},
		{name: "nested kept", input: []string{" /api/public/ "}, expected: []string{"/api/public"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoutePrefixes(tt.input))
		})
	}
}
