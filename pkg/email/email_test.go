package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"admin@camino.test", "Admin"},
		{"maria.lopez@example.org", "Maria Lopez"},
		{"JOSE_ramirez-gil@example.org", "Jose Ramirez Gil"},
		{"ángela+camino@example.org", "Ángela"},
		{"...@example.org", "...@example.org"},
		{"@example.org", "@example.org"},
		{"not-an-address", "not-an-address"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.expected, DisplayName(tt.address))
		})
	}
}
