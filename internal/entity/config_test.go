package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRegistry(t *testing.T) {
	r := DefaultRegistry()

	names := make([]string, 0)
	for _, cfg := range r.All() {
		names = append(names, cfg.Name)
		assert.NotEmpty(t, cfg.Title, cfg.Name)
		assert.Positive(t, cfg.PageSize, cfg.Name)
		assert.NotEmpty(t, cfg.ListFields(), cfg.Name)
	}
	assert.ElementsMatch(t, []string{
		"countries", "states", "cities", "dioceses", "parishes", "communities",
		"people", "marriages", "teams", "charisms", "steps",
	}, names)

	cfg, ok := r.ByRoute("/ciudades")
	require.True(t, ok)
	assert.Equal(t, "cities", cfg.Name)

	_, ok = r.ByRoute("/nope")
	assert.False(t, ok)
}

func TestNewRegistryRejectsBadConfigs(t *testing.T) {
	cases := map[string][]Config{
		"missing route":   {{Name: "a"}},
		"duplicate name":  {{Name: "a", Route: "/a"}, {Name: "a", Route: "/b"}},
		"duplicate route": {{Name: "a", Route: "/a"}, {Name: "b", Route: "/a"}},
		"dangling ref": {{Name: "a", Route: "/a", Fields: []Field{
			{Name: "b_id", Type: FieldRef, Ref: "b"},
		}}},
		"unknown default sort": {{Name: "a", Route: "/a", DefaultSort: "-missing"}},
	}
	for name, configs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(configs...)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistryDefaultsPageSize(t *testing.T) {
	r, err := NewRegistry(Config{Name: "a", Route: "/a"})
	require.NoError(t, err)
	cfg, _ := r.Lookup("a")
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
}
