package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var personConfig = Config{
	Name: "people", Route: "/personas",
	Fields: []Field{
		{Name: "first_name", Type: FieldText, Required: true, Searchable: true},
		{Name: "email", Type: FieldEmail, Searchable: true},
		{Name: "birth_date", Type: FieldDate},
		{Name: "children", Type: FieldInt},
		{Name: "active", Type: FieldBool},
		{Name: "community_id", Type: FieldRef, Ref: "communities"},
	},
}

func TestValidateNormalizes(t *testing.T) {
	got, err := Validate(personConfig, map[string]any{
		"first_name":   "  Ana ",
		"email":        "Ana@Example.COM",
		"birth_date":   "1990-02-03",
		"children":     float64(3),
		"active":       "on",
		"community_id": "6F9619FF-8B86-D011-B42D-00C04FC964FF",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"first_name":   "Ana",
		"email":        "ana@example.com",
		"birth_date":   "1990-02-03",
		"children":     int64(3),
		"active":       true,
		"community_id": "6f9619ff-8b86-d011-b42d-00c04fc964ff",
	}, got)
}

func TestValidateDropsEmptyOptionals(t *testing.T) {
	got, err := Validate(personConfig, map[string]any{"first_name": "Ana", "email": "", "children": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first_name": "Ana"}, got)
}

func TestValidateReportsEveryField(t *testing.T) {
	_, err := Validate(personConfig, map[string]any{
		"first_name":   " ",
		"email":        "nope",
		"birth_date":   "03/02/1990",
		"children":     1.5,
		"active":       "maybe",
		"community_id": "not-a-uuid",
		"nickname":     "x",
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"first_name":   "is required",
		"email":        "must be a valid email",
		"birth_date":   "must be a date (YYYY-MM-DD)",
		"children":     "must be a whole number",
		"active":       "must be true or false",
		"community_id": "must reference a communities id",
		"nickname":     "unknown field",
	}, verr.Fields)
	assert.Contains(t, verr.Error(), "active: must be true or false; birth_date:")
}

func TestSearchText(t *testing.T) {
	got := SearchText(personConfig, map[string]any{"first_name": "Ana", "email": "ANA@x.org", "children": int64(2)})
	assert.Equal(t, "ana ana@x.org", got)
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(FieldInt, int64(2), float64(10)))
	assert.Positive(t, Compare(FieldText, "b", "A"))
	assert.Zero(t, Compare(FieldText, "a", "A"))
	assert.Negative(t, Compare(FieldBool, false, true))
	assert.Negative(t, Compare(FieldText, nil, "a"))
	assert.Positive(t, Compare(FieldDate, "2024-01-02", "2023-12-31"))
}
