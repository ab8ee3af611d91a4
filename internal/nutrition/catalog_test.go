package nutrition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleData = `{
	"cheeseburger": {"calories": 303, "protein_g": 15, "fat_g": 14},
	"Pizza": {"calories": 266, "protein_g": 11},
	"default": {"calories": 0, "note": "no data"}
}`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nutrition_data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Lookup(t *testing.T) {
	catalog, err := Load(writeFile(t, sampleData))
	require.NoError(t, err)

	tests := []struct {
		label    string
		expected string
	}{
		{"cheeseburger", `{"calories": 303, "protein_g": 15, "fat_g": 14}`},
		{"CheeseBurger", `{"calories": 303, "protein_g": 15, "fat_g": 14}`},
		{"pizza", `{"calories": 266, "protein_g": 11}`},
		{"hamburger", `{"calories": 0, "note": "no data"}`},
		{"", `{"calories": 0, "note": "no data"}`},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, string(catalog.Lookup(tt.label)))
		})
	}
	assert.Equal(t, 3, catalog.Len())
	assert.True(t, catalog.Has("PIZZA"))
	assert.False(t, catalog.Has("hamburger"))
}

func TestLookup_PassesRecordThroughUnchanged(t *testing.T) {
	record := json.RawMessage(`{"calories":303,"nested":{"a":[1,2,3]}}`)
	catalog, err := New(map[string]json.RawMessage{
		"cheeseburger": record,
		"default":      json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	assert.Equal(t, string(record), string(catalog.Lookup("cheeseburger")))
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{"default": `},
		{"not an object", `[1, 2, 3]`},
		{"null document", `null`},
		{"missing default", `{"pizza": {"calories": 266}}`},
		{"duplicate after lower-casing", `{"Pizza": {}, "pizza": {}, "default": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_MissingDefault(t *testing.T) {
	_, err := New(map[string]json.RawMessage{"pizza": json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrMissingDefault)
}

func TestLoad_ShippedData(t *testing.T) {
	catalog, err := Load(filepath.Join("..", "..", "nutrition_data.json"))
	require.NoError(t, err)
	assert.True(t, catalog.Has("cheeseburger"))
	assert.Equal(t, string(catalog.Default()), string(catalog.Lookup("hamburger")))
}
