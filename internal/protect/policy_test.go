package protect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrangeIdentifierFirstThenUserThenSystem(t *testing.T) {
	p := DefaultPolicy()
	cols := p.Arrange([]string{"created_on", "cargo_type", "id", "description", "version"})

	assert.Equal(t, []string{
		"id", "cargo_type", "description",
		"version", "is_active", "tenant_id", "created_by", "created_on",
		"updated_by", "updated_on", "valid_from", "valid_to",
	}, Names(cols))
}

func TestArrangeAlwaysCarriesSystemColumns(t *testing.T) {
	cols := DefaultPolicy().Arrange(nil)
	assert.Equal(t, SystemColumns, Names(cols))
}

func TestArrangeLocksAndShadesSystemColumnsOnly(t *testing.T) {
	cols := DefaultPolicy().Arrange([]string{"cargo_type"})
	for _, c := range cols {
		sys := c.Name != "cargo_type"
		assert.Equal(t, sys, c.Locked, c.Name)
		assert.Equal(t, sys, c.Shaded, c.Name)
	}
}

func TestArrangeDropsRepeatsAndBlanks(t *testing.T) {
	p := NewPolicy("version")
	cols := p.Arrange([]string{"a", "", "b", "a"})
	assert.Equal(t, []string{"id", "a", "b", "version"}, Names(cols))
}

func TestArrangeIsPure(t *testing.T) {
	p := DefaultPolicy()
	in := []string{"z", "id", "a"}
	first := p.Arrange(in)
	second := p.Arrange(in)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"z", "id", "a"}, in)
}

func TestCustomPolicyAlwaysIncludesIdentifier(t *testing.T) {
	p := NewPolicy("tenant_id")
	assert.True(t, p.IsSystem("id"))
	assert.True(t, p.IsSystem("tenant_id"))
	assert.False(t, p.IsSystem("version"))
	assert.Equal(t, []string{"id", "tenant_id"}, p.SystemColumns())
}

func TestIndex(t *testing.T) {
	ix := NewIndex([]string{"id", "name", "id"})
	assert.Equal(t, 0, ix.Of("id"))
	assert.Equal(t, 1, ix.Of("name"))
	assert.Equal(t, -1, ix.Of("missing"))
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"created_on":       "Created On",
		"id":               "Id",
		"CARGO_TYPE":       "Cargo Type",
		"__double__under_": "Double Under",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayName(in), in)
	}
}

func TestColumnDisplay(t *testing.T) {
	cols := DefaultPolicy().Arrange([]string{"port_code"})
	require.GreaterOrEqual(t, len(cols), 2)
	assert.Equal(t, "Port Code", cols[1].Display)
}
