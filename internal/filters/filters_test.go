package filters_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d3vfreak/fleet-overview/internal/filters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"98000001": {"Frigates": ["Rifter", "Slasher"]},
		"all": {"Logistics": ["Scimitar"]}
	}`), 0o600))

	f, err := filters.Load(path)
	require.NoError(t, err)

	assert.JSONEq(t, `{"Frigates": ["Rifter", "Slasher"]}`, string(f.For(98000001)))
	assert.JSONEq(t, `{"Logistics": ["Scimitar"]}`, string(f.For(98000002)))
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	f, err := filters.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, f.For(1))
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o600))

	_, err := filters.Load(path)
	require.Error(t, err)
}
