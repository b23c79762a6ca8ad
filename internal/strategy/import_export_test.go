package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportYAML(t *testing.T) {
	original := testConfiguration()

	data, err := Export(original, DefaultExportOptions())
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema_version")

	imported, err := Import(data, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, imported.SchemaVersion)
	require.Len(t, imported.Indicators, 2)
	assert.Equal(t, 20.0, imported.Indicators[0].Params["period"].Value)
	assert.Equal(t, KindInteger, imported.Indicators[0].Params["period"].Kind)
	assert.Equal(t, KindSkip, imported.Indicators[0].Params["source"].Kind)
	require.Len(t, imported.Bars, 1)
	assert.Equal(t, original.Bars[0].Weights, imported.Bars[0].Weights)
}

func TestExportImportJSON(t *testing.T) {
	original := testConfiguration()

	data, err := Export(original, ExportOptions{Format: FormatJSON, PrettyPrint: true})
	require.NoError(t, err)

	imported, err := Import(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, original.Bars[0].EnterThresholds, imported.Bars[0].EnterThresholds)
	assert.Equal(t, KindFloat, imported.Indicators[0].Params["offset"].Kind)
}

func TestImportMissingSchemaVersion(t *testing.T) {
	cfg := testConfiguration()
	cfg.SchemaVersion = ""
	data, err := Export(cfg, ExportOptions{Format: FormatJSON})
	require.NoError(t, err)

	// Export stamps the current version, so strip it to simulate a
	// hand-written file.
	_, err = Import([]byte(`{"indicators":[],"bars":[]}`), FormatJSON)
	assert.Error(t, err)
	_, err = Import(data, FormatJSON)
	assert.NoError(t, err)
}

func TestMigrate(t *testing.T) {
	t.Run("current version is a no-op", func(t *testing.T) {
		cfg := testConfiguration()
		require.NoError(t, Migrate(cfg))
		assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	})

	t.Run("short version is tolerated", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.SchemaVersion = "1.0"
		require.NoError(t, Migrate(cfg))
		assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	})

	t.Run("newer version is rejected", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.SchemaVersion = "9.0.0"
		assert.Error(t, Migrate(cfg))
	})

	t.Run("garbage version is rejected", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.SchemaVersion = "not-a-version"
		assert.Error(t, Migrate(cfg))
	})
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()

	data, err := Export(testConfiguration(), DefaultExportOptions())
	require.NoError(t, err)

	path := filepath.Join(dir, "strategy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := ImportFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Indicators, 2)

	_, err = ImportFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
