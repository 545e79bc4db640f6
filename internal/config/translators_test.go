package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranslatorFile(t *testing.T, dir, translatorType string, descriptor interface{}) {
	t.Helper()
	raw, err := json.Marshal(descriptor)
	require.NoError(t, err)
	path := filepath.Join(dir, "translators", translatorType+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestNewTranslatorRegistry_LoadsKnownTypes(t *testing.T) {
	dir := t.TempDir()
	writeTranslatorFile(t, dir, "dataset", map[string]interface{}{"name": "$/_source/name"})

	reg, err := NewTranslatorRegistry(dir)
	require.NoError(t, err)
	node, err := reg.Load("dataset")
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestNewTranslatorRegistry_UnknownTypeReturnsNilNotError(t *testing.T) {
	dir := t.TempDir()
	writeTranslatorFile(t, dir, "dataset", map[string]interface{}{"name": "$/_source/name"})

	reg, err := NewTranslatorRegistry(dir)
	require.NoError(t, err)
	node, err := reg.Load("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestNewTranslatorRegistry_RejectsDanglingRef(t *testing.T) {
	dir := t.TempDir()
	writeTranslatorFile(t, dir, "dataset", map[string]interface{}{
		"publisher": "$ref/organization",
	})
	// organization.json is deliberately never written.

	_, err := NewTranslatorRegistry(dir)
	assert.Error(t, err)
}

func TestNewTranslatorRegistry_AcceptsResolvableRef(t *testing.T) {
	dir := t.TempDir()
	writeTranslatorFile(t, dir, "dataset", map[string]interface{}{
		"publisher": "$ref/organization",
	})
	writeTranslatorFile(t, dir, "organization", map[string]interface{}{
		"name": "$/_source/org_name",
	})

	_, err := NewTranslatorRegistry(dir)
	assert.NoError(t, err)
}

func TestLoadTypeEndpointMap_ReadsMapping(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`{"dataset": "datasets", "publication": "publications"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type_to_aiod_endpoint.json"), raw, 0o644))

	m, err := LoadTypeEndpointMap(dir)
	require.NoError(t, err)
	assert.Equal(t, "datasets", m["dataset"])
}

func TestLoadPlatformDoc_RequiresName(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`{"identifier": "42"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.json"), raw, 0o644))

	_, err := LoadPlatformDoc(dir)
	assert.Error(t, err)
}

func TestLoadPlatformDoc_ParsesNameAndIdentifier(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`{"name": "redgio", "identifier": "42"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.json"), raw, 0o644))

	doc, err := LoadPlatformDoc(dir)
	require.NoError(t, err)
	assert.Equal(t, "redgio", doc.Name)
	assert.Equal(t, "42", doc.Identifier)
}
