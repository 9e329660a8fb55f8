// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/pkg/errutil"
)

const weatherSchema = `{
	"type": "object",
	"properties": {
		"api_key": {"type": "string"},
		"units": {"type": "string", "enum": ["metric", "imperial"], "default": "metric"},
		"cache": {
			"type": "object",
			"properties": {
				"ttl": {"type": "integer", "minimum": 0, "default": 300}
			}
		}
	},
	"required": ["api_key"],
	"additionalProperties": false
}`

func compileWeatherSchema(t *testing.T) *plugin.ConfigSchema {
	t.Helper()
	schema, err := plugin.CompileConfigSchema("weather", []byte(weatherSchema))
	require.NoError(t, err)
	return schema
}

func TestConfigSchema_Defaults(t *testing.T) {
	schema := compileWeatherSchema(t)
	assert.Equal(t, map[string]any{
		"units":     "metric",
		"cache.ttl": float64(300),
	}, schema.Defaults())
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	writeFile(t, path, []byte("api_key: secret\n"))

	cfg, err := plugin.LoadConfig("weather", path, compileWeatherSchema(t))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.String("api_key"))
	assert.Equal(t, "metric", cfg.String("units"))
	assert.Equal(t, 300, cfg.Int("cache.ttl"))
	assert.True(t, cfg.Exists("units"))
	assert.False(t, cfg.Exists("nope"))
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	writeFile(t, path, []byte("api_key: k\nunits: imperial\ncache:\n  ttl: 5\n"))

	cfg, err := plugin.LoadConfig("weather", path, compileWeatherSchema(t))
	require.NoError(t, err)

	assert.Equal(t, "imperial", cfg.String("units"))
	assert.Equal(t, 5, cfg.Int("cache.ttl"))
}

func TestLoadConfig_InvalidListsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	writeFile(t, path, []byte("units: kelvin\ncache:\n  ttl: -1\nextra: true\n"))

	_, err := plugin.LoadConfig("weather", path, compileWeatherSchema(t))

	errutil.AssertErrorCode(t, err, plugin.CodeConfigInvalid)
	errutil.AssertErrorContext(t, err, "keys", []string{"api_key", "cache.ttl", "extra", "units"})
	assert.Contains(t, err.Error(), path)
}

func TestLoadConfig_NoSchemaNoFile(t *testing.T) {
	cfg, err := plugin.LoadConfig("plain", filepath.Join(t.TempDir(), "plain.yaml"), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.All())
	assert.Nil(t, cfg.Get("anything"))
}

func TestConfig_SaveCreatesFileOnFirstSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "weather.yaml")
	schema := compileWeatherSchema(t)

	_, err := plugin.LoadConfig("weather", path, schema)
	errutil.AssertErrorCode(t, err, plugin.CodeConfigInvalid)

	cfg, err := plugin.LoadConfig("greeter", path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("greeting", "hello"))
	require.NoError(t, cfg.Set("volume", 3))
	require.NoError(t, cfg.Save())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := plugin.LoadConfig("greeter", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", reloaded.String("greeting"))
	assert.Equal(t, 3, reloaded.Int("volume"))
}

func TestConfig_SaveWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	writeFile(t, path, []byte("api_key: k\n"))
	cfg, err := plugin.LoadConfig("weather", path, compileWeatherSchema(t))
	require.NoError(t, err)

	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "units: metric")
	assert.Contains(t, string(data), "ttl: 300")
}

func TestConfig_SaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	writeFile(t, path, []byte("api_key: k\n"))
	cfg, err := plugin.LoadConfig("weather", path, compileWeatherSchema(t))
	require.NoError(t, err)

	require.NoError(t, cfg.Set("units", "furlongs"))
	err = cfg.Save()

	errutil.AssertErrorCode(t, err, plugin.CodeConfigInvalid)
	data, _ := os.ReadFile(path) //nolint:gosec // test path
	assert.Equal(t, "api_key: k\n", string(data))
}

func TestLoadConfigSchema_Missing(t *testing.T) {
	schema, err := plugin.LoadConfigSchema("weather", t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestCompileConfigSchema_Invalid(t *testing.T) {
	_, err := plugin.CompileConfigSchema("bad", []byte(`{"type": 12}`))
	assert.Error(t, err)

	_, err = plugin.CompileConfigSchema("bad", []byte(`not json`))
	assert.Error(t, err)
}
