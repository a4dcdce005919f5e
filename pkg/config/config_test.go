package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/config"
	"github.com/htrace/htraced/pkg/log"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "htraced.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "default", c.String(config.KeyLogLevel, "default"))
}

func TestLoadAppliesYAMLDefaults(t *testing.T) {
	path := writeYAML(t, "web.address: 0.0.0.0:9095\nlog.level: debug\n")
	c, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9095", c.String(config.KeyWebAddress, ""))
	assert.Equal(t, "debug", c.String(config.KeyLogLevel, ""))
}

func TestOverridesWinOverYAMLDefaults(t *testing.T) {
	path := writeYAML(t, "log.level: debug\n")
	c, err := config.Load(path, []string{"-Dlog.level=warn"})
	require.NoError(t, err)

	assert.Equal(t, "warn", c.String(config.KeyLogLevel, ""))
}

func TestBareDefineIsShorthandForTrue(t *testing.T) {
	c, err := config.Load("", []string{"-D" + config.KeyDataStoreClear})
	require.NoError(t, err)

	assert.True(t, c.Bool(config.KeyDataStoreClear, false))
}

func TestLaterOverrideWinsWhenRepeated(t *testing.T) {
	c, err := config.Load("", []string{"-Dlog.level=debug", "-Dlog.level=error"})
	require.NoError(t, err)

	assert.Equal(t, "error", c.String(config.KeyLogLevel, ""))
}

func TestIntAndStringListAccessors(t *testing.T) {
	c, err := config.Load("", []string{
		"-D" + config.KeyMetricsMaxAddrEntries + "=16",
		"-D" + config.KeyDataStoreDirectories + "=/a,/b, /c",
	})
	require.NoError(t, err)

	assert.Equal(t, 16, c.Int(config.KeyMetricsMaxAddrEntries, 0))
	assert.Equal(t, []string{"/a", "/b", "/c"}, c.StringList(config.KeyDataStoreDirectories))
}

func TestIntFallsBackToDefaultWhenUnparsable(t *testing.T) {
	c, err := config.Load("", []string{"-Dmetrics.max.addr.entries=not-a-number"})
	require.NoError(t, err)

	assert.Equal(t, 7, c.Int(config.KeyMetricsMaxAddrEntries, 7))
}

func TestEmptyOverrideIsRejected(t *testing.T) {
	_, err := config.Load("", []string{"-D"})
	assert.Error(t, err)
}

func TestLogConfigDefaultsToInfoAndJSON(t *testing.T) {
	c, err := config.Load("", nil)
	require.NoError(t, err)

	lc := c.LogConfig()
	assert.Equal(t, log.InfoLevel, lc.Level)
	assert.True(t, lc.JSONOutput)
}

func TestLogConfigHonorsOverrides(t *testing.T) {
	c, err := config.Load("", []string{"-Dlog.level=debug", "-Dlog.json=false"})
	require.NoError(t, err)

	lc := c.LogConfig()
	assert.Equal(t, log.DebugLevel, lc.Level)
	assert.False(t, lc.JSONOutput)
}
