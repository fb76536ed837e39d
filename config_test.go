package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadTestConfig parses args against a fresh flag set in an empty working
// directory, so no stray wikiexport.yaml or .env is picked up.
func loadTestConfig(t *testing.T, dir string, args ...string) (config, error) {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	t.Chdir(dir)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	require.NoError(t, flags.Parse(args))
	return loadConfig(viper.New(), flags)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadTestConfig(t, "")
	require.NoError(t, err)
	assert.Equal(t, "export", cfg.OutDir)
	assert.Equal(t, defaultDrawioBin, cfg.DrawioBin)
	assert.Equal(t, 1600, cfg.DiagramMaxWidth)
	assert.Equal(t, runtime.NumCPU(), cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, defaultMaxResponseBytes, cfg.MaxResponseSize)
	assert.Empty(t, cfg.Spaces)
	assert.False(t, cfg.NoFetch)
	assert.False(t, cfg.BlockPrivate)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wikiexport.yaml"), []byte(`
url: https://file.example.com/wiki
out_dir: from-file
concurrency: 3
gitlab_wikis_path: /g/p/-/wikis
spaces: [DOC, OPS]
skip_diagrams: true
`), 0o644))
	t.Setenv("WIKIEXPORT_OUT_DIR", "from-env")
	t.Setenv("WIKIEXPORT_CONCURRENCY", "7")
	t.Setenv("WIKIEXPORT_TIMEOUT", "45s")

	cfg, err := loadTestConfig(t, dir, "--concurrency", "5")
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com/wiki", cfg.URL, "file")
	assert.Equal(t, "from-env", cfg.OutDir, "env over file")
	assert.Equal(t, 5, cfg.Concurrency, "flag over env")
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"DOC", "OPS"}, cfg.Spaces)
	assert.True(t, cfg.SkipDiagrams)
	assert.Equal(t, "/g/p/-/wikis", cfg.GitlabWikisPath)
	assert.Equal(t, defaultDrawioBin, cfg.DrawioBin, "default")
}

func TestLoadConfig_SpacesFromEnvAndFlags(t *testing.T) {
	t.Setenv("WIKIEXPORT_SPACES", "DOC, OPS ,,")
	cfg, err := loadTestConfig(t, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"DOC", "OPS"}, cfg.Spaces)

	cfg, err = loadTestConfig(t, "", "--spaces", "A,B", "--spaces", "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Spaces)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: bob\nfront_matter: true\n"), 0o644))

	cfg, err := loadTestConfig(t, "", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Username)
	assert.True(t, cfg.FrontMatter)

	_, err = loadTestConfig(t, "", "--config", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")
}

func TestLoadConfig_DotEnv(t *testing.T) {
	const key = "WIKIEXPORT_TOKEN"
	t.Setenv(key, "")
	os.Unsetenv(key)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-dotenv\n"), 0o644))

	cfg, err := loadTestConfig(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Token)
}

func TestLoadConfig_ConcurrencyClamped(t *testing.T) {
	cfg, err := loadTestConfig(t, "", "--concurrency", "0")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Concurrency)
}

func TestValidateFetch(t *testing.T) {
	assert.NoError(t, config{URL: "https://x", OutDir: "out"}.validateFetch())
	assert.EqualError(t, config{OutDir: "out"}.validateFetch(), "missing required config: url")
	assert.EqualError(t, config{}.validateFetch(), "missing required config: url, out_dir")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " c "}))
	assert.Nil(t, splitList([]string{"", " , "}))
}

func TestConfigTransport(t *testing.T) {
	cfg := config{Timeout: time.Minute, Proxy: "http://p:1", BlockPrivate: true}
	assert.Equal(t, httpOptions{timeout: time.Minute, proxy: "http://p:1", blockPrivate: true}, cfg.transport())
}
