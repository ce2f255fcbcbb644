package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv("XREA_PASSWORD", "s3cret")
	path := writeRegistry(t, "servers.toml", `
[xrea]
host = "s1.xrea.com"
user = "alice"
passwd = "${XREA_PASSWORD}"
root = "/public_html"

[local]
host = "127.0.0.1"
port = 2121
user = "guest"
passwd = "guest"
root = "/"
`)

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, reg.Path())
	assert.Equal(t, []string{"local", "xrea"}, reg.Names())

	cfg, err := reg.Lookup("xrea")
	require.NoError(t, err)
	assert.Equal(t, "s1.xrea.com", cfg.Host)
	assert.Equal(t, 21, cfg.Port, "port defaults to 21")
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "/public_html", cfg.Root)

	cfg, err = reg.Lookup("local")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2121", cfg.Addr())
}

func TestLoad_YAML(t *testing.T) {
	path := writeRegistry(t, "servers.yaml", `
sakura:
  host: example.sakura.ne.jp
  port: 21
  user: bob
  passwd: pw
  root: /home/bob/www
`)

	reg, err := Load(path)
	require.NoError(t, err)
	cfg, err := reg.Lookup("sakura")
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, "/home/bob/www", cfg.Root)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		path := writeRegistry(t, "servers.toml", "[a]\nhost = \"h\"\nbogus = 1\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing host", func(t *testing.T) {
		path := writeRegistry(t, "servers.yaml", "a:\n  user: x\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrNoHost)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeRegistry(t, "servers.ini", "")
		_, err := Load(path)
		assert.ErrorContains(t, err, "unsupported format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLookup_UnknownServer(t *testing.T) {
	reg, err := New(map[string]ServerConfig{"a": {Host: "h"}})
	require.NoError(t, err)

	_, err = reg.Lookup("b")
	assert.ErrorIs(t, err, ErrUnknownServer)
	assert.Contains(t, err.Error(), `"b"`)
}
