package config

import (
	"os"
	"testing"

	"path/filepath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functions

// TestLoadConfig checks parsing of a complete config file
// including resolution of relative paths.
func TestLoadConfig(t *testing.T) {

	confDir := t.TempDir()
	confPath := filepath.Join(confDir, "config.toml")

	content := `[IMAP]
Greeting = "petrel ready"
ListenAddr = "127.0.0.1:993"
PrometheusAddr = "127.0.0.1:9191"
CertLoc = "certs/imap.pem"
KeyLoc = "certs/imap.key"

[LMTP]
Hostname = "mail.example.org"
ListenAddr = "127.0.0.1:2024"

[Maildir]
RootDir = "maildir"

[Auth]
Adapter = "AuthFile"

[Auth.AuthFile]
File = "users.txt"
Separator = ";"
`

	err := os.WriteFile(confPath, []byte(content), 0600)
	require.Nil(t, err, "expected writing the test config to succeed but received: %v", err)

	conf, err := LoadConfig(confPath)
	require.Nil(t, err, "expected loading the config to succeed but received: %v", err)

	assert.Equal(t, "petrel ready", conf.IMAP.Greeting)
	assert.Equal(t, "127.0.0.1:993", conf.IMAP.ListenAddr)
	assert.Equal(t, "mail.example.org", conf.LMTP.Hostname)
	assert.Equal(t, "AuthFile", conf.Auth.Adapter)
	assert.Equal(t, ";", conf.Auth.AuthFile.Separator)

	// Relative locations are resolved against the config dir.
	assert.Equal(t, filepath.Join(confDir, "certs/imap.pem"), conf.IMAP.CertLoc)
	assert.Equal(t, filepath.Join(confDir, "certs/imap.key"), conf.IMAP.KeyLoc)
	assert.Equal(t, filepath.Join(confDir, "maildir"), conf.Maildir.RootDir)
	assert.Equal(t, filepath.Join(confDir, "users.txt"), conf.Auth.AuthFile.File)

	// Defaults for optional values.
	assert.Equal(t, ".", conf.IMAP.HierarchySeparator)
	assert.Equal(t, 8192, conf.IMAP.MaxLineLength)
}

// TestLoadConfigMissingFile checks the error path for an
// absent config file.
func TestLoadConfigMissingFile(t *testing.T) {

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotNil(t, err, "expected loading a missing config to fail")
}
