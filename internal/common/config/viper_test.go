package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadCredentials(t *testing.T) {
	path := writeCredentials(t, `{"username": "go42tum", "password": "hunter2"}`)

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "go42tum", creds.Username)
	assert.Equal(t, "hunter2", creds.Password)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadCredentialsMalformed(t *testing.T) {
	path := writeCredentials(t, `{"username": `)
	_, err := LoadCredentials(path)
	assert.Error(t, err)
}

func TestLoadCredentialsIncomplete(t *testing.T) {
	path := writeCredentials(t, `{"username": "go42tum"}`)
	_, err := LoadCredentials(path)
	assert.Error(t, err)
}
