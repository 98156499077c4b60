// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mdm/confidante/config"
)

const defaultsYAML = `
listen_address: 127.0.0.1:5222
database_url: confidante.db
domain: example.com
tls:
  required_for_clients: false
  required_for_servers: true
  certificate_chain: /etc/confidante/cert.pem
  private_key: /etc/confidante/key.pem
`

// withConfigDir writes contents under a config/ directory inside a fresh
// temp directory, chdirs into it for the duration of the test, and restores
// the previous working directory on cleanup.
func withConfigDir(t *testing.T, files map[string]string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", name), []byte(contents), 0o644))
	}

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsOnly(t *testing.T) {
	withConfigDir(t, map[string]string{"defaults.yaml": defaultsYAML})

	settings, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:5222", settings.ListenAddress)
	require.Equal(t, "example.com", settings.Domain.String())
	require.False(t, settings.TLS.RequiredForClients)
	require.True(t, settings.TLS.RequiredForServers)
}

func TestLoadOverridesWinOverDefaults(t *testing.T) {
	withConfigDir(t, map[string]string{
		"defaults.yaml": defaultsYAML,
		"overrides.yaml": `
listen_address: 0.0.0.0:5222
tls:
  required_for_clients: true
`,
	})

	settings, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:5222", settings.ListenAddress)
	require.True(t, settings.TLS.RequiredForClients)
	require.True(t, settings.TLS.RequiredForServers, "overrides.yaml should merge, not replace, the defaults")
}

func TestLoadWithoutOverridesFileSucceeds(t *testing.T) {
	withConfigDir(t, map[string]string{"defaults.yaml": defaultsYAML})

	_, err := config.Load()
	require.NoError(t, err)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	withConfigDir(t, map[string]string{"defaults.yaml": defaultsYAML})

	t.Setenv("CONFIDANTE_TLS__REQUIRED_FOR_CLIENTS", "true")

	settings, err := config.Load()
	require.NoError(t, err)
	require.True(t, settings.TLS.RequiredForClients)
}

func TestLoadRejectsUnparseableDomain(t *testing.T) {
	withConfigDir(t, map[string]string{
		"defaults.yaml": `
listen_address: 127.0.0.1:5222
database_url: confidante.db
domain: ""
tls:
  required_for_clients: false
  required_for_servers: false
  certificate_chain: /etc/confidante/cert.pem
  private_key: /etc/confidante/key.pem
`,
	})

	_, err := config.Load()
	require.Error(t, err)
}
