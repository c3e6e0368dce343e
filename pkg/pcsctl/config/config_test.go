package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.CurrentProfile = "dev"
	cfg.SetProfile(Profile{
		Name:     "dev",
		TenantID: "common",
		ClientID: "client-1",
	})

	require.NoError(t, Save(path, &cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", loaded.CurrentProfile)
	profile, err := loaded.FindProfile("dev")
	require.NoError(t, err)
	assert.Equal(t, "client-1", profile.ClientID)
	assert.Equal(t, "common", profile.TenantID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadDefaultsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: []"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, VersionV1, cfg.Version)
}

func TestSaveNil(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "config.yaml"), nil)
	require.Error(t, err)
}

func TestSetProfileReplaces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetProfile(Profile{Name: "dev", ClientID: "old"})
	cfg.SetProfile(Profile{Name: "dev", ClientID: "new"})

	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, "new", cfg.Profiles[0].ClientID)
}

func TestCurrentProfileOrDefault(t *testing.T) {
	cfg := Config{}
	assert.Empty(t, cfg.CurrentProfileOrDefault())

	cfg.Profiles = []Profile{{Name: "first"}, {Name: "second"}}
	assert.Equal(t, "first", cfg.CurrentProfileOrDefault())

	cfg.CurrentProfile = "second"
	assert.Equal(t, "second", cfg.CurrentProfileOrDefault())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetProfile(Profile{Name: "dev", ClientID: "c"})
	require.NoError(t, cfg.Validate())

	cfg.SetProfile(Profile{Name: "  ", ClientID: "c"})
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SetProfile(Profile{Name: "dev"})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client-id is required")

	cfg = DefaultConfig()
	cfg.Profiles = []Profile{{Name: "dev", ClientID: "a"}, {Name: "dev", ClientID: "b"}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate profile")
}

func TestProfileResource(t *testing.T) {
	assert.Equal(t, DefaultBAPResource, Profile{}.Resource())
	assert.Equal(t, "https://custom", Profile{BAPResource: "https://custom"}.Resource())
}

func TestDefaultPathsHonorEnvOverrides(t *testing.T) {
	t.Setenv("PCSCTL_CONFIG", "/tmp/custom/config.yaml")
	assert.Equal(t, "/tmp/custom/config.yaml", DefaultConfigPath())

	t.Setenv("PCSCTL_PROFILE_DIR", "/tmp/custom/profiles")
	assert.Equal(t, "/tmp/custom/profiles", DefaultProfileStoreDir())
}
