package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	// DefaultBAPResource is the Power Platform management API audience
	// access tokens are requested for by default.
	DefaultBAPResource = "https://api.bap.microsoft.com"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentProfile string    `yaml:"current-profile,omitempty"`
	Profiles       []Profile `yaml:"profiles,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	TokenStorage string `yaml:"token-storage,omitempty"`
}

// Profile is a named identity context: which tenant and app registration
// to authenticate as, and which cloud endpoints to talk to. The durable
// refresh token for a profile lives in the auth store, not here.
type Profile struct {
	Name            string   `yaml:"name"`
	TenantID        string   `yaml:"tenant-id,omitempty"`
	ClientID        string   `yaml:"client-id"`
	Authority       string   `yaml:"authority,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`
	BAPResource     string   `yaml:"bap-resource,omitempty"`
	CAFile          string   `yaml:"ca-file,omitempty"`
	InsecureSkipTLS bool     `yaml:"insecure-skip-tls-verify,omitempty"`
	LoginHint       string   `yaml:"login-hint,omitempty"`
}

func (p Profile) Resource() string {
	if p.BAPResource != "" {
		return p.BAPResource
	}
	return DefaultBAPResource
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "table",
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindProfile(name string) (*Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile not found: %s", name)
}

// SetProfile adds or replaces a profile by name.
func (c *Config) SetProfile(profile Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == profile.Name {
			c.Profiles[i] = profile
			return
		}
	}
	c.Profiles = append(c.Profiles, profile)
}

func (c *Config) CurrentProfileOrDefault() string {
	if c.CurrentProfile != "" {
		return c.CurrentProfile
	}
	if len(c.Profiles) > 0 {
		return c.Profiles[0].Name
	}
	return ""
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for _, profile := range c.Profiles {
		if strings.TrimSpace(profile.Name) == "" {
			return errors.New("profile name cannot be empty")
		}
		if seen[profile.Name] {
			return fmt.Errorf("duplicate profile name: %s", profile.Name)
		}
		seen[profile.Name] = true
		if strings.TrimSpace(profile.ClientID) == "" {
			return fmt.Errorf("profile %s client-id is required", profile.Name)
		}
	}
	return nil
}
