package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CredentialSource mints a token for a resource from a trusted local
// credential that pcsctl does not manage itself, e.g. another CLI's
// login session. Sources are tried in order after the refresh path.
type CredentialSource interface {
	Name() string
	Token(ctx context.Context, resource string) (string, error)
}

// AzureCLISource obtains tokens from an installed Azure CLI session.
type AzureCLISource struct {
	// Path overrides the binary name, mainly for tests.
	Path string
}

func (s *AzureCLISource) Name() string { return "azure-cli" }

func (s *AzureCLISource) binary() string {
	if s.Path != "" {
		return s.Path
	}
	return "az"
}

func (s *AzureCLISource) Token(ctx context.Context, resource string) (string, error) {
	if _, err := exec.LookPath(s.binary()); err != nil {
		return "", fmt.Errorf("azure cli not installed: %w", err)
	}
	cmd := exec.CommandContext(ctx, s.binary(),
		"account", "get-access-token",
		"--resource", strings.TrimRight(resource, "/"),
		"--output", "json")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("az account get-access-token failed: %w", err)
	}
	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return "", fmt.Errorf("unexpected az output: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("az returned no access token")
	}
	return payload.AccessToken, nil
}
