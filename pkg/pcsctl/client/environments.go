package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const bapAPIVersion = "2021-04-01"

// Environment is the slice of a BAP environment record the CLI surfaces.
type Environment struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Location   string                `json:"location,omitempty"`
	Properties EnvironmentProperties `json:"properties"`
}

type EnvironmentProperties struct {
	DisplayName    string `json:"displayName,omitempty"`
	EnvironmentSKU string `json:"environmentSku,omitempty"`
	ProvisioningState string `json:"provisioningState,omitempty"`
}

type EnvironmentService struct {
	client *Client
}

func (c *Client) Environments() *EnvironmentService {
	return &EnvironmentService{client: c}
}

func (s *EnvironmentService) List(ctx context.Context) ([]Environment, error) {
	endpoint := fmt.Sprintf("providers/Microsoft.BusinessAppPlatform/environments?api-version=%s", bapAPIVersion)
	var page struct {
		Value []Environment `json:"value"`
	}
	if err := s.client.Do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

func (s *EnvironmentService) Get(ctx context.Context, name string) (*Environment, error) {
	endpoint := fmt.Sprintf("providers/Microsoft.BusinessAppPlatform/environments/%s?api-version=%s",
		url.PathEscape(name), bapAPIVersion)
	var env Environment
	if err := s.client.Do(ctx, http.MethodGet, endpoint, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
