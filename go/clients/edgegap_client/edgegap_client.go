package edgegap_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/matchmaker/go/clients"
)

// EdgegapClient talks to the elastic game server provider
type EdgegapClient struct {
	*clients.BaseClient
}

func NewEdgegapClient(baseURL, apiToken string) *EdgegapClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &EdgegapClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AuthorizationHeader, apiToken)
	client.SetHeader(JsonHeader, JsonContentType)

	return client
}

// Deploy requests a new game server and returns the provider's request id
func (c *EdgegapClient) Deploy(ctx context.Context, req DeployRequest) (*DeployResponse, error) {
	var resp DeployResponse
	if err := c.SendJSON(ctx, http.MethodPost, deployPath, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to deploy %s:%s: %w", req.AppName, req.AppVersion, err)
	}
	if resp.RequestID == "" {
		return nil, fmt.Errorf("deploy response carried no request id")
	}
	return &resp, nil
}

// Status fetches the current state of a deployment
func (c *EdgegapClient) Status(ctx context.Context, requestID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.SendJSON(ctx, http.MethodGet, fmt.Sprintf(statusPath, url.PathEscape(requestID)), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get status of %s: %w", requestID, err)
	}
	return &resp, nil
}

// Stop tears a deployment down
func (c *EdgegapClient) Stop(ctx context.Context, requestID string) error {
	if _, err := c.Delete(ctx, fmt.Sprintf(stopPath, url.PathEscape(requestID))); err != nil {
		return fmt.Errorf("failed to stop %s: %w", requestID, err)
	}
	return nil
}
