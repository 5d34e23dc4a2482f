package gameapi_client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/matchmaker/go/clients"
)

// GameAPIClient reads and updates player profiles
type GameAPIClient struct {
	*clients.BaseClient
}

func NewGameAPIClient(baseURL string) *GameAPIClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &GameAPIClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(JsonHeader, JsonContentType)

	return client
}

type regionIPResponse struct {
	RegionIP string `json:"regionIp"`
}

// GetPlayerRegionIP returns the address used to place the player's game server
func (c *GameAPIClient) GetPlayerRegionIP(ctx context.Context, playerID int64) (string, error) {
	var resp regionIPResponse
	if err := c.SendJSON(ctx, http.MethodGet, fmt.Sprintf(regionIPPath, playerID), nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get region ip for player %d: %w", playerID, err)
	}
	if resp.RegionIP == "" {
		return "", fmt.Errorf("player %d has no region ip", playerID)
	}
	return resp.RegionIP, nil
}

// UpdatePlayerRating adds delta to the player's rating. The body is the bare delta.
func (c *GameAPIClient) UpdatePlayerRating(ctx context.Context, playerID int64, delta int) error {
	if err := c.SendJSON(ctx, http.MethodPut, fmt.Sprintf(ratingPath, playerID), delta, nil); err != nil {
		return fmt.Errorf("failed to update rating for player %d: %w", playerID, err)
	}
	return nil
}
