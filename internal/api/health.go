package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// VersionsResponse from GET /_matrix/client/versions
type VersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// CheckHealthy performs a single liveness request against the backend.
// Transport errors and non-2xx statuses count as unreachable. There is no
// retry; the caller decides when to ask again.
func (c *Client) CheckHealthy(ctx context.Context) bool {
	start := time.Now()

	_, err := c.doRequest(ctx, http.MethodGet, c.healthPath, nil)
	if err != nil {
		var apiErr *APIError
		c.logger.Warn("backend unreachable",
			"path", c.healthPath,
			"error", err,
			"retryable", !errors.As(err, &apiErr) || apiErr.IsRetryable(),
			"duration", time.Since(start),
		)
		return false
	}

	c.logger.Debug("backend reachable",
		"path", c.healthPath,
		"duration", time.Since(start),
	)
	return true
}

// GetVersions fetches the protocol versions the backend advertises.
func (c *Client) GetVersions(ctx context.Context) (*VersionsResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.healthPath, nil)
	if err != nil {
		return nil, err
	}

	var resp VersionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal versions: %w", err)
	}
	return &resp, nil
}
