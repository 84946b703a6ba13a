// Package buildclient is the narrow HTTP client for the build service:
// it turns a saved project into an executable package archive, used by
// both the BuildProject RPC and the temporary-package workflow.
package buildclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

const requestTimeout = 60 * time.Second

// Client talks to the build service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a Client pointed at the build service's base URL.
func New(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log.WithFields(zap.String("component", "buildclient")),
	}
}

// BuildProjectPackage asks the build service to produce the executable
// archive for projectID and returns its bytes.
func (c *Client) BuildProjectPackage(ctx context.Context, projectID string, packageName string) ([]byte, error) {
	url := fmt.Sprintf("%s/projects/%s/publish?packageName=%s", c.baseURL, projectID, packageName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("build service request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("build service returned status %d: %s", resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading build service response: %w", err)
	}
	return data, nil
}
