// Package simclient is the narrow HTTP client for the scene simulation
// service: it instantiates/destroys collision geometry and tracks
// inter-object collisions while a scene is started. It implements
// internal/sceneruntime.Simulator.
package simclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

const requestTimeout = 30 * time.Second

// Client talks to the scene simulation service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a Client pointed at the scene simulation service's base URL.
func New(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log.WithFields(zap.String("component", "simclient")),
	}
}

// Start instantiates sceneID's collision geometry in the simulator.
func (c *Client) Start(ctx context.Context, sceneID string) error {
	return c.post(ctx, "/scenes/"+sceneID+"/start")
}

// Stop tears down sceneID's collision geometry.
func (c *Client) Stop(ctx context.Context, sceneID string) error {
	return c.post(ctx, "/scenes/"+sceneID+"/stop")
}

// ClearCollisions resets any latched collision state before a scene starts.
func (c *Client) ClearCollisions(ctx context.Context, sceneID string) error {
	return c.post(ctx, "/scenes/"+sceneID+"/clear-collisions")
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("simulation service returned status %d for %s", resp.StatusCode, path)
	}
	return nil
}
