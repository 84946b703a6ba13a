// Package storeclient is the narrow HTTP client for the persistent
// project/scene store: the external collaborator that holds authoritative
// Scene/Project documents. Exactly one client instance is shared
// process-wide.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/model"
)

const requestTimeout = 30 * time.Second

// Client talks to the project and scene store services over HTTP.
type Client struct {
	projectBaseURL string
	sceneBaseURL   string
	httpClient     *http.Client
	logger         *logger.Logger
}

// New creates a Client pointed at the project and scene service base URLs.
func New(projectBaseURL, sceneBaseURL string, log *logger.Logger) *Client {
	return &Client{
		projectBaseURL: projectBaseURL,
		sceneBaseURL:   sceneBaseURL,
		httpClient:     &http.Client{Timeout: requestTimeout},
		logger:         log.WithFields(zap.String("component", "storeclient")),
	}
}

// GetScene fetches a scene by id.
func (c *Client) GetScene(ctx context.Context, id string) (*model.Scene, error) {
	var scene model.Scene
	if err := c.getJSON(ctx, c.sceneBaseURL+"/scenes/"+id, &scene); err != nil {
		return nil, fmt.Errorf("get scene %s: %w", id, err)
	}
	return &scene, nil
}

// PutScene persists scene, overwriting any existing revision.
func (c *Client) PutScene(ctx context.Context, scene *model.Scene) error {
	if err := c.putJSON(ctx, c.sceneBaseURL+"/scenes/"+scene.ID, scene); err != nil {
		return fmt.Errorf("put scene %s: %w", scene.ID, err)
	}
	return nil
}

// DeleteScene removes a scene by id.
func (c *Client) DeleteScene(ctx context.Context, id string) error {
	if err := c.deleteReq(ctx, c.sceneBaseURL+"/scenes/"+id); err != nil {
		return fmt.Errorf("delete scene %s: %w", id, err)
	}
	return nil
}

// ListScenes returns scene summaries.
func (c *Client) ListScenes(ctx context.Context) ([]*model.Scene, error) {
	var scenes []*model.Scene
	if err := c.getJSON(ctx, c.sceneBaseURL+"/scenes", &scenes); err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	return scenes, nil
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	if err := c.getJSON(ctx, c.projectBaseURL+"/projects/"+id, &project); err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &project, nil
}

// PutProject persists project, overwriting any existing revision.
func (c *Client) PutProject(ctx context.Context, project *model.Project) error {
	if err := c.putJSON(ctx, c.projectBaseURL+"/projects/"+project.ID, project); err != nil {
		return fmt.Errorf("put project %s: %w", project.ID, err)
	}
	return nil
}

// DeleteProject removes a project by id.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if err := c.deleteReq(ctx, c.projectBaseURL+"/projects/"+id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// ListProjects returns project summaries.
func (c *Client) ListProjects(ctx context.Context) ([]*model.Project, error) {
	var projects []*model.Project
	if err := c.getJSON(ctx, c.projectBaseURL+"/projects", &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ProjectsWithScene returns the ids of projects that reference sceneID.
func (c *Client) ProjectsWithScene(ctx context.Context, sceneID string) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, c.projectBaseURL+"/projects/using-scene/"+sceneID, &ids); err != nil {
		return nil, fmt.Errorf("projects with scene %s: %w", sceneID, err)
	}
	return ids, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) putJSON(ctx context.Context, url string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) deleteReq(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
