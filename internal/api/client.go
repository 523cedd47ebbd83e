package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/tasks"
)

const (
	catchmentEndpoint     = "catchment/"
	subcatchmentsEndpoint = "subcatchments/"
	isozonesEndpoint      = "isozones/"

	// SubcatchmentsField is the multipart field the backend reads the zipped
	// shapefile from.
	SubcatchmentsField = "points_shapefile_zip"
)

// Client talks to the geoprocessing backend that runs catchment, subcatchment
// and isozone tasks.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a backend client. Requests are never retried: a failed
// submission is reported to the caller as is.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	client.http = resty.New().
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)

	return client
}

// BaseURL returns the backend root the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// SubmitCatchment starts a catchment delineation for an outlet point
func (c *Client) SubmitCatchment(ctx context.Context, northing, easting float64, withRiverNetwork bool) (tasks.Handle, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"northing":         strconv.FormatFloat(northing, 'f', -1, 64),
			"easting":          strconv.FormatFloat(easting, 'f', -1, 64),
			"withRiverNetwork": strconv.FormatBool(withRiverNetwork),
		})

	resp, err := req.Get(c.buildURL(catchmentEndpoint))
	return c.handleSubmit(catchmentEndpoint, resp, err)
}

// SubmitIsozones starts the isozone raster generation for a project
func (c *Client) SubmitIsozones(ctx context.Context, projectID string) (tasks.Handle, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ProjectId", projectID).
		Get(c.buildURL(isozonesEndpoint))
	return c.handleSubmit(isozonesEndpoint, resp, err)
}

// SubmitSubcatchments uploads a zipped points shapefile and starts the batch
// delineation
func (c *Client) SubmitSubcatchments(ctx context.Context, filename string, zip io.Reader) (tasks.Handle, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader(SubcatchmentsField, filename, zip).
		Post(c.buildURL(subcatchmentsEndpoint))
	return c.handleSubmit(subcatchmentsEndpoint, resp, err)
}

func (c *Client) handleSubmit(endpoint string, resp *resty.Response, err error) (tasks.Handle, error) {
	if err != nil {
		return tasks.Handle{}, &models.SubmissionError{Endpoint: endpoint, Err: err}
	}
	if !resp.IsSuccess() {
		return tasks.Handle{}, &models.SubmissionError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response: %s", truncate(resp.String(), 200)),
		}
	}

	var body submitResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return tasks.Handle{}, &models.SubmissionError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("failed to parse response: %w", err),
		}
	}
	if body.TaskID == "" {
		return tasks.Handle{}, &models.SubmissionError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("response carries no task_id"),
		}
	}

	return tasks.NewHandle(body.TaskID), nil
}

// FetchStatus performs one GET /tasks/{task_id} and returns the raw body. The
// caller decides how to interpret it.
func (c *Client) FetchStatus(ctx context.Context, taskID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.buildURL("tasks/" + taskID))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// DownloadArtifact streams the result file of a finished batch task. The
// caller must close the returned body.
func (c *Client) DownloadArtifact(ctx context.Context, taskID string) (io.ReadCloser, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.buildURL(tasks.ArtifactPath(taskID)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to download artifact %s: %w", taskID, err)
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		body.Close()
		return nil, "", fmt.Errorf("artifact %s: HTTP %d", taskID, resp.StatusCode())
	}
	return body, resp.Header().Get("Content-Type"), nil
}

// ArtifactURL is the absolute download location of a task's result file
func (c *Client) ArtifactURL(taskID string) string {
	return c.buildURL(tasks.ArtifactPath(taskID))
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
