package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const JobsPath = "/api/jobs"

// JobInfo is one entry of the server's running-job listing.
type JobInfo struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Stage      string    `json:"stage"`
	Percentage float64   `json:"percentage"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
}

// Jobs lists the jobs the server is running.
func (c *Client) Jobs(ctx context.Context) ([]JobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+JobsPath, nil)
	if err != nil {
		return nil, err
	}
	var jobs []JobInfo
	if err := c.doJSON(req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob asks the server to stop a running job.
func (c *Client) CancelJob(ctx context.Context, id string) (JobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+JobsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return JobInfo{}, err
	}
	var job JobInfo
	if err := c.doJSON(req, &job); err != nil {
		return JobInfo{}, err
	}
	return job, nil
}

func (c *Client) doJSON(req *http.Request, v any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, msg)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &StreamProtocolError{Reason: "malformed response body", Payload: string(raw), Err: err}
	}
	return nil
}
