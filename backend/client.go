// Package backend is the REST side of the operational backend: initial
// collection snapshots, task status confirmation and agent triggers.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"go-aidr/types"
)

const (
	requestTimeout = 15 * time.Second
	maxErrBody     = 512
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	base    string
	http    *retryablehttp.Client
	trigger *http.Client
	log     *zap.Logger
}

// New builds a client for the REST API rooted at base (for example
// http://127.0.0.1:8000/api/v1). Reads and task updates are retried up to
// retries times; agent triggers are never retried.
func New(base string, retries int, logger *zap.Logger) *Client {
	log := logger.Named("backend")

	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = requestTimeout
	rc.Logger = leveledLogger{log.Sugar()}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    rc,
		trigger: &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

func (c *Client) FetchDisasters(ctx context.Context) ([]types.Disaster, error) {
	wires, err := fetchList[disasterWire](ctx, c, "/disasters/")
	if err != nil {
		return nil, err
	}
	out := make([]types.Disaster, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.domain())
	}
	return out, nil
}

func (c *Client) FetchDamageReports(ctx context.Context) ([]types.DamageReport, error) {
	wires, err := fetchList[damageReportWire](ctx, c, "/damage-reports/")
	if err != nil {
		return nil, err
	}
	out := make([]types.DamageReport, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.domain())
	}
	return out, nil
}

func (c *Client) FetchResources(ctx context.Context) ([]types.Resource, error) {
	wires, err := fetchList[resourceWire](ctx, c, "/resources/")
	if err != nil {
		return nil, err
	}
	out := make([]types.Resource, 0, len(wires))
	for _, w := range wires {
		r := w.domain()
		if err := r.Validate(); err != nil {
			c.log.Warn("Skipping resource", zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) FetchTasks(ctx context.Context) ([]types.Task, error) {
	wires, err := fetchList[taskWire](ctx, c, "/tasks/")
	if err != nil {
		return nil, err
	}
	out := make([]types.Task, 0, len(wires))
	for _, w := range wires {
		t := w.domain()
		if err := t.Validate(); err != nil {
			c.log.Warn("Skipping task", zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SetTaskStatus asks the backend to record a task's new status.
func (c *Client) SetTaskStatus(ctx context.Context, id string, status types.TaskStatus) error {
	path := "/tasks/" + url.PathEscape(id) + "?status=" + url.QueryEscape(string(status))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodPut, path); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TriggerAgent launches a pipeline stage. Only the acknowledgement is read;
// progress arrives later over the push channel.
func (c *Client) TriggerAgent(ctx context.Context, agent types.AgentType) error {
	path := "/agents/start/" + url.PathEscape(string(agent))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.trigger.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodPost, path); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func fetchList[W any](ctx context.Context, c *Client, path string) ([]W, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var out []W
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("GET %s: decoding body: %w", path, err)
	}
	return out, nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// leveledLogger routes retryablehttp's logging through zap.
type leveledLogger struct{ s *zap.SugaredLogger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
