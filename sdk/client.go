package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/timeouts"
)

type Client struct {
	baseURL    string
	actor      string
	httpClient *http.Client
}

var ErrNotFound = errors.New("not found")

type ErrorResponse struct {
	Status  string              `json:"status"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Errors     map[string][]string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// Is lets callers match 404 answers with errors.Is(err, ErrNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithActor sets the X-Actor header recorded on audit log entries.
func WithActor(actor string) Option {
	return func(c *Client) {
		c.actor = strings.TrimSpace(actor)
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: timeouts.Request,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = strings.TrimRight(env.Get().BASE_URL, "/")
	}
	return client
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

func (c *Client) Health(ctx context.Context) (*schemas.HealthResponse, error) {
	return call[schemas.HealthResponse](ctx, c, http.MethodGet, "/healthz", nil, http.StatusOK)
}

type ListTasksOptions struct {
	Status schemas.TaskStatus
	Type   schemas.TaskType
	Limit  int
}

func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) (*schemas.TaskListResponse, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.Type != "" {
		query.Set("type", string(opts.Type))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/tasks"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return call[schemas.TaskListResponse](ctx, c, http.MethodGet, path, nil, http.StatusOK)
}

func (c *Client) GetTask(ctx context.Context, id string) (*schemas.TaskResponse, error) {
	return call[schemas.TaskResponse](ctx, c, http.MethodGet, taskPath(id), nil, http.StatusOK)
}

func (c *Client) TaskLogs(ctx context.Context, id string) (*schemas.TaskLogListResponse, error) {
	return call[schemas.TaskLogListResponse](ctx, c, http.MethodGet, taskPath(id)+"/logs", nil, http.StatusOK)
}

// CreateTask answers with the action result both when the task was stored
// (201) and when the command was refused (422).
func (c *Client) CreateTask(ctx context.Context, request schemas.TaskCreateRequest) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, "/api/tasks", request, http.StatusCreated, http.StatusUnprocessableEntity)
}

func (c *Client) CreateBatch(ctx context.Context, request schemas.BatchCreateRequest) (*schemas.BatchResponse, error) {
	return call[schemas.BatchResponse](ctx, c, http.MethodPost, "/api/tasks/batch", request, http.StatusOK)
}

func (c *Client) Approve(ctx context.Context, id string) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, taskPath(id)+"/approve", nil, http.StatusOK)
}

func (c *Client) Reject(ctx context.Context, id, reason string) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, taskPath(id)+"/reject", schemas.TaskRejectRequest{Reason: reason}, http.StatusOK)
}

func (c *Client) Run(ctx context.Context, id string) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, taskPath(id)+"/run", nil, http.StatusOK)
}

func (c *Client) Rollback(ctx context.Context, id string) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, taskPath(id)+"/rollback", nil, http.StatusOK)
}

func (c *Client) Stats(ctx context.Context) (*schemas.StatsResponse, error) {
	return call[schemas.StatsResponse](ctx, c, http.MethodGet, "/api/stats", nil, http.StatusOK)
}

func (c *Client) ListTemplates(ctx context.Context) (*schemas.TemplateListResponse, error) {
	return call[schemas.TemplateListResponse](ctx, c, http.MethodGet, "/api/templates", nil, http.StatusOK)
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*schemas.TemplateResponse, error) {
	return call[schemas.TemplateResponse](ctx, c, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, http.StatusOK)
}

func (c *Client) CreateFromTemplate(ctx context.Context, id string, request schemas.TemplateTaskRequest) (*schemas.ActionResponse, error) {
	return call[schemas.ActionResponse](ctx, c, http.MethodPost, "/api/templates/"+url.PathEscape(id)+"/tasks", request, http.StatusCreated, http.StatusUnprocessableEntity)
}

func (c *Client) ParseVoice(ctx context.Context, transcript string) (*schemas.ParseResponse, error) {
	return call[schemas.ParseResponse](ctx, c, http.MethodPost, "/api/voice/parse", schemas.VoiceParseRequest{Transcript: transcript}, http.StatusOK)
}

func (c *Client) ListConfig(ctx context.Context) (*schemas.ConfigListResponse, error) {
	return call[schemas.ConfigListResponse](ctx, c, http.MethodGet, "/api/config", nil, http.StatusOK)
}

func (c *Client) LandingPageVersions(ctx context.Context, slug string) (*schemas.LandingPageListResponse, error) {
	return call[schemas.LandingPageListResponse](ctx, c, http.MethodGet, "/api/landing-pages/"+url.PathEscape(slug), nil, http.StatusOK)
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func call[T any](ctx context.Context, c *Client, method, path string, request any, accept ...int) (*T, error) {
	var body io.Reader
	if request != nil {
		data, err := json.Marshal(request)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	accepted := false
	for _, status := range accept {
		if resp.StatusCode == status {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, responseError(resp)
	}

	var payload T
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}
	return c.httpClient.Do(req)
}

func responseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Message, Errors: payload.Errors}
	}

	return &APIError{StatusCode: resp.StatusCode}
}
