// Package caseload is an HTTP client for the caseload API. A Client can stand
// in for the local store behind the save orchestrator and the list reconciler.
package caseload

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
	"time"

	"github.com/hyperengineering/caseload/internal/types"
)

// Re-exported record types so callers outside this module can build requests.
type (
	ClientFields   = types.ClientFields
	ClientDetail   = types.ClientDetail
	ClientList     = types.ClientList
	ClientListItem = types.ClientListItem
	ClientStatus   = types.ClientStatus
	ChildKind      = types.ChildKind
	Child          = types.Child
	Composite      = types.Composite
	ListFilter     = types.ListFilter
	HealthResponse = types.HealthResponse
	Authorization  = types.Authorization
	Task           = types.Task
	TaskFilter     = types.TaskFilter
)

// DefaultTimeout bounds each request when Config.HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	APIKey  string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// APIError is a non-2xx response. Error returns the server's detail verbatim
// so it can be shown to the user as-is.
type APIError struct {
	Status int
	Type   string
	Detail string
	Errors []FieldError
}

// FieldError is one entry of a validation problem response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to a caseload server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}, nil
}

// Health calls GET /api/v1/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateClient creates a client and returns its id.
func (c *Client) CreateClient(ctx context.Context, fields ClientFields) (string, error) {
	var resp types.CreatedResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/clients", fields, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateClient replaces the scalar fields of client id.
func (c *Client) UpdateClient(ctx context.Context, id string, fields ClientFields) error {
	return c.do(ctx, http.MethodPut, "/api/v1/clients/"+url.PathEscape(id), fields, nil)
}

// UpdateClientStatus changes only the status of client id.
func (c *Client) UpdateClientStatus(ctx context.Context, id string, status ClientStatus) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/clients/"+url.PathEscape(id)+"/status", types.StatusRequest{Status: status}, nil)
}

// DeleteClient soft-deletes client id.
func (c *Client) DeleteClient(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/clients/"+url.PathEscape(id), nil, nil)
}

// GetClient fetches a client with its child records.
func (c *Client) GetClient(ctx context.Context, id string) (*ClientDetail, error) {
	var detail ClientDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/clients/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListClients fetches one page of the client list with per-status counts.
func (c *Client) ListClients(ctx context.Context, filter ListFilter) (*ClientList, error) {
	q := url.Values{}
	if len(filter.Statuses) > 0 {
		names := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			names[i] = string(s)
		}
		q.Set("status", strings.Join(names, ","))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(filter.PageSize))
	}

	path := "/api/v1/clients"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list ClientList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateChild adds a child record of the given kind to client clientID.
func (c *Client) CreateChild(ctx context.Context, kind ChildKind, clientID string, child Child) (string, error) {
	if err := checkKind(kind, child); err != nil {
		return "", err
	}
	var resp types.CreatedResponse
	path := "/api/v1/clients/" + url.PathEscape(clientID) + "/" + string(kind)
	if err := c.do(ctx, http.MethodPost, path, child, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateChild replaces child record id of the given kind.
func (c *Client) UpdateChild(ctx context.Context, kind ChildKind, id string, child Child) error {
	if err := checkKind(kind, child); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/v1/"+string(kind)+"/"+url.PathEscape(id), child, nil)
}

// DeleteChild removes child record id of the given kind.
func (c *Client) DeleteChild(ctx context.Context, kind ChildKind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/"+string(kind)+"/"+url.PathEscape(id), nil, nil)
}

// SaveComposite writes a whole form in one server-side transaction. An empty
// clientID creates a new client.
func (c *Client) SaveComposite(ctx context.Context, clientID string, form Composite) (string, error) {
	method, path := http.MethodPost, "/api/v1/clients/composite"
	if clientID != "" {
		method, path = http.MethodPut, "/api/v1/clients/"+url.PathEscape(clientID)+"/composite"
	}
	var resp types.CreatedResponse
	if err := c.do(ctx, method, path, form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateAuthorization records a service authorization for client clientID.
func (c *Client) CreateAuthorization(ctx context.Context, clientID string, auth Authorization) (string, error) {
	var resp types.CreatedResponse
	path := "/api/v1/clients/" + url.PathEscape(clientID) + "/authorizations"
	if err := c.do(ctx, http.MethodPost, path, auth, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateAuthorization replaces authorization auth.ID.
func (c *Client) UpdateAuthorization(ctx context.Context, auth Authorization) error {
	return c.do(ctx, http.MethodPut, "/api/v1/authorizations/"+url.PathEscape(auth.ID), auth, nil)
}

// DeleteAuthorization removes authorization id.
func (c *Client) DeleteAuthorization(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/authorizations/"+url.PathEscape(id), nil, nil)
}

// CreateTask adds a task, attached to task.ClientID when that is set.
func (c *Client) CreateTask(ctx context.Context, task Task) (string, error) {
	path := "/api/v1/tasks"
	if task.ClientID != "" {
		path = "/api/v1/clients/" + url.PathEscape(task.ClientID) + "/tasks"
	}
	var resp types.CreatedResponse
	if err := c.do(ctx, http.MethodPost, path, task, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateTask replaces task task.ID. Its client cannot be changed.
func (c *Client) UpdateTask(ctx context.Context, task Task) error {
	return c.do(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(task.ID), task, nil)
}

// CompleteTask marks task id completed.
func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(id)+"/complete", nil, nil)
}

// DeleteTask removes task id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// ListTasks fetches the task board, soonest due first.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.ClientID != "" {
		q.Set("client_id", filter.ClientID)
	}
	path := "/api/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list types.TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

func checkKind(kind ChildKind, child Child) error {
	if child == nil || child.Kind() != kind {
		return fmt.Errorf("record does not match kind %q", kind)
	}
	return nil
}

// do sends an authenticated request and decodes a JSON response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeProblem turns a problem+json body into an *APIError. Bodies that are
// not problem documents fall back to the status text.
func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		var p struct {
			Type   string       `json:"type"`
			Detail string       `json:"detail"`
			Errors []FieldError `json:"errors"`
		}
		if json.Unmarshal(data, &p) == nil {
			apiErr.Type = p.Type
			apiErr.Detail = p.Detail
			apiErr.Errors = p.Errors
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
