package twelvelabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.twelvelabs.io/v1.2"
	defaultHTTPTimeout = 60 * time.Second
	apiKeyHeader       = "x-api-key"
)

// Client wraps the parts of the Twelve Labs REST API used for analysis.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base, mostly for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Task is the state of a video upload task.
type Task struct {
	ID      string `json:"_id"`
	IndexID string `json:"index_id"`
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

type createdResource struct {
	ID string `json:"_id"`
}

// CreateIndex creates an index on the given engine and returns its id.
func (c *Client) CreateIndex(ctx context.Context, name, engine string, options []string) (string, error) {
	req := map[string]interface{}{
		"index_name":     name,
		"engine_name":    engine,
		"engine_options": options,
	}
	var created createdResource
	if _, err := c.do(ctx, http.MethodPost, "/indexes", req, http.StatusCreated, &created); err != nil {
		return "", fmt.Errorf("twelvelabs create index: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("twelvelabs create index: response has no id")
	}
	return created.ID, nil
}

// CreateTask uploads a video by URL into an index and returns the task id.
func (c *Client) CreateTask(ctx context.Context, indexID, videoURL string) (string, error) {
	req := map[string]interface{}{
		"index_id":             indexID,
		"url":                  videoURL,
		"disable_video_stream": false,
	}
	var created createdResource
	if _, err := c.do(ctx, http.MethodPost, "/tasks", req, http.StatusCreated, &created); err != nil {
		return "", fmt.Errorf("twelvelabs create task: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("twelvelabs create task: response has no id")
	}
	return created.ID, nil
}

// GetTask returns the task state and the raw response body.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, json.RawMessage, error) {
	var task Task
	raw, err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, http.StatusOK, &task)
	if err != nil {
		return Task{}, nil, fmt.Errorf("twelvelabs get task: %w", err)
	}
	return task, raw, nil
}

// Search runs a query restricted to one video.
func (c *Client) Search(ctx context.Context, indexID, videoID, query string, options []string) (json.RawMessage, error) {
	req := map[string]interface{}{
		"query":          query,
		"index_id":       indexID,
		"search_options": options,
		"filter":         map[string]string{"video_id": videoID},
	}
	raw, err := c.do(ctx, http.MethodPost, "/search", req, http.StatusOK, nil)
	if err != nil {
		return nil, fmt.Errorf("twelvelabs search: %w", err)
	}
	return raw, nil
}

// Summarize produces a summary, chapter or highlight listing for a video.
func (c *Client) Summarize(ctx context.Context, videoID, kind string) (json.RawMessage, error) {
	req := map[string]string{"video_id": videoID, "type": kind}
	raw, err := c.do(ctx, http.MethodPost, "/summarize", req, http.StatusOK, nil)
	if err != nil {
		return nil, fmt.Errorf("twelvelabs summarize %s: %w", kind, err)
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errors.New("api key required")
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return json.RawMessage(raw), nil
}
