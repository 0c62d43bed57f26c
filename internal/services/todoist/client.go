package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Todoist REST API base URL
	DefaultBaseURL = "https://api.todoist.com/rest/v2"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 15 * time.Second

	dueDateLayout = "2006-01-02"
)

// APIError represents a non-2xx response from the Todoist API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todoist API error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Todoist REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Todoist API client
func NewClient() *Client {
	return NewClientWithLogger(zap.NewNop())
}

// NewClientWithLogger creates a new Todoist API client with a logger
func NewClientWithLogger(logger *zap.Logger) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
}

// SetBaseURL overrides the API base URL (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type createTaskRequest struct {
	Content  string `json:"content"`
	Priority int    `json:"priority"`
	DueDate  string `json:"due_date,omitempty"`
}

type createTaskResponse struct {
	ID string `json:"id"`
}

// Push creates a task in the user's Todoist account and returns its ID.
// Priority is on Todoist's scale where 4 is most urgent.
func (c *Client) Push(ctx context.Context, accessToken, content string, priority int, dueDate *time.Time) (string, error) {
	reqBody := createTaskRequest{
		Content:  content,
		Priority: priority,
	}
	if dueDate != nil {
		reqBody.DueDate = dueDate.Format(dueDateLayout)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call todoist API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("failed to read todoist response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("todoist task creation failed",
			zap.Int("status_code", resp.StatusCode))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var task createTaskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		return "", fmt.Errorf("failed to decode todoist response: %w", err)
	}

	c.logger.Debug("todoist task created",
		zap.String("task_id", task.ID))

	return task.ID, nil
}
