package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// AttemptResponse — одна запись истории попыток.
type AttemptResponse struct {
	AttemptNumber   int    `json:"attemptNumber"`
	StartedAt       string `json:"startedAt"`
	CompletedAt     string `json:"completedAt"`
	Succeeded       bool   `json:"succeeded"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	ExceptionType   string `json:"exceptionType,omitempty"`
	DurationMs      int64  `json:"durationMs"`
	DelayBeforeMs   int64  `json:"delayBeforeMs"`
	BackoffStrategy string `json:"backoffStrategy,omitempty"`
}

// JobStatusResponse — запись статуса job из API.
type JobStatusResponse struct {
	JobID          string            `json:"jobId"`
	Type           string            `json:"type"`
	Source         string            `json:"source,omitempty"`
	Status         string            `json:"status"`
	CreatedAt      string            `json:"createdAt"`
	StartedAt      string            `json:"startedAt,omitempty"`
	CompletedAt    string            `json:"completedAt,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
	ExceptionType  string            `json:"exceptionType,omitempty"`
	RetryCount     int               `json:"retryCount"`
	MaxRetries     int               `json:"maxRetries"`
	Attempts       []AttemptResponse `json:"attempts"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// TypeMetricsResponse — метрики одного типа job.
type TypeMetricsResponse struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// MetricsResponse — агрегированные метрики Status Store.
type MetricsResponse struct {
	GeneratedAt     string                         `json:"generatedAt"`
	TotalByStatus   map[string]int                 `json:"totalByStatus"`
	DeadLetterTotal int                            `json:"deadLetterTotal"`
	QueueDepth      int                            `json:"queueDepth"`
	ByType          map[string]TypeMetricsResponse `json:"byType"`
}

// ListJobsOpts — параметры фильтрации /jobs.
type ListJobsOpts struct {
	Status string
	Type   string
	Source string
	Skip   int
	Take   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент для HTTP Surface jobcore (C9).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListJobs возвращает отфильтрованный список job'ов.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobStatusResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Type != "" {
		params.Set("type", opts.Type)
	}
	if opts.Source != "" {
		params.Set("source", opts.Source)
	}
	if opts.Skip > 0 {
		params.Set("skip", fmt.Sprintf("%d", opts.Skip))
	}
	if opts.Take > 0 {
		params.Set("take", fmt.Sprintf("%d", opts.Take))
	}

	var jobs []JobStatusResponse
	err := c.list("/jobs", params, &jobs)
	return jobs, err
}

// GetJobStatus возвращает запись статуса job по id.
func (c *Client) GetJobStatus(jobID string) (*JobStatusResponse, error) {
	var status JobStatusResponse
	err := c.doData(http.MethodGet, "/jobs/"+jobID+"/status", nil, &status)
	return &status, err
}

// CancelJob отменяет job.
func (c *Client) CancelJob(jobID string) error {
	return c.doData(http.MethodPost, "/jobs/"+jobID+"/cancel", nil, nil)
}

// ListDeadLetter возвращает страницу job'ов в dead-letter.
func (c *Client) ListDeadLetter(skip, take int) ([]JobStatusResponse, error) {
	params := url.Values{}
	if skip > 0 {
		params.Set("skip", fmt.Sprintf("%d", skip))
	}
	if take > 0 {
		params.Set("take", fmt.Sprintf("%d", take))
	}

	var jobs []JobStatusResponse
	err := c.list("/jobs/dead-letter", params, &jobs)
	return jobs, err
}

// Metrics возвращает агрегированные метрики Status Store.
func (c *Client) Metrics() (*MetricsResponse, error) {
	var metrics MetricsResponse
	err := c.doData(http.MethodGet, "/jobs/metrics", nil, &metrics)
	return &metrics, err
}

// --- HTTP helpers ---

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
