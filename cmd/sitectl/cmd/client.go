package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

// SiteClient handles API calls to the obra-back server.
type SiteClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewSiteClient(baseURL, token string) *SiteClient {
	return &SiteClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

type CurrentWeek struct {
	WeekKey     weekkey.Key      `json:"week_key"`
	NextWeekKey weekkey.Key      `json:"next_week_key"`
	WrapMode    weekkey.WrapMode `json:"wrap_mode"`
	Range       domain.DateRange `json:"range"`
}

type JobView struct {
	JobID           string                     `json:"job_id"`
	SiteID          string                     `json:"site_id"`
	ExpectedWeekKey weekkey.Key                `json:"expected_week_key"`
	Status          domain.JobStatus           `json:"status"`
	Attempts        int                        `json:"attempts"`
	Result          *domain.CarryForwardResult `json:"result,omitempty"`
	Error           *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (j JobView) Finished() bool {
	return j.Status == domain.JobStatusDone || j.Status == domain.JobStatusFailed
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (c *SiteClient) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		request.Header.Set("Authorization", "Bearer "+c.Token)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{
		StatusCode: status,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
		RequestID:  envelope.RequestID,
	}
}

func (c *SiteClient) CurrentWeek() (*CurrentWeek, error) {
	var week CurrentWeek
	if err := c.do(http.MethodGet, "/v1/weeks/current", nil, &week); err != nil {
		return nil, err
	}
	return &week, nil
}

func (c *SiteClient) GetSite(siteID string) (*domain.Site, error) {
	var site domain.Site
	if err := c.do(http.MethodGet, "/v1/sites/"+siteID, nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (c *SiteClient) CarryForward(siteID string, expected weekkey.Key) (*domain.CarryForwardResult, error) {
	payload := map[string]any{}
	if expected != "" {
		payload["expected_week_key"] = expected
	}
	var result domain.CarryForwardResult
	if err := c.do(http.MethodPost, "/v1/sites/"+siteID+"/carry-forward", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *SiteClient) RequestRollover(siteIDs []string) ([]JobView, error) {
	var response struct {
		Jobs []JobView `json:"jobs"`
	}
	if err := c.do(http.MethodPost, "/v1/rollovers", map[string]any{"site_ids": siteIDs}, &response); err != nil {
		return nil, err
	}
	return response.Jobs, nil
}

func (c *SiteClient) GetJob(jobID string) (*JobView, error) {
	var job JobView
	if err := c.do(http.MethodGet, "/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *SiteClient) SaveSnapshot() (*domain.ReportSnapshot, error) {
	var snapshot domain.ReportSnapshot
	if err := c.do(http.MethodPost, "/v1/snapshots", nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *SiteClient) GetSnapshot(key weekkey.Key) (*domain.ReportSnapshot, error) {
	var snapshot domain.ReportSnapshot
	if err := c.do(http.MethodGet, "/v1/snapshots/"+string(key), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *SiteClient) ListSnapshots() ([]domain.ReportSnapshot, error) {
	var response listResponse[domain.ReportSnapshot]
	if err := c.do(http.MethodGet, "/v1/snapshots", nil, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

func (c *SiteClient) CreateUser(user FixtureUser) (*domain.User, error) {
	var created domain.User
	if err := c.do(http.MethodPost, "/v1/users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *SiteClient) CreateSite(site FixtureSite) (*domain.Site, error) {
	payload := map[string]any{
		"name":        site.Name,
		"location":    site.Location,
		"engineer_id": site.EngineerID,
		"week_key":    site.WeekKey,
	}
	var created domain.Site
	if err := c.do(http.MethodPost, "/v1/sites", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *SiteClient) CreateTask(siteID string, task FixtureTask) (*domain.Task, error) {
	var created domain.Task
	if err := c.do(http.MethodPost, "/v1/sites/"+siteID+"/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
