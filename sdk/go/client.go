package certlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Certline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Task is a derived renewal task with its current status.
type Task struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Priority        string  `json:"priority"`
	EmployeeID      string  `json:"employee_id"`
	EmployeeName    string  `json:"employee_name"`
	Department      string  `json:"department"`
	Category        string  `json:"category"`
	Area            string  `json:"area"`
	CertificationID string  `json:"certification_id"`
	ExpiryDate      string  `json:"expiry_date"`
	DaysLeft        int     `json:"days_left"`
	Status          string  `json:"status"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Critical   int `json:"critical"`
	High       int `json:"high"`
	Medium     int `json:"medium"`
	Low        int `json:"low"`
}

// Warning reports a record the server skipped or could not fully evaluate.
type Warning struct {
	Code            string `json:"code"`
	PersonID        string `json:"person_id,omitempty"`
	CertificationID string `json:"certification_id,omitempty"`
	PositionID      string `json:"position_id,omitempty"`
	Message         string `json:"message"`
}

type TaskList struct {
	Tasks       []Task    `json:"tasks"`
	Stats       TaskStats `json:"stats"`
	Departments []string  `json:"departments"`
	Warnings    []Warning `json:"warnings"`
}

// TaskFilter narrows Tasks; empty fields are not sent.
type TaskFilter struct {
	Status     string
	Priority   string
	Type       string
	Department string
}

type BulkResult struct {
	TaskID  string `json:"task_id"`
	OK      bool   `json:"ok"`
	Task    *Task  `json:"task,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type BulkResponse struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []BulkResult `json:"results"`
}

type ComplianceRecord struct {
	PersonID          string   `json:"person_id"`
	PersonName        string   `json:"person_name"`
	Position          string   `json:"position"`
	Department        string   `json:"department"`
	RequiredAreas     []string `json:"required_areas"`
	ActualAreas       []string `json:"actual_areas"`
	ExpiringAreas     []string `json:"expiring_areas"`
	MissingAreas      []string `json:"missing_areas"`
	CompliancePercent int      `json:"compliance_percent"`
}

type FleetStats struct {
	TotalEmployees    int `json:"total_employees"`
	FullCompliance    int `json:"full_compliance"`
	PartialCompliance int `json:"partial_compliance"`
	NonCompliant      int `json:"non_compliant"`
	AvgCompliance     int `json:"avg_compliance"`
}

type ComplianceReport struct {
	Records     []ComplianceRecord `json:"records"`
	Stats       FleetStats         `json:"stats"`
	Departments []string           `json:"departments"`
	Warnings    []Warning          `json:"warnings"`
}

type Certification struct {
	ID             string `json:"id"`
	PersonID       string `json:"person_id"`
	Category       string `json:"category"`
	Area           string `json:"area"`
	IssueDate      string `json:"issue_date"`
	ExpiryDate     string `json:"expiry_date"`
	ProtocolNumber string `json:"protocol_number,omitempty"`
	ProtocolDate   string `json:"protocol_date,omitempty"`
	Verified       bool   `json:"verified"`
	VerifiedDate   string `json:"verified_date,omitempty"`
}

// ImportRecord is one row sent to ImportCertifications.
type ImportRecord struct {
	PersonnelID    string `json:"personnel_id"`
	Category       string `json:"category"`
	Area           string `json:"area"`
	IssueDate      string `json:"issue_date"`
	ExpiryDate     string `json:"expiry_date"`
	ProtocolNumber string `json:"protocol_number,omitempty"`
	ProtocolDate   string `json:"protocol_date,omitempty"`
}

type ImportRow struct {
	Index           int      `json:"index"`
	Status          string   `json:"status"`
	Messages        []string `json:"messages,omitempty"`
	CertificationID string   `json:"certification_id,omitempty"`
	PersonName      string   `json:"person_name,omitempty"`
}

type ImportReport struct {
	DryRun   bool        `json:"dry_run"`
	Valid    int         `json:"valid"`
	Warnings int         `json:"warnings"`
	Errors   int         `json:"errors"`
	Imported int         `json:"imported"`
	Rows     []ImportRow `json:"rows"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the envelope code when the body carried one.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Tasks lists tasks with statistics.
func (c *Client) Tasks(ctx context.Context, f TaskFilter) (TaskList, error) {
	q := url.Values{}
	for k, v := range map[string]string{"status": f.Status, "priority": f.Priority, "type": f.Type, "department": f.Department} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp TaskList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Task(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// SetTaskStatus moves one task to status.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(taskID)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// BulkSetTaskStatus moves several tasks; failures are reported per item.
func (c *Client) BulkSetTaskStatus(ctx context.Context, taskIDs []string, status string) (BulkResponse, error) {
	var resp BulkResponse
	err := c.do(ctx, http.MethodPost, "tasks/status", map[string]any{"task_ids": taskIDs, "status": status}, &resp)
	return resp, err
}

// Compliance returns records and fleet statistics, optionally for one department.
func (c *Client) Compliance(ctx context.Context, department string) (ComplianceReport, error) {
	endpoint := "compliance"
	if department != "" {
		endpoint += "?department=" + url.QueryEscape(department)
	}
	var resp ComplianceReport
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) PersonCompliance(ctx context.Context, personID string) (ComplianceRecord, error) {
	var resp ComplianceRecord
	err := c.do(ctx, http.MethodGet, "compliance/"+url.PathEscape(personID), nil, &resp)
	return resp, err
}

func (c *Client) SetCertificationVerified(ctx context.Context, certificationID string, verified bool) (Certification, error) {
	var resp Certification
	endpoint := "certifications/" + url.PathEscape(certificationID) + "/verification"
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"verified": verified}, &resp)
	return resp, err
}

// ImportCertifications validates records and, unless dryRun, stores the accepted ones.
func (c *Client) ImportCertifications(ctx context.Context, records []ImportRecord, dryRun bool) (ImportReport, error) {
	if records == nil {
		records = []ImportRecord{}
	}
	var resp ImportReport
	err := c.do(ctx, http.MethodPost, "certifications/import", map[string]any{"records": records, "dry_run": dryRun}, &resp)
	return resp, err
}

// CollectStaleOverrides drops statuses of tasks that are no longer derived.
func (c *Client) CollectStaleOverrides(ctx context.Context) ([]string, error) {
	var resp struct {
		Removed []string `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "overrides/collect", nil, &resp)
	return resp.Removed, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
