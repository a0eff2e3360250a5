package socialservicesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Social Service HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Work represents the API work selection model.
type Work struct {
	ID                   int64    `json:"id"`
	OwnerID              int64    `json:"owner_id"`
	ProgramID            int64    `json:"program_id"`
	FacultyID            int64    `json:"faculty_id"`
	InstructorID         int64    `json:"instructor_id"`
	LaborID              int64    `json:"labor_id"`
	ActionLineID         int64    `json:"action_line_id"`
	ServiceType          string   `json:"service_type"`
	PlanState            string   `json:"plan_state"`
	PlanConformity       *string  `json:"plan_conformity"`
	PlanFile             *string  `json:"plan_file,omitempty"`
	AcceptanceLetterFile *string  `json:"acceptance_letter_file,omitempty"`
	TerminationRequest   string   `json:"termination_request"`
	CompletionLetterFile *string  `json:"completion_letter_file,omitempty"`
	FinalReportFile      *string  `json:"final_report_file,omitempty"`
	FinalReportState     string   `json:"final_report_state"`
	CertificateFile      *string  `json:"certificate_file,omitempty"`
	Members              []Member `json:"members,omitempty"`
	Finished             bool     `json:"finished"`
	Warnings             []string `json:"warnings,omitempty"`
}

// NewWork is the payload of CreateWork.
type NewWork struct {
	OwnerID      int64    `json:"owner_id"`
	ServiceType  string   `json:"service_type"`
	ProgramID    int64    `json:"program_id"`
	FacultyID    int64    `json:"faculty_id"`
	InstructorID int64    `json:"instructor_id"`
	LaborID      int64    `json:"labor_id"`
	ActionLineID int64    `json:"action_line_id"`
	GroupEmails  []string `json:"group_emails,omitempty"`
}

type Member struct {
	ID     int64  `json:"id"`
	WorkID int64  `json:"work_id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// ActivityInput is one row of a schedule.
type ActivityInput struct {
	Description    string `json:"description"`
	Justification  string `json:"justification,omitempty"`
	StartDate      string `json:"start_date"`
	PlannedEndDate string `json:"planned_end_date"`
	Results        string `json:"results,omitempty"`
}

type Activity struct {
	ID             int64   `json:"id"`
	WorkID         int64   `json:"work_id"`
	Ordinal        int     `json:"ordinal"`
	Description    string  `json:"description"`
	StartDate      string  `json:"start_date"`
	PlannedEndDate string  `json:"planned_end_date"`
	CompletedOn    *string `json:"completed_on,omitempty"`
	Observation    *string `json:"observation,omitempty"`
	EvidenceFile   *string `json:"evidence_file,omitempty"`
	Status         *string `json:"status,omitempty"`
	EvidenceWindow *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"evidence_window,omitempty"`
}

type Observation struct {
	ID        int64  `json:"id"`
	WorkID    int64  `json:"work_id"`
	Category  string `json:"category"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	WorkID     int64  `json:"work_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code carries the error envelope code
// when the body could be decoded.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateWork(ctx context.Context, in NewWork) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, "works", in, &resp)
	return resp, err
}

func (c *Client) GetWork(ctx context.Context, id int64) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodGet, workPath(id, ""), nil, &resp)
	return resp, err
}

// ReviewSelection accepts or rejects a pending selection.
func (c *Client) ReviewSelection(ctx context.Context, id int64, verdict, reason string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(id, "review"), map[string]string{"verdict": verdict, "reason": reason}, &resp)
	return resp, err
}

// UploadPlan sends the plan document as a multipart upload.
func (c *Client) UploadPlan(ctx context.Context, id int64, filename string, data []byte) (Work, error) {
	var resp Work
	err := c.upload(ctx, http.MethodPost, workPath(id, "plan"), filename, data, nil, &resp)
	return resp, err
}

func (c *Client) ResolvePlanConformity(ctx context.Context, id int64, verdict, reason string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(id, "plan/conformity"), map[string]string{"verdict": verdict, "reason": reason}, &resp)
	return resp, err
}

func (c *Client) RequestCompletion(ctx context.Context, id int64) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(id, "completion"), nil, &resp)
	return resp, err
}

func (c *Client) ResolveCompletion(ctx context.Context, id int64, verdict string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(id, "completion/resolution"), map[string]string{"verdict": verdict}, &resp)
	return resp, err
}

func (c *Client) SubmitFinalReport(ctx context.Context, id int64, filename string, data []byte) (Work, error) {
	var resp Work
	err := c.upload(ctx, http.MethodPost, workPath(id, "final-report"), filename, data, nil, &resp)
	return resp, err
}

func (c *Client) SetFinalReportState(ctx context.Context, id int64, state string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPut, workPath(id, "final-report/state"), map[string]string{"state": state}, &resp)
	return resp, err
}

func (c *Client) IssueCertificate(ctx context.Context, id int64, filename string, data []byte) (Work, error) {
	var resp Work
	err := c.upload(ctx, http.MethodPost, workPath(id, "certificate"), filename, data, nil, &resp)
	return resp, err
}

// ReplaceSchedule swaps the whole schedule of a work.
func (c *Client) ReplaceSchedule(ctx context.Context, id int64, items []ActivityInput) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodPut, workPath(id, "schedule"), map[string]any{"activities": items}, &resp)
	return resp, err
}

func (c *Client) Schedule(ctx context.Context, id int64) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodGet, workPath(id, "schedule"), nil, &resp)
	return resp, err
}

// AttachEvidence uploads proof for an activity. status may be empty.
func (c *Client) AttachEvidence(ctx context.Context, activityID int64, filename string, data []byte, status string) (Activity, error) {
	var fields map[string]string
	if status != "" {
		fields = map[string]string{"status": status}
	}
	var resp Activity
	err := c.upload(ctx, http.MethodPost, fmt.Sprintf("activities/%d/evidence", activityID), filename, data, fields, &resp)
	return resp, err
}

func (c *Client) ClearEvidence(ctx context.Context, activityID int64) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("activities/%d/evidence", activityID), nil, &resp)
	return resp, err
}

func (c *Client) AddMembers(ctx context.Context, id int64, emails []string) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodPost, workPath(id, "members"), map[string]any{"emails": emails}, &resp)
	return resp, err
}

func (c *Client) AppendObservation(ctx context.Context, id int64, category, body string) (Observation, error) {
	var resp Observation
	err := c.do(ctx, http.MethodPost, workPath(id, "observations"), map[string]string{"category": category, "body": body}, &resp)
	return resp, err
}

// LatestObservation returns the newest observation of category.
func (c *Client) LatestObservation(ctx context.Context, id int64, category string) (Observation, error) {
	var resp Observation
	endpoint := workPath(id, "observations/latest") + "?category=" + url.QueryEscape(category)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first. workID 0 lists
// every work.
func (c *Client) EventsPage(ctx context.Context, workID int64, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if workID > 0 {
		q.Set("work_id", strconv.FormatInt(workID, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
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

func workPath(id int64, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("works/%d", id)
	}
	return fmt.Sprintf("works/%d/%s", id, suffix)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) upload(ctx context.Context, method, endpoint, filename string, data []byte, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
