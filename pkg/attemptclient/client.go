// Package attemptclient is a Go client for the student attempt API. It bundles the countdown,
// draft autosave and question watcher used by kiosk and CLI front-ends.
package attemptclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
)

// APIError is returned when the server answers with a non-success envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("attempt api: %d %s", e.Status, e.Message)
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// Client talks to the /api/v1 student routes.
type Client struct {
	http *resty.Client
}

// New constructs a client for the given server base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL + "/api/v1").
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// CreateSession starts a new attempt.
func (c *Client) CreateSession(ctx context.Context, assignmentID uint, studentName string) (dto.SessionCreateResponse, error) {
	req := c.http.R().SetContext(ctx).SetBody(dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: studentName})
	return do[dto.SessionCreateResponse](req, http.MethodPost, "/sessions")
}

// FindIncomplete looks up a resumable attempt for the exact assignment and name pair.
func (c *Client) FindIncomplete(ctx context.Context, assignmentID uint, studentName string) (dto.SessionLookupResponse, error) {
	req := c.http.R().SetContext(ctx).SetQueryParams(map[string]string{
		"assignmentId":   strconv.FormatUint(uint64(assignmentID), 10),
		"studentName":    studentName,
		"findIncomplete": "true",
	})
	return do[dto.SessionLookupResponse](req, http.MethodGet, "/sessions")
}

// CheckDeadline asks the server for the remaining time of an attempt.
func (c *Client) CheckDeadline(ctx context.Context, sessionID uint) (dto.DeadlineCheckResponse, error) {
	req := c.http.R().SetContext(ctx)
	return do[dto.DeadlineCheckResponse](req, http.MethodGet, sessionPath(sessionID, "/deadline-check"))
}

// SaveDraft writes the full draft map.
func (c *Client) SaveDraft(ctx context.Context, sessionID uint, answers map[string]string) (dto.DraftSaveResponse, error) {
	req := c.http.R().SetContext(ctx).SetBody(dto.DraftSaveRequest{DraftAnswers: answers})
	return do[dto.DraftSaveResponse](req, http.MethodPatch, sessionPath(sessionID, "/draft"))
}

// LoadDraft reads the stored draft map.
func (c *Client) LoadDraft(ctx context.Context, sessionID uint) (dto.DraftResponse, error) {
	req := c.http.R().SetContext(ctx)
	return do[dto.DraftResponse](req, http.MethodGet, sessionPath(sessionID, "/draft"))
}

// TouchActivity refreshes the attempt heartbeat.
func (c *Client) TouchActivity(ctx context.Context, sessionID uint) error {
	req := c.http.R().SetContext(ctx)
	_, err := do[json.RawMessage](req, http.MethodPatch, sessionPath(sessionID, "/activity"))
	return err
}

// Exit leaves the attempt, keeping it for later or discarding it.
func (c *Client) Exit(ctx context.Context, sessionID uint, mode string) error {
	req := c.http.R().SetContext(ctx).SetBody(dto.SessionExitRequest{Mode: mode})
	_, err := do[json.RawMessage](req, http.MethodPost, sessionPath(sessionID, "/exit"))
	return err
}

// Questions polls the student question list. A matching version yields Changed=false.
func (c *Client) Questions(ctx context.Context, assignmentID uint, version string) (dto.QuestionSyncResponse, error) {
	req := c.http.R().SetContext(ctx)
	if version != "" {
		req.SetQueryParam("version", version)
	}
	return do[dto.QuestionSyncResponse](req, http.MethodGet, fmt.Sprintf("/assignments/%d/questions", assignmentID))
}

// Submit grades the attempt.
func (c *Client) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmitResponse, error) {
	req := c.http.R().SetContext(ctx).SetBody(payload)
	return do[dto.SubmitResponse](req, http.MethodPost, "/submissions")
}

func do[T any](req *resty.Request, method, path string) (T, error) {
	var zero T
	var body envelope[T]

	resp, err := req.SetResult(&body).SetError(&body).Execute(method, path)
	if err != nil {
		return zero, err
	}

	if resp.IsError() || !body.Success {
		message := body.Message
		if message == "" {
			message = resp.Status()
		}
		return zero, &APIError{Status: resp.StatusCode(), Message: message}
	}

	return body.Data, nil
}

func sessionPath(sessionID uint, suffix string) string {
	return fmt.Sprintf("/sessions/%d%s", sessionID, suffix)
}
