package handler_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
)

func TestSessionHandlerLifecycle(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, questions := q.seedAssignment(t, intPtr(10), "A", "B")
	firstKey := strconv.FormatUint(uint64(questions[0].ID), 10)

	resp := q.do(t, http.MethodPost, "/api/v1/sessions", fiber.Map{"assignmentId": assignmentID, "studentName": "Budi"}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created apiResponse[dto.SessionCreateResponse]
	decodeResponse(t, resp, &created)
	require.True(t, created.Success)
	require.NotZero(t, created.Data.SessionID)
	require.NotNil(t, created.Data.DeadlineAt)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), *created.Data.DeadlineAt, 5*time.Second)
	sessionID := created.Data.SessionID

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions?assignmentId=%d&studentName=Budi&findIncomplete=true", assignmentID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var lookup apiResponse[dto.SessionLookupResponse]
	decodeResponse(t, resp, &lookup)
	require.True(t, lookup.Data.HasIncomplete)
	require.Equal(t, sessionID, lookup.Data.Session.ID)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions?assignmentId=%d&studentName=budi&findIncomplete=true", assignmentID), nil, "")
	var caseMismatch apiResponse[dto.SessionLookupResponse]
	decodeResponse(t, resp, &caseMismatch)
	require.False(t, caseMismatch.Data.HasIncomplete)
	require.Nil(t, caseMismatch.Data.Session)

	resp = q.do(t, http.MethodPatch, idPath("/api/v1/sessions/%d/draft", sessionID), fiber.Map{"draftAnswers": map[string]string{firstKey: "B"}}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var saved apiResponse[dto.DraftSaveResponse]
	decodeResponse(t, resp, &saved)
	require.True(t, saved.Data.Success)
	require.False(t, saved.Data.Degraded)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d/draft", sessionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var draft apiResponse[dto.DraftResponse]
	decodeResponse(t, resp, &draft)
	require.Equal(t, "B", draft.Data.DraftAnswers[firstKey])

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d/deadline-check", sessionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var deadline apiResponse[dto.DeadlineCheckResponse]
	decodeResponse(t, resp, &deadline)
	require.False(t, deadline.Data.Expired)
	require.Greater(t, deadline.Data.RemainingSeconds, int64(590))
	require.LessOrEqual(t, deadline.Data.RemainingSeconds, int64(600))

	resp = q.do(t, http.MethodPut, "/api/v1/sessions", fiber.Map{"sessionId": sessionID, "status": "exited"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var exited apiResponse[dto.SessionResponse]
	decodeResponse(t, resp, &exited)
	require.Equal(t, models.SessionStatusExited, exited.Data.Status)
	require.Equal(t, 1, exited.Data.ExitCount)

	resp = q.do(t, http.MethodPut, "/api/v1/sessions", fiber.Map{"sessionId": sessionID, "status": "active"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodPost, idPath("/api/v1/sessions/%d/exit", sessionID), fiber.Map{"mode": dto.ExitModeDiscard}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d", sessionID), nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionHandlerCreateValidation(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	cases := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "empty name", body: fiber.Map{"assignmentId": assignmentID, "studentName": ""}, status: fiber.StatusBadRequest},
		{name: "markup only name", body: fiber.Map{"assignmentId": assignmentID, "studentName": "<b></b>"}, status: fiber.StatusBadRequest},
		{name: "unknown assignment", body: fiber.Map{"assignmentId": assignmentID + 100, "studentName": "Budi"}, status: fiber.StatusNotFound},
		{name: "malformed body", body: "not-an-object", status: fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := q.do(t, http.MethodPost, "/api/v1/sessions", tc.body, "")
			require.Equal(t, tc.status, resp.StatusCode)
			var payload apiResponse[interface{}]
			decodeResponse(t, resp, &payload)
			require.False(t, payload.Success)
			require.NotEmpty(t, payload.Message)
		})
	}
}

func TestSessionHandlerUntimedDeadline(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	created, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Sari"})
	require.NoError(t, err)
	require.Nil(t, created.DeadlineAt)

	resp := q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d/deadline-check", created.SessionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var deadline apiResponse[dto.DeadlineCheckResponse]
	decodeResponse(t, resp, &deadline)
	require.False(t, deadline.Data.Expired)
	require.Equal(t, int64(-1), deadline.Data.RemainingSeconds)
	require.Nil(t, deadline.Data.DeadlineAt)

	resp = q.do(t, http.MethodGet, "/api/v1/sessions/999/deadline-check", nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionHandlerBeaconAlwaysNoContent(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	created, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Budi"})
	require.NoError(t, err)

	for _, path := range []string{
		idPath("/api/v1/sessions/%d/beacon", created.SessionID),
		"/api/v1/sessions/999/beacon",
		"/api/v1/sessions/abc/beacon",
	} {
		resp := q.do(t, http.MethodPost, path, nil, "")
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode, path)
		resp.Body.Close()
	}

	session, err := q.sessions.Get(t.Context(), created.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExited, session.Status)
	require.Equal(t, 1, session.ExitCount)
}

func TestSessionHandlerRejectsWritesAfterSubmit(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, questions := q.seedAssignment(t, nil, "A")

	created, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Budi"})
	require.NoError(t, err)

	resp := q.do(t, http.MethodPost, "/api/v1/submissions", fiber.Map{
		"assignmentId": assignmentID,
		"studentName":  "Budi",
		"sessionId":    created.SessionID,
		"answers":      map[string]string{strconv.FormatUint(uint64(questions[0].ID), 10): "A"},
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodPatch, idPath("/api/v1/sessions/%d/draft", created.SessionID), fiber.Map{"draftAnswers": map[string]string{"1": "B"}}, "")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodPut, "/api/v1/sessions", fiber.Map{"sessionId": created.SessionID, "status": "active"}, "")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodPost, idPath("/api/v1/sessions/%d/exit", created.SessionID), fiber.Map{"mode": dto.ExitModeKeep}, "")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionHandlerLookupRequiresIncompleteMode(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	resp := q.do(t, http.MethodGet, idPath("/api/v1/sessions?assignmentId=%d&studentName=Budi&findIncomplete=false", assignmentID), nil, "")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodGet, "/api/v1/sessions?studentName=Budi", nil, "")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionHandlerTouchActivity(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	created, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Budi"})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, q.db.Model(&models.StudentSession{}).Where("id = ?", created.SessionID).Update("last_activity_at", past).Error)

	resp := q.do(t, http.MethodPatch, idPath("/api/v1/sessions/%d/activity", created.SessionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	session, err := q.sessions.Get(t.Context(), created.SessionID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), session.LastActivityAt, 5*time.Second)

	resp = q.do(t, http.MethodPatch, "/api/v1/sessions/999/activity", nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
