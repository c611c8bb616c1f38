package handler_test

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/service"
)

func answerKey(question dto.QuestionResponse) string {
	return strconv.FormatUint(uint64(question.ID), 10)
}

func TestSubmissionHandlerGradesAndReplacesAttempt(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, questions := q.seedAssignment(t, nil, "A", "B", "C", "D")

	first := fiber.Map{
		"assignmentId":    assignmentID,
		"studentName":     "Budi",
		"durationSeconds": 120,
		"answers": map[string]string{
			answerKey(questions[0]): "A",
			answerKey(questions[1]): "B",
			answerKey(questions[2]): "C",
			answerKey(questions[3]): "A",
		},
	}
	resp := q.do(t, http.MethodPost, "/api/v1/submissions", first, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var graded apiResponse[dto.SubmitResponse]
	decodeResponse(t, resp, &graded)
	require.True(t, graded.Success)
	require.Equal(t, 7.5, graded.Data.Score)

	second := fiber.Map{
		"assignmentId":    assignmentID,
		"studentName":     "Budi",
		"durationSeconds": 90,
		"answers": map[string]string{
			answerKey(questions[0]): "A",
			answerKey(questions[1]): "B",
			answerKey(questions[2]): "C",
			answerKey(questions[3]): "D",
		},
	}
	resp = q.do(t, http.MethodPost, "/api/v1/submissions", second, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var regraded apiResponse[dto.SubmitResponse]
	decodeResponse(t, resp, &regraded)
	require.Equal(t, graded.Data.SubmissionID, regraded.Data.SubmissionID)
	require.Equal(t, 10.0, regraded.Data.Score)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/submissions/%d", regraded.Data.SubmissionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result apiResponse[dto.SubmissionResponse]
	decodeResponse(t, resp, &result)
	require.Equal(t, "Budi", result.Data.StudentName)
	require.Equal(t, models.SubmissionStatusScored, result.Data.Status)
	require.Len(t, result.Data.Answers, 4)
	require.Equal(t, 90, result.Data.DurationSeconds)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/submissions?assignmentId=%d&studentName=Budi", assignmentID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history apiResponse[dto.SubmissionHistoryResponse]
	decodeResponse(t, resp, &history)
	require.Len(t, history.Data.Submissions, 1)
	require.Len(t, history.Data.Attempts, 2)

	scores := []float64{history.Data.Attempts[0].Score, history.Data.Attempts[1].Score}
	require.ElementsMatch(t, []float64{7.5, 10}, scores)
}

func TestSubmissionHandlerValidation(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")
	emptyID, _ := q.seedAssignment(t, nil)

	cases := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "missing name", body: fiber.Map{"assignmentId": assignmentID}, status: fiber.StatusBadRequest},
		{name: "blank name", body: fiber.Map{"assignmentId": assignmentID, "studentName": "   "}, status: fiber.StatusBadRequest},
		{name: "assignment without questions", body: fiber.Map{"assignmentId": emptyID, "studentName": "Budi"}, status: fiber.StatusNotFound},
		{name: "unknown session", body: fiber.Map{"assignmentId": assignmentID, "studentName": "Budi", "sessionId": 404}, status: fiber.StatusNotFound},
		{name: "negative duration", body: fiber.Map{"assignmentId": assignmentID, "studentName": "Budi", "durationSeconds": -1}, status: fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := q.do(t, http.MethodPost, "/api/v1/submissions", tc.body, "")
			require.Equal(t, tc.status, resp.StatusCode)
			resp.Body.Close()
		})
	}

	var count int64
	require.NoError(t, q.db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmissionHandlerDeadlineAutoSubmit(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, questions := q.seedAssignment(t, intPtr(5), "A", "B")

	created, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Sari"})
	require.NoError(t, err)

	resp := q.do(t, http.MethodPatch, idPath("/api/v1/sessions/%d/draft", created.SessionID), fiber.Map{
		"draftAnswers": map[string]string{answerKey(questions[0]): "A"},
	}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	past := time.Now().Add(-time.Second).UTC()
	require.NoError(t, q.db.Model(&models.StudentSession{}).Where("id = ?", created.SessionID).Update("deadline_at", past).Error)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d/deadline-check", created.SessionID), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var first apiResponse[dto.DeadlineCheckResponse]
	decodeResponse(t, resp, &first)
	require.True(t, first.Data.Expired)
	require.Zero(t, first.Data.RemainingSeconds)
	require.True(t, first.Data.AutoSubmitted)
	require.NotNil(t, first.Data.SubmissionID)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/sessions/%d/deadline-check", created.SessionID), nil, "")
	var second apiResponse[dto.DeadlineCheckResponse]
	decodeResponse(t, resp, &second)
	require.True(t, second.Data.Expired)
	require.False(t, second.Data.AutoSubmitted)
	require.Equal(t, *first.Data.SubmissionID, *second.Data.SubmissionID)

	resp = q.do(t, http.MethodGet, idPath("/api/v1/submissions/%d", *first.Data.SubmissionID), nil, "")
	var result apiResponse[dto.SubmissionResponse]
	decodeResponse(t, resp, &result)
	require.True(t, result.Data.AutoSubmitted)
	require.Equal(t, 5.0, result.Data.Score)

	var attempts int64
	require.NoError(t, q.db.Model(&models.SubmissionAttempt{}).Count(&attempts).Error)
	require.Equal(t, int64(1), attempts)
}

func TestSubmissionHandlerAdminRoutes(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, questions := q.seedAssignment(t, nil, "A", "B")
	token := q.adminToken(t)

	resp := q.do(t, http.MethodPost, "/api/v1/submissions", fiber.Map{
		"assignmentId": assignmentID,
		"studentName":  "Budi, Jr.",
		"answers":      map[string]string{answerKey(questions[0]): "A", answerKey(questions[1]): "C"},
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var graded apiResponse[dto.SubmitResponse]
	decodeResponse(t, resp, &graded)
	require.Equal(t, 5.0, graded.Data.Score)

	resp = q.do(t, http.MethodGet, idPath("/api/admin/submissions?assignmentId=%d", assignmentID), nil, "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodGet, idPath("/api/admin/submissions?assignmentId=%d", assignmentID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed apiResponse[[]dto.SubmissionResponse]
	decodeResponse(t, resp, &listed)
	require.Len(t, listed.Data, 1)

	resp = q.do(t, http.MethodGet, idPath("/api/admin/submissions/export?assignmentId=%d", assignmentID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	records, err := csv.NewReader(resp.Body).ReadAll()
	resp.Body.Close()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"student_name", "score", "duration_seconds", "submitted_at", "auto_submitted", "q1", "q2"}, records[0])
	require.Equal(t, "Budi, Jr.", records[1][0])
	require.Equal(t, "5.00", records[1][1])
	require.Equal(t, []string{"A", "C"}, records[1][5:])

	resp = q.do(t, http.MethodGet, "/api/admin/submissions/export", nil, token)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodDelete, idPath("/api/admin/submissions/%d", graded.Data.SubmissionID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodGet, idPath("/api/v1/submissions/%d", graded.Data.SubmissionID), nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmissionHandlerRegradeEssay(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")
	essay, err := q.questions.Create(t.Context(), assignmentID, dto.QuestionCreateRequest{
		Type:    models.QuestionTypeEssay,
		Content: "Explain the light reaction.",
	}, service.AdminActor)
	require.NoError(t, err)
	token := q.adminToken(t)

	resp := q.do(t, http.MethodPost, "/api/v1/submissions", fiber.Map{
		"assignmentId": assignmentID,
		"studentName":  "Budi",
		"answers":      map[string]string{answerKey(essay): "Chlorophyll absorbs light."},
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var graded apiResponse[dto.SubmitResponse]
	decodeResponse(t, resp, &graded)
	require.Zero(t, graded.Data.Score)

	var essayAnswer models.Answer
	require.NoError(t, q.db.Where("submission_id = ? AND question_id = ?", graded.Data.SubmissionID, essay.ID).First(&essayAnswer).Error)
	require.Nil(t, essayAnswer.IsCorrect)

	resp = q.do(t, http.MethodPatch, idPath("/api/admin/answers/%d", essayAnswer.ID), fiber.Map{"points": 50}, token)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodPatch, idPath("/api/admin/answers/%d", essayAnswer.ID), fiber.Map{"points": 5}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var updated apiResponse[dto.SubmissionResponse]
	decodeResponse(t, resp, &updated)
	require.Equal(t, 5.0, updated.Data.Score)

	resp = q.do(t, http.MethodPatch, "/api/admin/answers/999", fiber.Map{"points": 1}, token)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
