package handler_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/handler"
	"github.com/noah-isme/gema-quiz-api/internal/models"
	"github.com/noah-isme/gema-quiz-api/internal/service"
)

func TestQuestionStreamPushesChanges(t *testing.T) {
	q := setupQuizAppWithOptions(t, appOptions{keepAlive: 50 * time.Millisecond})
	assignmentID, _ := q.seedAssignment(t, nil, "A")

	addr, shutdown := startFiberServer(t, q.app)
	defer shutdown()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/assignments/%d/questions/stream", addr, assignmentID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()

	_, err = q.questions.Create(t.Context(), assignmentID, dto.QuestionCreateRequest{
		Type:    models.QuestionTypeEssay,
		Content: "Describe the Calvin cycle.",
	}, service.AdminActor)
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	sawEvent := false
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before the change event")
			if line == "event: questions.changed" {
				sawEvent = true
				continue
			}
			if sawEvent && strings.HasPrefix(line, "data: ") {
				var event dto.QuestionChangedEvent
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
				require.Equal(t, assignmentID, event.AssignmentID)
				require.Len(t, event.Version, 32)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for question change event")
		}
	}
}

func TestQuestionStreamUnknownAssignment(t *testing.T) {
	q := setupQuizApp(t)

	resp := q.do(t, http.MethodGet, "/api/v1/assignments/999/questions/stream", nil, "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestLiveSessionMonitorStreamsSnapshots(t *testing.T) {
	q := setupQuizAppWithOptions(t, appOptions{pollInterval: 50 * time.Millisecond})
	assignmentID, _ := q.seedAssignment(t, nil, "A")
	token := q.adminToken(t)

	_, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Budi"})
	require.NoError(t, err)

	addr, shutdown := startFiberServer(t, q.app)
	defer shutdown()

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.Dial(fmt.Sprintf("ws://%s/api/admin/sessions/ws?assignmentId=%d", addr, assignmentID), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snapshot handler.LiveSessionSnapshot
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, assignmentID, snapshot.AssignmentID)
	require.Len(t, snapshot.Sessions, 1)
	require.Equal(t, "Budi", snapshot.Sessions[0].StudentName)
	require.True(t, snapshot.Sessions[0].RecentlyActive)

	_, err = q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Sari"})
	require.NoError(t, err)

	for len(snapshot.Sessions) < 2 {
		require.NoError(t, conn.ReadJSON(&snapshot))
	}
	require.Len(t, snapshot.Sessions, 2)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestLiveSessionMonitorRequiresAssignment(t *testing.T) {
	q := setupQuizApp(t)
	token := q.adminToken(t)

	addr, shutdown := startFiberServer(t, q.app)
	defer shutdown()

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	_, _, err := dialer.Dial(fmt.Sprintf("ws://%s/api/admin/sessions/ws", addr), nil)
	require.Error(t, err)

	conn, _, err := dialer.Dial(fmt.Sprintf("ws://%s/api/admin/sessions/ws", addr), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)
}

func TestLiveSessionListRequiresUpgradeForSocket(t *testing.T) {
	q := setupQuizApp(t)
	assignmentID, _ := q.seedAssignment(t, nil, "A")
	token := q.adminToken(t)

	_, err := q.sessions.Create(t.Context(), dto.SessionCreateRequest{AssignmentID: assignmentID, StudentName: "Budi"})
	require.NoError(t, err)

	resp := q.do(t, http.MethodGet, "/api/admin/sessions/ws", nil, token)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	resp.Body.Close()

	resp = q.do(t, http.MethodGet, idPath("/api/admin/sessions?assignmentId=%d", assignmentID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var live apiResponse[[]dto.LiveSessionResponse]
	decodeResponse(t, resp, &live)
	require.Len(t, live.Data, 1)
	require.True(t, live.Data[0].RecentlyActive)

	resp = q.do(t, http.MethodGet, "/api/admin/sessions", nil, token)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
