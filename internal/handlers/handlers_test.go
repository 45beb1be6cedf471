package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/auth"
	"clipforge/internal/export"
	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/progress"
	"clipforge/internal/storage"
	"clipforge/internal/ws"

	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

type testServer struct {
	e      *echo.Echo
	videos *storage.VideoRepository
	tasks  *storage.TaskRepository
	clips  *storage.ClipRepository
	auth   *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	videos := storage.NewVideoRepository(db)
	tasks := storage.NewTaskRepository(db)
	clips := storage.NewClipRepository(db)
	authSvc := auth.NewService(testSecret, time.Hour)

	hub := ws.NewHub(ws.DefaultConfig(), func(ctx context.Context, subject, resourceID string) error {
		return nil
	})
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	tracker := progress.NewTracker(tasks, hub)
	p, err := pipeline.New(tracker, tasks, videos, clips, nil, nil, nil,
		export.NewRegistry(dir, ""), dir)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	e := echo.New()
	New(testSecret, authSvc, videos, tasks, clips, p, hub).Register(e)
	return &testServer{e: e, videos: videos, tasks: tasks, clips: clips, auth: authSvc}
}

func (s *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := s.auth.Issue(subject)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (s *testServer) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createVideo(t *testing.T, token string) string {
	t.Helper()
	rec := s.request(t, http.MethodPost, "/api/videos", token,
		`{"url":"https://example.com/talk.mp4","auto_start":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create video: status = %d, body = %s", rec.Code, rec.Body)
	}
	var out struct {
		Video models.Video `json:"video"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out.Video.ID
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	if rec := s.request(t, http.MethodGet, "/api/videos", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := s.request(t, http.MethodGet, "/api/videos", "bogus", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
	if rec := s.request(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health needs no auth: status = %d", rec.Code)
	}
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(t, http.MethodPost, "/api/token", "", `{"secret":"wrong","subject":"alice"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}
	rec = s.request(t, http.MethodPost, "/api/token", "", `{"secret":"`+testSecret+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing subject: status = %d, want 400", rec.Code)
	}

	rec = s.request(t, http.MethodPost, "/api/token", "", `{"secret":"`+testSecret+`","subject":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue token: status = %d, body = %s", rec.Code, rec.Body)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec := s.request(t, http.MethodGet, "/api/videos", out["token"], ""); rec.Code != http.StatusOK {
		t.Errorf("issued token rejected: status = %d", rec.Code)
	}
}

func TestCreateVideoStartsPipeline(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")

	rec := s.request(t, http.MethodPost, "/api/videos", token, `{"url":"https://example.com/talk.mp4"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var out struct {
		Video models.Video           `json:"video"`
		Task  *models.ProcessingTask `json:"task"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Task == nil || out.Task.Stage != models.StageDownload {
		t.Errorf("task = %+v, want pending download task", out.Task)
	}
	if out.Video.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", out.Video.OwnerID)
	}

	rec = s.request(t, http.MethodPost, "/api/videos", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, want 400", rec.Code)
	}
}

func TestStageTriggerConflicts(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")
	videoID := s.createVideo(t, token)

	// Out of order: extract_audio needs a completed download first.
	rec := s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/extract_audio", token, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("out-of-order trigger: status = %d, want 409", rec.Code)
	}

	rec = s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/download", token, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger download: status = %d, body = %s", rec.Code, rec.Body)
	}
	rec = s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/download", token, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate trigger: status = %d, want 409", rec.Code)
	}

	rec = s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/transmogrify", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown stage: status = %d, want 400", rec.Code)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	s := newTestServer(t)
	alice := s.token(t, "alice")
	mallory := s.token(t, "mallory")
	videoID := s.createVideo(t, alice)

	if rec := s.request(t, http.MethodGet, "/api/videos/"+videoID, mallory, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign get: status = %d, want 403", rec.Code)
	}
	if rec := s.request(t, http.MethodGet, "/api/videos/"+videoID+"/progress", mallory, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign progress: status = %d, want 403", rec.Code)
	}
	if rec := s.request(t, http.MethodGet, "/api/videos/"+videoID, alice, ""); rec.Code != http.StatusOK {
		t.Errorf("owner get: status = %d", rec.Code)
	}
	if rec := s.request(t, http.MethodGet, "/api/videos/no-such-id", alice, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing video: status = %d, want 404", rec.Code)
	}
}

func TestProgressSnapshotEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")
	videoID := s.createVideo(t, token)
	ctx := context.Background()

	task, err := s.tasks.Create(ctx, videoID, models.StageDownload, nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s.tasks.Start(ctx, task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.tasks.UpdateProgress(ctx, task.ID, 50, "downloading", nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec := s.request(t, http.MethodGet, "/api/videos/"+videoID+"/progress", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var snap models.ProgressSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Stage != models.StageDownload || snap.Progress != 15 {
		t.Errorf("snapshot = %+v, want download at 15 overall", snap)
	}
	if snap.Finished {
		t.Error("snapshot finished mid-stage")
	}
}

func TestCancelEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")
	videoID := s.createVideo(t, token)

	rec := s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/download", token, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger: status = %d", rec.Code)
	}

	rec = s.request(t, http.MethodPost, "/api/videos/"+videoID+"/cancel", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d, body = %s", rec.Code, rec.Body)
	}
	var out map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["canceled"] != 1 {
		t.Errorf("canceled = %d, want 1", out["canceled"])
	}
}

func TestDeleteVideoWithActiveTasks(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")
	videoID := s.createVideo(t, token)

	rec := s.request(t, http.MethodPost, "/api/videos/"+videoID+"/stages/download", token, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger: status = %d", rec.Code)
	}
	if rec := s.request(t, http.MethodDelete, "/api/videos/"+videoID, token, ""); rec.Code != http.StatusConflict {
		t.Errorf("delete with active task: status = %d, want 409", rec.Code)
	}
}

func TestClipSelectionEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "alice")
	videoID := s.createVideo(t, token)
	ctx := context.Background()

	clip := &models.Clip{VideoID: videoID, Title: "hook", StartSec: 5, EndSec: 25, Selected: true}
	if err := s.clips.Create(ctx, clip); err != nil {
		t.Fatalf("create clip: %v", err)
	}

	rec := s.request(t, http.MethodPatch, "/api/clips/"+clip.ID, token, `{"selected":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch clip: status = %d, body = %s", rec.Code, rec.Body)
	}
	got, err := s.clips.GetByID(ctx, clip.ID)
	if err != nil {
		t.Fatalf("get clip: %v", err)
	}
	if got.Selected {
		t.Error("clip still selected")
	}

	if rec := s.request(t, http.MethodPatch, "/api/clips/"+clip.ID, token, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("patch without selected: status = %d, want 400", rec.Code)
	}

	rec = s.request(t, http.MethodGet, "/api/videos/"+videoID+"/clips", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list clips: status = %d", rec.Code)
	}
	var clips []models.Clip
	if err := json.Unmarshal(rec.Body.Bytes(), &clips); err != nil {
		t.Fatalf("decode clips: %v", err)
	}
	if len(clips) != 1 {
		t.Errorf("clips = %d, want 1", len(clips))
	}
}
