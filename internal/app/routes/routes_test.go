package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/registrar/internal/app/controllers"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/repositories/inmem"
	"github.com/yigit/registrar/internal/app/services"
	"github.com/yigit/registrar/internal/pkg/filestorage"
	"github.com/yigit/registrar/internal/pkg/queue"
)

type stubDispatcher struct {
	coursePath string
	gradeSect  int64
	userID     int64
}

func (d *stubDispatcher) DispatchCourseImport(_ context.Context, filePath string, userID int64, importID, _ string) (string, error) {
	d.coursePath, d.userID = filePath, userID
	return "job-1", nil
}

func (d *stubDispatcher) DispatchGradeImport(_ context.Context, filePath string, userID int64, importID, _ string, sectionID int64) (string, error) {
	d.gradeSect, d.userID = sectionID, userID
	return "job-2", nil
}

type env struct {
	router     *gin.Engine
	store      *inmem.Store
	storage    *filestorage.LocalStorage
	dispatcher *stubDispatcher
	failed     *queue.MemoryFailedJobStore
	sectionID  int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := inmem.NewStore()
	repos := store.Repositories()
	section := store.AddSection(models.CourseSection{CourseID: 1, SectionCode: "01", Year: 2026, Term: models.TermFall, Capacity: 1})

	storage, err := filestorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	failed := queue.NewMemoryFailedJobStore()
	dispatcher := &stubDispatcher{}
	router := gin.New()
	SetupRouter(router, Controllers{
		Enrollments: controllers.NewEnrollmentController(
			services.NewEnrollmentService(repos.Sections, repos.Enrollments, queue.Nop{}, zerolog.Nop())),
		Imports:    controllers.NewImportController(dispatcher, storage, "imports/uploads"),
		FailedJobs: controllers.NewFailedJobController(failed),
	})

	return &env{router: router, store: store, storage: storage, dispatcher: dispatcher, failed: failed, sectionID: section.ID}
}

func (e *env) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func (e *env) enroll(t *testing.T, studentID int64) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sections/%d/enrollments", e.sectionID),
		bytes.NewBufferString(fmt.Sprintf(`{"studentId": %d}`, studentID)))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func data(body map[string]any) map[string]any {
	return body["data"].(map[string]any)
}

func TestEnrollDropPromoteOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec, body := e.enroll(t, 1)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "enrolled", data(body)["status"])
	seatedID := int64(data(body)["id"].(float64))

	rec, body = e.enroll(t, 2)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "waitlisted", data(body)["status"])
	assert.Equal(t, float64(1), data(body)["waitlistPosition"])

	rec, _ = e.enroll(t, 2)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = e.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/sections/%d/waitlist", e.sectionID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)

	rec, body = e.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/enrollments/%d", seatedID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	promoted := data(body)["promoted"].(map[string]any)
	assert.Equal(t, float64(2), promoted["studentId"])

	rec, body = e.do(t, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sections/%d/promotions", e.sectionID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, data(body)["promoted"])

	rec, _ = e.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/enrollments/%d", seatedID), nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnrollValidation(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.enroll(t, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sections/abc/enrollments", bytes.NewBufferString(`{"studentId":1}`))
	rec, _ = e.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sections/999/enrollments", bytes.NewBufferString(`{"studentId":1}`))
	rec, _ = e.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, url, filename, content, userID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func TestImportUploadsAreDispatched(t *testing.T) {
	e := newEnv(t)

	rec, body := e.do(t, multipartUpload(t, "/api/v1/imports/courses", "catalog.csv", "course_code\n", "42"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	importID := data(body)["importId"].(string)
	assert.Equal(t, "imports/logs/"+importID+"_errors.log", data(body)["errorLogPath"])
	assert.Equal(t, int64(42), e.dispatcher.userID)

	exists, err := e.storage.Exists(e.dispatcher.coursePath)
	require.NoError(t, err)
	assert.True(t, exists)

	url := fmt.Sprintf("/api/v1/sections/%d/imports/grades", e.sectionID)
	rec, _ = e.do(t, multipartUpload(t, url, "grades.CSV", "student_id,grade\n", "7"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, e.sectionID, e.dispatcher.gradeSect)
}

func TestImportRejectsBadUploads(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, multipartUpload(t, "/api/v1/imports/courses", "catalog.csv", "x", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing X-User-ID")

	rec, _ = e.do(t, multipartUpload(t, "/api/v1/imports/courses", "catalog.xlsx", "x", "1"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestImportErrorLog(t *testing.T) {
	e := newEnv(t)
	importID := "5b0c6a57-8f6e-4c53-9a55-0f3f1f0a9b11"

	rec, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/errors", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, e.storage.Write(models.ErrorLogPath(importID), []byte("Row 3: Student ID 999 is not enrolled\n")))
	rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+importID+"/errors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Row 3: Student ID 999 is not enrolled"}, data(body)["lines"])

	rec, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/not-a-uuid/errors", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailedJobsListing(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.failed.Record(context.Background(), queue.FailedJob{JobID: fmt.Sprint(i), Type: "notification:send", Payload: []byte(`{}`)}))
	}

	rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/failed-jobs?page=1&size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	page := data(body)
	assert.Len(t, page["items"], 2)
	pagination := page["pagination"].(map[string]any)
	assert.Equal(t, float64(3), pagination["totalItems"])
	assert.Equal(t, float64(2), pagination["totalPages"])
}
