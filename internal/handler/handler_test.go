package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/BigNeeme/Chinese/internal/blobstore"
	"github.com/BigNeeme/Chinese/internal/handler"
	"github.com/BigNeeme/Chinese/internal/model"
	"github.com/BigNeeme/Chinese/internal/stats"
	"github.com/BigNeeme/Chinese/internal/store"
)

var testToday = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	engine := stats.New(mem, func() time.Time { return testToday }, nil)
	blobs, err := blobstore.New(t.TempDir(), "http://localhost:8081", "test-signing-key", "classroom-test", time.Minute)
	require.NoError(t, err)

	r := gin.New()
	handler.New(mem, engine, blobs, nil).Register(r)
	return r, mem
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func createStudent(t *testing.T, r *gin.Engine, studentID, first, last, email string) model.Student {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/students", gin.H{
		"studentId": studentID, "firstName": first, "lastName": last, "email": email,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Student](t, w)
}

func createSession(t *testing.T, r *gin.Engine, name, date string) model.Session {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/sessions", gin.H{"name": name, "date": date})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Session](t, w)
}

func TestStudentLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	created := createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	require.NotZero(t, created.ID)

	w := doJSON(t, r, http.MethodGet, "/api/students/"+strconv.Itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, created, decode[model.Student](t, w))

	w = doJSON(t, r, http.MethodPatch, "/api/students/"+strconv.Itoa(created.ID), gin.H{"lastName": "Park"})
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode[model.Student](t, w)
	require.Equal(t, "Park", patched.LastName)
	require.Equal(t, "Ann", patched.FirstName)

	w = doJSON(t, r, http.MethodDelete, "/api/students/"+strconv.Itoa(created.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/students/"+strconv.Itoa(created.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateStudentInvalidEmail(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/students", gin.H{
		"studentId": "S1", "firstName": "Ann", "lastName": "Lee", "email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[map[string][]map[string]string](t, w)
	require.Len(t, body["errors"], 1)
	require.Equal(t, "email", body["errors"][0]["field"])
}

func TestCreateStudentDuplicateIsConflictNot500(t *testing.T) {
	r, _ := newTestRouter(t)

	createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	w := doJSON(t, r, http.MethodPost, "/api/students", gin.H{
		"studentId": "S1", "firstName": "Bob", "lastName": "Kim", "email": "bob@x.com",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteMissingStudent(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/api/students/999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceEndToEnd(t *testing.T) {
	r, _ := newTestRouter(t)

	student := createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	session := createSession(t, r, "Lecture 1", "2024-01-10")

	w := doJSON(t, r, http.MethodPost, "/api/attendance", gin.H{
		"studentId": student.ID, "sessionId": session.ID, "status": "present",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/attendance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := decode[[]model.AttendanceDetail](t, w)
	require.Len(t, details, 1)
	require.Equal(t, "Ann", details[0].Student.FirstName)
	require.Equal(t, "Lecture 1", details[0].Session.Name)
	require.Equal(t, model.StatusPresent, details[0].Status)
}

func TestBulkAttendanceRetake(t *testing.T) {
	r, mem := newTestRouter(t)

	ann := createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	bob := createStudent(t, r, "S2", "Bob", "Kim", "bob@x.com")
	session := createSession(t, r, "Lecture 1", "2024-01-10")

	w := doJSON(t, r, http.MethodPost, "/api/attendance/bulk", gin.H{"records": []gin.H{
		{"studentId": ann.ID, "sessionId": session.ID, "status": "present"},
		{"studentId": bob.ID, "sessionId": session.ID, "status": "absent"},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, decode[[]model.AttendanceRecord](t, w), 2)

	w = doJSON(t, r, http.MethodPost, "/api/attendance/bulk", gin.H{"records": []gin.H{
		{"studentId": ann.ID, "sessionId": session.ID, "status": "late"},
	}})
	require.Equal(t, http.StatusCreated, w.Code)

	records, err := mem.ListAttendanceBySession(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.StatusLate, records[0].Status)
}

func TestBulkAttendanceMixedSessionsRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	ann := createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	first := createSession(t, r, "Lecture 1", "2024-01-10")
	second := createSession(t, r, "Lecture 2", "2024-01-11")

	w := doJSON(t, r, http.MethodPost, "/api/attendance/bulk", gin.H{"records": []gin.H{
		{"studentId": ann.ID, "sessionId": first.ID, "status": "present"},
		{"studentId": ann.ID, "sessionId": second.ID, "status": "present"},
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "records[1].sessionId")
}

func TestDashboardStats(t *testing.T) {
	r, _ := newTestRouter(t)

	ann := createStudent(t, r, "S1", "Ann", "Lee", "ann@x.com")
	session := createSession(t, r, "Lecture 1", "2024-01-10")

	for _, status := range []string{"present", "present", "present", "absent"} {
		w := doJSON(t, r, http.MethodPost, "/api/attendance", gin.H{
			"studentId": ann.ID, "sessionId": session.ID, "status": status,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[model.DashboardStats](t, w)

	require.Equal(t, 1, stats.TotalStudents)
	require.Equal(t, 1, stats.TotalSessions)
	require.Equal(t, 75, stats.OverallAttendanceRate)
	require.Equal(t, 3, stats.TodayAttendance[model.StatusPresent])
	require.Equal(t, 1, stats.TodayAttendance[model.StatusAbsent])
	require.Len(t, stats.RecentSessions, 1)
}

func TestPhotoUploadFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/objects/upload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	uploadURL := decode[map[string]string](t, w)["uploadURL"]
	require.NotEmpty(t, uploadURL)

	parsed, err := url.Parse(uploadURL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, parsed.Path+"?"+parsed.RawQuery, strings.NewReader("jpeg bytes"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w = doJSON(t, r, http.MethodPut, "/api/photos", gin.H{"imageUrl": uploadURL})
	require.Equal(t, http.StatusOK, w.Code)
	objectPath := decode[map[string]string](t, w)["objectPath"]
	require.True(t, strings.HasPrefix(objectPath, blobstore.ObjectPrefix))

	w = doJSON(t, r, http.MethodGet, objectPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "jpeg bytes", w.Body.String())
}

func TestPhotoEndpointsRejectBadInput(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/api/photos", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/photos", gin.H{"imageUrl": "http://elsewhere.example/pic.png"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// upload without a valid token
	req := httptest.NewRequest(http.MethodPut, "/objects/uploads/0c41a1a6-3f9d-4cf6-9f3e-5d1f6a0f0a10?token=garbage", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	w = doJSON(t, r, http.MethodGet, "/objects/uploads/0c41a1a6-3f9d-4cf6-9f3e-5d1f6a0f0a10", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
