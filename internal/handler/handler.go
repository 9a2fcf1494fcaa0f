// Package handler maps HTTP requests onto the validation layer, the
// persistence gateway, and the aggregation engine. No business logic lives
// here beyond input/output mapping.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BigNeeme/Chinese/internal/blobstore"
	"github.com/BigNeeme/Chinese/internal/model"
	"github.com/BigNeeme/Chinese/internal/stats"
	"github.com/BigNeeme/Chinese/internal/store"
	"github.com/BigNeeme/Chinese/internal/validate"
)

type Handler struct {
	store store.Gateway
	stats *stats.Engine
	blobs *blobstore.Store
	log   *zap.SugaredLogger
}

func New(gw store.Gateway, engine *stats.Engine, blobs *blobstore.Store, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{store: gw, stats: engine, blobs: blobs, log: log}
}

// Register wires every route onto the engine.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/students", h.ListStudents)
	api.GET("/students/:id", h.GetStudent)
	api.POST("/students", h.CreateStudent)
	api.PATCH("/students/:id", h.UpdateStudent)
	api.DELETE("/students/:id", h.DeleteStudent)

	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)

	api.GET("/attendance", h.ListAttendance)
	api.POST("/attendance", h.CreateAttendance)
	api.POST("/attendance/bulk", h.BulkAttendance)

	api.GET("/dashboard/stats", h.DashboardStats)

	api.POST("/objects/upload", h.IssueUploadURL)
	api.PUT("/photos", h.ResolvePhotoPath)

	r.PUT("/objects/uploads/:id", h.UploadObject)
	r.GET("/objects/uploads/:id", h.ServeObject)
}

// fail translates domain errors to responses. Validation failures carry the
// full field list; anything unrecognized is a 500 with no internal detail.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		return
	}
	if errors.Is(err, store.ErrDuplicateStudentID) {
		c.JSON(http.StatusConflict, gin.H{"error": "student id already in use"})
		return
	}
	h.log.Errorw("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (h *Handler) badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
}

func (h *Handler) notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	return id, err == nil
}

// ---------- Students ----------

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.store.ListStudents(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	student, err := h.store.GetStudent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if student == nil {
		h.notFound(c, "student")
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var in validate.CreateStudentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badJSON(c)
		return
	}
	fields, err := validate.CreateStudent(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	student, err := h.store.CreateStudent(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var in validate.UpdateStudentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badJSON(c)
		return
	}
	patch, err := validate.UpdateStudent(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	student, err := h.store.UpdateStudent(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	if student == nil {
		h.notFound(c, "student")
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	deleted, err := h.store.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		h.notFound(c, "student")
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Sessions ----------

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var in validate.CreateSessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badJSON(c)
		return
	}
	fields, err := validate.CreateSession(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	session, err := h.store.CreateSession(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ---------- Attendance ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	details, err := h.store.ListAttendance(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if details == nil {
		details = []model.AttendanceDetail{}
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) CreateAttendance(c *gin.Context) {
	var in validate.CreateAttendanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badJSON(c)
		return
	}
	fields, err := validate.CreateAttendance(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	record, err := h.store.CreateAttendance(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) BulkAttendance(c *gin.Context) {
	var in validate.BulkAttendanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badJSON(c)
		return
	}
	records, err := validate.BulkAttendance(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	inserted, err := h.store.ReplaceSessionAttendance(c.Request.Context(), records)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inserted)
}

// ---------- Dashboard ----------

func (h *Handler) DashboardStats(c *gin.Context) {
	result, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ---------- Photo objects ----------

func (h *Handler) IssueUploadURL(c *gin.Context) {
	uploadURL, err := h.blobs.IssueUploadURL()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadURL": uploadURL})
}

// UploadObject is the target of issued upload URLs.
func (h *Handler) UploadObject(c *gin.Context) {
	objectID := c.Param("id")
	if err := h.blobs.VerifyUploadToken(c.Query("token"), objectID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired upload token"})
		return
	}
	if err := h.blobs.Save(objectID, c.Request.Body); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"objectPath": blobstore.ObjectPrefix + objectID})
}

func (h *Handler) ResolvePhotoPath(c *gin.Context) {
	var in struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageUrl is required"})
		return
	}
	objectPath, err := h.blobs.NormalizeObjectPath(in.ImageURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageUrl is not a recognized upload URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"objectPath": objectPath})
}

func (h *Handler) ServeObject(c *gin.Context) {
	obj, size, err := h.blobs.Open(c.Param("id"))
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			h.notFound(c, "object")
			return
		}
		h.fail(c, err)
		return
	}
	defer obj.Close()
	c.DataFromReader(http.StatusOK, size, "application/octet-stream", obj, nil)
}
