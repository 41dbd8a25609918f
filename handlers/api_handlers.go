package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"rollcall-picker/db"
	"rollcall-picker/models"
	"rollcall-picker/photo"
	"rollcall-picker/session"
)

// Options tunes upload handling
type Options struct {
	PhotoSize      int
	PhotoQuality   int
	MaxUploadBytes int64
}

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	RedisService *db.RedisService
	Sessions     *session.Manager
	opts         Options
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(service *db.RedisService, sessions *session.Manager, opts Options) *APIHandler {
	if opts.PhotoSize <= 0 {
		opts.PhotoSize = photo.DefaultSize
	}
	if opts.PhotoQuality <= 0 {
		opts.PhotoQuality = photo.DefaultQuality
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 8 << 20
	}
	return &APIHandler{
		RedisService: service,
		Sessions:     sessions,
		opts:         opts,
	}
}

// Register mounts every route under /api
func (h *APIHandler) Register(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.GET("/ping", h.Ping)

		// Classroom routes
		api.GET("/classrooms", h.ListClassrooms)
		api.POST("/classrooms", h.CreateClassroom)
		api.GET("/classrooms/:section", h.GetClassroom)
		api.GET("/classrooms/:section/students", h.ListStudents)
		api.POST("/classrooms/:section/students", h.CreateStudent)

		// Student routes
		api.GET("/students/:id", h.GetStudent)
		api.PATCH("/students/:id", h.UpdateStudent)
		api.DELETE("/students/:id", h.DeleteStudent)
		api.POST("/students/:id/photo", h.UploadPhoto)

		// Import route
		api.POST("/import/students", h.ImportStudents)

		// Randomizer sessions
		api.GET("/sessions/:section", h.GetSession)
		api.POST("/sessions/:section/start", h.StartRandomizer)
		api.POST("/sessions/:section/reset", h.ResetSession)
		api.POST("/sessions/:section/close-winner", h.CloseWinner)
		api.POST("/sessions/:section/edit/:id", h.OpenEdit)
		api.PATCH("/sessions/:section/edit", h.SaveEdit)
		api.DELETE("/sessions/:section/edit", h.CancelEdit)
		api.GET("/sessions/:section/events", h.SessionEvents)
	}
}

// respondError maps store and session errors onto HTTP statuses
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, db.ErrValidation), errors.Is(err, photo.ErrInvalidImage):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, db.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, db.ErrDuplicateSection):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, session.ErrEditWhileRunning),
		errors.Is(err, session.ErrNoEditOpen):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, db.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "Roster store unavailable, please try again"
	case errors.Is(err, session.ErrClosed):
		status, msg = http.StatusServiceUnavailable, "Session closed, please reload"
	}
	log.Printf("Error in %s handler: %v", op, err)
	c.JSON(status, gin.H{"error": msg})
}

// studentView adds the avatar URL clients should render
type studentView struct {
	models.Student
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (h *APIHandler) view(s models.Student) studentView {
	return studentView{Student: s, AvatarURL: photo.DisplayURL(s.Photo, h.opts.PhotoSize)}
}

func (h *APIHandler) views(students []models.Student) []studentView {
	out := make([]studentView, 0, len(students))
	for _, s := range students {
		out = append(out, h.view(s))
	}
	return out
}

// Ping handles GET /api/ping
func (h *APIHandler) Ping(c *gin.Context) {
	if err := h.RedisService.Ping(c.Request.Context()); err != nil {
		respondError(c, "Ping", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

// --- Classroom Handlers ---

// ListClassrooms handles GET /api/classrooms
func (h *APIHandler) ListClassrooms(c *gin.Context) {
	classrooms, err := h.RedisService.ListClassrooms(c.Request.Context())
	if err != nil {
		respondError(c, "ListClassrooms", err)
		return
	}
	c.JSON(http.StatusOK, classrooms)
}

type createClassroomRequest struct {
	Grade   int    `json:"grade"`
	Section string `json:"section"`
}

// CreateClassroom handles POST /api/classrooms
func (h *APIHandler) CreateClassroom(c *gin.Context) {
	var req createClassroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	classroom, err := h.RedisService.CreateClassroom(c.Request.Context(), req.Grade, req.Section)
	if err != nil {
		respondError(c, "CreateClassroom", err)
		return
	}
	c.JSON(http.StatusCreated, classroom)
}

// GetClassroom handles GET /api/classrooms/:section
func (h *APIHandler) GetClassroom(c *gin.Context) {
	classroom, err := h.RedisService.FindClassroomBySection(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "GetClassroom", err)
		return
	}
	c.JSON(http.StatusOK, classroom)
}

// --- Student Handlers ---

// ListStudents handles GET /api/classrooms/:section/students
func (h *APIHandler) ListStudents(c *gin.Context) {
	ctx := c.Request.Context()
	classroom, err := h.RedisService.FindClassroomBySection(ctx, c.Param("section"))
	if err != nil {
		respondError(c, "ListStudents", err)
		return
	}
	students, err := h.RedisService.ListStudentsByClassroom(ctx, classroom.ID)
	if err != nil {
		respondError(c, "ListStudents", err)
		return
	}
	c.JSON(http.StatusOK, h.views(students))
}

// CreateStudent handles POST /api/classrooms/:section/students
func (h *APIHandler) CreateStudent(c *gin.Context) {
	var req models.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	classroom, err := h.RedisService.FindClassroomBySection(ctx, c.Param("section"))
	if err != nil {
		respondError(c, "CreateStudent", err)
		return
	}
	req.ClassroomID = classroom.ID

	student, err := h.RedisService.CreateStudent(ctx, req)
	if err != nil {
		respondError(c, "CreateStudent", err)
		return
	}
	h.Sessions.RosterMutated(ctx, classroom.Section)
	c.JSON(http.StatusCreated, h.view(*student))
}

// GetStudent handles GET /api/students/:id
func (h *APIHandler) GetStudent(c *gin.Context) {
	student, err := h.RedisService.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetStudent", err)
		return
	}
	c.JSON(http.StatusOK, h.view(*student))
}

// UpdateStudent handles PATCH /api/students/:id
func (h *APIHandler) UpdateStudent(c *gin.Context) {
	var patch models.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	student, err := h.RedisService.UpdateStudent(ctx, c.Param("id"), patch)
	if err != nil {
		respondError(c, "UpdateStudent", err)
		return
	}
	h.notifyClassroom(c, student.ClassroomID)
	c.JSON(http.StatusOK, h.view(*student))
}

// DeleteStudent handles DELETE /api/students/:id
func (h *APIHandler) DeleteStudent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	student, err := h.RedisService.GetStudent(ctx, id)
	if err != nil {
		respondError(c, "DeleteStudent", err)
		return
	}
	if err := h.RedisService.DeleteStudent(ctx, id); err != nil {
		respondError(c, "DeleteStudent", err)
		return
	}
	h.notifyClassroom(c, student.ClassroomID)
	c.Status(http.StatusNoContent)
}

// UploadPhoto handles POST /api/students/:id/photo
func (h *APIHandler) UploadPhoto(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received photo upload: %s for student: %s", header.Filename, c.Param("id"))
	ref, err := photo.CropSquare(file, h.opts.PhotoSize, h.opts.PhotoQuality)
	if err != nil {
		respondError(c, "UploadPhoto", err)
		return
	}

	student, err := h.RedisService.UpdateStudent(c.Request.Context(), c.Param("id"), models.StudentPatch{Photo: &ref})
	if err != nil {
		respondError(c, "UploadPhoto", err)
		return
	}
	h.notifyClassroom(c, student.ClassroomID)
	c.JSON(http.StatusOK, h.view(*student))
}

// notifyClassroom reloads the live session showing a classroom, if any
func (h *APIHandler) notifyClassroom(c *gin.Context, classroomID string) {
	ctx := c.Request.Context()
	classroom, err := h.RedisService.GetClassroom(ctx, classroomID)
	if err != nil {
		log.Printf("Error resolving classroom %s for refresh: %v", classroomID, err)
		return
	}
	h.Sessions.RosterMutated(ctx, classroom.Section)
}

// --- Import Handler ---

// ImportStudents handles POST /api/import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	section := c.PostForm("section")
	if section == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'section' in form data"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received file upload: %s for section: %s", header.Filename, section)

	ctx := c.Request.Context()
	classroom, err := h.RedisService.FindClassroomBySection(ctx, section)
	if err != nil {
		respondError(c, "ImportStudents", err)
		return
	}
	imported, err := h.RedisService.ImportStudentsFromExcel(ctx, file, classroom.ID)
	if err != nil {
		respondError(c, "ImportStudents", err)
		return
	}
	if imported > 0 {
		h.Sessions.RosterMutated(ctx, classroom.Section)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": imported,
		"classroomId":   classroom.ID,
	})
}
