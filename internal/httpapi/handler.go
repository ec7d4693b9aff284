// Package httpapi exposes the services over gin.
package httpapi

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/attendance"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/auth"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/metrics"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/queue"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/registration"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/schedule"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/session"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/verification"
)

// Handler holds the wired services behind the HTTP surface.
type Handler struct {
	Schedules *schedule.Service
	Sessions  *session.Service
	Gate      *verification.Gate
	Registrar *registration.Registrar
	Records   *attendance.Repository
	Audit     queue.Queue // may be nil
}

// Routes registers all endpoints. authn is the bearer middleware,
// verifyLimit the per-student verification limiter.
func (h *Handler) Routes(r *gin.Engine, authn, verifyLimit gin.HandlerFunc) {
	v1 := r.Group("/v1", authn)

	staff := v1.Group("", auth.Require(auth.OpManageSchedules))
	staff.POST("/schedules", h.createSchedule)
	staff.PUT("/schedules/:id", h.updateSchedule)
	staff.DELETE("/schedules/:id", h.deleteSchedule)
	staff.POST("/schedules/check", h.checkSchedule)

	v1.PUT("/semesters/:id/activate", auth.Require(auth.OpActivateSemester), h.activateSemester)

	sessions := v1.Group("/sessions", auth.Require(auth.OpManageSessions))
	sessions.POST("", h.openSession)
	sessions.POST("/:id/extend", h.extendSession)
	sessions.POST("/:id/close", h.closeSession)

	v1.GET("/attendance", auth.Require(auth.OpViewAttendance), h.listAttendance)
	v1.PUT("/attendance/:id", auth.Require(auth.OpAmendAttendance), h.amendAttendance)

	v1.GET("/attendance/session/:token", auth.Require(auth.OpVerifyAttendance), h.sessionByToken)
	v1.POST("/attendance/verify", auth.Require(auth.OpVerifyAttendance), verifyLimit, h.verify)
	v1.POST("/students/face", auth.Require(auth.OpRegisterFace), h.registerFace)
}

// writeErr maps the taxonomy onto HTTP statuses, always carrying the
// stable code.
func writeErr(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("internal error on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Dependency:
		status = http.StatusBadGateway
		log.Printf("dependency failure on %s: %v", c.FullPath(), err)
	case apperr.Consistency:
		log.Printf("consistency failure on %s: %v", c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": ae.Message, "code": ae.Code})
}

// ---------- Schedules ----------

type slotInput struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

type scheduleInput struct {
	Course     string      `json:"course" binding:"required"`
	Room       string      `json:"room" binding:"required"`
	DayOfWeek  string      `json:"day_of_week" binding:"required"`
	LecturerID string      `json:"lecturer_id" binding:"required"`
	SemesterID string      `json:"semester_id"`
	Slots      []slotInput `json:"slots" binding:"required"`
}

func parseSlots(in []slotInput) ([]schedule.Interval, error) {
	out := make([]schedule.Interval, 0, len(in))
	for _, s := range in {
		iv, err := schedule.ParseInterval(s.Start, s.End)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func (h *Handler) createSchedule(c *gin.Context) {
	var req scheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slots, err := parseSlots(req.Slots)
	if err != nil {
		writeErr(c, err)
		return
	}
	created, err := h.Schedules.Create(c.Request.Context(), schedule.ClassSchedule{
		Course:     req.Course,
		Room:       req.Room,
		DayOfWeek:  req.DayOfWeek,
		LecturerID: req.LecturerID,
		SemesterID: req.SemesterID,
		Slots:      slots,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	var req scheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slots, err := parseSlots(req.Slots)
	if err != nil {
		writeErr(c, err)
		return
	}
	updated, err := h.Schedules.Update(c.Request.Context(), schedule.ClassSchedule{
		ID:         id,
		Course:     req.Course,
		Room:       req.Room,
		DayOfWeek:  req.DayOfWeek,
		LecturerID: req.LecturerID,
		SemesterID: req.SemesterID,
		Slots:      slots,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	if err := h.Schedules.Delete(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkSchedule(c *gin.Context) {
	var req struct {
		Room       string      `json:"room" binding:"required"`
		DayOfWeek  string      `json:"day_of_week" binding:"required"`
		LecturerID string      `json:"lecturer_id" binding:"required"`
		ExcludeID  int64       `json:"exclude_id"`
		Slots      []slotInput `json:"slots" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slots, err := parseSlots(req.Slots)
	if err != nil {
		writeErr(c, err)
		return
	}
	res, err := h.Schedules.Check(c.Request.Context(), req.Room, req.DayOfWeek, slots, req.LecturerID, req.ExcludeID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) activateSemester(c *gin.Context) {
	if err := h.Schedules.SetActiveSemester(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": c.Param("id")})
}

// ---------- Sessions ----------

func (h *Handler) openSession(c *gin.Context) {
	var req struct {
		ClassScheduleID int64  `json:"class_schedule_id" binding:"required"`
		Date            string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if cs, err := h.Schedules.Get(c.Request.Context(), req.ClassScheduleID); err != nil {
		writeErr(c, err)
		return
	} else if cs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found", "code": apperr.CodeNotFound})
		return
	}
	sess, err := h.Sessions.Open(c.Request.Context(), req.ClassScheduleID, date)
	if err != nil {
		// The loser of an open race still learns the live token.
		if apperr.IsCode(err, apperr.CodeAlreadyActive) && sess != nil {
			c.JSON(http.StatusConflict, gin.H{
				"code":       apperr.CodeAlreadyActive,
				"token":      sess.Token,
				"expires_at": sess.ExpiresAt,
			})
			return
		}
		writeErr(c, err)
		return
	}
	metrics.SessionsOpened.Inc()
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) extendSession(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.Sessions.Extend(c.Request.Context(), c.Param("id"), req.Minutes)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": sess.ExpiresAt, "extended_minutes": sess.ExtendedMinutes})
}

func (h *Handler) closeSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": session.StatusClosed})
}

func (h *Handler) sessionByToken(c *gin.Context) {
	sess, err := h.Sessions.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":        sess.ID,
		"class_schedule_id": sess.ClassScheduleID,
		"date":              sess.Date.Format("2006-01-02"),
		"expires_at":        sess.ExpiresAt,
	})
}

// ---------- Verification ----------

func (h *Handler) verify(c *gin.Context) {
	user, _ := auth.FromContext(c)
	token := c.PostForm("token")
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required", "code": apperr.CodeInvalidImage})
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	res, err := h.Gate.Verify(c.Request.Context(), token, image, header.Filename, user.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	status := "success"
	if res.AlreadyMarked {
		// Idempotent repeat, surfaced as success with its own code.
		c.JSON(http.StatusOK, gin.H{"status": status, "code": apperr.CodeAlreadyMarked, "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "result": res})
}

// ---------- Registration ----------

func (h *Handler) registerFace(c *gin.Context) {
	user, _ := auth.FromContext(c)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["images"]
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image", "code": apperr.CodeInvalidImage})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}
		images = append(images, data)
	}

	approved := c.PostForm("approved_request_id") != ""
	tmpl, err := h.Registrar.Register(c.Request.Context(), user.ID, images, approved)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template_id": tmpl.ID, "images": len(tmpl.ImagePaths)})
}

// ---------- Attendance records ----------

func (h *Handler) listAttendance(c *gin.Context) {
	var scheduleID int64
	if v := c.Query("schedule_id"); v != "" {
		scheduleID, _ = strconv.ParseInt(v, 10, 64)
	}
	var datePtr *time.Time
	if v := c.Query("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		datePtr = &d
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	records, err := h.Records.List(c.Request.Context(), scheduleID, datePtr, c.Query("student_id"), limit, offset)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) amendAttendance(c *gin.Context) {
	user, _ := auth.FromContext(c)
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.Records.Amend(c.Request.Context(), id, req.Status, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found", "code": apperr.CodeNotFound})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.Audit != nil {
		evt := queue.Event{
			OccurredAt: time.Now().UTC(),
			Actor:      user.ID,
			Action:     "attendance.amend",
			Subject:    id,
			Detail:     "status set to " + req.Status,
		}
		if err := h.Audit.Publish(c.Request.Context(), evt); err != nil {
			log.Printf("audit publish failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}
