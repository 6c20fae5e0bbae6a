package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/binding"
	"campusattend/internal/config"
	"campusattend/internal/metrics"
	"campusattend/internal/student"
	"campusattend/internal/user"
)

const stateCookie = "oauth_state"

type server struct {
	cfg      config.App
	log      *zap.Logger
	users    *user.Service
	userRepo *user.Repository
	gate     *binding.Service
	records  *attendance.Service
	students *student.Repository
	google   *auth.Google
}

// loginRedirect starts the Google flow with a one-shot state token.
func (s *server) loginRedirect(c *gin.Context) {
	state := uuid.NewString()
	c.SetCookie(stateCookie, state, 300, "/", "", s.cfg.Production(), true)
	c.Redirect(http.StatusFound, s.google.AuthURL(state))
}

func (s *server) loginCallback(c *gin.Context) {
	state, err := c.Cookie(stateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", s.cfg.Production(), true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	profile, err := s.google.Exchange(c.Request.Context(), code)
	if err != nil {
		s.log.Warn("google exchange failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "google login failed"})
		return
	}

	u, isNew, err := s.users.LoginWithGoogle(c.Request.Context(), profile)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		s.internal(c, err)
		return
	}

	token, err := auth.IssueSession(u.ID, u.GoogleID, u.Email, u.Name, u.Role,
		s.cfg.AuthSecret, s.cfg.SessionTTL)
	if err != nil {
		s.internal(c, err)
		return
	}

	metrics.Logins.Inc()
	c.SetCookie(auth.SessionCookie, token, int(s.cfg.SessionTTL.Seconds()), "/", "",
		s.cfg.Production(), true)
	if isNew {
		c.Redirect(http.StatusFound, "/welcome")
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

func (s *server) logout(c *gin.Context) {
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", s.cfg.Production(), true)
	c.Redirect(http.StatusFound, "/")
}

// me returns the fresh user row plus the current binding resolution.
func (s *server) me(c *gin.Context) {
	claims, _ := auth.Session(c)
	u, err := s.userRepo.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer active"})
			return
		}
		s.internal(c, err)
		return
	}
	res, err := s.gate.ResolveBinding(c.Request.Context(), claims.UserID)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "binding": res})
}

func (s *server) getBinding(c *gin.Context) {
	claims, _ := auth.Session(c)
	res, err := s.gate.ResolveBinding(c.Request.Context(), claims.UserID)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) bind(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
		Name      string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	claims, _ := auth.Session(c)
	st, err := s.gate.Bind(c.Request.Context(), claims.UserID, req.StudentID, req.Name)
	if err != nil {
		s.bindError(c, err)
		return
	}

	metrics.Bindings.Inc()
	c.JSON(http.StatusOK, gin.H{"bound": true, "student": st})
}

// bindError maps binding failures onto codes the client switches on. All
// precondition failures are 422; only malformed JSON is 400.
func (s *server) bindError(c *gin.Context, err error) {
	code := ""
	switch {
	case errors.Is(err, student.ErrInvalidStudentID):
		code = "invalid_student_id"
	case errors.Is(err, student.ErrInvalidName):
		code = "invalid_name"
	case errors.Is(err, binding.ErrAlreadyBound):
		code = "already_bound"
	case errors.Is(err, binding.ErrStudentNotFound):
		code = "student_not_found"
	case errors.Is(err, binding.ErrNameMismatch):
		code = "name_mismatch"
	case errors.Is(err, binding.ErrAlreadyClaimed):
		code = "student_already_claimed"
	default:
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": code, "message": err.Error()})
}

func (s *server) checkIn(c *gin.Context) {
	var req struct {
		Latitude   *float64 `json:"latitude" binding:"required"`
		Longitude  *float64 `json:"longitude" binding:"required"`
		Accuracy   float64  `json:"accuracy"`
		CourseID   *int64   `json:"course_id"`
		DeviceInfo *string  `json:"device_info"`
		Notes      *string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}

	claims, _ := auth.Session(c)
	ip := c.ClientIP()
	rec, err := s.records.CheckIn(c.Request.Context(), attendance.CheckInInput{
		UserID:     claims.UserID,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Accuracy:   req.Accuracy,
		CourseID:   req.CourseID,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  &ip,
		Notes:      req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrBindingRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "binding_required"})
		case errors.Is(err, attendance.ErrInvalidLocation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_location"})
		case errors.Is(err, attendance.ErrDuplicateCheckIn):
			c.JSON(http.StatusConflict, gin.H{"error": "already_checked_in_today"})
		default:
			s.internal(c, err)
		}
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *server) history(c *gin.Context) {
	claims, _ := auth.Session(c)
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := s.records.History(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func (s *server) today(c *gin.Context) {
	claims, _ := auth.Session(c)
	recs, err := s.records.Today(c.Request.Context(), claims.UserID)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked_in": len(recs) > 0,
		"records":    recs,
	})
}

func (s *server) stats(c *gin.Context) {
	claims, _ := auth.Session(c)
	st, err := s.records.Stats(c.Request.Context(), claims.UserID)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) createStudent(c *gin.Context) {
	var req student.Student
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := student.ValidateStudentID(req.StudentID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_student_id"})
		return
	}
	if err := student.ValidateName(req.Name); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_name"})
		return
	}
	if req.Status != "" && !student.ValidStatus(req.Status) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_status"})
		return
	}
	st, err := s.students.Create(c.Request.Context(), req)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (s *server) updateStudent(c *gin.Context) {
	var req student.Student
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.StudentID = c.Param("id")
	if err := student.ValidateName(req.Name); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_name"})
		return
	}
	// An omitted status keeps the stored value rather than blanking it.
	if req.Status == "" {
		cur, err := s.students.FindByID(c.Request.Context(), req.StudentID)
		if err != nil {
			if errors.Is(err, student.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
				return
			}
			s.internal(c, err)
			return
		}
		req.Status = cur.Status
	} else if !student.ValidStatus(req.Status) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_status"})
		return
	}
	st, err := s.students.Update(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, student.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) rosterStats(c *gin.Context) {
	st, err := s.students.GetRosterStats(c.Request.Context())
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) userStats(c *gin.Context) {
	st, err := s.userRepo.GetStats(c.Request.Context())
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) updateRecordStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	var req struct {
		Status string  `json:"status" binding:"required"`
		Notes  *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if !attendance.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if err := s.records.UpdateStatus(c.Request.Context(), id, req.Status, req.Notes); err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *server) deleteRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	if err := s.records.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *server) internal(c *gin.Context, err error) {
	s.log.Error("handler error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
