package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coaching/internal/directory"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Register signs a student up and logs them in.
func (h *Handler) Register(c *gin.Context) {
	var req directory.Registration
	if !h.bind(c, &req) {
		return
	}
	st, err := h.directory.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.directory.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := h.tokens.Issue(p.Subject, p.Email, p.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": st, "tokens": tokens, "role": p.Role})
}

// Login exchanges credentials for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.directory.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := h.tokens.Issue(p.Subject, p.Email, p.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "role": p.Role, "subject": p.Subject})
}

// Refresh exchanges a refresh token for a new pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}
	tokens, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// ListStudents lists students, optionally filtered by batch and course.
func (h *Handler) ListStudents(c *gin.Context) {
	list, err := h.directory.ListStudents(c.Request.Context(), directory.StudentFilter{
		Batch:  c.Query("batch"),
		Course: c.Query("course"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []directory.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

// ExportStudents streams the student list as CSV.
func (h *Handler) ExportStudents(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="students.csv"`)
	c.Status(http.StatusOK)
	err := h.directory.ExportCSV(c.Request.Context(), c.Writer, directory.StudentFilter{
		Batch:  c.Query("batch"),
		Course: c.Query("course"),
	})
	if err != nil {
		_ = c.Error(err)
		h.log.ErrorContext(c.Request.Context(), "student export failed", "error", err)
	}
}

// GetStudent returns one student.
func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.directory.Student(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// UpdateStudent applies an admin edit.
func (h *Handler) UpdateStudent(c *gin.Context) {
	var req directory.StudentUpdate
	if !h.bind(c, &req) {
		return
	}
	st, err := h.directory.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteStudent removes a student and everything recorded for them.
func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.directory.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateTeacher creates a teacher account.
func (h *Handler) CreateTeacher(c *gin.Context) {
	var req directory.NewTeacher
	if !h.bind(c, &req) {
		return
	}
	t, err := h.directory.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// ListTeachers lists every teacher.
func (h *Handler) ListTeachers(c *gin.Context) {
	list, err := h.directory.ListTeachers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": list})
}

// GetTeacher returns one teacher.
func (h *Handler) GetTeacher(c *gin.Context) {
	t, err := h.directory.Teacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateTeacher applies an admin edit.
func (h *Handler) UpdateTeacher(c *gin.Context) {
	var req directory.TeacherUpdate
	if !h.bind(c, &req) {
		return
	}
	t, err := h.directory.UpdateTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTeacher removes a teacher.
func (h *Handler) DeleteTeacher(c *gin.Context) {
	if err := h.directory.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the calling student's record.
func (h *Handler) Me(c *gin.Context) {
	st, err := h.directory.Student(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// TeacherMe returns the calling teacher with the salary status.
func (h *Handler) TeacherMe(c *gin.Context) {
	ctx := c.Request.Context()
	id := claims(c).Subject
	t, err := h.directory.Teacher(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	salary, err := h.ledger.SalaryStatus(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teacher": t, "salary": salary})
}

// TeacherStudents lists the students of the calling teacher's batch.
func (h *Handler) TeacherStudents(c *gin.Context) {
	list, err := h.directory.StudentsOfTeacher(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}
