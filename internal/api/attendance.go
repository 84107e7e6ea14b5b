package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coaching/internal/attendance"
)

type dailyMarkRequest struct {
	Date   string `json:"date"`
	Status string `json:"status" binding:"required"`
}

// MarkDaily records a daily mark for a student.
func (h *Handler) MarkDaily(c *gin.Context) {
	h.markDaily(c, func(ctx context.Context, studentID, date string, st attendance.Status) (string, error) {
		return h.attendance.MarkDaily(ctx, studentID, date, st)
	})
}

// TeacherMarkDaily records a daily mark for a student of the calling
// teacher's batch.
func (h *Handler) TeacherMarkDaily(c *gin.Context) {
	teacherID := claims(c).Subject
	h.markDaily(c, func(ctx context.Context, studentID, date string, st attendance.Status) (string, error) {
		return h.attendance.MarkDailyForTeacher(ctx, teacherID, studentID, date, st)
	})
}

func (h *Handler) markDaily(c *gin.Context, mark func(ctx context.Context, studentID, date string, st attendance.Status) (string, error)) {
	var req dailyMarkRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := attendance.ParseStatus(req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	date, err := mark(c.Request.Context(), c.Param("id"), req.Date, st)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studentId": c.Param("id"), "date": date, "status": st})
}

// MarkBatch records subject attendance for the calling teacher's batch.
func (h *Handler) MarkBatch(c *gin.Context) {
	var req attendance.SubjectMark
	if !h.bind(c, &req) {
		return
	}
	events, err := h.attendance.MarkBatch(c.Request.Context(), claims(c).Subject, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": len(events), "events": events})
}

// StudentAttendance returns a student's attendance report.
func (h *Handler) StudentAttendance(c *gin.Context) {
	h.report(c, c.Param("id"))
}

// MyAttendance returns the caller's attendance report.
func (h *Handler) MyAttendance(c *gin.Context) {
	h.report(c, claims(c).Subject)
}

func (h *Handler) report(c *gin.Context, studentID string) {
	rep, err := h.attendance.StudentReport(c.Request.Context(), studentID, windowParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// BatchTrend returns the trend of the batch named in the query.
func (h *Handler) BatchTrend(c *gin.Context) {
	h.trend(c, c.Query("batch"))
}

// TeacherTrend returns the trend of the calling teacher's batch.
func (h *Handler) TeacherTrend(c *gin.Context) {
	batch, err := h.attendance.TeacherBatch(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.trend(c, batch)
}

func (h *Handler) trend(c *gin.Context, batch string) {
	points, err := h.attendance.BatchTrend(c.Request.Context(), batch, windowParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "trend": points})
}

// windowParam reads ?days=; anything unusable falls back to the default window.
func windowParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("days"))
	if err != nil || n <= 0 || n > 366 {
		return 0
	}
	return n
}
