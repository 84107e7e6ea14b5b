package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coaching/internal/live"
)

// stream serves topic as Server-Sent Events. The client first receives a
// "snapshot" event, then one "update" per published change. The
// subscription is released when the client leaves, the server shuts down or
// the hub closes the subscription.
func (h *Handler) stream(c *gin.Context, topic string, snapshot func(context.Context) (any, error)) {
	ctx := c.Request.Context()
	sub, err := h.hub.Subscribe(ctx, topic)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer sub.Close()

	first, err := snapshot(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("snapshot", first)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent("update", json.RawMessage(msg))
			c.Writer.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// FeesStream pushes the caller's fee account on every payment.
func (h *Handler) FeesStream(c *gin.Context) {
	id := claims(c).Subject
	h.stream(c, live.FeesTopic(id), func(ctx context.Context) (any, error) {
		return h.ledger.StudentFees(ctx, id)
	})
}

// AttendanceStream pushes the caller's attendance marks as they are written.
func (h *Handler) AttendanceStream(c *gin.Context) {
	id := claims(c).Subject
	h.stream(c, live.AttendanceTopic(id), func(ctx context.Context) (any, error) {
		return h.attendance.StudentReport(ctx, id, 0)
	})
}

// NotificationsStream pushes broadcast notifications once the worker has
// delivered them.
func (h *Handler) NotificationsStream(c *gin.Context) {
	h.stream(c, live.NotificationsTopic, func(ctx context.Context) (any, error) {
		return h.catalog.Notifications.List(ctx)
	})
}
