// Package api is the HTTP surface of the service.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"coaching/internal/apperr"
	"coaching/internal/attendance"
	"coaching/internal/auth"
	"coaching/internal/catalog"
	"coaching/internal/cloudinary"
	"coaching/internal/directory"
	"coaching/internal/ledger"
	"coaching/internal/live"
	"coaching/internal/log"
)

// Uploader stores an uploaded file with a hosted provider.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename, folder string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports the state of each backing service.
type HealthCheck func(ctx context.Context) map[string]bool

// Deps are the services the handlers call.
type Deps struct {
	Ledger     *ledger.Service
	Attendance *attendance.Service
	Directory  *directory.Service
	Catalog    *catalog.Catalog
	Hub        live.Hub
	Tokens     *auth.Issuer
	Uploader   Uploader
	Health     HealthCheck
	Logger     *log.Logger
	// Heartbeat is the idle interval of live streams.
	Heartbeat time.Duration
}

// Handler serves every route.
type Handler struct {
	ledger     *ledger.Service
	attendance *attendance.Service
	directory  *directory.Service
	catalog    *catalog.Catalog
	hub        live.Hub
	tokens     *auth.Issuer
	uploader   Uploader
	health     HealthCheck
	log        *log.Logger
	heartbeat  time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Handler.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}
	return &Handler{
		ledger:     d.Ledger,
		attendance: d.Attendance,
		directory:  d.Directory,
		catalog:    d.Catalog,
		hub:        d.Hub,
		tokens:     d.Tokens,
		uploader:   d.Uploader,
		health:     d.Health,
		log:        d.Logger.WithComponent(log.ComponentHTTP),
		heartbeat:  d.Heartbeat,
		done:       make(chan struct{}),
	}
}

// Shutdown ends every open live stream. It is registered with
// http.Server.RegisterOnShutdown.
func (h *Handler) Shutdown() {
	h.doneOnce.Do(func() { close(h.done) })
}

// fail writes the status for err. Unexpected errors are logged and hidden
// from the client.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Error()}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		log.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed",
			log.FieldPath, c.FullPath(), log.FieldError, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bind decodes the JSON body. A malformed body is a validation error.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.NewValidationError(err))
		return false
	}
	return true
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

// Healthz reports dependency health. The API itself is up if it answers.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	if h.health != nil {
		checks := h.health(c.Request.Context())
		for name, ok := range checks {
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
	}
	c.JSON(status, body)
}
