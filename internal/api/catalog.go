package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coaching/internal/catalog"
)

// collectionRoutes are the CRUD handlers of one catalog collection.
type collectionRoutes struct {
	list, get, create, replace, remove gin.HandlerFunc
}

func routesFor[T any, P catalog.Document[T]](h *Handler, col *catalog.Collection[T, P]) collectionRoutes {
	return collectionRoutes{
		list: func(c *gin.Context) {
			docs, err := col.List(c.Request.Context())
			if err != nil {
				h.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{col.Name(): docs})
		},
		get: func(c *gin.Context) {
			doc, err := col.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				h.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, doc)
		},
		create: func(c *gin.Context) {
			var doc T
			if !h.bind(c, &doc) {
				return
			}
			out, err := col.Create(c.Request.Context(), doc)
			if err != nil {
				h.fail(c, err)
				return
			}
			c.JSON(http.StatusCreated, out)
		},
		replace: func(c *gin.Context) {
			var doc T
			if !h.bind(c, &doc) {
				return
			}
			out, err := col.Replace(c.Request.Context(), c.Param("id"), doc)
			if err != nil {
				h.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		},
		remove: func(c *gin.Context) {
			if err := col.Delete(c.Request.Context(), c.Param("id")); err != nil {
				h.fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		},
	}
}

// Broadcast stores a notification and queues it for delivery.
func (h *Handler) Broadcast(c *gin.Context) {
	var n catalog.Notification
	if !h.bind(c, &n) {
		return
	}
	out, err := h.catalog.Broadcast(c.Request.Context(), n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}

// maxUploadBytes bounds study-material uploads.
const maxUploadBytes = 50 << 20

// UploadStudyMaterial stores the file with the hosting provider and records
// the resulting study material.
func (h *Handler) UploadStudyMaterial(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	res, err := h.uploader.Upload(ctx, f, fh.Filename, "")
	if err != nil {
		h.log.ErrorContext(ctx, "upload failed", "filename", fh.Filename, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}
	title := c.PostForm("title")
	if title == "" {
		title = fh.Filename
	}
	doc, err := h.catalog.StudyMaterials.Create(ctx, catalog.StudyMaterial{
		Title:      title,
		Subject:    c.PostForm("subject"),
		Batch:      c.PostForm("batch"),
		URL:        res.SecureURL,
		UploadedBy: claims(c).Subject,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
