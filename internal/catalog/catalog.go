// Package catalog stores the flat documents the institute publishes: courses,
// exams, notifications, study materials and test series.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"coaching/internal/apperr"
)

var ErrNotFound = fmt.Errorf("document %w", apperr.ErrNotFound)

// Collection names.
const (
	Courses        = "courses"
	Exams          = "exams"
	Notifications  = "notifications"
	StudyMaterials = "studyMaterials"
	TestSeries     = "testSeries"
)

// Raw is a stored document body.
type Raw struct {
	ID        string
	Body      []byte
	CreatedAt time.Time
}

// Store keeps JSON documents keyed by (collection, id).
type Store interface {
	PutDocument(ctx context.Context, collection string, doc Raw) error
	GetDocument(ctx context.Context, collection, id string) (Raw, error)
	ListDocuments(ctx context.Context, collection string) ([]Raw, error)
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Meta is embedded by every document type.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Meta) meta() *Meta { return m }

// Document is implemented by pointers to the document types.
type Document[T any] interface {
	*T
	meta() *Meta
}

// Collection is a typed view of one collection.
type Collection[T any, P Document[T]] struct {
	name     string
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

// NewCollection creates a typed collection.
func NewCollection[T any, P Document[T]](name string, store Store, v *validator.Validate) *Collection[T, P] {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Collection[T, P]{name: name, store: store, validate: v, now: time.Now}
}

// WithClock replaces the creation clock.
func (c *Collection[T, P]) WithClock(now func() time.Time) *Collection[T, P] {
	c.now = now
	return c
}

// Name returns the collection name.
func (c *Collection[T, P]) Name() string { return c.name }

// Create validates doc and stores it under a new id. Any id or timestamp on
// doc is replaced.
func (c *Collection[T, P]) Create(ctx context.Context, doc T) (T, error) {
	if err := c.validate.Struct(doc); err != nil {
		return doc, apperr.FromValidator(err)
	}
	m := P(&doc).meta()
	m.ID = uuid.NewString()
	m.CreatedAt = c.now().UTC()
	return doc, c.put(ctx, doc)
}

// Replace overwrites the document with id.
func (c *Collection[T, P]) Replace(ctx context.Context, id string, doc T) (T, error) {
	if err := c.validate.Struct(doc); err != nil {
		return doc, apperr.FromValidator(err)
	}
	old, err := c.Get(ctx, id)
	if err != nil {
		return doc, err
	}
	m := P(&doc).meta()
	m.ID = id
	m.CreatedAt = P(&old).meta().CreatedAt
	return doc, c.put(ctx, doc)
}

func (c *Collection[T, P]) put(ctx context.Context, doc T) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}
	m := P(&doc).meta()
	return c.store.PutDocument(ctx, c.name, Raw{ID: m.ID, Body: body, CreatedAt: m.CreatedAt})
}

// Get loads one document.
func (c *Collection[T, P]) Get(ctx context.Context, id string) (T, error) {
	var doc T
	raw, err := c.store.GetDocument(ctx, c.name, id)
	if err != nil {
		return doc, err
	}
	return c.decode(raw)
}

// List returns every document, newest first.
func (c *Collection[T, P]) List(ctx context.Context) ([]T, error) {
	raws, err := c.store.ListDocuments(ctx, c.name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].CreatedAt.After(raws[j].CreatedAt) })
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		doc, err := c.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Delete removes a document.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	return c.store.DeleteDocument(ctx, c.name, id)
}

func (c *Collection[T, P]) decode(raw Raw) (T, error) {
	var doc T
	if err := json.Unmarshal(raw.Body, &doc); err != nil {
		return doc, fmt.Errorf("decode %s/%s: %w", c.name, raw.ID, err)
	}
	m := P(&doc).meta()
	m.ID = raw.ID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = raw.CreatedAt
	}
	return doc, nil
}
