package catalog_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching/internal/apperr"
	"coaching/internal/catalog"
	"coaching/internal/queue"
	"coaching/internal/store/memory"
)

func TestCollectionCRUD(t *testing.T) {
	ctx := context.Background()
	c := catalog.New(memory.New(), queue.NewInMemory(4), nil)

	course, err := c.Courses.Create(ctx, catalog.Course{Title: "JEE Foundation", Fee: 75000})
	require.NoError(t, err)
	require.NotEmpty(t, course.ID)
	assert.False(t, course.CreatedAt.IsZero())

	got, err := c.Courses.Get(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "JEE Foundation", got.Title)
	assert.Equal(t, course.ID, got.ID)

	got.Title = "JEE Advanced"
	replaced, err := c.Courses.Replace(ctx, course.ID, got)
	require.NoError(t, err)
	assert.Equal(t, course.CreatedAt, replaced.CreatedAt)

	list, err := c.Courses.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "JEE Advanced", list[0].Title)

	require.NoError(t, c.Courses.Delete(ctx, course.ID))
	_, err = c.Courses.Get(ctx, course.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, c.Courses.Delete(ctx, course.ID), catalog.ErrNotFound)
}

func TestCollectionValidation(t *testing.T) {
	ctx := context.Background()
	c := catalog.New(memory.New(), queue.NewInMemory(4), nil)

	cases := []struct {
		name string
		run  func() error
	}{
		{"course without title", func() error { _, err := c.Courses.Create(ctx, catalog.Course{Fee: 1}); return err }},
		{"negative fee", func() error { _, err := c.Courses.Create(ctx, catalog.Course{Title: "x", Fee: -1}); return err }},
		{"exam date format", func() error {
			_, err := c.Exams.Create(ctx, catalog.Exam{Title: "Mock", Date: "10/03/2025"})
			return err
		}},
		{"material url", func() error {
			_, err := c.StudyMaterials.Create(ctx, catalog.StudyMaterial{Title: "Notes", URL: "not a url"})
			return err
		}},
		{"notification audience", func() error {
			_, err := c.Notifications.Create(ctx, catalog.Notification{Title: "t", Message: "m", Audience: "parents"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), apperr.ErrInvalid)
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	c := catalog.New(memory.New(), queue.NewInMemory(4), nil)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.TestSeries.WithClock(func() time.Time {
		at = at.Add(time.Hour)
		return at
	})
	for _, title := range []string{"first", "second", "third"} {
		_, err := c.TestSeries.Create(ctx, catalog.TestSeriesItem{Title: title})
		require.NoError(t, err)
	}
	list, err := c.TestSeries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "first", list[2].Title)
}

func TestBroadcastAndDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(4)
	c := catalog.New(memory.New(), q, nil)

	n, err := c.Broadcast(ctx, catalog.Notification{Title: "Holiday", Message: "Closed on Friday"})
	require.NoError(t, err)
	assert.Equal(t, "all", n.Audience)
	assert.Nil(t, n.DeliveredAt)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	var queued catalog.Notification
	select {
	case m := <-msgs:
		assert.Equal(t, catalog.NotificationMessage, m.Type)
		require.NoError(t, json.Unmarshal(m.Body, &queued))
	case <-time.After(time.Second):
		t.Fatal("broadcast not queued")
	}
	assert.Equal(t, n.ID, queued.ID)

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	delivered, err := c.MarkDelivered(ctx, n.ID, at)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	assert.True(t, at.Equal(*delivered.DeliveredAt))

	again, err := c.MarkDelivered(ctx, n.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, at.Equal(*again.DeliveredAt), "first delivery time is kept")
}
