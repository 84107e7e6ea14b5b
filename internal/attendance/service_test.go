package attendance_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching/internal/apperr"
	"coaching/internal/attendance"
	"coaching/internal/auth"
	"coaching/internal/directory"
	"coaching/internal/live"
	"coaching/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	hub   *live.Memory
	svc   *attendance.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	for _, s := range []struct{ id, batch string }{{"s1", "A"}, {"s2", "A"}, {"s3", "B"}} {
		email := s.id + "@example.com"
		require.NoError(t, st.CreateStudentAccount(ctx,
			directory.User{ID: s.id, Email: email, Role: auth.RoleStudent},
			directory.Student{ID: s.id, Code: "EXC25" + s.id, Email: email, Batch: s.batch}))
	}
	for _, tc := range []struct{ id, batch string }{{"t1", "A"}, {"t2", ""}} {
		email := tc.id + "@example.com"
		require.NoError(t, st.CreateTeacherAccount(ctx,
			directory.User{ID: tc.id, Email: email, Role: auth.RoleTeacher},
			directory.Teacher{ID: tc.id, Code: "TCH" + tc.id, Email: email, Batch: tc.batch}))
	}
	hub := live.NewMemory(8)
	now := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	svc := attendance.NewService(st, hub, nil).WithClock(func() time.Time { return now })
	return &fixture{store: st, hub: hub, svc: svc}
}

func TestMarkDailyLastWriteWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, tc := range []struct {
		date   string
		status attendance.Status
		want   string
	}{
		{"2025-03-01", attendance.Present, "2025-03-01"},
		{"2025-03-01", attendance.Absent, "2025-03-01"},
		{"", "present", "2025-03-10"},
	} {
		got, err := f.svc.MarkDaily(ctx, "s1", tc.date, tc.status)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	marks, err := f.store.DailyMarks(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]attendance.Status{
		"2025-03-01": attendance.Absent,
		"2025-03-10": attendance.Present,
	}, marks)
}

func TestMarkDailyErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name      string
		studentID string
		date      string
		status    attendance.Status
		want      error
	}{
		{"bad date", "s1", "03/01/2025", attendance.Present, apperr.ErrInvalid},
		{"bad status", "s1", "2025-03-01", "Late", apperr.ErrInvalid},
		{"missing student", "", "2025-03-01", attendance.Present, apperr.ErrInvalid},
		{"unknown student", "ghost", "2025-03-01", attendance.Present, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.MarkDaily(ctx, tc.studentID, tc.date, tc.status)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMarkDailyForTeacher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	date, err := f.svc.MarkDailyForTeacher(ctx, "t1", "s2", "", attendance.Absent)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", date)
	marks, err := f.store.DailyMarks(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, map[string]attendance.Status{"2025-03-10": attendance.Absent}, marks)

	cases := []struct {
		name      string
		teacher   string
		studentID string
		want      error
	}{
		{"student from another batch", "t1", "s3", apperr.ErrInvalid},
		{"unknown student", "t1", "ghost", apperr.ErrInvalid},
		{"teacher without batch", "t2", "s1", attendance.ErrNoBatch},
		{"unknown teacher", "ghost", "s1", apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.MarkDailyForTeacher(ctx, tc.teacher, tc.studentID, "2025-03-09", attendance.Present)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	other, err := f.store.DailyMarks(ctx, "s3")
	require.NoError(t, err)
	assert.Empty(t, other)
	own, err := f.store.DailyMarks(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, own, "a teacher without a batch marks nothing")
}

func TestMarkBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sub, err := f.hub.Subscribe(ctx, live.AttendanceTopic("s2"))
	require.NoError(t, err)
	defer sub.Close()

	events, err := f.svc.MarkBatch(ctx, "t1", attendance.SubjectMark{
		Date:        "2025-03-09",
		SubjectCode: "PHY",
		SubjectName: "Physics",
		Marks:       map[string]attendance.Status{"s1": "present", "s2": attendance.Absent},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "A", e.Batch)
		assert.Equal(t, "t1", e.MarkedBy)
	}

	select {
	case payload := <-sub.C():
		var e attendance.Event
		require.NoError(t, json.Unmarshal(payload, &e))
		assert.Equal(t, attendance.Absent, e.Status)
	case <-time.After(time.Second):
		t.Fatal("no attendance update published")
	}

	_, err = f.svc.MarkBatch(ctx, "t1", attendance.SubjectMark{
		Date: "2025-03-09", SubjectCode: "PHY", SubjectName: "Physics",
		Marks: map[string]attendance.Status{"s1": attendance.Absent},
	})
	require.NoError(t, err)
	got, err := f.store.StudentEvents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1, "re-marking the same class replaces the mark")
	assert.Equal(t, attendance.Absent, got[0].Status)
}

func TestMarkBatchRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sheet := func(marks map[string]attendance.Status) attendance.SubjectMark {
		return attendance.SubjectMark{Date: "2025-03-09", SubjectCode: "PHY", Marks: marks}
	}

	cases := []struct {
		name    string
		teacher string
		mark    attendance.SubjectMark
		want    error
	}{
		{"teacher without batch", "t2", sheet(map[string]attendance.Status{"s1": attendance.Present}), attendance.ErrNoBatch},
		{"unknown teacher", "ghost", sheet(map[string]attendance.Status{"s1": attendance.Present}), apperr.ErrNotFound},
		{"student from another batch", "t1", sheet(map[string]attendance.Status{"s3": attendance.Present}), apperr.ErrInvalid},
		{"empty sheet", "t1", sheet(nil), apperr.ErrInvalid},
		{"bad status", "t1", sheet(map[string]attendance.Status{"s1": "maybe"}), apperr.ErrInvalid},
		{"bad date", "t1", attendance.SubjectMark{Date: "9-3-2025", SubjectCode: "PHY", Marks: map[string]attendance.Status{"s1": attendance.Present}}, apperr.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.MarkBatch(ctx, tc.teacher, tc.mark)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.ErrorIs(t, attendance.ErrNoBatch, apperr.ErrForbidden)
	events, err := f.store.StudentEvents(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStudentReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.MarkDaily(ctx, "s1", "2025-03-08", attendance.Present)
	require.NoError(t, err)
	_, err = f.svc.MarkDaily(ctx, "s1", "2025-03-09", attendance.Absent)
	require.NoError(t, err)
	for _, d := range []struct {
		date string
		st   attendance.Status
	}{{"2025-03-08", attendance.Present}, {"2025-03-09", attendance.Present}, {"2025-03-10", attendance.Absent}} {
		_, err = f.svc.MarkBatch(ctx, "t1", attendance.SubjectMark{
			Date: d.date, SubjectCode: "PHY", SubjectName: "Physics",
			Marks: map[string]attendance.Status{"s1": d.st},
		})
		require.NoError(t, err)
	}

	rep, err := f.svc.StudentReport(ctx, "s1", 7)
	require.NoError(t, err)
	assert.Equal(t, attendance.DailySummary{Total: 2, Present: 1, Absent: 1, Percentage: 50}, rep.DailySummary)
	require.Len(t, rep.Subjects, 1)
	assert.Equal(t, 3, rep.Subjects[0].Total)
	assert.Equal(t, "2025-03-10", rep.Subjects[0].Records[0].Date)
	assert.Equal(t, attendance.Overall{Total: 3, Present: 2, Percentage: 67}, rep.Overall)
	require.Len(t, rep.Trend, 7)
	assert.Equal(t, "2025-03-10", rep.Trend[6].Date)
	require.NotNil(t, rep.Trend[6].Ratio)
	assert.InDelta(t, 0.0, *rep.Trend[6].Ratio, 1e-9)
	assert.Nil(t, rep.Trend[0].Ratio)

	empty, err := f.svc.StudentReport(ctx, "s2", 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Subjects)
	assert.Empty(t, empty.Subjects)
	assert.Len(t, empty.Trend, attendance.DefaultTrendWindow)

	_, err = f.svc.StudentReport(ctx, "ghost", 7)
	assert.ErrorIs(t, err, attendance.ErrStudentNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBatchTrend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.MarkBatch(ctx, "t1", attendance.SubjectMark{
		Date: "2025-03-10", SubjectCode: "PHY",
		Marks: map[string]attendance.Status{"s1": attendance.Present, "s2": attendance.Absent},
	})
	require.NoError(t, err)
	_, err = f.svc.MarkBatch(ctx, "t1", attendance.SubjectMark{
		Date: "2025-01-01", SubjectCode: "PHY",
		Marks: map[string]attendance.Status{"s1": attendance.Present},
	})
	require.NoError(t, err)

	pts, err := f.svc.BatchTrend(ctx, "A", 3)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, "2025-03-08", pts[0].Date)
	require.NotNil(t, pts[2].Ratio)
	assert.InDelta(t, 0.5, *pts[2].Ratio, 1e-9)

	_, err = f.svc.BatchTrend(ctx, "", 3)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
