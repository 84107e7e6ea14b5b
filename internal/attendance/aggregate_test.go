package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(code, name, batch, date string, st Status) Event {
	return Event{StudentID: "s1", SubjectCode: code, SubjectName: name, Batch: batch, Date: date, Status: st}
}

func TestSummarizeBySubjectEmpty(t *testing.T) {
	got := SummarizeBySubject(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSummarizeBySubject(t *testing.T) {
	events := []Event{
		ev("PHY", "Physics", "A", "2025-01-01", Present),
		ev("CHE", "Chemistry", "", "2025-01-01", Absent),
		ev("PHY", "Physics", "A", "2025-01-03", Absent),
		ev("PHY", "Physics", "A", "2025-01-02", Present),
		ev("PHY", "Physics", "B", "2025-01-02", Present),
	}
	got := SummarizeBySubject(events)
	require.Len(t, got, 3)

	phy := got[0]
	assert.Equal(t, "PHY", phy.SubjectCode)
	assert.Equal(t, "A", phy.Batch)
	assert.Equal(t, 3, phy.Total)
	assert.Equal(t, 2, phy.Present)
	assert.Equal(t, 1, phy.Absent)
	assert.Equal(t, 67, phy.Percentage)
	assert.Equal(t, []Record{
		{Date: "2025-01-03", Status: Absent},
		{Date: "2025-01-02", Status: Present},
		{Date: "2025-01-01", Status: Present},
	}, phy.Records)

	che := got[1]
	assert.Equal(t, "CHE", che.SubjectCode)
	assert.Equal(t, DefaultBatch, che.Batch)
	assert.Equal(t, 0, che.Percentage)

	assert.Equal(t, "B", got[2].Batch)
	assert.Equal(t, 100, got[2].Percentage)

	for _, g := range got {
		assert.Positive(t, g.Total)
		assert.Equal(t, g.Total, g.Present+g.Absent)
	}
}

func TestSummarizeBySubjectStableWithinDate(t *testing.T) {
	events := []Event{
		ev("PHY", "Physics", "A", "2025-01-01", Present),
		ev("PHY", "Physics", "A", "2025-01-01", Absent),
	}
	got := SummarizeBySubject(events)
	require.Len(t, got, 1)
	assert.Equal(t, Present, got[0].Records[0].Status)
	assert.Equal(t, Absent, got[0].Records[1].Status)
}

func TestOverallOf(t *testing.T) {
	assert.Equal(t, Overall{}, OverallOf(nil))

	o := OverallOf([]SubjectSummary{
		{Total: 3, Present: 2},
		{Total: 1, Present: 0},
	})
	assert.Equal(t, Overall{Total: 4, Present: 2, Percentage: 50}, o)
}

func TestSummarizeDaily(t *testing.T) {
	assert.Equal(t, DailySummary{}, SummarizeDaily(nil))

	d := SummarizeDaily(map[string]Status{
		"2025-01-01": Present,
		"2025-01-02": Absent,
		"2025-01-03": Present,
	})
	assert.Equal(t, DailySummary{Total: 3, Present: 2, Absent: 1, Percentage: 67}, d)
}

func TestTrendWindow(t *testing.T) {
	today := time.Date(2025, 3, 2, 15, 4, 5, 0, time.UTC)
	events := []Event{
		ev("PHY", "Physics", "A", "2025-03-02", Present),
		ev("CHE", "Chemistry", "A", "2025-03-02", Absent),
		ev("PHY", "Physics", "A", "2025-02-28", Present),
		ev("PHY", "Physics", "A", "2025-01-01", Present),
	}

	for _, window := range []int{1, 7, 30, 45} {
		pts := Trend(events, today, window)
		require.Len(t, pts, window)
		assert.Equal(t, "2025-03-02", pts[len(pts)-1].Date)
		for i := 1; i < len(pts); i++ {
			assert.Less(t, pts[i-1].Date, pts[i].Date)
		}
	}

	pts := Trend(events, today, 3)
	assert.Equal(t, "2025-02-28", pts[0].Date)
	require.NotNil(t, pts[0].Ratio)
	assert.InDelta(t, 1.0, *pts[0].Ratio, 1e-9)
	assert.Equal(t, "2025-03-01", pts[1].Date)
	assert.Nil(t, pts[1].Ratio)
	require.NotNil(t, pts[2].Ratio)
	assert.InDelta(t, 0.5, *pts[2].Ratio, 1e-9)
}

func TestTrendDefaultsAndPurity(t *testing.T) {
	today := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Len(t, Trend(nil, today, 0), DefaultTrendWindow)
	assert.Len(t, Trend(nil, today, -4), DefaultTrendWindow)

	events := []Event{ev("PHY", "Physics", "A", "2025-03-01", Present)}
	assert.Equal(t, Trend(events, today, 10), Trend(events, today, 10))
}

func TestWindowStart(t *testing.T) {
	today := time.Date(2025, 3, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-02", WindowStart(today, 1))
	assert.Equal(t, "2025-02-01", WindowStart(today, 30))
	assert.Equal(t, Trend(nil, today, 30)[0].Date, WindowStart(today, 30))
}
