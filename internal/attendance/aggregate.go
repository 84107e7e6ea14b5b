package attendance

import (
	"math"
	"sort"
	"time"
)

// DefaultBatch is used for events recorded without a batch.
const DefaultBatch = "A"

// DefaultTrendWindow is the number of days in a trend when none is given.
const DefaultTrendWindow = 30

// Record is one dated mark inside a subject summary.
type Record struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// SubjectSummary aggregates the events of one (subject code, name, batch).
type SubjectSummary struct {
	SubjectCode string   `json:"subjectCode"`
	SubjectName string   `json:"subjectName"`
	Batch       string   `json:"batch"`
	Total       int      `json:"total"`
	Present     int      `json:"present"`
	Absent      int      `json:"absent"`
	Percentage  int      `json:"percentage"`
	Records     []Record `json:"records"`
}

// Overall totals every subject summary.
type Overall struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Percentage int `json:"percentage"`
}

// DailySummary totals a daily status map.
type DailySummary struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Percentage int `json:"percentage"`
}

// TrendPoint is one day of a trend window. Ratio is nil when no class was
// held that day.
type TrendPoint struct {
	Date  string   `json:"date"`
	Ratio *float64 `json:"ratio"`
}

type groupKey struct {
	code, name, batch string
}

// SummarizeBySubject groups events by subject and batch. Groups keep the order
// in which they first appear; records inside a group are newest first. Every
// returned group has at least one event.
func SummarizeBySubject(events []Event) []SubjectSummary {
	out := []SubjectSummary{}
	index := make(map[groupKey]int)
	for _, e := range events {
		batch := e.Batch
		if batch == "" {
			batch = DefaultBatch
		}
		k := groupKey{e.SubjectCode, e.SubjectName, batch}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, SubjectSummary{SubjectCode: e.SubjectCode, SubjectName: e.SubjectName, Batch: batch})
		}
		g := &out[i]
		g.Total++
		if e.Status == Present {
			g.Present++
		}
		g.Records = append(g.Records, Record{Date: e.Date, Status: e.Status})
	}
	for i := range out {
		g := &out[i]
		g.Absent = g.Total - g.Present
		g.Percentage = percent(g.Present, g.Total)
		sort.SliceStable(g.Records, func(a, b int) bool { return g.Records[a].Date > g.Records[b].Date })
	}
	return out
}

// OverallOf totals the subject summaries.
func OverallOf(subjects []SubjectSummary) Overall {
	var o Overall
	for _, s := range subjects {
		o.Total += s.Total
		o.Present += s.Present
	}
	o.Percentage = percent(o.Present, o.Total)
	return o
}

// SummarizeDaily totals a date → status map.
func SummarizeDaily(marks map[string]Status) DailySummary {
	var d DailySummary
	for _, st := range marks {
		d.Total++
		if st == Present {
			d.Present++
		}
	}
	d.Absent = d.Total - d.Present
	d.Percentage = percent(d.Present, d.Total)
	return d
}

// Trend returns exactly windowDays points ending at today's calendar date, in
// ascending order. Each ratio is present/total over all events on that day.
// The result depends only on the arguments.
func Trend(events []Event, today time.Time, windowDays int) []TrendPoint {
	if windowDays <= 0 {
		windowDays = DefaultTrendWindow
	}
	type tally struct{ present, total int }
	byDate := make(map[string]*tally)
	for _, e := range events {
		t := byDate[e.Date]
		if t == nil {
			t = &tally{}
			byDate[e.Date] = t
		}
		t.total++
		if e.Status == Present {
			t.present++
		}
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	points := make([]TrendPoint, windowDays)
	for i := 0; i < windowDays; i++ {
		date := FormatDate(day.AddDate(0, 0, i-(windowDays-1)))
		points[i] = TrendPoint{Date: date}
		if t := byDate[date]; t != nil && t.total > 0 {
			r := float64(t.present) / float64(t.total)
			points[i].Ratio = &r
		}
	}
	return points
}

// WindowStart returns the first date of a trend window ending at today.
func WindowStart(today time.Time, windowDays int) string {
	if windowDays <= 0 {
		windowDays = DefaultTrendWindow
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	return FormatDate(day.AddDate(0, 0, 1-windowDays))
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
