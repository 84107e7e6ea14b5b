package catalog

import "time"

type Course struct {
	Meta
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Fee         int64  `json:"fee" validate:"gte=0"`
}

type Exam struct {
	Meta
	Title   string `json:"title" validate:"required"`
	Subject string `json:"subject"`
	Batch   string `json:"batch"`
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Marks   int    `json:"marks" validate:"gte=0"`
}

// Notification is a broadcast to all students. DeliveredAt is set by the
// worker once the notification has been fanned out.
type Notification struct {
	Meta
	Title       string     `json:"title" validate:"required"`
	Message     string     `json:"message" validate:"required"`
	Audience    string     `json:"audience" validate:"omitempty,oneof=all students teachers"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

type StudyMaterial struct {
	Meta
	Title      string `json:"title" validate:"required"`
	Subject    string `json:"subject"`
	Batch      string `json:"batch"`
	URL        string `json:"url" validate:"required,url"`
	UploadedBy string `json:"uploadedBy,omitempty"`
}

type TestSeriesItem struct {
	Meta
	Title     string `json:"title" validate:"required"`
	Course    string `json:"course"`
	Questions int    `json:"questions" validate:"gte=0"`
	Price     int64  `json:"price" validate:"gte=0"`
}
