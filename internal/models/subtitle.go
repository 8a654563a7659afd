package models

import (
	"time"

	"github.com/google/uuid"
)

// Subtitle is one timed subtitle segment of a lecture.
// Start/End are offsets in seconds from the lecture start; within a lecture's
// ordered sequence the offsets are monotonically non-decreasing.
type Subtitle struct {
	ID         uuid.UUID `json:"id"`
	LectureID  uuid.UUID `json:"lecture_id"`
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"` // in [0,1]
	IsAI       bool      `json:"is_ai"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
