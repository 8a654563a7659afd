package models

import (
	"time"

	"github.com/google/uuid"
)

// LectureStatus is the lifecycle status of a lecture room.
type LectureStatus string

const (
	LectureScheduled LectureStatus = "scheduled"
	LectureLive      LectureStatus = "live"
	LectureRecorded  LectureStatus = "recorded"
	LectureArchived  LectureStatus = "archived"
)

// Valid reports whether s is a known lecture status.
func (s LectureStatus) Valid() bool {
	switch s {
	case LectureScheduled, LectureLive, LectureRecorded, LectureArchived:
		return true
	}
	return false
}

// Lecture represents a lecture and its live room context.
type Lecture struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	InstructorID uuid.UUID     `json:"instructor_id"`
	Status       LectureStatus `json:"status"`
	StartsAt     *time.Time    `json:"starts_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
