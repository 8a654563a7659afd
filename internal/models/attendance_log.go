package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceLog records one join/leave span of a user in a lecture room.
type AttendanceLog struct {
	ID             uuid.UUID  `json:"id"`
	LectureID      uuid.UUID  `json:"lecture_id"`
	UserID         uuid.UUID  `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	PresentSeconds int64      `json:"present_seconds"`
}
