package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptionStatus is the lifecycle status of a transcription session.
type TranscriptionStatus string

const (
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// TranscriptionSession accumulates the running transcript of one capture session.
// LectureID is nil for private sessions not attached to a room.
type TranscriptionSession struct {
	ID        uuid.UUID           `json:"id"`
	LectureID *uuid.UUID          `json:"lecture_id,omitempty"`
	OwnerID   uuid.UUID           `json:"owner_id"`
	Text      string              `json:"text"`
	Status    TranscriptionStatus `json:"status"`
	Error     string              `json:"error,omitempty"` // last non-fatal backend error, if any
	ExportKey string              `json:"export_key,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   *time.Time          `json:"ended_at,omitempty"`
}
