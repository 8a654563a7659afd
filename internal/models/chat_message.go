package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one message in a lecture room. Append-only, immutable once created.
// AI-originated messages have a nil AuthorID and IsAI set; AuthorName then
// carries the assistant sentinel identity.
type ChatMessage struct {
	ID         uuid.UUID  `json:"id"`
	LectureID  uuid.UUID  `json:"lecture_id"`
	AuthorID   *uuid.UUID `json:"author_id,omitempty"`
	AuthorName string     `json:"author_name"`
	Text       string     `json:"text"`
	IsAI       bool       `json:"is_ai"`
	CreatedAt  time.Time  `json:"created_at"`
}
