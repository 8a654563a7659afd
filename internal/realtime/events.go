package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// WSMessage is the WebSocket message envelope, used for commands and events alike.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Commands accepted from clients.
const (
	CmdJoinLecture         = "join-lecture"
	CmdLeaveLecture        = "leave-lecture"
	CmdSendMessage         = "send-message"
	CmdCreateSubtitle      = "create-subtitle"
	CmdUpdateSubtitle      = "update-subtitle"
	CmdUpdateLectureStatus = "update-lecture-status"
	CmdTypingStart         = "typing-start"
	CmdTypingStop          = "typing-stop"
	CmdStartTranscription  = "start-transcription"
	CmdStopTranscription   = "stop-transcription"
	CmdAudioChunk          = "audio-chunk"
)

// Events pushed to clients.
const (
	EventLectureState         = "lecture-state"
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventNewMessage           = "new-message"
	EventSubtitleAdded        = "subtitle-added"
	EventSubtitleUpdated      = "subtitle-updated"
	EventLectureStatusUpdated = "lecture-status-updated"
	EventUserTyping           = "user-typing"
	EventTranscriptionStarted = "transcription-started"
	EventTranscriptionStopped = "transcription-stopped"
	EventError                = "error"
)

// Error codes carried by error events.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeCaptureUnavailable = "CAPTURE_UNAVAILABLE"
	CodeBadRequest         = "BAD_REQUEST"
)

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinLecturePayload struct {
	LectureID uuid.UUID `json:"lecture_id"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

type createSubtitlePayload struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Language string  `json:"language"`
}

type updateSubtitlePayload struct {
	ID    uuid.UUID `json:"id"`
	Text  string    `json:"text"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
}

type updateLectureStatusPayload struct {
	Status string `json:"status"`
}

type startTranscriptionPayload struct {
	SourceID string `json:"source_id"`
	Language string `json:"language"`
	// Broadcast attaches the transcript to the current lecture so subtitles
	// reach the whole room. Requires instructor or admin.
	Broadcast bool `json:"broadcast"`
}

type audioChunkPayload struct {
	Data     string `json:"data"` // base64
	MimeType string `json:"mime_type"`
}

// TypingPayload is the body of a user-typing event.
type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Typing bool      `json:"typing"`
}

// PresencePayload is the body of user-joined and user-left events.
type PresencePayload struct {
	UserID       uuid.UUID   `json:"user_id"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Participants []uuid.UUID `json:"participants"`
}

// LectureStatePayload is sent to a client right after it joins a room.
type LectureStatePayload struct {
	Lecture      interface{} `json:"lecture"`
	Participants []uuid.UUID `json:"participants"`
}

// StatusPayload is the body of a lecture-status-updated event.
type StatusPayload struct {
	LectureID uuid.UUID `json:"lecture_id"`
	Status    string    `json:"status"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}

// TranscriptionStatePayload is the body of transcription-started and
// transcription-stopped events.
type TranscriptionStatePayload struct {
	SessionID uuid.UUID   `json:"session_id"`
	SourceID  string      `json:"source_id,omitempty"`
	Session   interface{} `json:"session,omitempty"`
}
