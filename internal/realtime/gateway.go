package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/auth"
	"github.com/lecturehall/backend/internal/capture"
	"github.com/lecturehall/backend/internal/models"
	"github.com/lecturehall/backend/internal/registry"
	"github.com/lecturehall/backend/internal/transcription"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// RoomRegistry mutates room membership. Satisfied by *registry.Registry.
type RoomRegistry interface {
	Join(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error)
	Leave(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error)
}

// LectureStore is the lecture surface the gateway needs. Satisfied by
// *lectures.Repository.
type LectureStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.LectureStatus) error
}

// ChatStore persists chat messages. Satisfied by *chat.Repository.
type ChatStore interface {
	Create(ctx context.Context, m *models.ChatMessage) error
}

// SubtitleStore persists manual subtitles. Satisfied by *subtitles.Repository.
type SubtitleStore interface {
	Create(ctx context.Context, s *models.Subtitle) error
	Update(ctx context.Context, id uuid.UUID, text string, start, end float64) (*models.Subtitle, error)
}

// Transcriber drives capture sessions. Satisfied by *transcription.Scheduler.
type Transcriber interface {
	Start(ctx context.Context, lectureID *uuid.UUID, ownerID uuid.UUID, topic, language string) (*models.TranscriptionSession, error)
	Append(sessionID uuid.UUID, seg transcription.Segment) error
	Stop(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptionSession, error)
}

// CaptureOpener opens capture sources. Satisfied by *capture.Registry.
type CaptureOpener interface {
	Open(id string) (*capture.PushSource, error)
}

// AttendanceRecorder logs join/leave pairs. Satisfied by *sessionlog.Repository.
type AttendanceRecorder interface {
	LogJoin(ctx context.Context, lectureID, userID uuid.UUID) (uuid.UUID, error)
	LogLeave(ctx context.Context, logID uuid.UUID) error
}

// CredentialVerifier resolves bearer credentials. Satisfied by *auth.Verifier.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (*auth.Identity, error)
}

// Gateway owns every live connection and dispatches their commands. It is the
// only writer of per-connection session state.
type Gateway struct {
	hub         *Hub
	verifier    CredentialVerifier
	rooms       RoomRegistry
	lectures    LectureStore
	chat        ChatStore
	subtitles   SubtitleStore
	transcriber Transcriber
	sources     CaptureOpener
	attendance  AttendanceRecorder
	logger      *zap.Logger
}

// NewGateway creates a session gateway.
func NewGateway(hub *Hub, verifier CredentialVerifier, rooms RoomRegistry, lectures LectureStore, chat ChatStore, subtitles SubtitleStore, transcriber Transcriber, sources CaptureOpener, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		hub:         hub,
		verifier:    verifier,
		rooms:       rooms,
		lectures:    lectures,
		chat:        chat,
		subtitles:   subtitles,
		transcriber: transcriber,
		sources:     sources,
		logger:      logger,
	}
}

// SetAttendance wires the attendance log. Optional.
func (g *Gateway) SetAttendance(rec AttendanceRecorder) { g.attendance = rec }

// ServeWs authenticates the request and upgrades it to a WebSocket session.
// Credentials are checked before the upgrade so unauthenticated requests get
// a plain 401 instead of a connection that is closed right away.
func (g *Gateway) ServeWs() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if h := c.GetHeader("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
				token = h[7:]
			}
		}

		identity, err := g.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			code := CodeAuthInvalid
			if errors.Is(err, auth.ErrTokenRequired) {
				code = CodeAuthRequired
			}
			c.JSON(http.StatusUnauthorized, gin.H{"code": code, "error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			g.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(g, conn, *identity, g.logger)
		g.hub.Subscribe(UserTopic(identity.UserID), client)
		g.logger.Info("client connected",
			zap.String("client_id", client.ID),
			zap.String("user_id", identity.UserID.String()))

		go client.writePump()
		client.readPump()
	}
}

// handleCommand dispatches one inbound message.
func (g *Gateway) handleCommand(c *Client, msg WSMessage) {
	ctx := context.Background()

	switch msg.Event {
	case CmdJoinLecture:
		g.handleJoin(ctx, c, msg)
	case CmdLeaveLecture:
		if !g.leaveRoom(ctx, c) {
			c.sendError(CodeNotInRoom, "not in a lecture room")
		}
	case CmdSendMessage:
		g.handleSendMessage(ctx, c, msg)
	case CmdCreateSubtitle:
		g.handleCreateSubtitle(ctx, c, msg)
	case CmdUpdateSubtitle:
		g.handleUpdateSubtitle(ctx, c, msg)
	case CmdUpdateLectureStatus:
		g.handleUpdateLectureStatus(ctx, c, msg)
	case CmdTypingStart:
		g.handleTyping(c, true)
	case CmdTypingStop:
		g.handleTyping(c, false)
	case CmdStartTranscription:
		g.handleStartTranscription(ctx, c, msg)
	case CmdStopTranscription:
		g.handleStopTranscription(ctx, c)
	case CmdAudioChunk:
		g.handleAudioChunk(c, msg)
	default:
		c.sendError(CodeBadRequest, "unknown command: "+msg.Event)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, msg WSMessage) {
	var p joinLecturePayload
	if err := unmarshal(msg, &p); err != nil || p.LectureID == uuid.Nil {
		c.sendError(CodeBadRequest, "lecture_id required")
		return
	}

	// Joining a new room while in another implies leaving the old one.
	g.leaveRoom(ctx, c)

	lecture, err := g.lectures.GetByID(ctx, p.LectureID)
	if err != nil {
		c.sendError(CodeRoomNotFound, "lecture not found")
		return
	}

	participants, err := g.rooms.Join(ctx, p.LectureID, c.Identity.UserID)
	if err != nil {
		if errors.Is(err, registry.ErrRoomNotFound) {
			c.sendError(CodeRoomNotFound, "lecture not found")
			return
		}
		g.logger.Error("join failed", zap.Error(err), zap.String("client_id", c.ID))
		c.sendError(CodeBadRequest, "join failed")
		return
	}

	topic := RoomTopic(p.LectureID)
	g.hub.Subscribe(topic, c)

	var attendanceID uuid.UUID
	if g.attendance != nil {
		if id, err := g.attendance.LogJoin(ctx, p.LectureID, c.Identity.UserID); err == nil {
			attendanceID = id
		} else {
			g.logger.Warn("attendance join log failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.state = stateInRoom
	c.roomID = p.LectureID
	c.attendanceID = attendanceID
	c.mu.Unlock()

	c.sendEvent(EventLectureState, LectureStatePayload{Lecture: lecture, Participants: participants})
	g.hub.PublishExcept(topic, c.ID, EventUserJoined, PresencePayload{
		UserID:       c.Identity.UserID,
		Name:         c.Identity.DisplayName,
		Role:         c.Identity.Role,
		Participants: participants,
	})
}

// leaveRoom removes the client from its current room, if any. Returns false
// when the client was not in a room. Safe to call repeatedly.
func (g *Gateway) leaveRoom(ctx context.Context, c *Client) bool {
	c.mu.Lock()
	if c.state != stateInRoom {
		c.mu.Unlock()
		return false
	}
	roomID := c.roomID
	attendanceID := c.attendanceID
	c.state = stateIdle
	c.roomID = uuid.Nil
	c.attendanceID = uuid.Nil
	c.mu.Unlock()

	topic := RoomTopic(roomID)
	g.hub.Unsubscribe(topic, c)

	payload := PresencePayload{
		UserID: c.Identity.UserID,
		Name:   c.Identity.DisplayName,
		Role:   c.Identity.Role,
	}
	// When the membership update fails the event still goes out, but without
	// a participants list that was never the room's actual state.
	if participants, err := g.rooms.Leave(ctx, roomID, c.Identity.UserID); err != nil {
		g.logger.Error("leave failed", zap.Error(err), zap.String("client_id", c.ID))
	} else {
		payload.Participants = participants
	}
	g.hub.Publish(topic, EventUserLeft, payload)

	if g.attendance != nil && attendanceID != uuid.Nil {
		if err := g.attendance.LogLeave(ctx, attendanceID); err != nil {
			g.logger.Warn("attendance leave log failed", zap.Error(err))
		}
	}
	return true
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, msg WSMessage) {
	roomID, ok := c.room()
	if !ok {
		c.sendError(CodeNotInRoom, "join a lecture before sending messages")
		return
	}
	var p sendMessagePayload
	if err := unmarshal(msg, &p); err != nil || p.Text == "" {
		c.sendError(CodeBadRequest, "text required")
		return
	}

	userID := c.Identity.UserID
	m := &models.ChatMessage{
		LectureID:  roomID,
		AuthorID:   &userID,
		AuthorName: c.Identity.DisplayName,
		Text:       p.Text,
	}
	if err := g.chat.Create(ctx, m); err != nil {
		g.logger.Error("chat persist failed", zap.Error(err))
		c.sendError(CodeBadRequest, "message not saved")
		return
	}
	g.hub.Publish(RoomTopic(roomID), EventNewMessage, m)
}

func (g *Gateway) handleCreateSubtitle(ctx context.Context, c *Client, msg WSMessage) {
	roomID, ok := c.room()
	if !ok {
		c.sendError(CodeNotInRoom, "join a lecture first")
		return
	}
	if !isPrivileged(c.Identity.Role) {
		c.sendError(CodeUnauthorized, "instructor role required")
		return
	}
	var p createSubtitlePayload
	if err := unmarshal(msg, &p); err != nil || p.Text == "" {
		c.sendError(CodeBadRequest, "text required")
		return
	}

	s := &models.Subtitle{
		LectureID: roomID,
		Start:     p.Start,
		End:       p.End,
		Text:      p.Text,
		Language:  p.Language,
	}
	if err := g.subtitles.Create(ctx, s); err != nil {
		g.logger.Error("subtitle persist failed", zap.Error(err))
		c.sendError(CodeBadRequest, "subtitle not saved")
		return
	}
	g.hub.Publish(RoomTopic(roomID), EventSubtitleAdded, s)
}

func (g *Gateway) handleUpdateSubtitle(ctx context.Context, c *Client, msg WSMessage) {
	roomID, ok := c.room()
	if !ok {
		c.sendError(CodeNotInRoom, "join a lecture first")
		return
	}
	if !isPrivileged(c.Identity.Role) {
		c.sendError(CodeUnauthorized, "instructor role required")
		return
	}
	var p updateSubtitlePayload
	if err := unmarshal(msg, &p); err != nil || p.ID == uuid.Nil {
		c.sendError(CodeBadRequest, "id required")
		return
	}

	s, err := g.subtitles.Update(ctx, p.ID, p.Text, p.Start, p.End)
	if err != nil {
		c.sendError(CodeBadRequest, "subtitle not updated")
		return
	}
	g.hub.Publish(RoomTopic(roomID), EventSubtitleUpdated, s)
}

func (g *Gateway) handleUpdateLectureStatus(ctx context.Context, c *Client, msg WSMessage) {
	roomID, ok := c.room()
	if !ok {
		c.sendError(CodeNotInRoom, "join a lecture first")
		return
	}
	var p updateLectureStatusPayload
	if err := unmarshal(msg, &p); err != nil || !models.LectureStatus(p.Status).Valid() {
		c.sendError(CodeBadRequest, "valid status required")
		return
	}

	lecture, err := g.lectures.GetByID(ctx, roomID)
	if err != nil {
		c.sendError(CodeRoomNotFound, "lecture not found")
		return
	}
	// Only the owning instructor or an admin may change the status. The
	// command is rejected before any persistence or broadcast happens.
	if c.Identity.Role != string(models.RoleAdmin) && lecture.InstructorID != c.Identity.UserID {
		c.sendError(CodeUnauthorized, "only the lecture instructor can change its status")
		return
	}

	if err := g.lectures.UpdateStatus(ctx, roomID, models.LectureStatus(p.Status)); err != nil {
		g.logger.Error("status update failed", zap.Error(err))
		c.sendError(CodeBadRequest, "status not updated")
		return
	}
	g.hub.Publish(RoomTopic(roomID), EventLectureStatusUpdated, StatusPayload{
		LectureID: roomID,
		Status:    p.Status,
		UpdatedBy: c.Identity.UserID,
	})
}

func (g *Gateway) handleTyping(c *Client, typing bool) {
	roomID, ok := c.room()
	if !ok {
		c.sendError(CodeNotInRoom, "join a lecture first")
		return
	}
	g.hub.PublishExcept(RoomTopic(roomID), c.ID, EventUserTyping, TypingPayload{
		UserID: c.Identity.UserID,
		Name:   c.Identity.DisplayName,
		Typing: typing,
	})
}

func (g *Gateway) handleStartTranscription(ctx context.Context, c *Client, msg WSMessage) {
	var p startTranscriptionPayload
	if err := unmarshal(msg, &p); err != nil {
		c.sendError(CodeBadRequest, "invalid payload")
		return
	}
	if p.SourceID == "" {
		p.SourceID = string(capture.KindMicrophone)
	}

	c.mu.Lock()
	hasSession := c.sessionID != uuid.Nil
	c.mu.Unlock()
	if hasSession {
		c.sendError(CodeBadRequest, "transcription already running")
		return
	}

	var lectureID *uuid.UUID
	topic := UserTopic(c.Identity.UserID)
	if p.Broadcast {
		roomID, ok := c.room()
		if !ok {
			c.sendError(CodeNotInRoom, "join a lecture to broadcast its transcript")
			return
		}
		if !isPrivileged(c.Identity.Role) {
			c.sendError(CodeUnauthorized, "instructor role required to broadcast transcripts")
			return
		}
		id := roomID
		lectureID = &id
		topic = RoomTopic(roomID)
	}

	source, err := g.sources.Open(p.SourceID)
	if err != nil {
		c.sendError(CodeCaptureUnavailable, "capture source unavailable: "+p.SourceID)
		return
	}

	sess, err := g.transcriber.Start(ctx, lectureID, c.Identity.UserID, topic, p.Language)
	if err != nil {
		source.Stop()
		g.logger.Error("transcription start failed", zap.Error(err))
		c.sendError(CodeBadRequest, "transcription not started")
		return
	}

	stream, err := source.Start(context.Background())
	if err != nil {
		_, _ = g.transcriber.Stop(ctx, sess.ID)
		c.sendError(CodeCaptureUnavailable, "capture source unavailable: "+p.SourceID)
		return
	}

	c.mu.Lock()
	c.sessionID = sess.ID
	c.source = source
	c.mu.Unlock()

	// Pipe captured segments into the session buffer until the source stops.
	go func(sessionID uuid.UUID) {
		for seg := range stream {
			if err := g.transcriber.Append(sessionID, transcription.Segment{
				Data:       seg.Data,
				MimeType:   seg.MimeType,
				CapturedAt: seg.CapturedAt,
			}); err != nil {
				return
			}
		}
	}(sess.ID)

	c.sendEvent(EventTranscriptionStarted, TranscriptionStatePayload{
		SessionID: sess.ID,
		SourceID:  p.SourceID,
		Session:   sess,
	})
}

func (g *Gateway) handleStopTranscription(ctx context.Context, c *Client) {
	c.mu.Lock()
	sessionID := c.sessionID
	source := c.source
	c.sessionID = uuid.Nil
	c.source = nil
	c.mu.Unlock()

	if sessionID == uuid.Nil {
		c.sendError(CodeBadRequest, "no transcription running")
		return
	}
	if source != nil {
		source.Stop()
	}
	sess, err := g.transcriber.Stop(ctx, sessionID)
	if err != nil {
		c.sendError(CodeBadRequest, "transcription not stopped")
		return
	}
	c.sendEvent(EventTranscriptionStopped, TranscriptionStatePayload{
		SessionID: sessionID,
		Session:   sess,
	})
}

func (g *Gateway) handleAudioChunk(c *Client, msg WSMessage) {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()
	if source == nil {
		c.sendError(CodeBadRequest, "no transcription running")
		return
	}
	var p audioChunkPayload
	if err := unmarshal(msg, &p); err != nil || p.Data == "" {
		c.sendError(CodeBadRequest, "data required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		c.sendError(CodeBadRequest, "data must be base64")
		return
	}
	source.Push(data, p.MimeType)
}

// disconnect tears a connection down: the active transcription session is
// stopped, the room membership is released and every topic subscription is
// dropped. Equivalent to an explicit leave followed by the socket closing.
func (g *Gateway) disconnect(c *Client) {
	c.mu.Lock()
	if c.state == stateDisconnected {
		c.mu.Unlock()
		return
	}
	wasInRoom := c.state == stateInRoom
	sessionID := c.sessionID
	source := c.source
	c.sessionID = uuid.Nil
	c.source = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if source != nil {
		source.Stop()
	}
	if sessionID != uuid.Nil {
		if _, err := g.transcriber.Stop(ctx, sessionID); err != nil && !errors.Is(err, transcription.ErrSessionNotFound) {
			g.logger.Warn("transcription stop on disconnect failed", zap.Error(err))
		}
	}

	if wasInRoom {
		g.leaveRoom(ctx, c)
	}

	c.mu.Lock()
	c.state = stateDisconnected
	c.mu.Unlock()

	g.hub.UnsubscribeAll(c)
	g.logger.Info("client disconnected", zap.String("client_id", c.ID))
}

func isPrivileged(role string) bool {
	return role == string(models.RoleAdmin) || role == string(models.RoleInstructor)
}

func unmarshal(msg WSMessage, v interface{}) error {
	if len(msg.Data) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(msg.Data, v)
}
