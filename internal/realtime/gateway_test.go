package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/auth"
	"github.com/lecturehall/backend/internal/capture"
	"github.com/lecturehall/backend/internal/lectures"
	"github.com/lecturehall/backend/internal/models"
	"github.com/lecturehall/backend/internal/transcription"
)

type fakeRooms struct {
	mu       sync.Mutex
	members  map[uuid.UUID]map[uuid.UUID]struct{}
	leaves   int
	leaveErr error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{members: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

func (f *fakeRooms) Join(_ context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[uuid.UUID]struct{})
	}
	f.members[roomID][userID] = struct{}{}
	return f.snapshot(roomID), nil
}

func (f *fakeRooms) Leave(_ context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	if f.leaveErr != nil {
		return nil, f.leaveErr
	}
	delete(f.members[roomID], userID)
	return f.snapshot(roomID), nil
}

func (f *fakeRooms) snapshot(roomID uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(f.members[roomID]))
	for id := range f.members[roomID] {
		out = append(out, id)
	}
	return out
}

func (f *fakeRooms) has(roomID, userID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[roomID][userID]
	return ok
}

type fakeLectures struct {
	mu       sync.Mutex
	lectures map[uuid.UUID]*models.Lecture
	statuses []models.LectureStatus
}

func newFakeLectures(ls ...*models.Lecture) *fakeLectures {
	f := &fakeLectures{lectures: make(map[uuid.UUID]*models.Lecture)}
	for _, l := range ls {
		f.lectures[l.ID] = l
	}
	return f
}

func (f *fakeLectures) GetByID(_ context.Context, id uuid.UUID) (*models.Lecture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lectures[id]
	if !ok {
		return nil, lectures.ErrNotFound
	}
	return l, nil
}

func (f *fakeLectures) UpdateStatus(_ context.Context, id uuid.UUID, status models.LectureStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.lectures[id].Status = status
	return nil
}

func (f *fakeLectures) statusUpdates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statuses)
}

type fakeChat struct {
	mu   sync.Mutex
	msgs []*models.ChatMessage
}

func (f *fakeChat) Create(_ context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeSubtitles struct {
	mu   sync.Mutex
	subs []*models.Subtitle
}

func (f *fakeSubtitles) Create(_ context.Context, s *models.Subtitle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	f.subs = append(f.subs, s)
	return nil
}

func (f *fakeSubtitles) Update(_ context.Context, id uuid.UUID, text string, start, end float64) (*models.Subtitle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Subtitle{ID: id, Text: text, Start: start, End: end}
	f.subs = append(f.subs, s)
	return s, nil
}

type fakeTranscriber struct {
	mu       sync.Mutex
	started  []uuid.UUID
	stopped  []uuid.UUID
	appended []transcription.Segment
}

func (f *fakeTranscriber) Start(_ context.Context, lectureID *uuid.UUID, ownerID uuid.UUID, _, _ string) (*models.TranscriptionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &models.TranscriptionSession{
		ID:        uuid.New(),
		LectureID: lectureID,
		OwnerID:   ownerID,
		Status:    models.TranscriptionProcessing,
		StartedAt: time.Now(),
	}
	f.started = append(f.started, sess.ID)
	return sess, nil
}

func (f *fakeTranscriber) Append(sessionID uuid.UUID, seg transcription.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, seg)
	return nil
}

func (f *fakeTranscriber) Stop(_ context.Context, sessionID uuid.UUID) (*models.TranscriptionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, sessionID)
	return &models.TranscriptionSession{ID: sessionID, Status: models.TranscriptionCompleted}, nil
}

func (f *fakeTranscriber) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

func (f *fakeTranscriber) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopped)
}

type fakeAttendance struct {
	mu     sync.Mutex
	joins  int
	leaves int
}

func (f *fakeAttendance) LogJoin(_ context.Context, _, _ uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	return uuid.New(), nil
}

func (f *fakeAttendance) LogLeave(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

type gatewayFixture struct {
	gw          *Gateway
	hub         *Hub
	rooms       *fakeRooms
	lectures    *fakeLectures
	chat        *fakeChat
	subtitles   *fakeSubtitles
	transcriber *fakeTranscriber
	attendance  *fakeAttendance
	lecture     *models.Lecture
	instructor  uuid.UUID
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	instructorID := uuid.New()
	lecture := &models.Lecture{
		ID:           uuid.New(),
		Title:        "Distributed Systems",
		InstructorID: instructorID,
		Status:       models.LectureLive,
	}
	f := &gatewayFixture{
		hub:         NewHub(zap.NewNop(), nil, nil),
		rooms:       newFakeRooms(),
		lectures:    newFakeLectures(lecture),
		chat:        &fakeChat{},
		subtitles:   &fakeSubtitles{},
		transcriber: &fakeTranscriber{},
		attendance:  &fakeAttendance{},
		lecture:     lecture,
		instructor:  instructorID,
	}
	f.gw = NewGateway(f.hub, nil, f.rooms, f.lectures, f.chat, f.subtitles, f.transcriber,
		capture.NewRegistry([]string{"microphone", "desktop"}), zap.NewNop())
	f.gw.SetAttendance(f.attendance)
	return f
}

func (f *gatewayFixture) connect(role string) *Client {
	c := newClient(f.gw, nil, auth.Identity{UserID: uuid.New(), DisplayName: "u-" + role, Role: role}, zap.NewNop())
	f.hub.Subscribe(UserTopic(c.Identity.UserID), c)
	return c
}

func (f *gatewayFixture) join(t *testing.T, c *Client) {
	t.Helper()
	f.gw.handleCommand(c, command(t, CmdJoinLecture, joinLecturePayload{LectureID: f.lecture.ID}))
	msg := nextMessage(t, c)
	require.Equal(t, EventLectureState, msg.Event)
}

func command(t *testing.T, event string, payload interface{}) WSMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return WSMessage{Event: event, Data: data}
}

func decodeError(t *testing.T, msg WSMessage) ErrorPayload {
	t.Helper()
	require.Equal(t, EventError, msg.Event)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	return p
}

func TestJoinLectureSendsStateAndNotifiesRoom(t *testing.T) {
	f := newGatewayFixture(t)
	other := f.connect("student")
	f.join(t, other)

	joiner := f.connect("student")
	f.gw.handleCommand(joiner, command(t, CmdJoinLecture, joinLecturePayload{LectureID: f.lecture.ID}))

	state := nextMessage(t, joiner)
	require.Equal(t, EventLectureState, state.Event)
	var sp LectureStatePayload
	require.NoError(t, json.Unmarshal(state.Data, &sp))
	assert.Len(t, sp.Participants, 2)

	joined := nextMessage(t, other)
	require.Equal(t, EventUserJoined, joined.Event)
	var pp PresencePayload
	require.NoError(t, json.Unmarshal(joined.Data, &pp))
	assert.Equal(t, joiner.Identity.UserID, pp.UserID)

	assertNoMessage(t, joiner) // joiner does not receive its own user-joined
	assert.True(t, f.rooms.has(f.lecture.ID, joiner.Identity.UserID))
	assert.Equal(t, 2, f.attendance.joins)
}

func TestJoinUnknownLecture(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdJoinLecture, joinLecturePayload{LectureID: uuid.New()}))
	p := decodeError(t, nextMessage(t, c))
	assert.Equal(t, CodeRoomNotFound, p.Code)
}

func TestLeaveWithoutJoin(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, WSMessage{Event: CmdLeaveLecture})
	p := decodeError(t, nextMessage(t, c))
	assert.Equal(t, CodeNotInRoom, p.Code)
}

func TestSendMessageRequiresRoom(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdSendMessage, sendMessagePayload{Text: "hi"}))
	p := decodeError(t, nextMessage(t, c))
	assert.Equal(t, CodeNotInRoom, p.Code)
	assert.Equal(t, 0, f.chat.count())
}

func TestSendMessageBroadcastsAndPersists(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("student")
	b := f.connect("student")
	f.join(t, a)
	f.join(t, b)
	nextMessage(t, a) // user-joined for b

	f.gw.handleCommand(a, command(t, CmdSendMessage, sendMessagePayload{Text: "hello room"}))

	for _, c := range []*Client{a, b} {
		msg := nextMessage(t, c)
		require.Equal(t, EventNewMessage, msg.Event)
		var m models.ChatMessage
		require.NoError(t, json.Unmarshal(msg.Data, &m))
		assert.Equal(t, "hello room", m.Text)
		require.NotNil(t, m.AuthorID)
		assert.Equal(t, a.Identity.UserID, *m.AuthorID)
	}
	assert.Equal(t, 1, f.chat.count())
}

func TestStatusUpdateRejectedForNonInstructor(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect("student")
	watcher := f.connect("student")
	f.join(t, student)
	f.join(t, watcher)
	nextMessage(t, student) // user-joined for watcher

	f.gw.handleCommand(student, command(t, CmdUpdateLectureStatus, updateLectureStatusPayload{Status: "archived"}))

	p := decodeError(t, nextMessage(t, student))
	assert.Equal(t, CodeUnauthorized, p.Code)
	assert.Equal(t, 0, f.lectures.statusUpdates(), "rejected command must not persist")
	assertNoMessage(t, watcher)
	assert.Equal(t, models.LectureLive, f.lecture.Status)
}

func TestStatusUpdateByInstructorBroadcasts(t *testing.T) {
	f := newGatewayFixture(t)
	instructor := newClient(f.gw, nil, auth.Identity{UserID: f.instructor, DisplayName: "prof", Role: "instructor"}, zap.NewNop())
	f.hub.Subscribe(UserTopic(f.instructor), instructor)
	watcher := f.connect("student")
	f.join(t, instructor)
	f.join(t, watcher)
	nextMessage(t, instructor) // user-joined for watcher

	f.gw.handleCommand(instructor, command(t, CmdUpdateLectureStatus, updateLectureStatusPayload{Status: "recorded"}))

	for _, c := range []*Client{instructor, watcher} {
		msg := nextMessage(t, c)
		require.Equal(t, EventLectureStatusUpdated, msg.Event)
		var sp StatusPayload
		require.NoError(t, json.Unmarshal(msg.Data, &sp))
		assert.Equal(t, "recorded", sp.Status)
		assert.Equal(t, f.instructor, sp.UpdatedBy)
	}
	assert.Equal(t, 1, f.lectures.statusUpdates())
}

func TestStatusUpdateInvalidValue(t *testing.T) {
	f := newGatewayFixture(t)
	instructor := newClient(f.gw, nil, auth.Identity{UserID: f.instructor, Role: "instructor"}, zap.NewNop())
	f.join(t, instructor)

	f.gw.handleCommand(instructor, command(t, CmdUpdateLectureStatus, updateLectureStatusPayload{Status: "cancelled"}))
	p := decodeError(t, nextMessage(t, instructor))
	assert.Equal(t, CodeBadRequest, p.Code)
}

func TestTypingExcludesSender(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("student")
	b := f.connect("student")
	f.join(t, a)
	f.join(t, b)
	nextMessage(t, a) // user-joined for b

	f.gw.handleCommand(a, WSMessage{Event: CmdTypingStart})

	msg := nextMessage(t, b)
	require.Equal(t, EventUserTyping, msg.Event)
	var tp TypingPayload
	require.NoError(t, json.Unmarshal(msg.Data, &tp))
	assert.Equal(t, a.Identity.UserID, tp.UserID)
	assert.True(t, tp.Typing)
	assertNoMessage(t, a)
}

func TestSubtitleCreateRequiresRole(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect("student")
	f.join(t, student)

	f.gw.handleCommand(student, command(t, CmdCreateSubtitle, createSubtitlePayload{Text: "caption"}))
	p := decodeError(t, nextMessage(t, student))
	assert.Equal(t, CodeUnauthorized, p.Code)
	assert.Empty(t, f.subtitles.subs)
}

func TestSubtitleCreateBroadcasts(t *testing.T) {
	f := newGatewayFixture(t)
	instructor := newClient(f.gw, nil, auth.Identity{UserID: f.instructor, Role: "instructor"}, zap.NewNop())
	f.join(t, instructor)

	f.gw.handleCommand(instructor, command(t, CmdCreateSubtitle, createSubtitlePayload{
		Text: "welcome", Start: 0, End: 2.5, Language: "en",
	}))

	msg := nextMessage(t, instructor)
	require.Equal(t, EventSubtitleAdded, msg.Event)
	var s models.Subtitle
	require.NoError(t, json.Unmarshal(msg.Data, &s))
	assert.Equal(t, "welcome", s.Text)
	assert.False(t, s.IsAI)
	require.Len(t, f.subtitles.subs, 1)
	assert.Equal(t, f.lecture.ID, f.subtitles.subs[0].LectureID)
}

// A failed membership write still announces the departure, but without a
// participants list the room never actually had.
func TestLeaveStoreFailureOmitsParticipants(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("student")
	b := f.connect("student")
	f.join(t, a)
	f.join(t, b)
	nextMessage(t, a) // user-joined for b

	f.rooms.mu.Lock()
	f.rooms.leaveErr = errors.New("db down")
	f.rooms.mu.Unlock()

	f.gw.handleCommand(a, WSMessage{Event: CmdLeaveLecture})

	msg := nextMessage(t, b)
	require.Equal(t, EventUserLeft, msg.Event)
	var pp PresencePayload
	require.NoError(t, json.Unmarshal(msg.Data, &pp))
	assert.Equal(t, a.Identity.UserID, pp.UserID)
	assert.Nil(t, pp.Participants, "no membership snapshot when the store write failed")
	assert.True(t, f.rooms.has(f.lecture.ID, a.Identity.UserID))
}

func TestDisconnectActsAsLeave(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("student")
	b := f.connect("student")
	f.join(t, a)
	f.join(t, b)
	nextMessage(t, a) // user-joined for b

	f.gw.disconnect(a)

	msg := nextMessage(t, b)
	require.Equal(t, EventUserLeft, msg.Event)
	var pp PresencePayload
	require.NoError(t, json.Unmarshal(msg.Data, &pp))
	assert.Equal(t, a.Identity.UserID, pp.UserID)

	assert.False(t, f.rooms.has(f.lecture.ID, a.Identity.UserID))
	assert.Equal(t, 1, f.attendance.leaves)

	// Idempotent: a second disconnect does nothing.
	f.gw.disconnect(a)
	assertNoMessage(t, b)
	assert.Equal(t, 1, f.rooms.leaves)
}

func TestPrivateTranscriptionLifecycle(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdStartTranscription, startTranscriptionPayload{SourceID: "microphone"}))
	started := nextMessage(t, c)
	require.Equal(t, EventTranscriptionStarted, started.Event)
	var sp TranscriptionStatePayload
	require.NoError(t, json.Unmarshal(started.Data, &sp))
	assert.Equal(t, "microphone", sp.SourceID)

	chunk := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	f.gw.handleCommand(c, command(t, CmdAudioChunk, audioChunkPayload{Data: chunk, MimeType: "audio/wav"}))

	require.Eventually(t, func() bool { return f.transcriber.appendCount() == 1 }, time.Second, time.Millisecond)
	f.transcriber.mu.Lock()
	assert.Equal(t, []byte("pcm-bytes"), f.transcriber.appended[0].Data)
	assert.Equal(t, "audio/wav", f.transcriber.appended[0].MimeType)
	f.transcriber.mu.Unlock()

	f.gw.handleCommand(c, WSMessage{Event: CmdStopTranscription})
	stopped := nextMessage(t, c)
	require.Equal(t, EventTranscriptionStopped, stopped.Event)
	assert.Equal(t, 1, f.transcriber.stopCount())
}

func TestBroadcastTranscriptionRequiresInstructor(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect("student")
	f.join(t, student)

	f.gw.handleCommand(student, command(t, CmdStartTranscription, startTranscriptionPayload{Broadcast: true}))
	p := decodeError(t, nextMessage(t, student))
	assert.Equal(t, CodeUnauthorized, p.Code)
}

func TestStartTranscriptionUnknownSource(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdStartTranscription, startTranscriptionPayload{SourceID: "webcam"}))
	p := decodeError(t, nextMessage(t, c))
	assert.Equal(t, CodeCaptureUnavailable, p.Code)
}

func TestAudioChunkWithoutSession(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdAudioChunk, audioChunkPayload{Data: "aGVsbG8="}))
	p := decodeError(t, nextMessage(t, c))
	assert.Equal(t, CodeBadRequest, p.Code)
}

func TestDisconnectStopsTranscription(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.connect("student")

	f.gw.handleCommand(c, command(t, CmdStartTranscription, startTranscriptionPayload{}))
	require.Equal(t, EventTranscriptionStarted, nextMessage(t, c).Event)

	f.gw.disconnect(c)
	assert.Equal(t, 1, f.transcriber.stopCount())
}
