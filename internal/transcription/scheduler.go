package transcription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/config"
	"github.com/lecturehall/backend/internal/models"
	"github.com/lecturehall/backend/pkg/queue"
)

var (
	// ErrSessionNotFound is returned for an unknown or already removed session.
	ErrSessionNotFound = errors.New("transcription session not found")
	// ErrSessionStopped is returned when appending audio after Stop.
	ErrSessionStopped = errors.New("transcription session stopped")
)

// Event names published by the scheduler.
const (
	EventTranscriptionUpdate = "transcription-update"
	EventSubtitleAdded       = "subtitle-added"
)

// SessionStore persists TranscriptionSession records. Satisfied by *Repository.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.TranscriptionSession) error
	UpdateSessionText(ctx context.Context, id uuid.UUID, text string) error
	SetSessionError(ctx context.Context, id uuid.UUID, msg string) error
	FinishSession(ctx context.Context, id uuid.UUID, status models.TranscriptionStatus) error
}

// SubtitleStore persists subtitle segments produced by transcription ticks.
// Satisfied by *subtitles.Repository.
type SubtitleStore interface {
	Create(ctx context.Context, s *models.Subtitle) error
}

// Publisher fans out events to a topic. Satisfied by *realtime.Hub.
type Publisher interface {
	Publish(topic, event string, payload interface{})
}

// Exporter enqueues transcript export jobs for completed sessions.
// Satisfied by *queue.Queue.
type Exporter interface {
	EnqueueTranscriptExport(ctx context.Context, payload queue.TranscriptExportPayload) error
}

// UpdatePayload is the body of a transcription-update event.
type UpdatePayload struct {
	SessionID uuid.UUID  `json:"session_id"`
	LectureID *uuid.UUID `json:"lecture_id,omitempty"`
	Text      string     `json:"text"`
	Segment   Result     `json:"segment"`
}

type sessionState int

const (
	stateRecording sessionState = iota
	stateStopped
)

type session struct {
	model  *models.TranscriptionSession
	topic  string
	lang   string
	buffer *Buffer
	cancel context.CancelFunc

	// inFlight enforces at most one transcription call per session.
	inFlight atomic.Bool

	mu     sync.Mutex // guards model text/error, state and offset
	state  sessionState
	offset float64 // running subtitle offset in seconds
}

// Scheduler owns the audio buffer and transcript accumulation of every
// active capture session. Each session runs a fixed-interval tick loop that
// drains buffered audio, invokes the backend and publishes the result.
// Ticks for different sessions run fully concurrently; ticks for the same
// session never overlap.
type Scheduler struct {
	cfg      config.TranscriptionConfig
	interval time.Duration
	backend  Backend
	policy   *Policy
	store    SessionStore
	subs     SubtitleStore
	pub      Publisher
	exporter Exporter
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewScheduler creates a transcription scheduler.
func NewScheduler(cfg config.TranscriptionConfig, backend Backend, policy *Policy, store SessionStore, subs SubtitleStore, pub Publisher, exporter Exporter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		interval: interval,
		backend:  backend,
		policy:   policy,
		store:    store,
		subs:     subs,
		pub:      pub,
		exporter: exporter,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Start creates a transcription session and begins its tick loop.
// lectureID is nil for private sessions; topic is the broadcast topic for
// transcript updates (the owning room's topic, or the owner's private topic).
func (s *Scheduler) Start(ctx context.Context, lectureID *uuid.UUID, ownerID uuid.UUID, topic, language string) (*models.TranscriptionSession, error) {
	model := &models.TranscriptionSession{
		LectureID: lectureID,
		OwnerID:   ownerID,
		Status:    models.TranscriptionProcessing,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateSession(ctx, model); err != nil {
		return nil, err
	}
	if language == "" {
		language = s.cfg.Language
	}

	// The tick loop outlives the request that started it.
	tickCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		model:  model,
		topic:  topic,
		lang:   language,
		buffer: NewBuffer(s.cfg.MaxAudioSeconds, s.cfg.SampleRate, s.cfg.Channels, s.cfg.BytesPerSample),
		cancel: cancel,
		state:  stateRecording,
	}

	s.mu.Lock()
	s.sessions[model.ID] = sess
	s.mu.Unlock()

	go s.run(tickCtx, sess)
	s.logger.Info("transcription session started",
		zap.String("session_id", model.ID.String()),
		zap.Duration("interval", s.interval))
	return snapshotModel(sess), nil
}

func (s *Scheduler) run(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, sess, s.cfg.MinAudioSeconds)
		}
	}
}

// Append adds captured audio to the session's buffer.
func (s *Scheduler) Append(sessionID uuid.UUID, seg Segment) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.mu.Lock()
	stopped := sess.state == stateStopped
	sess.mu.Unlock()
	if stopped {
		return ErrSessionStopped
	}
	sess.buffer.Append(seg)
	return nil
}

// Get returns a snapshot of the session record.
func (s *Scheduler) Get(sessionID uuid.UUID) (*models.TranscriptionSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return snapshotModel(sess), nil
}

// Stop cancels the session's timer, performs one final best-effort drain and
// marks the session completed. Further appends are rejected; a transcription
// call already in flight may still complete and its result is applied only
// if it lands before the session is marked completed.
func (s *Scheduler) Stop(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptionSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.cancel()

	// Final drain of whatever is left, skipped when a tick is in flight.
	s.tick(ctx, sess, 0)

	sess.mu.Lock()
	sess.state = stateStopped
	sess.model.Status = models.TranscriptionCompleted
	now := time.Now()
	sess.model.EndedAt = &now
	sess.mu.Unlock()

	if err := s.store.FinishSession(ctx, sessionID, models.TranscriptionCompleted); err != nil {
		s.logger.Error("failed to finish transcription session", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
	if s.exporter != nil {
		if err := s.exporter.EnqueueTranscriptExport(ctx, queue.TranscriptExportPayload{
			SessionID: sessionID,
			LectureID: sess.model.LectureID,
		}); err != nil {
			s.logger.Warn("failed to enqueue transcript export", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	}
	s.logger.Info("transcription session stopped", zap.String("session_id", sessionID.String()))
	return snapshotModel(sess), nil
}

// tick drains the buffer and transcribes once. A tick that finds another
// call in flight for the same session is a no-op.
func (s *Scheduler) tick(ctx context.Context, sess *session, minSeconds float64) {
	if !sess.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer sess.inFlight.Store(false)

	data, mimeType, ok := sess.buffer.DrainIfReady(minSeconds)
	if !ok {
		return
	}

	res, err := s.backend.Transcribe(ctx, data, mimeType)
	if err != nil {
		res, err = s.policy.Resolve(ctx, data, mimeType, err)
	}
	if err != nil {
		// Non-fatal: put the drained audio back so the next tick retries it
		// together with whatever accumulates meanwhile, and record the error
		// on the session.
		sess.buffer.Restore(data, mimeType)
		sess.mu.Lock()
		sess.model.Error = err.Error()
		id := sess.model.ID
		sess.mu.Unlock()
		if dbErr := s.store.SetSessionError(ctx, id, err.Error()); dbErr != nil {
			s.logger.Error("failed to record session error", zap.Error(dbErr), zap.String("session_id", id.String()))
		}
		s.logger.Warn("transcription tick failed", zap.Error(err), zap.String("session_id", id.String()))
		return
	}
	if res == nil || res.Text == "" {
		return
	}

	seconds := float64(len(data)) / float64(s.cfg.SampleRate*s.cfg.Channels*s.cfg.BytesPerSample)
	s.apply(ctx, sess, res, seconds)
}

// apply appends the result to the running transcript, persists it and
// publishes the update. Results arriving after the session is completed are
// discarded.
func (s *Scheduler) apply(ctx context.Context, sess *session, res *Result, seconds float64) {
	sess.mu.Lock()
	if sess.state == stateStopped {
		sess.mu.Unlock()
		return
	}
	if sess.model.Text == "" {
		sess.model.Text = res.Text
	} else {
		sess.model.Text += " " + res.Text
	}
	text := sess.model.Text
	start := sess.offset
	end := start + seconds
	sess.offset = end
	id := sess.model.ID
	lectureID := sess.model.LectureID
	sess.mu.Unlock()

	if err := s.store.UpdateSessionText(ctx, id, text); err != nil {
		s.logger.Error("failed to persist transcript", zap.Error(err), zap.String("session_id", id.String()))
	}

	if lectureID != nil && s.subs != nil {
		sub := &models.Subtitle{
			LectureID:  *lectureID,
			Start:      start,
			End:        end,
			Text:       res.Text,
			Language:   sess.lang,
			Confidence: res.Confidence,
			IsAI:       true,
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			s.logger.Error("failed to persist subtitle", zap.Error(err), zap.String("session_id", id.String()))
		} else if s.pub != nil {
			s.pub.Publish(sess.topic, EventSubtitleAdded, sub)
		}
	}

	if s.pub != nil {
		s.pub.Publish(sess.topic, EventTranscriptionUpdate, UpdatePayload{
			SessionID: id,
			LectureID: lectureID,
			Text:      text,
			Segment:   *res,
		})
	}
}

func snapshotModel(sess *session) *models.TranscriptionSession {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	m := *sess.model
	return &m
}
