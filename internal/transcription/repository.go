package transcription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturehall/backend/internal/models"
)

// Repository persists transcription sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a transcription session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a new session in processing state.
func (r *Repository) CreateSession(ctx context.Context, s *models.TranscriptionSession) error {
	const q = `INSERT INTO transcription_sessions (lecture_id, owner_id, body, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, started_at`
	return r.pool.QueryRow(ctx, q, s.LectureID, s.OwnerID, s.Text, string(s.Status)).
		Scan(&s.ID, &s.StartedAt)
}

// GetSessionByID returns a session by ID.
func (r *Repository) GetSessionByID(ctx context.Context, id uuid.UUID) (*models.TranscriptionSession, error) {
	const q = `SELECT id, lecture_id, owner_id, body, status, last_error, export_key, started_at, ended_at
		FROM transcription_sessions WHERE id = $1`
	var s models.TranscriptionSession
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.LectureID, &s.OwnerID, &s.Text, &s.Status, &s.Error, &s.ExportKey, &s.StartedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSessionText stores the running transcript text.
func (r *Repository) UpdateSessionText(ctx context.Context, id uuid.UUID, text string) error {
	const q = `UPDATE transcription_sessions SET body = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, text, id)
	return err
}

// SetSessionError records the last non-fatal backend error.
func (r *Repository) SetSessionError(ctx context.Context, id uuid.UUID, msg string) error {
	const q = `UPDATE transcription_sessions SET last_error = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, msg, id)
	return err
}

// FinishSession sets the terminal status and end timestamp.
func (r *Repository) FinishSession(ctx context.Context, id uuid.UUID, status models.TranscriptionStatus) error {
	const q = `UPDATE transcription_sessions SET status = $1, ended_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, string(status), id)
	return err
}

// SetExportKey records the S3 object key of the exported transcript.
func (r *Repository) SetExportKey(ctx context.Context, id uuid.UUID, key string) error {
	const q = `UPDATE transcription_sessions SET export_key = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	return err
}
