package subtitles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturehall/backend/internal/models"
)

// ErrNotFound is returned when a subtitle does not exist.
var ErrNotFound = errors.New("subtitle not found")

// Repository handles subtitle persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a subtitle repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new subtitle segment.
func (r *Repository) Create(ctx context.Context, s *models.Subtitle) error {
	const q = `INSERT INTO subtitles (lecture_id, start_sec, end_sec, body, language, confidence, is_ai)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.LectureID, s.Start, s.End, s.Text, s.Language, s.Confidence, s.IsAI).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a subtitle by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subtitle, error) {
	const q = `SELECT id, lecture_id, start_sec, end_sec, body, language, confidence, is_ai, created_at, updated_at
		FROM subtitles WHERE id = $1`
	var s models.Subtitle
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.LectureID, &s.Start, &s.End, &s.Text, &s.Language, &s.Confidence, &s.IsAI, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update changes text and timing of an existing subtitle.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, text string, start, end float64) (*models.Subtitle, error) {
	const q = `UPDATE subtitles SET body = $1, start_sec = $2, end_sec = $3, updated_at = NOW() WHERE id = $4
		RETURNING id, lecture_id, start_sec, end_sec, body, language, confidence, is_ai, created_at, updated_at`
	var s models.Subtitle
	err := r.pool.QueryRow(ctx, q, text, start, end, id).
		Scan(&s.ID, &s.LectureID, &s.Start, &s.End, &s.Text, &s.Language, &s.Confidence, &s.IsAI, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByLecture returns subtitles for a lecture ordered by start offset.
func (r *Repository) ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.Subtitle, error) {
	const q = `SELECT id, lecture_id, start_sec, end_sec, body, language, confidence, is_ai, created_at, updated_at
		FROM subtitles WHERE lecture_id = $1 ORDER BY start_sec ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Subtitle
	for rows.Next() {
		var s models.Subtitle
		if err := rows.Scan(&s.ID, &s.LectureID, &s.Start, &s.End, &s.Text, &s.Language, &s.Confidence, &s.IsAI, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
