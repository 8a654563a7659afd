package lectures

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturehall/backend/internal/models"
)

// ErrNotFound is returned when a lecture does not exist.
var ErrNotFound = errors.New("lecture not found")

// Repository handles lecture persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a lecture repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new lecture.
func (r *Repository) Create(ctx context.Context, l *models.Lecture) error {
	const q = `INSERT INTO lectures (title, description, instructor_id, status, starts_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, l.Title, l.Description, l.InstructorID, string(l.Status), l.StartsAt).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// GetByID returns a lecture by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lecture, error) {
	const q = `SELECT id, title, description, instructor_id, status, starts_at, created_at, updated_at
		FROM lectures WHERE id = $1`
	var l models.Lecture
	err := r.pool.QueryRow(ctx, q, id).Scan(&l.ID, &l.Title, &l.Description, &l.InstructorID, &l.Status, &l.StartsAt, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List returns all lectures, optionally filtered by instructor.
func (r *Repository) List(ctx context.Context, instructorID *uuid.UUID) ([]models.Lecture, error) {
	base := `SELECT id, title, description, instructor_id, status, starts_at, created_at, updated_at FROM lectures`
	var args []interface{}
	var cond string
	if instructorID != nil {
		cond = " WHERE instructor_id = $1"
		args = append(args, *instructorID)
	}
	rows, err := r.pool.Query(ctx, base+cond+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Lecture
	for rows.Next() {
		var l models.Lecture
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &l.InstructorID, &l.Status, &l.StartsAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// Update updates lecture fields (title, description, starts_at).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, title, description string, startsAt *time.Time) error {
	const q = `UPDATE lectures SET title = $1, description = $2, starts_at = COALESCE($3, starts_at), updated_at = NOW() WHERE id = $4`
	ct, err := r.pool.Exec(ctx, q, title, description, startsAt, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lecture lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.LectureStatus) error {
	const q = `UPDATE lectures SET status = $1, updated_at = NOW() WHERE id = $2`
	ct, err := r.pool.Exec(ctx, q, string(status), id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a lecture by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM lectures WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// AddParticipant records membership. The ON CONFLICT clause makes the
// operation an atomic, idempotent read-modify-write on the participant set.
func (r *Repository) AddParticipant(ctx context.Context, lectureID, userID uuid.UUID) error {
	const q = `INSERT INTO lecture_participants (lecture_id, user_id) VALUES ($1, $2)
		ON CONFLICT (lecture_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, lectureID, userID)
	return err
}

// RemoveParticipant removes membership. A no-op when absent.
func (r *Repository) RemoveParticipant(ctx context.Context, lectureID, userID uuid.UUID) error {
	const q = `DELETE FROM lecture_participants WHERE lecture_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, q, lectureID, userID)
	return err
}

// ListParticipants returns the user IDs currently joined to a lecture.
func (r *Repository) ListParticipants(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM lecture_participants WHERE lecture_id = $1`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearParticipants empties the participant set, used when a lecture ends.
func (r *Repository) ClearParticipants(ctx context.Context, lectureID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM lecture_participants WHERE lecture_id = $1`, lectureID)
	return err
}
