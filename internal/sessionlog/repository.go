package sessionlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturehall/backend/internal/models"
)

// Repository persists attendance spans. One row per join/leave pair.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin opens an attendance span and returns its row ID.
func (r *Repository) LogJoin(ctx context.Context, lectureID, userID uuid.UUID) (uuid.UUID, error) {
	const q = `INSERT INTO attendance_logs (lecture_id, user_id) VALUES ($1, $2) RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, lectureID, userID).Scan(&id)
	return id, err
}

// LogLeave closes an attendance span. A no-op when the span is already closed.
func (r *Repository) LogLeave(ctx context.Context, logID uuid.UUID) error {
	const q = `UPDATE attendance_logs
		SET left_at = NOW(),
		    present_seconds = EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT
		WHERE id = $1 AND left_at IS NULL`
	_, err := r.pool.Exec(ctx, q, logID)
	return err
}

// ListByLecture returns attendance spans for a lecture, newest first.
func (r *Repository) ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.AttendanceLog, error) {
	const q = `SELECT id, lecture_id, user_id, joined_at, left_at, present_seconds
		FROM attendance_logs WHERE lecture_id = $1 ORDER BY joined_at DESC`
	rows, err := r.pool.Query(ctx, q, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendanceLog
	for rows.Next() {
		var l models.AttendanceLog
		if err := rows.Scan(&l.ID, &l.LectureID, &l.UserID, &l.JoinedAt, &l.LeftAt, &l.PresentSeconds); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
