package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecturehall/backend/internal/models"
)

// Repository handles chat message persistence. Messages are append-only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new chat message.
func (r *Repository) Create(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (lecture_id, author_id, author_name, body, is_ai)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, m.LectureID, m.AuthorID, m.AuthorName, m.Text, m.IsAI).
		Scan(&m.ID, &m.CreatedAt)
}

// ListByLecture returns messages for a lecture in chronological order.
func (r *Repository) ListByLecture(ctx context.Context, lectureID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `SELECT id, lecture_id, author_id, author_name, body, is_ai, created_at
		FROM chat_messages WHERE lecture_id = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, lectureID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.LectureID, &m.AuthorID, &m.AuthorName, &m.Text, &m.IsAI, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
