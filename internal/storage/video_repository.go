package storage

import (
	"context"
	"database/sql"
	"time"

	"clipforge/internal/models"

	"github.com/google/uuid"
)

// VideoRepository is the data access layer for videos.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, owner_id, url, title, status, duration, file_path,
	audio_path, subtitle_path, created_at, updated_at`

// Create inserts a new video.
func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.New().String()
	}
	if video.Status == "" {
		video.Status = models.VideoStatusPending
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, owner_id, url, title, status, duration,
			file_path, audio_path, subtitle_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		video.ID, video.OwnerID, video.URL, video.Title, video.Status, video.Duration,
		video.FilePath, video.AudioPath, video.SubtitlePath, video.CreatedAt, video.UpdatedAt,
	)
	return err
}

// GetByID fetches a video by id.
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*models.Video, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	return scanVideo(row)
}

// ListByOwner returns the owner's videos, newest first.
func (r *VideoRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Video, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// UpdateStatus updates only the video status.
func (r *VideoRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Update persists mutable video fields set by the pipeline stages.
func (r *VideoRepository) Update(ctx context.Context, video *models.Video) error {
	video.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE videos
		SET title = ?, status = ?, duration = ?, file_path = ?,
		    audio_path = ?, subtitle_path = ?, updated_at = ?
		WHERE id = ?`,
		video.Title, video.Status, video.Duration, video.FilePath,
		video.AudioPath, video.SubtitlePath, video.UpdatedAt, video.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a video; tasks, logs and clips follow via cascade.
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.URL, &v.Title, &v.Status, &v.Duration,
		&v.FilePath, &v.AudioPath, &v.SubtitlePath, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
