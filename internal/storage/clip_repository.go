package storage

import (
	"context"
	"database/sql"
	"time"

	"clipforge/internal/models"

	"github.com/google/uuid"
)

// ClipRepository is the data access layer for clips.
type ClipRepository struct {
	db *DB
}

// NewClipRepository creates a new ClipRepository.
func NewClipRepository(db *DB) *ClipRepository {
	return &ClipRepository{db: db}
}

const clipColumns = `id, video_id, title, summary, reason, start_sec, end_sec,
	selected, status, file_path, created_at, updated_at`

// Create inserts a new clip.
func (r *ClipRepository) Create(ctx context.Context, clip *models.Clip) error {
	if clip.ID == "" {
		clip.ID = uuid.New().String()
	}
	if clip.Status == "" {
		clip.Status = models.ClipStatusSuggested
	}
	now := time.Now().UTC()
	clip.CreatedAt = now
	clip.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (id, video_id, title, summary, reason, start_sec, end_sec,
			selected, status, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.ID, clip.VideoID, clip.Title, clip.Summary, clip.Reason,
		clip.StartSec, clip.EndSec, boolToInt(clip.Selected), clip.Status,
		clip.FilePath, clip.CreatedAt, clip.UpdatedAt,
	)
	return err
}

// GetByID fetches a clip by id.
func (r *ClipRepository) GetByID(ctx context.Context, id string) (*models.Clip, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	return scanClip(row)
}

// ListByVideo returns a video's clips ordered by start time.
func (r *ClipRepository) ListByVideo(ctx context.Context, videoID string) ([]models.Clip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+clipColumns+` FROM clips
		WHERE video_id = ?
		ORDER BY start_sec ASC`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []models.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, *c)
	}
	return clips, rows.Err()
}

// SetSelected toggles whether the clip participates in the slice stage.
func (r *ClipRepository) SetSelected(ctx context.Context, id string, selected bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clips SET selected = ?, updated_at = ? WHERE id = ?`,
		boolToInt(selected), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSliced records the cut file for a clip.
func (r *ClipRepository) MarkSliced(ctx context.Context, id, filePath string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clips SET status = ?, file_path = ?, updated_at = ? WHERE id = ?`,
		models.ClipStatusSliced, filePath, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkExported flags clips of a video as exported.
func (r *ClipRepository) MarkExported(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clips SET status = ?, updated_at = ?
		WHERE video_id = ? AND status = ?`,
		models.ClipStatusExported, time.Now().UTC(), videoID, models.ClipStatusSliced)
	return err
}

// DeleteSuggestedByVideo removes clips that were never sliced, so a re-run
// of the analyze stage replaces stale suggestions without touching cut files.
func (r *ClipRepository) DeleteSuggestedByVideo(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM clips WHERE video_id = ? AND status = ?`,
		videoID, models.ClipStatusSuggested)
	return err
}

// DeleteByVideo removes all clips for a video.
func (r *ClipRepository) DeleteByVideo(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM clips WHERE video_id = ?`, videoID)
	return err
}

func scanClip(row rowScanner) (*models.Clip, error) {
	var c models.Clip
	var selected int64
	err := row.Scan(&c.ID, &c.VideoID, &c.Title, &c.Summary, &c.Reason,
		&c.StartSec, &c.EndSec, &selected, &c.Status, &c.FilePath,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Selected = selected != 0
	return &c, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
