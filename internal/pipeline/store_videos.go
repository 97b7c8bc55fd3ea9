package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vigil/internal/sqliteutil"
)

// SaveVideo inserts a new video row. The caller supplies the ID; UploadedAt
// defaults to now when unset.
func (s *Store) SaveVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is required")
	}
	if video.ID == "" {
		return errors.New("video id is required")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	if video.UploadedAt.IsZero() {
		video.UploadedAt = time.Now().UTC()
	}
	if video.Status == "" {
		video.Status = VideoUploaded
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO videos (`+videoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		video.ID,
		video.OriginalName,
		video.SourcePath,
		video.SizeBytes,
		video.DurationSeconds,
		video.Format,
		string(video.Status),
		sqliteutil.NullableString(video.StatusMessage),
		sqliteutil.FormatTime(video.UploadedAt),
		sqliteutil.NullableTime(video.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// UpdateVideo persists every mutable column of the video row.
func (s *Store) UpdateVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is required")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	_, err := s.execWithRetry(ctx, `UPDATE videos
        SET original_name = ?, source_path = ?, size_bytes = ?, duration_seconds = ?, format = ?, status = ?, status_message = ?, processed_at = ?
        WHERE id = ?`,
		video.OriginalName,
		video.SourcePath,
		video.SizeBytes,
		video.DurationSeconds,
		video.Format,
		string(video.Status),
		sqliteutil.NullableString(video.StatusMessage),
		sqliteutil.NullableTime(video.ProcessedAt),
		video.ID,
	)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

// VideoByID returns the video with the given ID, or nil when absent.
func (s *Store) VideoByID(ctx context.Context, id string) (*Video, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// ListVideos returns videos newest first, optionally filtered by status.
func (s *Store) ListVideos(ctx context.Context, statuses ...VideoStatus) ([]*Video, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	query := `SELECT ` + videoColumns + ` FROM videos`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqliteutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY uploaded_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}
