package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type LandingPageVersion struct {
	ID        int64
	Slug      string
	Version   int
	Content   string
	TaskID    string
	CreatedAt time.Time
}

// CreateLandingPageVersion stores content as the next version of slug.
func (s *Store) CreateLandingPageVersion(ctx context.Context, slug, content, taskID string) (*LandingPageVersion, error) {
	now := s.timestamp()
	var created LandingPageVersion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var version int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM landing_page_versions WHERE slug = ?`, slug).Scan(&version); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO landing_page_versions (slug, version, content, task_id, created_at)
VALUES (?, ?, ?, ?, ?)
`, slug, version, content, nullIfEmpty(taskID), now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created = LandingPageVersion{ID: id, Slug: slug, Version: version, Content: content, TaskID: taskID, CreatedAt: parseTime(now)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create landing page version %s: %w", slug, err)
	}
	return &created, nil
}

// ListLandingPageVersions returns every version of slug, newest first.
func (s *Store) ListLandingPageVersions(ctx context.Context, slug string) ([]LandingPageVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, slug, version, content, task_id, created_at
FROM landing_page_versions
WHERE slug = ?
ORDER BY version DESC
`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []LandingPageVersion{}
	for rows.Next() {
		var v LandingPageVersion
		var taskID sql.NullString
		var createdAt string
		if err := rows.Scan(&v.ID, &v.Slug, &v.Version, &v.Content, &taskID, &createdAt); err != nil {
			return nil, err
		}
		v.TaskID = taskID.String
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
