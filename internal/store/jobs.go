// ABOUTME: SQLite implementation for job listings
// ABOUTME: Jobs are created, toggled and exported through the admin token API

package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertJob creates a job or replaces the fields of an existing one with the same slug.
// CreatedAt is kept from the first insert.
func (s *SQLiteStore) UpsertJob(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	query := `
		INSERT INTO jobs (slug, title, summary, description, location, market, seniority, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			description = excluded.description,
			location = excluded.location,
			market = excluded.market,
			seniority = excluded.seniority,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		job.Slug,
		job.Title,
		nullString(job.Summary),
		nullString(job.Description),
		nullString(job.Location),
		nullString(job.Market),
		nullString(job.Seniority),
		boolToInt(job.Active),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting job: %w", err)
	}

	s.logger.Debug("upserted job", "slug", job.Slug, "active", job.Active)
	return nil
}

// SetJobActive publishes or unpublishes a job.
func (s *SQLiteStore) SetJobActive(ctx context.Context, slug string, active bool, at time.Time) error {
	query := `UPDATE jobs SET active = ?, updated_at = ? WHERE slug = ?`

	result, err := s.db.ExecContext(ctx, query, boolToInt(active), formatTime(at), slug)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs ordered by slug, optionally only the active ones.
func (s *SQLiteStore) ListJobs(ctx context.Context, activeOnly bool) ([]*Job, error) {
	query := `
		SELECT slug, title, summary, description, location, market, seniority, active, created_at, updated_at
		FROM jobs
		WHERE (? = 0 OR active = 1)
		ORDER BY slug
	`

	rows, err := s.db.QueryContext(ctx, query, boolToInt(activeOnly))
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// CountActiveJobs returns the number of published jobs.
func (s *SQLiteStore) CountActiveJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var summary, description, location, market, seniority *string
	var active int
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&job.Slug,
		&job.Title,
		&summary,
		&description,
		&location,
		&market,
		&seniority,
		&active,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Summary = deref(summary)
	job.Description = deref(description)
	job.Location = deref(location)
	job.Market = deref(market)
	job.Seniority = deref(seniority)
	job.Active = active == 1

	job.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	job.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
