package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
	"github.com/ngthanhbui/imageflow-be/shared/postgresql"
)

// Storage is the durable job store. It owns job lifetime: jobs are created
// by the dispatcher, transitioned exactly once to a terminal state by the
// status consumer, and never deleted here.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateJob inserts a new PENDING job row.
func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, owner_id, operation, payload,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.OwnerID,
		job.Operation,
		job.Payload,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("%w: failed to create job: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// GetJobByID fetches one job row.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `
		SELECT
			job_id, owner_id, operation, payload,
			status, result, error_message,
			created_at, updated_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: failed to get job: %v", domain.ErrStoreUnavailable, err)
	}

	return &job, nil
}

// MarkJobTerminal applies a terminal state to a PENDING job. The WHERE
// clause makes the first terminal write win: a second call for the same
// job matches no rows and is classified as ErrAlreadyTerminal (or
// ErrJobNotFound when the job never existed). Safe to call any number of
// times with any terminal state.
func (s *Storage) MarkJobTerminal(ctx context.Context, jobID string, state domain.JobState) error {
	if !state.Terminal() {
		return fmt.Errorf("%w: state %s is not terminal", domain.ErrValidation, state.Status())
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error_message = $3,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
	`

	result, _ := state.Result()
	reason, _ := state.Reason()

	res, err := s.db.ExecContext(ctx, query,
		state.Status(),
		nullIfEmpty(result),
		nullIfEmpty(reason),
		jobID,
		domain.JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update job status: %v", domain.ErrStoreUnavailable, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read rows affected: %v", domain.ErrStoreUnavailable, err)
	}

	if rows == 0 {
		// Either the job does not exist or it lost the race to an earlier
		// terminal write; look to tell the two apart.
		existing, getErr := s.GetJobByID(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if existing.Status != domain.JobStatusPending {
			return domain.ErrAlreadyTerminal
		}
		return fmt.Errorf("%w: terminal update matched no rows", domain.ErrStoreUnavailable)
	}

	return nil
}

// JobFilter narrows ListJobs. OwnerID is mandatory; listings are always
// scoped to one principal.
type JobFilter struct {
	OwnerID   string
	Operation string
	Status    string
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is a keyset pagination position over (created_at, job_id).
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 rows so the caller can detect a next
// page.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	if filter.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	query := `
		SELECT
			job_id, owner_id, operation, payload,
			status, result, error_message,
			created_at, updated_at, completed_at
		FROM jobs
		WHERE owner_id = $1
	`
	args := []interface{}{filter.OwnerID}
	argIdx := 2

	if filter.Operation != "" {
		query += fmt.Sprintf(" AND operation = $%d", argIdx)
		args = append(args, filter.Operation)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list jobs: %v", domain.ErrStoreUnavailable, err)
	}

	return jobs, nil
}

// CreateUser inserts a new user row.
func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (user_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("%w: failed to create user: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// GetUserByEmail fetches one user row by email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `
		SELECT user_id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`

	err := s.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: failed to get user: %v", domain.ErrStoreUnavailable, err)
	}

	return &user, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
