package model

import (
	"database/sql"
	"time"
)

// Job is a row of the jobs table.
type Job struct {
	JobID        string         `db:"job_id"`
	OwnerID      string         `db:"owner_id"`
	Operation    string         `db:"operation"`
	Payload      string         `db:"payload"`
	Status       string         `db:"status"`
	Result       sql.NullString `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
}

// User is a row of the users table.
type User struct {
	UserID       string    `db:"user_id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}
