package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

// SessionResourceRepository binds rooms and virtual links to sessions.
// A session holds at most one binding.
type SessionResourceRepository struct {
	db *sqlx.DB
}

// NewSessionResourceRepository constructs the repository.
func NewSessionResourceRepository(db *sqlx.DB) *SessionResourceRepository {
	return &SessionResourceRepository{db: db}
}

func (r *SessionResourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindBySession returns the session's binding.
func (r *SessionResourceRepository) FindBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.SessionResource, error) {
	const query = `SELECT id, session_id, resource_id FROM session_resources WHERE session_id = $1`
	var binding models.SessionResource
	if err := sqlx.GetContext(ctx, r.exec(exec), &binding, query, sessionID); err != nil {
		return nil, err
	}
	return &binding, nil
}

// ReplaceForSession drops any existing binding and stores the new one.
func (r *SessionResourceRepository) ReplaceForSession(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error {
	target := r.exec(exec)
	if err := r.DeleteBySession(ctx, target, sessionID); err != nil {
		return err
	}
	const insertQuery = `INSERT INTO session_resources (id, session_id, resource_id) VALUES ($1, $2, $3)`
	if _, err := target.ExecContext(ctx, insertQuery, uuid.NewString(), sessionID, resourceID); err != nil {
		return fmt.Errorf("insert session resource: %w", err)
	}
	return nil
}

// DeleteBySession removes the session's binding if any.
func (r *SessionResourceRepository) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	const query = `DELETE FROM session_resources WHERE session_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete session resource: %w", err)
	}
	return nil
}
