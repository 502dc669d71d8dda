package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

// CatalogRepository reads branch-level time slots and bookable resources.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindTimeSlot returns a time slot.
func (r *CatalogRepository) FindTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	const query = `SELECT id, branch_id, name, start_time, end_time FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListTimeSlots returns the branch's time slots by start time.
func (r *CatalogRepository) ListTimeSlots(ctx context.Context, branchID string) ([]models.TimeSlot, error) {
	const query = `SELECT id, branch_id, name, start_time, end_time FROM time_slots WHERE branch_id = $1 ORDER BY start_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, branchID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindResource returns a resource.
func (r *CatalogRepository) FindResource(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, branch_id, code, name, resource_type, capacity FROM resources WHERE id = $1`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// ListResources returns the branch's resources, optionally restricted to types.
func (r *CatalogRepository) ListResources(ctx context.Context, branchID string, types []models.ResourceType) ([]models.Resource, error) {
	query := `SELECT id, branch_id, code, name, resource_type, capacity FROM resources WHERE branch_id = $1`
	args := []interface{}{branchID}
	if len(types) > 0 {
		values := make([]string, len(types))
		for i, t := range types {
			values[i] = string(t)
		}
		query += ` AND resource_type = ANY($2)`
		args = append(args, pq.Array(values))
	}
	query += ` ORDER BY code ASC`
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}
