package repository

import (
	"context"
	"errors"
	"fmt"

	"nearish-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemoryRepository handles database operations for memories
type MemoryRepository struct {
	db *pgxpool.Pool
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db *pgxpool.Pool) *MemoryRepository {
	return &MemoryRepository{db: db}
}

const memoryColumns = `id, identity_id, title, description, date, image_path, latitude, longitude, location_name, created_at`

// Create creates a new memory
func (r *MemoryRepository) Create(ctx context.Context, m *models.Memory) error {
	query := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		m.ID, m.IdentityID, m.Title, m.Description, m.Date,
		m.ImagePath, m.Latitude, m.Longitude, m.LocationName, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// GetByID retrieves a memory by ID
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE id = $1`
	var m models.Memory
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.IdentityID, &m.Title, &m.Description, &m.Date,
		&m.ImagePath, &m.Latitude, &m.Longitude, &m.LocationName, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return &m, nil
}

// ListByIdentities retrieves memories for a set of identities, newest first
func (r *MemoryRepository) ListByIdentities(ctx context.Context, identityIDs []string) ([]*models.Memory, error) {
	query := `
		SELECT ` + memoryColumns + ` FROM memories
		WHERE identity_id = ANY($1)
		ORDER BY date DESC
	`
	rows, err := r.db.Query(ctx, query, identityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var memories []*models.Memory
	for rows.Next() {
		var m models.Memory
		err := rows.Scan(
			&m.ID, &m.IdentityID, &m.Title, &m.Description, &m.Date,
			&m.ImagePath, &m.Latitude, &m.Longitude, &m.LocationName, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}

// Update persists changed memory fields
func (r *MemoryRepository) Update(ctx context.Context, m *models.Memory) error {
	query := `
		UPDATE memories
		SET title = $1, description = $2, date = $3, image_path = $4,
		    latitude = $5, longitude = $6, location_name = $7
		WHERE id = $8
	`
	result, err := r.db.Exec(ctx, query,
		m.Title, m.Description, m.Date, m.ImagePath,
		m.Latitude, m.Longitude, m.LocationName, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a memory by ID
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
