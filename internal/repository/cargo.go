package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// CargoRepository 货物（器官）仓库
type CargoRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCargoRepository 创建货物仓库
func NewCargoRepository(db *sql.DB, logger *zap.Logger) *CargoRepository {
	return &CargoRepository{
		db:     db,
		logger: logger,
	}
}

const cargoColumns = `
	id, cargo_id, organ_type, blood_type, donor_id, recipient_id,
	donor_hospital, recipient_hospital,
	origin_lat, origin_lng, destination_lat, destination_lng,
	priority_level, status, preservation_time_limit, container_id,
	current_lat, current_lng, assigned_courier_id, assigned_operator_id,
	created_at, updated_at`

// scanCargo 扫描单行货物记录
func scanCargo(row interface{ Scan(...interface{}) error }) (*models.Cargo, error) {
	var c models.Cargo
	var containerID, courierID, operatorID sql.NullString
	var curLat, curLng sql.NullFloat64

	err := row.Scan(
		&c.ID, &c.CargoID, &c.OrganType, &c.BloodType, &c.DonorID, &c.RecipientID,
		&c.DonorHospital, &c.RecipientHospital,
		&c.OriginLat, &c.OriginLng, &c.DestinationLat, &c.DestinationLng,
		&c.PriorityLevel, &c.Status, &c.PreservationLimitMin, &containerID,
		&curLat, &curLng, &courierID, &operatorID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if containerID.Valid {
		c.ContainerID = &containerID.String
	}
	if courierID.Valid {
		c.AssignedCourierID = &courierID.String
	}
	if operatorID.Valid {
		c.AssignedOperatorID = &operatorID.String
	}
	if curLat.Valid {
		c.CurrentLat = &curLat.Float64
	}
	if curLng.Valid {
		c.CurrentLng = &curLng.Float64
	}

	return &c, nil
}

// GetCargo 根据 cargo_id 获取货物
func (r *CargoRepository) GetCargo(ctx context.Context, cargoID string) (*models.Cargo, error) {
	query := `SELECT` + cargoColumns + ` FROM cargo WHERE cargo_id = $1`

	cargo, err := scanCargo(r.db.QueryRowContext(ctx, query, cargoID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cargo %s: %w", cargoID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cargo: %w", err)
	}

	return cargo, nil
}

// ListCargo 获取全部货物（按创建时间倒序）
func (r *CargoRepository) ListCargo(ctx context.Context) ([]models.Cargo, error) {
	query := `SELECT` + cargoColumns + ` FROM cargo ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cargo: %w", err)
	}
	defer rows.Close()

	var result []models.Cargo
	for rows.Next() {
		c, err := scanCargo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cargo row: %w", err)
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

// CreateCargo 登记货物（器官取出确认时创建）
func (r *CargoRepository) CreateCargo(ctx context.Context, c *models.Cargo) error {
	if c.CargoID == "" {
		return fmt.Errorf("cargo_id is required: %w", models.ErrValidation)
	}
	if !models.ValidPriority(c.PriorityLevel) {
		return fmt.Errorf("invalid priority_level %q: %w", c.PriorityLevel, models.ErrValidation)
	}

	query := `
		INSERT INTO cargo (
			cargo_id, organ_type, blood_type, donor_id, recipient_id,
			donor_hospital, recipient_hospital,
			origin_lat, origin_lng, destination_lat, destination_lng,
			priority_level, status, preservation_time_limit
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		) RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		c.CargoID, c.OrganType, c.BloodType, c.DonorID, c.RecipientID,
		c.DonorHospital, c.RecipientHospital,
		c.OriginLat, c.OriginLng, c.DestinationLat, c.DestinationLng,
		c.PriorityLevel, models.CargoPending, c.PreservationLimitMin,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cargo %s already registered: %w", c.CargoID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create cargo: %w", err)
	}

	c.Status = models.CargoPending
	return nil
}

// UpdateContainer 容器指派/封装/解封（状态随之变化）
func (r *CargoRepository) UpdateContainer(ctx context.Context, cargoID, containerID string, status models.CargoStatus) error {
	query := `
		UPDATE cargo
		SET container_id = $2, status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE cargo_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, cargoID, containerID, status)
	if err != nil {
		return fmt.Errorf("failed to update cargo container: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cargo %s: %w", cargoID, models.ErrNotFound)
	}

	return nil
}

// UpdatePosition 同步货物当前坐标（仅 in_transit 状态）
// 来自遥测样本，不是状态转换
func (r *CargoRepository) UpdatePosition(ctx context.Context, cargoID string, lat, lng float64) error {
	query := `
		UPDATE cargo
		SET current_lat = $2, current_lng = $3, updated_at = CURRENT_TIMESTAMP
		WHERE cargo_id = $1 AND status = 'in_transit'
	`

	if _, err := r.db.ExecContext(ctx, query, cargoID, lat, lng); err != nil {
		return fmt.Errorf("failed to update cargo position: %w", err)
	}

	return nil
}
