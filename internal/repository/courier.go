package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// CourierRepository 无人机仓库
type CourierRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCourierRepository 创建无人机仓库
func NewCourierRepository(db *sql.DB, logger *zap.Logger) *CourierRepository {
	return &CourierRepository{
		db:     db,
		logger: logger,
	}
}

const courierColumns = `
	id, courier_id, model, manufacturer,
	max_payload_kg, max_range_km, max_flight_min,
	battery_capacity, current_battery, status,
	current_lat, current_lng, created_at, updated_at`

func scanCourier(row interface{ Scan(...interface{}) error }) (*models.Courier, error) {
	var c models.Courier
	var manufacturer sql.NullString
	var curLat, curLng sql.NullFloat64

	err := row.Scan(
		&c.ID, &c.CourierID, &c.Model, &manufacturer,
		&c.MaxPayloadKg, &c.MaxRangeKm, &c.MaxFlightMin,
		&c.BatteryCapacity, &c.CurrentBattery, &c.Status,
		&curLat, &curLng, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if manufacturer.Valid {
		c.Manufacturer = manufacturer.String
	}
	if curLat.Valid {
		c.CurrentLat = &curLat.Float64
	}
	if curLng.Valid {
		c.CurrentLng = &curLng.Float64
	}

	return &c, nil
}

// GetCourier 根据 courier_id 获取无人机
func (r *CourierRepository) GetCourier(ctx context.Context, courierID string) (*models.Courier, error) {
	query := `SELECT` + courierColumns + ` FROM couriers WHERE courier_id = $1`

	courier, err := scanCourier(r.db.QueryRowContext(ctx, query, courierID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("courier %s: %w", courierID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get courier: %w", err)
	}

	return courier, nil
}

// GetCourierByID 根据数据库代理键获取无人机
// 兼容旧版生产者只带数字主键的情况
func (r *CourierRepository) GetCourierByID(ctx context.Context, id int64) (*models.Courier, error) {
	query := `SELECT` + courierColumns + ` FROM couriers WHERE id = $1`

	courier, err := scanCourier(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("courier #%d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get courier: %w", err)
	}

	return courier, nil
}

// ListCouriers 获取全部无人机
func (r *CourierRepository) ListCouriers(ctx context.Context) ([]models.Courier, error) {
	query := `SELECT` + courierColumns + ` FROM couriers ORDER BY courier_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list couriers: %w", err)
	}
	defer rows.Close()

	var result []models.Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan courier row: %w", err)
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

// CreateCourier 登记无人机
func (r *CourierRepository) CreateCourier(ctx context.Context, c *models.Courier) error {
	if c.CourierID == "" {
		return fmt.Errorf("courier_id is required: %w", models.ErrValidation)
	}

	query := `
		INSERT INTO couriers (
			courier_id, model, manufacturer,
			max_payload_kg, max_range_km, max_flight_min,
			battery_capacity, current_battery, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		) RETURNING id, created_at, updated_at
	`

	status := c.Status
	if status == "" {
		status = models.CourierAvailable
	}

	err := r.db.QueryRowContext(ctx, query,
		c.CourierID, c.Model, c.Manufacturer,
		c.MaxPayloadKg, c.MaxRangeKm, c.MaxFlightMin,
		c.BatteryCapacity, c.CurrentBattery, status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("courier %s already registered: %w", c.CourierID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create courier: %w", err)
	}

	c.Status = status
	return nil
}

// UpdateTelemetry 同步无人机位置和电量（来自遥测样本）
func (r *CourierRepository) UpdateTelemetry(ctx context.Context, courierID string, lat, lng float64, battery *float64) error {
	query := `
		UPDATE couriers
		SET current_lat = $2, current_lng = $3,
		    current_battery = COALESCE($4, current_battery),
		    updated_at = CURRENT_TIMESTAMP
		WHERE courier_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, courierID, lat, lng, battery); err != nil {
		return fmt.Errorf("failed to update courier telemetry: %w", err)
	}

	return nil
}
