package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// TelemetryRepository 遥测样本仓库
// 只追加；自然键 (shipment_id, ts) 唯一，重复投递按成功的 no-op 处理
type TelemetryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTelemetryRepository 创建遥测仓库
func NewTelemetryRepository(db *sql.DB, logger *zap.Logger) *TelemetryRepository {
	return &TelemetryRepository{
		db:     db,
		logger: logger,
	}
}

// InsertSample 写入样本
// 返回 (stored=false, nil) 表示自然键冲突：幂等重投递，不是错误
func (r *TelemetryRepository) InsertSample(ctx context.Context, s *models.TelemetrySample) (bool, error) {
	query := `
		INSERT INTO telemetry_samples (
			shipment_id, cargo_id, courier_id, ts,
			temperature, humidity, pressure, altitude,
			latitude, longitude, speed, battery_level,
			signal_strength, vibration, light
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		s.ShipmentID, s.CargoID, s.CourierID, s.Timestamp,
		s.Temperature, s.Humidity, s.Pressure, s.Altitude,
		s.Latitude, s.Longitude, s.Speed, s.BatteryLevel,
		s.SignalStrength, s.Vibration, s.Light,
	).Scan(&s.ID, &s.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("Duplicate telemetry sample ignored",
				zap.String("shipment_id", s.ShipmentID),
				zap.Time("ts", s.Timestamp),
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to insert telemetry sample: %w", err)
	}

	return true, nil
}

// GetLatestSample 获取运输单最新样本
func (r *TelemetryRepository) GetLatestSample(ctx context.Context, shipmentID string) (*models.TelemetrySample, error) {
	query := telemetrySelect + `
		WHERE shipment_id = $1
		ORDER BY ts DESC
		LIMIT 1
	`

	s, err := scanSample(r.db.QueryRowContext(ctx, query, shipmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no telemetry for shipment %s: %w", shipmentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}

	return s, nil
}

// HistoryFilters 历史样本查询条件
type HistoryFilters struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// GetHistory 获取运输单历史样本（按时间升序）
func (r *TelemetryRepository) GetHistory(ctx context.Context, shipmentID string, filters HistoryFilters) ([]models.TelemetrySample, error) {
	query := telemetrySelect + ` WHERE shipment_id = $1`
	args := []interface{}{shipmentID}
	argN := 2

	if filters.From != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argN)
		args = append(args, *filters.From)
		argN++
	}
	if filters.To != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argN)
		args = append(args, *filters.To)
		argN++
	}

	query += " ORDER BY ts ASC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get telemetry history: %w", err)
	}
	defer rows.Close()

	var samples []models.TelemetrySample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry row: %w", err)
		}
		samples = append(samples, *s)
	}

	return samples, rows.Err()
}

const telemetrySelect = `
	SELECT id, shipment_id, cargo_id, courier_id, ts,
	       temperature, humidity, pressure, altitude,
	       latitude, longitude, speed, battery_level,
	       signal_strength, vibration, light, created_at
	FROM telemetry_samples`

func scanSample(row interface{ Scan(...interface{}) error }) (*models.TelemetrySample, error) {
	var s models.TelemetrySample
	var temperature, humidity, pressure, speed, battery, vibration sql.NullFloat64
	var signal, light sql.NullInt64

	err := row.Scan(
		&s.ID, &s.ShipmentID, &s.CargoID, &s.CourierID, &s.Timestamp,
		&temperature, &humidity, &pressure, &s.Altitude,
		&s.Latitude, &s.Longitude, &speed, &battery,
		&signal, &vibration, &light, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if temperature.Valid {
		s.Temperature = &temperature.Float64
	}
	if humidity.Valid {
		s.Humidity = &humidity.Float64
	}
	if pressure.Valid {
		s.Pressure = &pressure.Float64
	}
	if speed.Valid {
		s.Speed = &speed.Float64
	}
	if battery.Valid {
		s.BatteryLevel = &battery.Float64
	}
	if vibration.Valid {
		s.Vibration = &vibration.Float64
	}
	if signal.Valid {
		v := int(signal.Int64)
		s.SignalStrength = &v
	}
	if light.Valid {
		v := int(light.Int64)
		s.Light = &v
	}

	return &s, nil
}
