package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 报警仓库
// 去重键 (shipment_id, category, sample_ts)：同一样本对同一类别
// 只产生一条报警；已处理的报警不抑制新样本时间戳的再次触发
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `
	id, alert_id, category, severity, shipment_id, cargo_id, courier_id,
	message, sample_ts, sensor_data, is_resolved, resolved_by, resolved_at,
	notes, created_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*models.Alert, error) {
	var a models.Alert
	var resolvedBy, notes sql.NullString
	var resolvedAt sql.NullTime
	var sensorData []byte

	err := row.Scan(
		&a.ID, &a.AlertID, &a.Category, &a.Severity, &a.ShipmentID, &a.CargoID, &a.CourierID,
		&a.Message, &a.SampleTS, &sensorData, &a.IsResolved, &resolvedBy, &resolvedAt,
		&notes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sensorData) > 0 {
		a.SensorData = sensorData
	} else {
		a.SensorData = json.RawMessage("{}")
	}
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.String
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if notes.Valid {
		a.Notes = &notes.String
	}

	return &a, nil
}

// GetAlert 根据 alert_id 获取报警
func (r *AlertRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE alert_id = $1`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return a, nil
}

// ListAlerts 条件查询报警（按创建时间倒序）
func (r *AlertRepository) ListAlerts(ctx context.Context, filters models.AlertFilters) ([]models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filters.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argN)
		args = append(args, *filters.Severity)
		argN++
	}
	if filters.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argN)
		args = append(args, *filters.Category)
		argN++
	}
	if filters.Resolved != nil {
		query += fmt.Sprintf(" AND is_resolved = $%d", argN)
		args = append(args, *filters.Resolved)
		argN++
	}
	if filters.ShipmentID != nil {
		query += fmt.Sprintf(" AND shipment_id = $%d", argN)
		args = append(args, *filters.ShipmentID)
		argN++
	}

	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}

	return alerts, rows.Err()
}

// ExistsForSample 检查去重键是否已有报警
func (r *AlertRepository) ExistsForSample(ctx context.Context, shipmentID string, category models.AlertCategory, sampleTS time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE shipment_id = $1 AND category = $2 AND sample_ts = $3
		)
	`, shipmentID, category, sampleTS).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check alert existence: %w", err)
	}

	return exists, nil
}

// CreateAlert 创建报警
// 去重键冲突返回 (created=false, nil)：并发重投递下的无害竞争
func (r *AlertRepository) CreateAlert(ctx context.Context, a *models.Alert) (bool, error) {
	sensorData := a.SensorData
	if len(sensorData) == 0 {
		sensorData = []byte("{}")
	}

	query := `
		INSERT INTO alerts (
			alert_id, category, severity, shipment_id, cargo_id, courier_id,
			message, sample_ts, sensor_data
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		) RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		a.AlertID, a.Category, a.Severity, a.ShipmentID, a.CargoID, a.CourierID,
		a.Message, a.SampleTS, sensorData,
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug("Duplicate alert suppressed",
				zap.String("shipment_id", a.ShipmentID),
				zap.String("category", string(a.Category)),
				zap.Time("sample_ts", a.SampleTS),
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to create alert: %w", err)
	}

	return true, nil
}

// Resolve 处理报警
// 已处理时返回 Conflict；resolved_at/resolved_by 与 is_resolved 同步落库
func (r *AlertRepository) Resolve(ctx context.Context, alertID, operatorID string, notes string) (*models.Alert, error) {
	var notesArg interface{}
	if notes != "" {
		notesArg = notes
	}

	query := `
		UPDATE alerts
		SET is_resolved = TRUE, resolved_by = $2, resolved_at = CURRENT_TIMESTAMP,
		    notes = COALESCE($3, notes)
		WHERE alert_id = $1 AND is_resolved = FALSE
		RETURNING` + alertColumns

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, operatorID, notesArg))
	if err != nil {
		if err == sql.ErrNoRows {
			// 区分"不存在"和"已处理"
			if _, getErr := r.GetAlert(ctx, alertID); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("alert %s already resolved: %w", alertID, models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	return a, nil
}

// ResolveAll 批量处理报警，返回处理条数
func (r *AlertRepository) ResolveAll(ctx context.Context, filters models.AlertFilters, operatorID string) (int64, error) {
	query := `
		UPDATE alerts
		SET is_resolved = TRUE, resolved_by = $1, resolved_at = CURRENT_TIMESTAMP
		WHERE is_resolved = FALSE
	`
	args := []interface{}{operatorID}
	argN := 2

	if filters.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argN)
		args = append(args, *filters.Severity)
		argN++
	}
	if filters.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argN)
		args = append(args, *filters.Category)
		argN++
	}
	if filters.ShipmentID != nil {
		query += fmt.Sprintf(" AND shipment_id = $%d", argN)
		args = append(args, *filters.ShipmentID)
		argN++
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk resolve alerts: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
