package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// ShipmentRepository 运输单仓库
// 状态机转换全部在单个事务内完成：运输单行、货物行、无人机行和
// 账本 write-intent 一起提交；行锁（SELECT ... FOR UPDATE）保证
// 同一运输单上的转换互斥，不同运输单之间完全并行
type ShipmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewShipmentRepository 创建运输单仓库
func NewShipmentRepository(db *sql.DB, logger *zap.Logger) *ShipmentRepository {
	return &ShipmentRepository{
		db:     db,
		logger: logger,
	}
}

const shipmentColumns = `
	id, shipment_id, cargo_id, courier_id, operator_id, status,
	start_lat, start_lng, end_lat, end_lng,
	estimated_duration, actual_duration,
	start_time, end_time, arrival_confirmed_at,
	distance_covered_km, average_speed_kmh, route_notes,
	created_at, updated_at`

func scanShipment(row interface{ Scan(...interface{}) error }) (*models.Shipment, error) {
	var s models.Shipment
	var endLat, endLng, distance, avgSpeed sql.NullFloat64
	var actualDuration sql.NullInt64
	var startTime, endTime, arrivalAt sql.NullTime
	var routeNotes sql.NullString

	err := row.Scan(
		&s.ID, &s.ShipmentID, &s.CargoID, &s.CourierID, &s.OperatorID, &s.Status,
		&s.StartLat, &s.StartLng, &endLat, &endLng,
		&s.EstimatedDuration, &actualDuration,
		&startTime, &endTime, &arrivalAt,
		&distance, &avgSpeed, &routeNotes,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endLat.Valid {
		s.EndLat = &endLat.Float64
	}
	if endLng.Valid {
		s.EndLng = &endLng.Float64
	}
	if actualDuration.Valid {
		d := int(actualDuration.Int64)
		s.ActualDuration = &d
	}
	if startTime.Valid {
		s.StartTime = &startTime.Time
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if arrivalAt.Valid {
		s.ArrivalConfirmedAt = &arrivalAt.Time
	}
	if distance.Valid {
		s.DistanceCoveredKm = &distance.Float64
	}
	if avgSpeed.Valid {
		s.AverageSpeedKmh = &avgSpeed.Float64
	}
	if routeNotes.Valid {
		s.RouteNotes = routeNotes.String
	}

	return &s, nil
}

// GetShipment 根据 shipment_id 获取运输单
func (r *ShipmentRepository) GetShipment(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	query := `SELECT` + shipmentColumns + ` FROM shipments WHERE shipment_id = $1`

	s, err := scanShipment(r.db.QueryRowContext(ctx, query, shipmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("shipment %s: %w", shipmentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}

	return s, nil
}

// ResolveShipment 解析遥测主题中的运输单标识
// 先按 shipment_id 查找，失败时回退为数字代理键（兼容旧版生产者）
func (r *ShipmentRepository) ResolveShipment(ctx context.Context, key string) (*models.Shipment, error) {
	s, err := r.GetShipment(ctx, key)
	if err == nil {
		return s, nil
	}

	id, convErr := strconv.ParseInt(key, 10, 64)
	if convErr != nil {
		return nil, err
	}

	query := `SELECT` + shipmentColumns + ` FROM shipments WHERE id = $1`
	s, err = scanShipment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("shipment %s: %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve shipment: %w", err)
	}

	return s, nil
}

// ListShipments 获取全部运输单（含货物/无人机摘要，按创建时间倒序）
func (r *ShipmentRepository) ListShipments(ctx context.Context) ([]models.ShipmentSummary, error) {
	query := `
		SELECT s.id, s.shipment_id, s.cargo_id, s.courier_id, s.operator_id, s.status,
		       s.start_lat, s.start_lng, s.end_lat, s.end_lng,
		       s.estimated_duration, s.actual_duration,
		       s.start_time, s.end_time, s.arrival_confirmed_at,
		       s.distance_covered_km, s.average_speed_kmh, s.route_notes,
		       s.created_at, s.updated_at,
		       c.organ_type, c.priority_level, c.status,
		       u.model, u.status
		FROM shipments s
		JOIN cargo c ON c.cargo_id = s.cargo_id
		JOIN couriers u ON u.courier_id = s.courier_id
		ORDER BY s.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	defer rows.Close()

	var result []models.ShipmentSummary
	for rows.Next() {
		var sum models.ShipmentSummary
		var endLat, endLng, distance, avgSpeed sql.NullFloat64
		var actualDuration sql.NullInt64
		var startTime, endTime, arrivalAt sql.NullTime
		var routeNotes sql.NullString

		err := rows.Scan(
			&sum.ID, &sum.ShipmentID, &sum.CargoID, &sum.CourierID, &sum.OperatorID, &sum.Status,
			&sum.StartLat, &sum.StartLng, &endLat, &endLng,
			&sum.EstimatedDuration, &actualDuration,
			&startTime, &endTime, &arrivalAt,
			&distance, &avgSpeed, &routeNotes,
			&sum.CreatedAt, &sum.UpdatedAt,
			&sum.OrganType, &sum.Priority, &sum.CargoStatus,
			&sum.CourierModel, &sum.CourierStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shipment row: %w", err)
		}

		if endLat.Valid {
			sum.EndLat = &endLat.Float64
		}
		if endLng.Valid {
			sum.EndLng = &endLng.Float64
		}
		if actualDuration.Valid {
			d := int(actualDuration.Int64)
			sum.ActualDuration = &d
		}
		if startTime.Valid {
			sum.StartTime = &startTime.Time
		}
		if endTime.Valid {
			sum.EndTime = &endTime.Time
		}
		if arrivalAt.Valid {
			sum.ArrivalConfirmedAt = &arrivalAt.Time
		}
		if distance.Valid {
			sum.DistanceCoveredKm = &distance.Float64
		}
		if avgSpeed.Valid {
			sum.AverageSpeedKmh = &avgSpeed.Float64
		}
		if routeNotes.Valid {
			sum.RouteNotes = routeNotes.String
		}

		result = append(result, sum)
	}

	return result, rows.Err()
}

// CreateShipment 创建运输单（pending）
// 在同一事务内校验货物/无人机没有挂在其他非终态运输单上，
// 并写入 shipment_created 账本 write-intent；此时不改变货物/无人机状态
func (r *ShipmentRepository) CreateShipment(ctx context.Context, s *models.Shipment, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// 排他性校验：Courier/Cargo 至多挂一个非终态运输单
	var busy bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shipments
			WHERE (cargo_id = $1 OR courier_id = $2)
			  AND status NOT IN ('completed', 'failed', 'cancelled')
		)
	`, s.CargoID, s.CourierID).Scan(&busy)
	if err != nil {
		return fmt.Errorf("failed to check active shipments: %w", err)
	}
	if busy {
		return fmt.Errorf("cargo %s or courier %s already attached to an active shipment: %w",
			s.CargoID, s.CourierID, models.ErrConflict)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO shipments (
			shipment_id, cargo_id, courier_id, operator_id, status,
			start_lat, start_lng, end_lat, end_lng, estimated_duration, route_notes
		) VALUES (
			$1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9, $10
		) RETURNING id, created_at, updated_at
	`,
		s.ShipmentID, s.CargoID, s.CourierID, s.OperatorID,
		s.StartLat, s.StartLng, s.EndLat, s.EndLng, s.EstimatedDuration, s.RouteNotes,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("shipment %s already exists: %w", s.ShipmentID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create shipment: %w", err)
	}
	s.Status = models.ShipmentPending

	if entry != nil {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// lockShipment 取运输单行锁（事务内）
// 保证同一运输单的转换互斥：并发调用只有一个成功，其余看到新状态
func lockShipment(ctx context.Context, tx *sql.Tx, shipmentID string) (*models.Shipment, error) {
	query := `SELECT` + shipmentColumns + ` FROM shipments WHERE shipment_id = $1 FOR UPDATE`

	s, err := scanShipment(tx.QueryRowContext(ctx, query, shipmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("shipment %s: %w", shipmentID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock shipment: %w", err)
	}

	return s, nil
}

// Start 启动运输：pending → in_transit
// 同时翻转 Courier 为 in_use、Cargo 为 in_transit
func (r *ShipmentRepository) Start(ctx context.Context, shipmentID string, entry *models.LedgerEntry) (*models.Shipment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := lockShipment(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}
	if s.Status != models.ShipmentPending {
		return nil, fmt.Errorf("shipment %s is %s, not pending: %w", shipmentID, s.Status, models.ErrInvalidState)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE shipments
		SET status = 'in_transit', start_time = $2, updated_at = CURRENT_TIMESTAMP
		WHERE shipment_id = $1
	`, shipmentID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start shipment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE couriers SET status = 'in_use', updated_at = CURRENT_TIMESTAMP
		WHERE courier_id = $1
	`, s.CourierID)
	if err != nil {
		return nil, fmt.Errorf("failed to flip courier to in_use: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cargo
		SET status = 'in_transit', assigned_courier_id = $2, assigned_operator_id = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE cargo_id = $1
	`, s.CargoID, s.CourierID, s.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to flip cargo to in_transit: %w", err)
	}

	if entry != nil {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit start: %w", err)
	}

	s.Status = models.ShipmentInTransit
	s.StartTime = &now
	return s, nil
}

// ConfirmArrival 确认到达：in_transit → arrived
// 已 arrived/completed 时幂等拒绝（Conflict）
func (r *ShipmentRepository) ConfirmArrival(ctx context.Context, shipmentID string, lat, lng float64, entry *models.LedgerEntry) (*models.Shipment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := lockShipment(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case models.ShipmentInTransit:
		// 允许
	case models.ShipmentArrived, models.ShipmentCompleted:
		return nil, fmt.Errorf("shipment %s already %s: %w", shipmentID, s.Status, models.ErrConflict)
	default:
		return nil, fmt.Errorf("shipment %s is %s, not in_transit: %w", shipmentID, s.Status, models.ErrInvalidState)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE shipments
		SET status = 'arrived', arrival_confirmed_at = $2,
		    end_lat = $3, end_lng = $4, updated_at = CURRENT_TIMESTAMP
		WHERE shipment_id = $1
	`, shipmentID, now, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm arrival: %w", err)
	}

	if entry != nil {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit arrival: %w", err)
	}

	s.Status = models.ShipmentArrived
	s.ArrivalConfirmedAt = &now
	s.EndLat = &lat
	s.EndLng = &lng
	return s, nil
}

// CompleteParams 完成运输的落地数据
type CompleteParams struct {
	EndLat            float64
	EndLng            float64
	DistanceCoveredKm *float64
	AverageSpeedKmh   *float64
}

// Complete 完成运输：{in_transit, arrived} → completed
// 到达确认是可选步骤，不强制先于完成；
// Cargo 翻转为 delivered 并落终点坐标，Courier 归还 available 并清空位置
func (r *ShipmentRepository) Complete(ctx context.Context, shipmentID string, p CompleteParams, entry *models.LedgerEntry) (*models.Shipment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := lockShipment(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case models.ShipmentInTransit, models.ShipmentArrived:
		// 允许
	case models.ShipmentCompleted, models.ShipmentFailed, models.ShipmentCancelled:
		return nil, fmt.Errorf("shipment %s already %s: %w", shipmentID, s.Status, models.ErrConflict)
	default:
		return nil, fmt.Errorf("shipment %s is %s, cannot complete: %w", shipmentID, s.Status, models.ErrInvalidState)
	}

	now := time.Now().UTC()
	var actualDuration *int
	if s.StartTime != nil {
		d := int(math.Round(now.Sub(*s.StartTime).Minutes()))
		actualDuration = &d
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shipments
		SET status = 'completed', end_time = $2, end_lat = $3, end_lng = $4,
		    actual_duration = $5, distance_covered_km = $6, average_speed_kmh = $7,
		    updated_at = CURRENT_TIMESTAMP
		WHERE shipment_id = $1
	`, shipmentID, now, p.EndLat, p.EndLng, actualDuration, p.DistanceCoveredKm, p.AverageSpeedKmh)
	if err != nil {
		return nil, fmt.Errorf("failed to complete shipment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cargo
		SET status = 'delivered', current_lat = $2, current_lng = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE cargo_id = $1
	`, s.CargoID, p.EndLat, p.EndLng)
	if err != nil {
		return nil, fmt.Errorf("failed to flip cargo to delivered: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE couriers
		SET status = 'available', current_lat = NULL, current_lng = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE courier_id = $1
	`, s.CourierID)
	if err != nil {
		return nil, fmt.Errorf("failed to release courier: %w", err)
	}

	if entry != nil {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	s.Status = models.ShipmentCompleted
	s.EndTime = &now
	s.ActualDuration = actualDuration
	s.EndLat = &p.EndLat
	s.EndLng = &p.EndLng
	return s, nil
}

// Abort 取消或失败：任意非终态 → cancelled/failed
// cancel 时 Cargo 回到可恢复的 pending；fail 时 Cargo 记 failed；
// 两种情况都归还 Courier
func (r *ShipmentRepository) Abort(ctx context.Context, shipmentID string, final models.ShipmentStatus, entry *models.LedgerEntry) (*models.Shipment, error) {
	if final != models.ShipmentCancelled && final != models.ShipmentFailed {
		return nil, fmt.Errorf("abort target must be cancelled or failed: %w", models.ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := lockShipment(ctx, tx, shipmentID)
	if err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, fmt.Errorf("shipment %s already %s: %w", shipmentID, s.Status, models.ErrConflict)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE shipments
		SET status = $2, end_time = $3, updated_at = CURRENT_TIMESTAMP
		WHERE shipment_id = $1
	`, shipmentID, final, now)
	if err != nil {
		return nil, fmt.Errorf("failed to abort shipment: %w", err)
	}

	cargoStatus := models.CargoPending
	if final == models.ShipmentFailed {
		cargoStatus = models.CargoFailed
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cargo
		SET status = $2, assigned_courier_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE cargo_id = $1
	`, s.CargoID, cargoStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to revert cargo: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE couriers
		SET status = 'available', current_lat = NULL, current_lng = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE courier_id = $1
	`, s.CourierID)
	if err != nil {
		return nil, fmt.Errorf("failed to release courier: %w", err)
	}

	if entry != nil {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit abort: %w", err)
	}

	s.Status = final
	s.EndTime = &now
	return s, nil
}

// DeletePending 硬删除仍处于 pending 的运输单
// 其他状态不可删除（不可变历史）
func (r *ShipmentRepository) DeletePending(ctx context.Context, shipmentID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM shipments WHERE shipment_id = $1 AND status = 'pending'
	`, shipmentID)
	if err != nil {
		return fmt.Errorf("failed to delete shipment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// 区分"不存在"和"状态不允许删除"
		if _, getErr := r.GetShipment(ctx, shipmentID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("shipment %s is not pending, cannot delete: %w", shipmentID, models.ErrConflict)
	}

	return nil
}
