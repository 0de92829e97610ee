package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// LedgerRepository 审计账本仓库
// 只追加；每个改变状态的动作一行
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository 创建账本仓库
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// execer 兼容 *sql.DB 和 *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertLedgerEntry 写入账本记录
// 状态机转换在自己的事务内调用（write-intent 与本地转换同事务提交）
func insertLedgerEntry(ctx context.Context, e execer, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			entry_id, event_kind, shipment_id, cargo_id, courier_id,
			operator_id, tx_reference, event_data, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	eventData := entry.EventData
	if len(eventData) == 0 {
		eventData = []byte("{}")
	}

	status := entry.Status
	if status == "" {
		status = models.LedgerPending
	}

	_, err := e.ExecContext(ctx, query,
		entry.EntryID, entry.EventKind, entry.ShipmentID, entry.CargoID, entry.CourierID,
		entry.OperatorID, entry.TxReference, eventData, status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// CreateEntry 写入账本记录（独立事务）
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, r.db, entry)
}

// CreateEntryTx 在既有事务内写入账本记录
func (r *LedgerRepository) CreateEntryTx(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, tx, entry)
}

// UpdateResult 回填账本网关结果（异步确认，不阻塞本地转换）
func (r *LedgerRepository) UpdateResult(ctx context.Context, entryID, txReference string, status models.LedgerStatus) error {
	query := `
		UPDATE ledger_entries
		SET tx_reference = $2, status = $3,
		    confirmed_at = CASE WHEN $3 = 'confirmed' THEN CURRENT_TIMESTAMP ELSE confirmed_at END
		WHERE entry_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, entryID, txReference, status)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ledger entry %s: %w", entryID, models.ErrNotFound)
	}

	return nil
}

// QueryEntries 账本查询（监管链重建）
// 默认按创建时间升序（时序监管链）；Descending 用于最近优先的审计视图
func (r *LedgerRepository) QueryEntries(ctx context.Context, filters models.LedgerFilters) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, entry_id, event_kind, shipment_id, cargo_id, courier_id,
		       operator_id, tx_reference, event_data, status, confirmed_at, created_at
		FROM ledger_entries
		WHERE 1=1
	`
	args := []interface{}{}
	argN := 1

	if filters.ShipmentID != nil {
		query += fmt.Sprintf(" AND shipment_id = $%d", argN)
		args = append(args, *filters.ShipmentID)
		argN++
	}
	if filters.CargoID != nil {
		query += fmt.Sprintf(" AND cargo_id = $%d", argN)
		args = append(args, *filters.CargoID)
		argN++
	}
	if filters.EventKind != nil {
		query += fmt.Sprintf(" AND event_kind = $%d", argN)
		args = append(args, *filters.EventKind)
		argN++
	}

	if filters.Descending {
		query += " ORDER BY created_at DESC"
	} else {
		query += " ORDER BY created_at ASC"
	}

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var shipmentID, cargoID, courierID sql.NullString
		var confirmedAt sql.NullTime

		err := rows.Scan(
			&e.ID, &e.EntryID, &e.EventKind, &shipmentID, &cargoID, &courierID,
			&e.OperatorID, &e.TxReference, &e.EventData, &e.Status, &confirmedAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		if shipmentID.Valid {
			e.ShipmentID = &shipmentID.String
		}
		if cargoID.Valid {
			e.CargoID = &cargoID.String
		}
		if courierID.Valid {
			e.CourierID = &courierID.String
		}
		if confirmedAt.Valid {
			e.ConfirmedAt = &confirmedAt.Time
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
