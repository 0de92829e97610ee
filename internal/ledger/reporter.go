package ledger

import (
	"context"
	"time"

	"github.com/ks-vishal/stot-ub/internal/models"

	"go.uber.org/zap"
)

// 异步上报的超时时间
const reportTimeout = 30 * time.Second

// ResultStore 账本记录结果的落库
type ResultStore interface {
	UpdateResult(ctx context.Context, entryID, txReference string, status models.LedgerStatus) error
}

// Reporter 本地事务提交后的异步账本上报
// 上报失败只降级不回滚: 记录status=failed和占位引用, 留待对账
type Reporter struct {
	recorder Recorder
	store    ResultStore
	logger   *zap.Logger
}

// NewReporter 创建异步上报器
func NewReporter(recorder Recorder, store ResultStore, logger *zap.Logger) *Reporter {
	return &Reporter{recorder: recorder, store: store, logger: logger}
}

// Submit 异步上报一条已落库的账本记录
func (r *Reporter) Submit(entry *models.LedgerEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		refs := EventRefs{OperatorID: entry.OperatorID}
		if entry.ShipmentID != nil {
			refs.ShipmentID = *entry.ShipmentID
		}
		if entry.CargoID != nil {
			refs.CargoID = *entry.CargoID
		}
		if entry.CourierID != nil {
			refs.CourierID = *entry.CourierID
		}

		receipt := r.recorder.Record(ctx, entry.EventKind, refs, entry.EventData)
		status := models.LedgerConfirmed
		if !receipt.Confirmed {
			status = models.LedgerFailed
		}

		if err := r.store.UpdateResult(ctx, entry.EntryID, receipt.Reference, status); err != nil {
			r.logger.Error("Failed to persist ledger record result",
				zap.String("entry_id", entry.EntryID),
				zap.Error(err))
		}
	}()
}
