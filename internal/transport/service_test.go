package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ks-vishal/stot-ub/internal/ledger"
	"github.com/ks-vishal/stot-ub/internal/models"
	"github.com/ks-vishal/stot-ub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeShipmentStore struct {
	shipments map[string]*models.Shipment
	created   []*models.Shipment
	entries   []*models.LedgerEntry
	aborted   []models.ShipmentStatus
	deleted   []string
}

func (f *fakeShipmentStore) GetShipment(_ context.Context, shipmentID string) (*models.Shipment, error) {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return nil, fmt.Errorf("shipment %s: %w", shipmentID, models.ErrNotFound)
	}
	return s, nil
}

func (f *fakeShipmentStore) ListShipments(_ context.Context) ([]models.ShipmentSummary, error) {
	out := make([]models.ShipmentSummary, 0, len(f.shipments))
	for _, s := range f.shipments {
		out = append(out, models.ShipmentSummary{Shipment: *s})
	}
	return out, nil
}

func (f *fakeShipmentStore) CreateShipment(_ context.Context, s *models.Shipment, entry *models.LedgerEntry) error {
	if f.shipments == nil {
		f.shipments = make(map[string]*models.Shipment)
	}
	f.shipments[s.ShipmentID] = s
	f.created = append(f.created, s)
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeShipmentStore) Start(_ context.Context, shipmentID string, entry *models.LedgerEntry) (*models.Shipment, error) {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.Status != models.ShipmentPending {
		return nil, fmt.Errorf("cannot start from %s: %w", s.Status, models.ErrInvalidState)
	}
	now := time.Now().UTC()
	s.Status = models.ShipmentInTransit
	s.StartTime = &now
	f.entries = append(f.entries, entry)
	return s, nil
}

func (f *fakeShipmentStore) ConfirmArrival(_ context.Context, shipmentID string, lat, lng float64, entry *models.LedgerEntry) (*models.Shipment, error) {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.Status != models.ShipmentInTransit {
		return nil, fmt.Errorf("cannot confirm arrival from %s: %w", s.Status, models.ErrConflict)
	}
	s.Status = models.ShipmentArrived
	f.entries = append(f.entries, entry)
	return s, nil
}

func (f *fakeShipmentStore) Complete(_ context.Context, shipmentID string, p repository.CompleteParams, entry *models.LedgerEntry) (*models.Shipment, error) {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	switch s.Status {
	case models.ShipmentInTransit, models.ShipmentArrived:
	case models.ShipmentCompleted, models.ShipmentFailed, models.ShipmentCancelled:
		return nil, fmt.Errorf("already %s: %w", s.Status, models.ErrConflict)
	default:
		return nil, fmt.Errorf("cannot complete from %s: %w", s.Status, models.ErrInvalidState)
	}
	duration := 30
	s.Status = models.ShipmentCompleted
	s.ActualDuration = &duration
	s.EndLat = &p.EndLat
	s.EndLng = &p.EndLng
	f.entries = append(f.entries, entry)
	return s, nil
}

func (f *fakeShipmentStore) Abort(_ context.Context, shipmentID string, final models.ShipmentStatus, entry *models.LedgerEntry) (*models.Shipment, error) {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.Status.IsTerminal() {
		return nil, fmt.Errorf("already %s: %w", s.Status, models.ErrConflict)
	}
	s.Status = final
	f.aborted = append(f.aborted, final)
	f.entries = append(f.entries, entry)
	return s, nil
}

func (f *fakeShipmentStore) DeletePending(_ context.Context, shipmentID string) error {
	s, ok := f.shipments[shipmentID]
	if !ok {
		return models.ErrNotFound
	}
	if s.Status != models.ShipmentPending {
		return models.ErrConflict
	}
	delete(f.shipments, shipmentID)
	f.deleted = append(f.deleted, shipmentID)
	return nil
}

type fakeCargoReader struct {
	cargo map[string]*models.Cargo
}

func (f *fakeCargoReader) GetCargo(_ context.Context, cargoID string) (*models.Cargo, error) {
	c, ok := f.cargo[cargoID]
	if !ok {
		return nil, fmt.Errorf("cargo %s: %w", cargoID, models.ErrNotFound)
	}
	return c, nil
}

type fakeCourierReader struct {
	couriers map[string]*models.Courier
}

func (f *fakeCourierReader) GetCourier(_ context.Context, courierID string) (*models.Courier, error) {
	c, ok := f.couriers[courierID]
	if !ok {
		return nil, fmt.Errorf("courier %s: %w", courierID, models.ErrNotFound)
	}
	return c, nil
}

type ledgerResult struct {
	entryID     string
	txReference string
	status      models.LedgerStatus
}

type fakeLedgerStore struct {
	results chan ledgerResult
	entries []models.LedgerEntry
}

func (f *fakeLedgerStore) UpdateResult(_ context.Context, entryID, txReference string, status models.LedgerStatus) error {
	f.results <- ledgerResult{entryID: entryID, txReference: txReference, status: status}
	return nil
}

func (f *fakeLedgerStore) QueryEntries(_ context.Context, _ models.LedgerFilters) ([]models.LedgerEntry, error) {
	return f.entries, nil
}

type fakeRecorder struct {
	receipt ledger.Receipt
	kinds   chan models.EventKind
}

func (f *fakeRecorder) Record(_ context.Context, kind models.EventKind, _ ledger.EventRefs, _ interface{}) ledger.Receipt {
	f.kinds <- kind
	return f.receipt
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, shipmentID string) {
	f.invalidated = append(f.invalidated, shipmentID)
}

type serviceDeps struct {
	store    *fakeShipmentStore
	cargo    *fakeCargoReader
	couriers *fakeCourierReader
	ledgerDB *fakeLedgerStore
	recorder *fakeRecorder
	cache    *fakeInvalidator
}

func newTestService(confirmed bool) (*Service, *serviceDeps) {
	deps := &serviceDeps{
		store: &fakeShipmentStore{shipments: make(map[string]*models.Shipment)},
		cargo: &fakeCargoReader{cargo: map[string]*models.Cargo{
			"ORG-1": {
				CargoID:        "ORG-1",
				OrganType:      "kidney",
				Status:         models.CargoPending,
				PriorityLevel:  models.PriorityUrgent,
				OriginLat:      40.4168,
				OriginLng:      -3.7038,
				DestinationLat: 40.9631, // 马德里以北约100公里
				DestinationLng: -3.7038,
			},
		}},
		couriers: &fakeCourierReader{couriers: map[string]*models.Courier{
			"UAV-1": {CourierID: "UAV-1", Status: models.CourierAvailable},
		}},
		ledgerDB: &fakeLedgerStore{results: make(chan ledgerResult, 8)},
		recorder: &fakeRecorder{
			receipt: ledger.Receipt{Reference: "0xabc123", Confirmed: confirmed},
			kinds:   make(chan models.EventKind, 8),
		},
		cache: &fakeInvalidator{},
	}
	if !confirmed {
		deps.recorder.receipt = ledger.Receipt{Reference: ledger.MockReference, Confirmed: false}
	}

	reporter := ledger.NewReporter(deps.recorder, deps.ledgerDB, zap.NewNop())
	svc := NewService(deps.store, deps.cargo, deps.couriers, deps.ledgerDB,
		reporter, deps.cache, nil, zap.NewNop())
	return svc, deps
}

func waitLedgerResult(t *testing.T, deps *serviceDeps) (models.EventKind, ledgerResult) {
	t.Helper()
	var kind models.EventKind
	select {
	case kind = <-deps.recorder.kinds:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ledger record")
	}
	select {
	case res := <-deps.ledgerDB.results:
		return kind, res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ledger result update")
		return kind, ledgerResult{}
	}
}

func TestService_CreateShipment(t *testing.T) {
	svc, deps := newTestService(true)

	s, err := svc.CreateShipment(context.Background(), &CreateShipmentRequest{
		CargoID:    "ORG-1",
		CourierID:  "UAV-1",
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentPending, s.Status)
	assert.Equal(t, "ORG-1", s.CargoID)
	assert.Equal(t, "UAV-1", s.CourierID)
	assert.NotEmpty(t, s.ShipmentID)

	// 约100公里, urgent因子3: 估算时长约34分钟
	assert.InDelta(t, 34, s.EstimatedDuration, 1)

	// 账本写入意向随事务创建, 异步确认
	require.Len(t, deps.store.entries, 1)
	entry := deps.store.entries[0]
	assert.Equal(t, models.EventShipmentCreated, entry.EventKind)
	assert.Equal(t, models.LedgerPending, entry.Status)
	assert.Equal(t, "op-1", entry.OperatorID)

	kind, res := waitLedgerResult(t, deps)
	assert.Equal(t, models.EventShipmentCreated, kind)
	assert.Equal(t, entry.EntryID, res.entryID)
	assert.Equal(t, "0xabc123", res.txReference)
	assert.Equal(t, models.LedgerConfirmed, res.status)
}

func TestService_CreateShipment_Validation(t *testing.T) {
	svc, _ := newTestService(true)
	ctx := context.Background()

	_, err := svc.CreateShipment(ctx, &CreateShipmentRequest{CourierID: "UAV-1", OperatorID: "op-1"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.CreateShipment(ctx, &CreateShipmentRequest{CargoID: "ORG-1", CourierID: "UAV-1"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestService_CreateShipment_CargoUnavailable(t *testing.T) {
	svc, deps := newTestService(true)
	deps.cargo.cargo["ORG-1"].Status = models.CargoInTransit

	_, err := svc.CreateShipment(context.Background(), &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestService_CreateShipment_CourierBusy(t *testing.T) {
	svc, deps := newTestService(true)
	deps.couriers.couriers["UAV-1"].Status = models.CourierInUse

	_, err := svc.CreateShipment(context.Background(), &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestService_CreateShipment_UnknownCargo(t *testing.T) {
	svc, _ := newTestService(true)

	_, err := svc.CreateShipment(context.Background(), &CreateShipmentRequest{
		CargoID: "ORG-404", CourierID: "UAV-1", OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Lifecycle(t *testing.T) {
	svc, deps := newTestService(true)
	ctx := context.Background()

	s, err := svc.CreateShipment(ctx, &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	require.NoError(t, err)
	waitLedgerResult(t, deps)

	// start: pending -> in_transit
	started, err := svc.Start(ctx, s.ShipmentID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentInTransit, started.Status)
	kind, _ := waitLedgerResult(t, deps)
	assert.Equal(t, models.EventShipmentStarted, kind)

	// 重复start被拒
	_, err = svc.Start(ctx, s.ShipmentID, "op-1")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// confirm arrival: in_transit -> arrived
	arrived, err := svc.ConfirmArrival(ctx, s.ShipmentID, 40.96, -3.70, "on pad", "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentArrived, arrived.Status)
	kind, _ = waitLedgerResult(t, deps)
	assert.Equal(t, models.EventShipmentArrived, kind)

	// complete: arrived -> completed
	done, err := svc.Complete(ctx, s.ShipmentID, &CompleteRequest{
		EndLat: 40.9631, EndLng: -3.7038, OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentCompleted, done.Status)
	require.NotNil(t, done.ActualDuration)
	kind, _ = waitLedgerResult(t, deps)
	assert.Equal(t, models.EventShipmentCompleted, kind)

	// 完成后缓存失效
	assert.Contains(t, deps.cache.invalidated, s.ShipmentID)

	// 二次complete返回Conflict
	_, err = svc.Complete(ctx, s.ShipmentID, &CompleteRequest{
		EndLat: 40.9631, EndLng: -3.7038, OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestService_Cancel(t *testing.T) {
	svc, deps := newTestService(true)
	ctx := context.Background()

	s, err := svc.CreateShipment(ctx, &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	require.NoError(t, err)
	waitLedgerResult(t, deps)

	cancelled, err := svc.Cancel(ctx, s.ShipmentID, "weather hold", "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentCancelled, cancelled.Status)
	assert.Equal(t, []models.ShipmentStatus{models.ShipmentCancelled}, deps.store.aborted)
	assert.Contains(t, deps.cache.invalidated, s.ShipmentID)

	kind, _ := waitLedgerResult(t, deps)
	assert.Equal(t, models.EventEmergencyStop, kind)

	// 终态后再取消: Conflict
	_, err = svc.Fail(ctx, s.ShipmentID, "late", "op-1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestService_LedgerDegradedMode(t *testing.T) {
	svc, deps := newTestService(false)

	_, err := svc.CreateShipment(context.Background(), &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	require.NoError(t, err, "ledger failure must not block the transition")

	_, res := waitLedgerResult(t, deps)
	assert.Equal(t, ledger.MockReference, res.txReference)
	assert.Equal(t, models.LedgerFailed, res.status)
}

func TestService_DeletePending(t *testing.T) {
	svc, deps := newTestService(true)
	ctx := context.Background()

	s, err := svc.CreateShipment(ctx, &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	require.NoError(t, err)
	waitLedgerResult(t, deps)

	require.NoError(t, svc.DeletePending(ctx, s.ShipmentID))
	assert.Equal(t, []string{s.ShipmentID}, deps.store.deleted)

	// 已删除: NotFound
	assert.ErrorIs(t, svc.DeletePending(ctx, s.ShipmentID), models.ErrNotFound)
}

func TestService_ChainOfCustody(t *testing.T) {
	svc, deps := newTestService(true)
	ctx := context.Background()

	s, err := svc.CreateShipment(ctx, &CreateShipmentRequest{
		CargoID: "ORG-1", CourierID: "UAV-1", OperatorID: "op-1",
	})
	require.NoError(t, err)
	waitLedgerResult(t, deps)

	eventData, _ := json.Marshal(map[string]string{"note": "created"})
	deps.ledgerDB.entries = []models.LedgerEntry{
		{EntryID: "e1", EventKind: models.EventShipmentCreated, EventData: eventData},
		{EntryID: "e2", EventKind: models.EventShipmentStarted},
	}

	trail, err := svc.ChainOfCustody(ctx, s.ShipmentID, false)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.EventShipmentCreated, trail[0].EventKind)

	_, err = svc.ChainOfCustody(ctx, "SHIP-404", false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
