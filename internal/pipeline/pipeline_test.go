package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ks-vishal/stot-ub/internal/evaluator"
	"github.com/ks-vishal/stot-ub/internal/fanout"
	"github.com/ks-vishal/stot-ub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver struct {
	shipments map[string]*models.Shipment
}

func (f *fakeResolver) ResolveShipment(_ context.Context, key string) (*models.Shipment, error) {
	s, ok := f.shipments[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

type fakeTelemetryStore struct {
	samples   []*models.TelemetrySample
	seen      map[string]bool
	insertErr error
}

func (f *fakeTelemetryStore) InsertSample(_ context.Context, s *models.TelemetrySample) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	key := s.ShipmentID + s.Timestamp.Format(time.RFC3339Nano)
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	f.samples = append(f.samples, s)
	return true, nil
}

type fakeCourierStore struct {
	updates int
	lastLat float64
	lastLng float64
}

func (f *fakeCourierStore) UpdateTelemetry(_ context.Context, _ string, lat, lng float64, _ *float64) error {
	f.updates++
	f.lastLat, f.lastLng = lat, lng
	return nil
}

type fakeCargoStore struct {
	updates int
}

func (f *fakeCargoStore) UpdatePosition(_ context.Context, _ string, _, _ float64) error {
	f.updates++
	return nil
}

type fakeAlertStore struct {
	existing map[string]bool
	created  []*models.Alert
}

func (f *fakeAlertStore) dedupKey(shipmentID string, category models.AlertCategory, ts time.Time) string {
	return shipmentID + "|" + string(category) + "|" + ts.Format(time.RFC3339Nano)
}

func (f *fakeAlertStore) ExistsForSample(_ context.Context, shipmentID string, category models.AlertCategory, ts time.Time) (bool, error) {
	return f.existing[f.dedupKey(shipmentID, category, ts)], nil
}

func (f *fakeAlertStore) CreateAlert(_ context.Context, a *models.Alert) (bool, error) {
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	key := f.dedupKey(a.ShipmentID, a.Category, a.SampleTS)
	if f.existing[key] {
		return false, nil
	}
	f.existing[key] = true
	f.created = append(f.created, a)
	return true, nil
}

type fakeCache struct {
	puts []*models.TelemetrySample
}

func (f *fakeCache) Put(_ context.Context, s *models.TelemetrySample) error {
	f.puts = append(f.puts, s)
	return nil
}

type testDeps struct {
	resolver  *fakeResolver
	telemetry *fakeTelemetryStore
	couriers  *fakeCourierStore
	cargo     *fakeCargoStore
	alerts    *fakeAlertStore
	cache     *fakeCache
	hub       *fanout.Hub
}

func newTestPipeline(status models.ShipmentStatus) (*Pipeline, *testDeps) {
	deps := &testDeps{
		resolver: &fakeResolver{shipments: map[string]*models.Shipment{
			"SHIP-1": {
				ID:         1,
				ShipmentID: "SHIP-1",
				CargoID:    "ORG-1",
				CourierID:  "UAV-1",
				Status:     status,
			},
		}},
		telemetry: &fakeTelemetryStore{},
		couriers:  &fakeCourierStore{},
		cargo:     &fakeCargoStore{},
		alerts:    &fakeAlertStore{},
		cache:     &fakeCache{},
		hub:       fanout.NewHub(8, zap.NewNop()),
	}
	// 数字主键回退
	deps.resolver.shipments["1"] = deps.resolver.shipments["SHIP-1"]

	p := NewPipeline(
		deps.resolver, deps.telemetry, deps.couriers, deps.cargo,
		deps.alerts, deps.cache, deps.hub,
		evaluator.DefaultLimits(), zap.NewNop(),
	)
	return p, deps
}

func nominalPayload(ts time.Time) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"timestamp":   ts.Format(time.RFC3339),
		"temperature": 5.0,
		"humidity":    55.0,
		"latitude":    40.41,
		"longitude":   -3.70,
		"altitude":    120.0,
	})
	return data
}

func TestPipeline_IngestNominalSample(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)
	sub := deps.hub.Subscribe("SHIP-1")
	defer deps.hub.Unsubscribe(sub)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored, violations, err := p.Ingest(context.Background(), "SHIP-1", nominalPayload(ts))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 0, violations)

	require.Len(t, deps.telemetry.samples, 1)
	s := deps.telemetry.samples[0]
	assert.Equal(t, "SHIP-1", s.ShipmentID)
	assert.Equal(t, "ORG-1", s.CargoID)
	assert.True(t, ts.Equal(s.Timestamp))

	// 位置同步: in_transit 时 courier 和 cargo 都更新
	assert.Equal(t, 1, deps.couriers.updates)
	assert.Equal(t, 1, deps.cargo.updates)
	assert.Empty(t, deps.alerts.created)
	require.Len(t, deps.cache.puts, 1)

	// 实时推送一条 sample 事件
	select {
	case data := <-sub.Events():
		var ev fanout.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, fanout.EventSample, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a sample event")
	}
}

func TestPipeline_HighTemperatureRaisesAlert(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)
	sub := deps.hub.Subscribe("SHIP-1")
	defer deps.hub.Unsubscribe(sub)

	payload, _ := json.Marshal(map[string]interface{}{
		"timestamp":   "2026-03-01T12:00:00Z",
		"temperature": 9.0,
		"humidity":    55.0,
		"latitude":    40.41,
		"longitude":   -3.70,
	})

	stored, violations, err := p.Ingest(context.Background(), "SHIP-1", payload)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 1, violations)

	require.Len(t, deps.alerts.created, 1)
	alert := deps.alerts.created[0]
	assert.Equal(t, models.AlertTemperature, alert.Category)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "SHIP-1", alert.ShipmentID)
	assert.NotEmpty(t, alert.AlertID)

	// sample 事件 + alert 事件各一条
	types := make(map[string]int)
	for i := 0; i < 2; i++ {
		select {
		case data := <-sub.Events():
			var ev fanout.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			types[ev.Type]++
		case <-time.After(time.Second):
			t.Fatal("expected two events")
		}
	}
	assert.Equal(t, 1, types[fanout.EventSample])
	assert.Equal(t, 1, types[fanout.EventAlert])
}

func TestPipeline_DuplicateDeliveryIsIdempotent(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := nominalPayload(ts)

	stored, _, err := p.Ingest(context.Background(), "SHIP-1", payload)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, _, err = p.Ingest(context.Background(), "SHIP-1", payload)
	require.NoError(t, err)
	assert.False(t, stored, "redelivery must be a no-op")

	assert.Len(t, deps.telemetry.samples, 1)
	assert.Equal(t, 1, deps.couriers.updates, "duplicate must not re-run side effects")
	assert.Len(t, deps.cache.puts, 1)
}

func TestPipeline_AlertDedupAcrossViolations(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	payload, _ := json.Marshal(map[string]interface{}{
		"timestamp":   "2026-03-01T12:00:00Z",
		"temperature": 9.0,
		"humidity":    70.0,
		"latitude":    40.41,
		"longitude":   -3.70,
	})

	_, violations, err := p.Ingest(context.Background(), "SHIP-1", payload)
	require.NoError(t, err)
	assert.Equal(t, 2, violations)
	assert.Len(t, deps.alerts.created, 2)

	// 相同时间戳不同样本内容: 按(运单,类别,样本时间)去重
	payload2, _ := json.Marshal(map[string]interface{}{
		"timestamp":   "2026-03-01T12:00:01Z",
		"temperature": 9.5,
		"humidity":    55.0,
		"latitude":    40.42,
		"longitude":   -3.71,
	})
	_, _, err = p.Ingest(context.Background(), "SHIP-1", payload2)
	require.NoError(t, err)
	assert.Len(t, deps.alerts.created, 3)
}

func TestPipeline_UnknownShipmentDropped(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	stored, violations, err := p.Ingest(context.Background(), "SHIP-404", nominalPayload(time.Now().UTC()))
	require.NoError(t, err, "fire-and-forget transport must not surface errors")
	assert.False(t, stored)
	assert.Equal(t, 0, violations)
	assert.Empty(t, deps.telemetry.samples)
}

func TestPipeline_TerminalShipmentDropped(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentCompleted)

	stored, _, err := p.Ingest(context.Background(), "SHIP-1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Empty(t, deps.telemetry.samples)
}

func TestPipeline_TerminalShipmentEvictsLock(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	_, _, err := p.Ingest(context.Background(), "SHIP-1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, 1, p.lockCount())

	// 运单到达终态后, 后续样本被丢弃且互斥锁被回收
	deps.resolver.shipments["SHIP-1"].Status = models.ShipmentCompleted
	_, _, err = p.Ingest(context.Background(), "SHIP-1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, 0, p.lockCount())
}

func TestPipeline_PartialPayloadNoSpuriousAlerts(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	// 载荷缺失温湿度: 不得因零值误判越界
	payload, _ := json.Marshal(map[string]interface{}{
		"timestamp": "2026-03-01T12:00:00Z",
		"latitude":  40.41,
		"longitude": -3.70,
	})

	stored, violations, err := p.Ingest(context.Background(), "SHIP-1", payload)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 0, violations)
	assert.Empty(t, deps.alerts.created)
	require.Len(t, deps.telemetry.samples, 1)
	assert.Nil(t, deps.telemetry.samples[0].Temperature)
	assert.Nil(t, deps.telemetry.samples[0].Humidity)
}

func TestPipeline_NumericKeyFallback(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	stored, _, err := p.Ingest(context.Background(), "1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, stored)
	require.Len(t, deps.telemetry.samples, 1)
	assert.Equal(t, "SHIP-1", deps.telemetry.samples[0].ShipmentID)
}

func TestPipeline_ArrivedShipmentSkipsCargoPosition(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentArrived)

	stored, _, err := p.Ingest(context.Background(), "SHIP-1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 1, deps.couriers.updates)
	assert.Equal(t, 0, deps.cargo.updates, "cargo position only tracked while in transit")
}

func TestPipeline_MissingTimestampUsesArrivalTime(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	payload, _ := json.Marshal(map[string]interface{}{
		"temperature": 5.0,
		"humidity":    55.0,
		"latitude":    40.41,
		"longitude":   -3.70,
	})

	before := time.Now().UTC()
	stored, _, err := p.Ingest(context.Background(), "SHIP-1", payload)
	after := time.Now().UTC()

	require.NoError(t, err)
	assert.True(t, stored)
	require.Len(t, deps.telemetry.samples, 1)
	ts := deps.telemetry.samples[0].Timestamp
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}

func TestPipeline_StorageFailureDropsSample(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)
	deps.telemetry.insertErr = errors.New("connection refused")

	stored, _, err := p.Ingest(context.Background(), "SHIP-1", nominalPayload(time.Now().UTC()))
	require.NoError(t, err, "per-sample storage failure is best-effort")
	assert.False(t, stored)
	assert.Equal(t, 0, deps.couriers.updates)
	assert.Empty(t, deps.cache.puts)
}

func TestPipeline_MalformedPayloadDropped(t *testing.T) {
	p, deps := newTestPipeline(models.ShipmentInTransit)

	stored, _, err := p.Ingest(context.Background(), "SHIP-1", []byte("{not-json"))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Empty(t, deps.telemetry.samples)
}
