package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ks-vishal/stot-ub/internal/models"
)

func f64(v float64) *float64 { return &v }

func setupTelemetryRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *TelemetryRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewTelemetryRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestInsertSample_Success(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sample := &models.TelemetrySample{
		ShipmentID:  "SHIP-1",
		CargoID:     "ORG-1",
		CourierID:   "UAV-1",
		Timestamp:   ts,
		Temperature: f64(5.2),
		Humidity:    f64(55),
		Latitude:    40.4,
		Longitude:   -3.7,
	}

	mock.ExpectQuery(`INSERT INTO telemetry_samples`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), ts))

	stored, err := repo.InsertSample(context.Background(), sample)

	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, int64(7), sample.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSample_DuplicateNaturalKey(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	sample := &models.TelemetrySample{
		ShipmentID: "SHIP-1",
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery(`INSERT INTO telemetry_samples`).
		WillReturnError(&pq.Error{Code: "23505"})

	stored, err := repo.InsertSample(context.Background(), sample)

	// 重复投递按成功的 no-op 处理
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSample_OtherError(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO telemetry_samples`).
		WillReturnError(sql.ErrConnDone)

	stored, err := repo.InsertSample(context.Background(), &models.TelemetrySample{ShipmentID: "SHIP-1"})

	assert.Error(t, err)
	assert.False(t, stored)
}

func telemetryRows(ts time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "shipment_id", "cargo_id", "courier_id", "ts",
		"temperature", "humidity", "pressure", "altitude",
		"latitude", "longitude", "speed", "battery_level",
		"signal_strength", "vibration", "light", "created_at",
	}).AddRow(
		int64(1), "SHIP-1", "ORG-1", "UAV-1", ts,
		5.2, 55.0, nil, 120.0,
		40.4, -3.7, 60.0, 88.0,
		nil, 1.2, nil, ts,
	)
}

func TestGetLatestSample_Success(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY ts DESC`).
		WithArgs("SHIP-1").
		WillReturnRows(telemetryRows(ts))

	s, err := repo.GetLatestSample(context.Background(), "SHIP-1")

	require.NoError(t, err)
	assert.Equal(t, "SHIP-1", s.ShipmentID)
	require.NotNil(t, s.Temperature)
	assert.Equal(t, 5.2, *s.Temperature)
	require.NotNil(t, s.Speed)
	assert.Equal(t, 60.0, *s.Speed)
	assert.Nil(t, s.Pressure)
	assert.Nil(t, s.SignalStrength)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestSample_NullReadings(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "shipment_id", "cargo_id", "courier_id", "ts",
		"temperature", "humidity", "pressure", "altitude",
		"latitude", "longitude", "speed", "battery_level",
		"signal_strength", "vibration", "light", "created_at",
	}).AddRow(
		int64(2), "SHIP-1", "ORG-1", "UAV-1", ts,
		nil, nil, nil, 120.0,
		40.4, -3.7, nil, nil,
		nil, nil, nil, ts,
	)
	mock.ExpectQuery(`ORDER BY ts DESC`).
		WithArgs("SHIP-1").
		WillReturnRows(rows)

	s, err := repo.GetLatestSample(context.Background(), "SHIP-1")

	require.NoError(t, err)
	assert.Nil(t, s.Temperature)
	assert.Nil(t, s.Humidity)
}

func TestGetLatestSample_NotFound(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	mock.ExpectQuery(`ORDER BY ts DESC`).
		WithArgs("SHIP-missing").
		WillReturnError(sql.ErrNoRows)

	s, err := repo.GetLatestSample(context.Background(), "SHIP-missing")

	assert.Nil(t, s)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetHistory_RangeAndLimit(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	from := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ts := from.Add(30 * time.Minute)

	mock.ExpectQuery(`ORDER BY ts ASC`).
		WithArgs("SHIP-1", from, 100).
		WillReturnRows(telemetryRows(ts))

	samples, err := repo.GetHistory(context.Background(), "SHIP-1", HistoryFilters{
		From:  &from,
		Limit: 100,
	})

	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, ts, samples[0].Timestamp)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHistory_DefaultLimit(t *testing.T) {
	db, mock, repo := setupTelemetryRepo(t)
	defer db.Close()

	mock.ExpectQuery(`ORDER BY ts ASC`).
		WithArgs("SHIP-1", 500).
		WillReturnRows(telemetryRows(time.Now().UTC()))

	_, err := repo.GetHistory(context.Background(), "SHIP-1", HistoryFilters{})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
