package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertBatteryReadings appends a batch of readings in a single transaction.
// Readings without an ID are assigned a new UUID. Existing rows are never
// modified.
func (db *DB) InsertBatteryReadings(ctx context.Context, readings []BatteryReading) error {
	if len(readings) == 0 {
		return nil
	}

	return db.WithTransaction(ctx, func(tx *Tx) error {
		return tx.InsertBatteryReadings(ctx, readings)
	})
}

// InsertBatteryReadings appends readings within a transaction
func (tx *Tx) InsertBatteryReadings(ctx context.Context, readings []BatteryReading) error {
	query := `
		INSERT INTO battery_readings (id, device_id, device_name, percent_charged, voltage, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range readings {
		r := &readings[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}

		_, err := stmt.ExecContext(ctx,
			r.ID,
			r.DeviceID,
			r.DeviceName,
			r.PercentCharged,
			r.Voltage,
			millis(r.CollectedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting reading for device %s: %w", r.DeviceID, err)
		}
	}

	return nil
}

// GetBatteryReadings returns the newest readings first. An empty deviceID
// returns readings for every device.
func (db *DB) GetBatteryReadings(ctx context.Context, deviceID string, limit int) ([]BatteryReading, error) {
	query := `
		SELECT id, device_id, device_name, percent_charged, voltage, collected_at
		FROM battery_readings
		WHERE (? = '' OR device_id = ?)
		ORDER BY collected_at DESC, device_id
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, deviceID, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []BatteryReading{}
	for rows.Next() {
		var (
			r           BatteryReading
			voltage     sql.NullFloat64
			collectedAt int64
		)
		err := rows.Scan(
			&r.ID,
			&r.DeviceID,
			&r.DeviceName,
			&r.PercentCharged,
			&voltage,
			&collectedAt,
		)
		if err != nil {
			return nil, err
		}
		if voltage.Valid {
			v := voltage.Float64
			r.Voltage = &v
		}
		r.CollectedAt = fromMillis(collectedAt)
		readings = append(readings, r)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

// CountBatteryReadings returns the total number of stored readings
func (db *DB) CountBatteryReadings(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM battery_readings`).Scan(&count)
	return count, err
}
