package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/prefs"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// BatteryRecorder appends one battery reading per device per run
type BatteryRecorder struct {
	prefs   prefs.Source
	devices DeviceSource
	store   ReadingStore
	clock   Clock
	logger  *slog.Logger
}

// NewBatteryRecorder creates a battery recorder
func NewBatteryRecorder(source prefs.Source, devices DeviceSource, store ReadingStore, clock Clock, logger *slog.Logger) *BatteryRecorder {
	if clock == nil {
		clock = RealClock{}
	}
	return &BatteryRecorder{
		prefs:   source,
		devices: devices,
		store:   store,
		clock:   clock,
		logger:  logger.With("job_kind", string(KindBatteryRecorder)),
	}
}

// Kind implements Job
func (r *BatteryRecorder) Kind() Kind {
	return KindBatteryRecorder
}

// Run fetches the device list and persists a reading batch that shares a
// single collection timestamp
func (r *BatteryRecorder) Run(ctx context.Context) Result {
	snap, err := r.prefs.Snapshot(ctx)
	if err != nil {
		r.logger.Error("failed to read preferences", "error", err)
		return permanent(fmt.Errorf("reading preferences: %w", err))
	}
	if !snap.CredentialPresent || !snap.BatteryTrackingEnabled {
		r.logger.Debug("battery recording skipped",
			"credential_present", snap.CredentialPresent,
			"tracking_enabled", snap.BatteryTrackingEnabled)
		return succeeded()
	}

	collectedAt := r.clock.Now().UTC().Truncate(time.Millisecond)

	apiKey, err := r.prefs.Credential(ctx)
	if err != nil {
		r.logger.Error("failed to read credential", "error", err)
		return permanent(fmt.Errorf("reading credential: %w", err))
	}

	devices, err := r.devices.ListDevices(ctx, apiKey)
	if err != nil {
		outcome := classifyDeviceFailure(err)
		logFetchFailure(r.logger, outcome, err)
		return Result{Outcome: outcome, Err: err}
	}

	if len(devices) == 0 {
		r.logger.Info("no devices returned, nothing to record")
		return succeeded()
	}

	readings := make([]db.BatteryReading, 0, len(devices))
	for _, d := range devices {
		readings = append(readings, readingFromDevice(d, collectedAt))
	}

	if err := r.store.InsertBatteryReadings(ctx, readings); err != nil {
		r.logger.Error("failed to store battery readings", "error", err, "count", len(readings))
		return permanent(fmt.Errorf("storing battery readings: %w", err))
	}

	r.logger.Info("recorded battery readings",
		"count", len(readings),
		"collected_at", collectedAt)
	return succeeded()
}

func readingFromDevice(d trmnl.Device, collectedAt time.Time) db.BatteryReading {
	return db.BatteryReading{
		DeviceID:       StableDeviceID(d),
		DeviceName:     d.DisplayName(),
		PercentCharged: d.PercentCharged,
		Voltage:        d.BatteryVoltage,
		CollectedAt:    collectedAt,
	}
}

// StableDeviceID prefers the friendly id, which survives device re-registration
func StableDeviceID(d trmnl.Device) string {
	if d.FriendlyID != "" {
		return d.FriendlyID
	}
	return strconv.Itoa(d.ID)
}

func logFetchFailure(logger *slog.Logger, outcome Outcome, err error) {
	if outcome == Retry {
		logger.Warn("fetch failed, will retry", "error", err)
		return
	}
	logger.Error("fetch failed permanently", "error", err)
}
