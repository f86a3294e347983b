package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/livinlefevreloca/trmnlwatch/internal/notify"
	"github.com/livinlefevreloca/trmnlwatch/internal/prefs"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// LowBatteryEvaluator emits at most one aggregated notification per run for
// devices whose charge is below the configured threshold
type LowBatteryEvaluator struct {
	prefs    prefs.Source
	devices  DeviceSource
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewLowBatteryEvaluator creates a low-battery evaluator
func NewLowBatteryEvaluator(source prefs.Source, devices DeviceSource, notifier notify.Notifier, logger *slog.Logger) *LowBatteryEvaluator {
	return &LowBatteryEvaluator{
		prefs:    source,
		devices:  devices,
		notifier: notifier,
		logger:   logger.With("job_kind", string(KindLowBattery)),
	}
}

// Kind implements Job
func (e *LowBatteryEvaluator) Kind() Kind {
	return KindLowBattery
}

// Run implements Job
func (e *LowBatteryEvaluator) Run(ctx context.Context) Result {
	snap, err := e.prefs.Snapshot(ctx)
	if err != nil {
		e.logger.Error("failed to read preferences", "error", err)
		return permanent(fmt.Errorf("reading preferences: %w", err))
	}
	if !snap.CredentialPresent || !snap.LowBatteryNotificationsEnabled {
		e.logger.Debug("low battery evaluation skipped",
			"credential_present", snap.CredentialPresent,
			"notifications_enabled", snap.LowBatteryNotificationsEnabled)
		return succeeded()
	}
	threshold := snap.LowBatteryThresholdPercent

	apiKey, err := e.prefs.Credential(ctx)
	if err != nil {
		e.logger.Error("failed to read credential", "error", err)
		return permanent(fmt.Errorf("reading credential: %w", err))
	}

	devices, err := e.devices.ListDevices(ctx, apiKey)
	if err != nil {
		outcome := classifyDeviceFailure(err)
		logFetchFailure(e.logger, outcome, err)
		return Result{Outcome: outcome, Err: err}
	}

	low := LowBatteryDevices(devices, threshold)
	e.logger.Info("evaluated device batteries",
		"device_count", len(devices),
		"low_count", len(low),
		"threshold_percent", threshold)
	if len(low) == 0 {
		return succeeded()
	}

	n := LowBatteryNotification(low, threshold)
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("failed to deliver notification", "error", err)
	}
	return succeeded()
}

// LowBatteryDevices returns the devices strictly below threshold, in the
// order they were given. A device exactly at the threshold is not low.
func LowBatteryDevices(devices []trmnl.Device, thresholdPercent int) []trmnl.Device {
	var low []trmnl.Device
	for _, d := range devices {
		if d.PercentCharged < float64(thresholdPercent) {
			low = append(low, d)
		}
	}
	return low
}

// LowBatteryNotification builds the single notification covering every low
// device
func LowBatteryNotification(low []trmnl.Device, thresholdPercent int) notify.Notification {
	names := make([]string, 0, len(low))
	for _, d := range low {
		names = append(names, fmt.Sprintf("%s (%.0f%%)", d.DisplayName(), d.PercentCharged))
	}

	var title string
	if len(low) == 1 {
		title = fmt.Sprintf("Low battery on %s", low[0].DisplayName())
	} else {
		title = fmt.Sprintf("Low battery on %d devices", len(low))
	}

	return notify.Notification{
		Kind:          notify.KindLowBattery,
		Title:         title,
		Body:          fmt.Sprintf("Below %d%%: %s", thresholdPercent, strings.Join(names, ", ")),
		AffectedCount: len(low),
	}
}
