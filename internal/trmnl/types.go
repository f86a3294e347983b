package trmnl

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Device is a TRMNL device as reported by the device list endpoint
type Device struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	FriendlyID     string   `json:"friendly_id"`
	MacAddress     string   `json:"mac_address"`
	BatteryVoltage *float64 `json:"battery_voltage"`
	RSSI           *int     `json:"rssi"`
	PercentCharged float64  `json:"percent_charged"`
	WifiStrength   float64  `json:"wifi_strength"`
}

// DisplayName falls back to the friendly id for unnamed devices
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.FriendlyID
}

type feedEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	PublishedAt string `json:"published_at"`
}

// publishedLayouts are the ISO-8601 forms feeds are known to send. Layouts
// without a zone are read as UTC.
var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublishedAt(value string) (time.Time, *Failure) {
	value = strings.TrimSpace(value)
	for _, layout := range publishedLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, decodeFailure(errors.Errorf("unrecognised published_at %q", value))
}

// envelope is the wrapped response shape; Error is set on API-level failures
type envelope[T any] struct {
	Data  []T    `json:"data"`
	Error string `json:"error"`
}
