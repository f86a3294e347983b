package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Condition is a resource precondition a job can declare
type Condition int

const (
	ConditionNetwork Condition = iota
	ConditionIdle
	ConditionCharging
)

// String returns the config name of the condition
func (c Condition) String() string {
	switch c {
	case ConditionNetwork:
		return "network"
	case ConditionIdle:
		return "idle"
	case ConditionCharging:
		return "charging"
	default:
		return "unknown"
	}
}

// ParseCondition accepts the names used in config files
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network", "network-connected", "network_connected":
		return ConditionNetwork, nil
	case "idle", "device-idle", "device_idle":
		return ConditionIdle, nil
	case "charging", "device-charging", "device_charging":
		return ConditionCharging, nil
	default:
		return 0, fmt.Errorf("unknown condition %q (must be network, idle, or charging)", s)
	}
}

// ParseConditions parses and de-duplicates a list of condition names
func ParseConditions(names []string) ([]Condition, error) {
	seen := make(map[Condition]bool, len(names))
	out := make([]Condition, 0, len(names))
	for _, name := range names {
		c, err := ParseCondition(name)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// ConditionChecker reports whether a condition currently holds
type ConditionChecker interface {
	Holds(ctx context.Context, c Condition) bool
}

// AlwaysMet treats every condition as satisfied
type AlwaysMet struct{}

func (AlwaysMet) Holds(context.Context, Condition) bool { return true }

// SystemConditions probes the host. Missing /proc or /sys information counts
// as satisfied so the scheduler still works on non-Linux hosts.
type SystemConditions struct {
	// host:port dialled to decide network reachability
	NetworkAddress string
	DialTimeout    time.Duration

	// Idle when the 1-minute load average per CPU is below this
	MaxLoadPerCPU float64

	ProcDir        string
	PowerSupplyDir string

	Logger *slog.Logger
}

// NewSystemConditions builds a checker that probes the API host
func NewSystemConditions(apiBaseURL string, logger *slog.Logger) *SystemConditions {
	return &SystemConditions{
		NetworkAddress: NetworkAddress(apiBaseURL),
		DialTimeout:    5 * time.Second,
		MaxLoadPerCPU:  0.5,
		ProcDir:        "/proc",
		PowerSupplyDir: "/sys/class/power_supply",
		Logger:         logger,
	}
}

// NetworkAddress derives host:port from a base URL, defaulting the port from
// the scheme
func NetworkAddress(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Holds implements ConditionChecker
func (s *SystemConditions) Holds(ctx context.Context, c Condition) bool {
	switch c {
	case ConditionNetwork:
		return s.networkReachable(ctx)
	case ConditionIdle:
		return s.idle()
	case ConditionCharging:
		return s.charging()
	default:
		return false
	}
}

func (s *SystemConditions) networkReachable(ctx context.Context) bool {
	if s.NetworkAddress == "" {
		return true
	}

	dialer := net.Dialer{Timeout: s.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.NetworkAddress)
	if err != nil {
		s.Logger.Debug("network probe failed", "address", s.NetworkAddress, "error", err)
		return false
	}
	conn.Close()
	return true
}

func (s *SystemConditions) idle() bool {
	load, err := readLoadAverage(filepath.Join(s.ProcDir, "loadavg"))
	if err != nil {
		s.Logger.Debug("load average unavailable, assuming idle", "error", err)
		return true
	}
	perCPU := load / float64(runtime.NumCPU())
	return perCPU < s.MaxLoadPerCPU
}

func readLoadAverage(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty %s", path)
	}
	return strconv.ParseFloat(fields[0], 64)
}

func (s *SystemConditions) charging() bool {
	entries, err := os.ReadDir(s.PowerSupplyDir)
	if err != nil || len(entries) == 0 {
		// No power supply information: a desktop or server on mains.
		return true
	}

	for _, e := range entries {
		dir := filepath.Join(s.PowerSupplyDir, e.Name())
		switch readAttr(dir, "type") {
		case "Mains", "USB", "USB_C", "USB_PD":
			if readAttr(dir, "online") == "1" {
				return true
			}
		case "Battery":
			switch readAttr(dir, "status") {
			case "Charging", "Full":
				return true
			}
		}
	}
	return false
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
