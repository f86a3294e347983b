package jobs

import (
	"errors"

	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// classifyDeviceFailure maps a device-list failure to an outcome.
//
// A rejected credential will not fix itself, so 401 is permanent. Every other
// HTTP status, including the rest of 4xx, is treated as transient. Payloads
// that cannot be understood are permanent.
func classifyDeviceFailure(err error) Outcome {
	var f *trmnl.Failure
	if !errors.As(err, &f) {
		return PermanentFailure
	}

	switch f.Kind {
	case trmnl.FailureHTTP:
		if f.IsAuth() {
			return PermanentFailure
		}
		return Retry
	case trmnl.FailureNetwork:
		return Retry
	case trmnl.FailureDecode, trmnl.FailureAPI, trmnl.FailureUnknown:
		return PermanentFailure
	default:
		return PermanentFailure
	}
}

// classifyFeedFailure maps a feed fetch failure to an outcome. Feeds carry no
// credential, so every fetch failure is worth retrying.
func classifyFeedFailure(err error) Outcome {
	var f *trmnl.Failure
	if !errors.As(err, &f) {
		return Retry
	}

	switch f.Kind {
	case trmnl.FailureHTTP, trmnl.FailureNetwork, trmnl.FailureDecode, trmnl.FailureAPI, trmnl.FailureUnknown:
		return Retry
	default:
		return Retry
	}
}
