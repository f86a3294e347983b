package trmnl

import (
	"fmt"
	"net/http"
)

// FailureKind is the closed set of ways a remote call can fail
type FailureKind int

const (
	// FailureHTTP means the server answered with a non-2xx status
	FailureHTTP FailureKind = iota
	// FailureNetwork covers transport errors and timeouts
	FailureNetwork
	// FailureDecode means the body could not be parsed
	FailureDecode
	// FailureAPI means a well-formed body carried an API-level error
	FailureAPI
	// FailureUnknown is anything the client could not attribute
	FailureUnknown
)

// String returns a human-readable representation of the failure kind
func (k FailureKind) String() string {
	switch k {
	case FailureHTTP:
		return "http"
	case FailureNetwork:
		return "network"
	case FailureDecode:
		return "decode"
	case FailureAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Failure is the only error type returned by Client methods
type Failure struct {
	Kind       FailureKind
	StatusCode int    // set for FailureHTTP
	Message    string // response excerpt or API error message
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureHTTP:
		return fmt.Sprintf("trmnl: http %d %s: %s", f.StatusCode, http.StatusText(f.StatusCode), f.Message)
	case FailureAPI:
		return fmt.Sprintf("trmnl: api error: %s", f.Message)
	default:
		if f.Err != nil {
			return fmt.Sprintf("trmnl: %s failure: %v", f.Kind, f.Err)
		}
		return fmt.Sprintf("trmnl: %s failure", f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsAuth reports whether the server rejected the credential
func (f *Failure) IsAuth() bool {
	return f.Kind == FailureHTTP && f.StatusCode == http.StatusUnauthorized
}

func httpFailure(code int, body string) *Failure {
	return &Failure{Kind: FailureHTTP, StatusCode: code, Message: body}
}

func networkFailure(err error) *Failure {
	return &Failure{Kind: FailureNetwork, Err: err}
}

func decodeFailure(err error) *Failure {
	return &Failure{Kind: FailureDecode, Err: err}
}

func apiFailure(msg string) *Failure {
	return &Failure{Kind: FailureAPI, Message: msg}
}
