package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed backend call.
type ErrorKind int

const (
	// KindTransport covers network errors, timeouts and cancellation.
	KindTransport ErrorKind = iota + 1
	// KindStatus is a non-2xx response.
	KindStatus
	// KindDecode is a 2xx response whose body could not be decoded.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error describes a failed call to the ingestion or question-answering endpoint.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Detail != "" {
			return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Detail)
		}
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because a deadline expired.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsStatus reports whether err is a non-2xx response with the given code.
func IsStatus(err error, code int) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindStatus && be.StatusCode == code
}
