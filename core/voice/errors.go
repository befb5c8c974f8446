package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// TimeoutError means a connect, read, write or whole-call timeout elapsed.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is a connection level failure: DNS, refused connection, TLS
// or a URL the transport cannot use.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-2xx status or a body that is not a JSON object.
// Body is nil when the server sent nothing.
type ServerError struct {
	StatusCode int
	Body       *string
	Err        error
}

const maxBodyInMessage = 200

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("server error: HTTP %d", e.StatusCode)
	if e.Body != nil {
		body := *e.Body
		if len(body) > maxBodyInMessage {
			n := maxBodyInMessage
			for n > 0 && !utf8.RuneStart(body[n]) {
				n--
			}
			body = body[:n] + "..."
		}
		msg += ": " + body
	}
	return msg
}

func (e *ServerError) Unwrap() error { return e.Err }

func newServerError(status int, raw []byte, cause error) *ServerError {
	se := &ServerError{StatusCode: status, Err: cause}
	if len(raw) > 0 {
		body := string(raw)
		se.Body = &body
	}
	return se
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsServerError returns the *ServerError in err's chain, if any.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// classify maps an error from the HTTP round trip or body read onto the
// client's taxonomy. Caller cancellation is passed through as-is.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("voice request canceled: %w", ctxErr)
	}
	if timedOut(err) {
		return &TimeoutError{Err: err}
	}
	return &TransportError{Message: err.Error(), Err: err}
}

func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	// url.Error only looks one level down, so walk the chain ourselves.
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
	}
	return false
}
