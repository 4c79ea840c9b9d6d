package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failures a Reader reports.
type ErrorKind int

const (
	// ConfigurationError is a missing or invalid configuration value.
	ConfigurationError ErrorKind = iota + 1

	// ConnectionError is a dial, channel, declare, bind or consume failure.
	ConnectionError

	// TimeoutError is a wait that ended with no record available.
	TimeoutError

	// DecodeError is a message body that could not be turned into a Record.
	DecodeError

	// ShutdownError is a failure while closing the channel or connection.
	ShutdownError
)

var (
	// ErrConfiguration matches every ConfigurationError.
	// you can check for this error with errors.Is
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection matches every ConnectionError.
	// you can check for this error with errors.Is
	ErrConnection = errors.New("connection error")

	// ErrTimeout matches every TimeoutError.
	// you can check for this error with errors.Is
	ErrTimeout = errors.New("timed out waiting for a message")

	// ErrDecode matches every DecodeError.
	// you can check for this error with errors.Is
	ErrDecode = errors.New("decode error")

	// ErrShutdown matches every ShutdownError.
	// you can check for this error with errors.Is
	ErrShutdown = errors.New("shutdown error")
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "ConfigurationError"
	case ConnectionError:
		return "ConnectionError"
	case TimeoutError:
		return "TimeoutError"
	case DecodeError:
		return "DecodeError"
	case ShutdownError:
		return "ShutdownError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ConfigurationError:
		return ErrConfiguration
	case ConnectionError:
		return ErrConnection
	case TimeoutError:
		return ErrTimeout
	case DecodeError:
		return ErrDecode
	case ShutdownError:
		return ErrShutdown
	default:
		return nil
	}
}

// ReaderError carries the kind of failure, the operation that failed, and its cause.
type ReaderError struct {
	Kind ErrorKind
	Op   string
	Key  string // configuration key, only set for ConfigurationError
	Err  error

	// Body is the raw message of a DecodeError. With early acknowledgement the broker
	// no longer holds it, so this is the only copy left.
	Body []byte
}

func (e *ReaderError) Error() string {

	msg := e.Kind.String()
	if e.Op != "" {
		msg += " during " + e.Op
	}

	if e.Key != "" {
		msg += fmt.Sprintf(" [key: %s]", e.Key)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *ReaderError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ReaderError) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// KindOf returns the ErrorKind of err, or zero if err is not a ReaderError.
func KindOf(err error) ErrorKind {

	var readerErr *ReaderError
	if errors.As(err, &readerErr) {
		return readerErr.Kind
	}

	return 0
}

// NewConfigurationError names the offending key.
func NewConfigurationError(key string, reason string) *ReaderError {
	return &ReaderError{Kind: ConfigurationError, Op: "verifyConfiguration", Key: key, Err: errors.New(reason)}
}

// NewConnectionError wraps a transport failure.
func NewConnectionError(op string, err error) *ReaderError {
	return &ReaderError{Kind: ConnectionError, Op: op, Err: err}
}

// NewTimeoutError wraps the reason a wait produced nothing.
func NewTimeoutError(op string, err error) *ReaderError {
	return &ReaderError{Kind: TimeoutError, Op: op, Err: err}
}

// NewDecodeError wraps a body that could not be decoded and keeps the body.
func NewDecodeError(op string, err error, body []byte) *ReaderError {
	return &ReaderError{Kind: DecodeError, Op: op, Err: err, Body: body}
}

// BodyOf returns the raw message carried by a DecodeError anywhere in err's chain.
func BodyOf(err error) ([]byte, bool) {

	var readerErr *ReaderError
	if errors.As(err, &readerErr) && readerErr.Kind == DecodeError {
		return readerErr.Body, true
	}

	return nil, false
}

// NewShutdownError wraps a close failure.
func NewShutdownError(op string, err error) *ReaderError {
	return &ReaderError{Kind: ShutdownError, Op: op, Err: err}
}
