package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies a failure by how callers must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient is a provider timeout or failure; degrade with a marker.
	KindTransient
	// KindData is unreadable stored data; substitute a sentinel and continue.
	KindData
	// KindNotFound aborts only the current unit of work.
	KindNotFound
	// KindProtocol is a malformed frame or unauthenticated caller.
	KindProtocol
	// KindRateLimited drops the message and tells the sender.
	KindRateLimited
	// KindConfig means a collaborator was never configured.
	KindConfig
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindData:
		return "data"
	case KindNotFound:
		return "not_found"
	case KindProtocol:
		return "protocol"
	case KindRateLimited:
		return "rate_limited"
	case KindConfig:
		return "config"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error represents a classified error with stack trace
type Error struct {
	Kind    Kind       `json:"kind"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Stack: captureStack()}
}

// Errorf creates a new formatted error
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// WithCode creates a new error with an HTTP-ish code
func WithCode(code int, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack()}
}

// Wrap wraps err with a kind and message. A nil err stays nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err, Stack: captureStack()}
}

// Wrapf wraps err with a kind and formatted message
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err, Stack: captureStack()}
}

// WithContext returns a copy of e carrying one more key/value.
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Context = append(append([]KeyValue(nil), e.Context...), KeyValue{Key: key, Value: value})
	return &cp
}

// KindOf returns the outermost classified kind in err's chain.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Kind != KindUnknown {
				return e.Kind
			}
			err = e.Err
			continue
		}
		return KindUnknown
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// GetCode returns the error code
func GetCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Is and As forward to the standard library so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Cause returns the innermost error
func Cause(err error) error {
	for err != nil {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	// drop the goroutine header and the captureStack/constructor frames
	if len(lines) > 5 {
		lines = lines[5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
