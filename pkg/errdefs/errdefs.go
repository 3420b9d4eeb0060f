// Package errdefs defines the failure kinds reported by the marshalling layer.
//
// Every failure is an *Error carrying a Kind. Callers match kinds with
// errors.Is against the exported sentinels, or read the kind with KindOf.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Unknown Kind = iota
	DimensionMismatch
	BatchDimensionConflict
	ShapeMismatch
	SizeMismatch
	UnsupportedType
	TypeMismatch
	IndexOutOfRange
	InvalidArgument
	InvalidState
	RuntimeFailure
	ModelLoadFailure
	PredictionFailure
	InputCountMismatch
)

var kindNames = map[Kind]string{
	Unknown:                "unknown",
	DimensionMismatch:      "dimension mismatch",
	BatchDimensionConflict: "batch dimension conflict",
	ShapeMismatch:          "shape mismatch",
	SizeMismatch:           "size mismatch",
	UnsupportedType:        "unsupported type",
	TypeMismatch:           "type mismatch",
	IndexOutOfRange:        "index out of range",
	InvalidArgument:        "invalid argument",
	InvalidState:           "invalid state",
	RuntimeFailure:         "runtime failure",
	ModelLoadFailure:       "model load failure",
	PredictionFailure:      "prediction failure",
	InputCountMismatch:     "input count mismatch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a failure of a known Kind, optionally caused by another error.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

var (
	ErrDimensionMismatch      = &Error{kind: DimensionMismatch}
	ErrBatchDimensionConflict = &Error{kind: BatchDimensionConflict}
	ErrShapeMismatch          = &Error{kind: ShapeMismatch}
	ErrSizeMismatch           = &Error{kind: SizeMismatch}
	ErrUnsupportedType        = &Error{kind: UnsupportedType}
	ErrTypeMismatch           = &Error{kind: TypeMismatch}
	ErrIndexOutOfRange        = &Error{kind: IndexOutOfRange}
	ErrInvalidArgument        = &Error{kind: InvalidArgument}
	ErrInvalidState           = &Error{kind: InvalidState}
	ErrRuntimeFailure         = &Error{kind: RuntimeFailure}
	ErrModelLoadFailure       = &Error{kind: ModelLoadFailure}
	ErrPredictionFailure      = &Error{kind: PredictionFailure}
	ErrInputCountMismatch     = &Error{kind: InputCountMismatch}
)

func (e *Error) Error() string {
	msg := e.msg
	if msg == "" {
		msg = e.kind.String()
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.msg == "" && t.cause == nil && t.kind == e.kind
}

// New returns an error of the given kind with a formatted message and a stack trace.
func New(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap returns an error of the given kind caused by cause.
// The cause stays reachable through errors.Is and errors.As.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	return errors.WithStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}
