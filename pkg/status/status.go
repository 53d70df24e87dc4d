// Package status defines the typed failures returned by every cask layer.
//
// A failure carries a Kind, the operation that produced it, a message, an
// optional cause and a trace of the layers it passed through. Each layer
// returning an error calls Wrap with its own sender name, so the final
// error reads as a call chain:
//
//	get: corrupted: checksum mismatch (trace: segment.read -> store.read_value -> cask.get)
//
// Kinds match through errors.Is against the package sentinels:
//
//	if errors.Is(err, status.ErrNotFound) { ... }
package status

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Kind classifies a failure.
type Kind uint8

const (
	Unknown Kind = iota
	NotFound
	InvalidArgument
	NotSupported
	IOError
	// NoFreeSpace means a segment cannot take another record. It never
	// leaves the segment store, which rotates on it.
	NoFreeSpace
	Corrupted
	// EndOfFile terminates log and hint scans.
	EndOfFile
	// UserDefined wraps failures reported by caller-supplied visitors.
	UserDefined
)

var kindNames = [...]string{
	Unknown:         "unknown",
	NotFound:        "not found",
	InvalidArgument: "invalid argument",
	NotSupported:    "not supported",
	IOError:         "io error",
	NoFreeSpace:     "no free space",
	Corrupted:       "corrupted",
	EndOfFile:       "end of file",
	UserDefined:     "user defined",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels, one per kind.
var (
	ErrNotFound        = errors.New(NotFound.String())
	ErrInvalidArgument = errors.New(InvalidArgument.String())
	ErrNotSupported    = errors.New(NotSupported.String())
	ErrIOError         = errors.New(IOError.String())
	ErrNoFreeSpace     = errors.New(NoFreeSpace.String())
	ErrCorrupted       = errors.New(Corrupted.String())
	ErrEndOfFile       = errors.New(EndOfFile.String())
	ErrUserDefined     = errors.New(UserDefined.String())
)

// Sentinel returns the sentinel error for k, or nil for Unknown.
func (k Kind) Sentinel() error {
	switch k {
	case NotFound:
		return ErrNotFound
	case InvalidArgument:
		return ErrInvalidArgument
	case NotSupported:
		return ErrNotSupported
	case IOError:
		return ErrIOError
	case NoFreeSpace:
		return ErrNoFreeSpace
	case Corrupted:
		return ErrCorrupted
	case EndOfFile:
		return ErrEndOfFile
	case UserDefined:
		return ErrUserDefined
	}
	return nil
}

// Error is a typed failure with a sender trace.
type Error struct {
	Kind  Kind
	Op    string   // operation that failed, e.g. "open", "write_record"
	Msg   string   // human readable detail
	Cause error    // underlying error, if any
	Trace []string // senders, innermost first
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if len(e.Trace) > 0 {
		b.WriteString(" (trace: ")
		b.WriteString(strings.Join(e.Trace, " -> "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// Builder provides a fluent interface for building an *Error.
type Builder struct {
	err Error
}

// New starts a builder for an error of the given kind.
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

func (b *Builder) Msg(format string, args ...any) *Builder {
	if len(args) == 0 {
		b.err.Msg = format
	} else {
		b.err.Msg = fmt.Sprintf(format, args...)
	}
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Sender records the first entry of the trace.
func (b *Builder) Sender(name string) *Builder {
	b.err.Trace = append(b.err.Trace, name)
	return b
}

// Err returns the built error.
func (b *Builder) Err() error {
	e := b.err
	e.Trace = append([]string(nil), b.err.Trace...)
	return &e
}

// Errorf is shorthand for New(kind).Op(op).Msg(format, args...).Err().
func Errorf(kind Kind, op, format string, args ...any) error {
	return New(kind).Op(op).Msg(format, args...).Err()
}

// Wrap appends sender to the trace of err. Errors that are not yet typed
// become IOError with err as the cause. A typed error behind an untyped
// wrapper keeps its kind, and the wrapper becomes the cause so its
// context survives. Wrap(nil, ...) is nil.
func Wrap(err error, sender string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if !errors.As(err, &se) {
		return &Error{Kind: IOError, Cause: err, Trace: []string{sender}}
	}
	trace := make([]string, len(se.Trace), len(se.Trace)+1)
	copy(trace, se.Trace)
	trace = append(trace, sender)
	if direct, ok := err.(*Error); ok {
		cp := *direct
		cp.Trace = trace
		return &cp
	}
	return &Error{Kind: se.Kind, Op: se.Op, Cause: err, Trace: trace}
}

// FromOS translates an error returned by the os package.
func FromOS(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: NotFound, Op: op, Cause: err}
	case errors.Is(err, io.EOF):
		return &Error{Kind: EndOfFile, Op: op}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &Error{Kind: Corrupted, Op: op, Msg: "unexpected end of file"}
	}
	return &Error{Kind: IOError, Op: op, Cause: err}
}

// KindOf returns the kind of err, or Unknown if err is not typed.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}

// TraceOf returns the sender trace of err, innermost first.
func TraceOf(err error) []string {
	var se *Error
	if errors.As(err, &se) {
		return append([]string(nil), se.Trace...)
	}
	return nil
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool  { return Is(err, NotFound) }
func IsCorrupted(err error) bool { return Is(err, Corrupted) }
func IsEOF(err error) bool       { return Is(err, EndOfFile) }
