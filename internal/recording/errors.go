package recording

import "fmt"

// ErrorKind classifies a recording start failure.
type ErrorKind int

const (
	// AlreadyRecording means a recording is active for the call.
	AlreadyRecording ErrorKind = iota
	// CallNotActive means no connected call can feed a recording.
	CallNotActive
	// IOError means the sink could not be opened.
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case AlreadyRecording:
		return "AlreadyRecording"
	case CallNotActive:
		return "CallNotActive"
	case IOError:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Error is returned by Pipe.Start. It matches the sentinels below with
// errors.Is by Kind.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

var (
	ErrAlreadyRecording = &Error{Kind: AlreadyRecording}
	ErrCallNotActive    = &Error{Kind: CallNotActive}
	ErrIO               = &Error{Kind: IOError}
)

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Path != "":
		return fmt.Sprintf("recording %s: %s: %v", e.Kind, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("recording %s: %v", e.Kind, e.Err)
	default:
		return "recording " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// BufferWriteError describes a single buffer that could not be written.
// It is logged and never returned to callers.
type BufferWriteError struct {
	Path string
	Size int
	Err  error
}

func (e *BufferWriteError) Error() string {
	return fmt.Sprintf("write %d bytes to %s: %v", e.Size, e.Path, e.Err)
}

func (e *BufferWriteError) Unwrap() error {
	return e.Err
}
