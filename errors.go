package tomsg

import (
	"errors"
	"fmt"
)

// Sentinel construction errors for the value types in word.go, line.go,
// and id.go. Use errors.Is to test for these regardless of how the
// concrete error was wrapped.
var (
	ErrInvalidWord = errors.New("tomsg: word contains a space or a newline")
	ErrInvalidLine = errors.New("tomsg: line contains a newline")
	ErrNegativeID  = errors.New("tomsg: id must be non-negative")
)

// ProtocolError marks a framing or sequencing violation detected by the
// parser or the multiplexer: an unknown push kind, an unknown reply kind,
// a history_message fragment with no preceding preamble, or one with the
// wrong index. Per spec, these are fatal to the connection.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tomsg: protocol violation: %s", e.Msg)
}

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}
