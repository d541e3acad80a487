package frame

import (
	"errors"
	"fmt"
)

// ErrNeedMoreData is returned by a Decoder when the window does not yet
// hold a complete frame. It never escapes Parse; the reader responds by
// pulling another chunk.
var ErrNeedMoreData = errors.New("need more data")

// ErrUnexpectedEndOfStream indicates the channel ended in the middle of a
// frame: the decoder still wanted bytes and no more will come.
var ErrUnexpectedEndOfStream = errors.New("unexpected end of stream")

// DecodeErrorKind classifies malformed-input errors.
type DecodeErrorKind int

const (
	// DecodeErrorTooLarge indicates a frame exceeding MaxFrameSize.
	DecodeErrorTooLarge DecodeErrorKind = iota
	// DecodeErrorBadPayload indicates a payload that failed to decode.
	DecodeErrorBadPayload
)

// DecodeError represents malformed input. After a DecodeError the reader's
// buffer position is undefined; the caller must close the channel.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
