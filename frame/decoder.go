// Package frame implements incremental protocol-frame decoding over byte
// channels.
//
// A Decoder is a pure function over a byte window: it either produces a
// value and the number of bytes it consumed, asks for more data, or
// reports malformed input. The Reader owns the buffering: it pulls chunks
// from a channel only when the decoder demands more, and keeps surplus
// bytes for the next parse, so several pipelined frames arriving in one
// chunk cost exactly one transport read.
//
// The canonical wire format is a 4-byte big-endian length prefix followed
// by a msgpack payload, with a 16 MiB frame cap.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Decoder inspects window and returns a decoded value plus the number of
// bytes consumed. It must return ErrNeedMoreData while window is too short
// and must not consume anything in that case. Any other error marks the
// input malformed.
//
// The window is borrowed: a decoder must copy bytes it wants to keep.
type Decoder[T any] func(window []byte) (T, int, error)

// OfFixedSize returns a decoder producing exactly n raw bytes per frame.
func OfFixedSize(n int) Decoder[[]byte] {
	return func(window []byte) ([]byte, int, error) {
		if len(window) < n {
			return nil, 0, ErrNeedMoreData
		}
		out := make([]byte, n)
		copy(out, window[:n])
		return out, n, nil
	}
}

// AndThen applies a pure transform to d's result. It consumes no extra
// bytes and cannot fail; validation belongs in a dedicated decoder.
func AndThen[T, R any](d Decoder[T], f func(T) R) Decoder[R] {
	return func(window []byte) (R, int, error) {
		v, n, err := d(window)
		if err != nil {
			var zero R
			return zero, 0, err
		}
		return f(v), n, nil
	}
}

// AsString decodes n raw bytes as a string.
func AsString(n int) Decoder[string] {
	return AndThen(OfFixedSize(n), func(b []byte) string { return string(b) })
}

// OfUint32Frame decodes a length-prefixed frame and yields the payload
// bytes. Frames over MaxPayloadSize are malformed.
func OfUint32Frame() Decoder[[]byte] {
	return func(window []byte) ([]byte, int, error) {
		if len(window) < LengthPrefixSize {
			return nil, 0, ErrNeedMoreData
		}
		size := binary.BigEndian.Uint32(window[:LengthPrefixSize])
		if size > MaxPayloadSize {
			return nil, 0, &DecodeError{
				Kind: DecodeErrorTooLarge,
				Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
			}
		}
		total := LengthPrefixSize + int(size)
		if len(window) < total {
			return nil, 0, ErrNeedMoreData
		}
		payload := make([]byte, size)
		copy(payload, window[LengthPrefixSize:total])
		return payload, total, nil
	}
}

// OfMsgpack decodes a length-prefixed msgpack payload into a T.
func OfMsgpack[T any]() Decoder[*T] {
	framed := OfUint32Frame()
	return func(window []byte) (*T, int, error) {
		payload, n, err := framed(window)
		if err != nil {
			return nil, 0, err
		}
		var v T
		if err := msgpack.Unmarshal(payload, &v); err != nil {
			return nil, 0, &DecodeError{
				Kind: DecodeErrorBadPayload,
				Msg:  "failed to decode payload",
				Err:  err,
			}
		}
		return &v, n, nil
	}
}
