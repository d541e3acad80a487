package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/sluice/chunk"
)

// Encode wraps payload in a length-prefixed frame held by a fresh chunk.
func Encode(payload []byte) (*chunk.Chunk, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &DecodeError{
			Kind: DecodeErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	ck := chunk.Alloc(LengthPrefixSize + len(payload))
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	ck.Write(prefix[:])
	ck.Write(payload)
	return ck, nil
}

// EncodeMsgpack marshals v and wraps it in a length-prefixed frame.
func EncodeMsgpack[T any](v T) (*chunk.Chunk, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &DecodeError{
			Kind: DecodeErrorBadPayload,
			Msg:  "failed to encode payload",
			Err:  err,
		}
	}
	return Encode(payload)
}

// AppendFrame appends a length-prefixed frame to dst and returns the
// extended slice. The payload must not exceed MaxPayloadSize; callers on
// this path have already sized their payloads.
func AppendFrame(dst, payload []byte) []byte {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	dst = append(dst, prefix[:]...)
	return append(dst, payload...)
}

// WriteFrame writes a single length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &DecodeError{
			Kind: DecodeErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// BlockingDecoder reads length-prefixed frames from a plain io.Reader.
// It is the synchronous counterpart of Reader, for file-backed storage
// paths that already run on their own goroutine.
type BlockingDecoder struct {
	reader io.Reader
}

// NewBlockingDecoder creates a decoder reading from r.
func NewBlockingDecoder(r io.Reader) *BlockingDecoder {
	return &BlockingDecoder{reader: r}
}

// ReadFrame reads a single frame and returns the raw payload bytes.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - ErrUnexpectedEndOfStream: stream ended inside a frame
//   - *DecodeError with Kind=DecodeErrorTooLarge: frame exceeds the limit
func (d *BlockingDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read length prefix: %w", eosOr(err))
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &DecodeError{
			Kind: DecodeErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", eosOr(err))
	}
	return payload, nil
}

// eosOr maps truncation errors to ErrUnexpectedEndOfStream and passes
// everything else through.
func eosOr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrUnexpectedEndOfStream
	}
	return err
}
