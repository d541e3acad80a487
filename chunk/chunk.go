// Package chunk provides owned byte buffers with independent read and write
// cursors.
//
// A Chunk is the unit of binary data transport across channels and sockets.
// Ownership is move-only: whichever component currently holds a Chunk owns it
// exclusively, and ownership transfers on every hand-off. The final owner
// calls Recycle to return backing storage to the arena; a recycled Chunk must
// not be touched again.
//
// Backing storage comes from a bytebufferpool arena so that steady-state
// streaming does not allocate per chunk.
package chunk

import (
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// arena backs Alloc and OfString. Chunks wrapping caller-provided slices
// (Of) bypass it and Recycle is a no-op for their storage.
var arena bytebufferpool.Pool

// Chunk is an owned, contiguous, bounded byte range. The head cursor marks
// the next byte to read; the tail cursor marks the next byte to write.
// Bytes in [head, tail) are readable; [tail, cap) is writable.
type Chunk struct {
	buf      []byte
	head     int
	tail     int
	bb       *bytebufferpool.ByteBuffer
	recycled bool
}

// Alloc returns an empty arena-backed chunk with capacity for at least n
// bytes.
func Alloc(n int) *Chunk {
	bb := arena.Get()
	if cap(bb.B) < n {
		bb.B = append(bb.B[:0], make([]byte, n)...)
	}
	return &Chunk{buf: bb.B[:cap(bb.B)], bb: bb}
}

// Of wraps p as a fully readable chunk. The chunk takes ownership of p;
// the caller must not retain it. Recycle releases the chunk but leaves p
// for the garbage collector.
func Of(p []byte) *Chunk {
	return &Chunk{buf: p, tail: len(p)}
}

// OfString returns an arena-backed chunk containing s.
func OfString(s string) *Chunk {
	c := Alloc(len(s))
	c.WriteString(s)
	return c
}

// Readable reports the number of unread bytes, tail-head.
func (c *Chunk) Readable() int {
	return c.tail - c.head
}

// Writable reports the free space remaining at the tail.
func (c *Chunk) Writable() int {
	return len(c.buf) - c.tail
}

// Bytes returns the readable window [head, tail). The slice borrows the
// chunk's storage: it is valid only until the next mutation or Recycle,
// and callers must copy it to retain it.
func (c *Chunk) Bytes() []byte {
	return c.buf[c.head:c.tail]
}

// String returns a copy of the readable window as a string.
func (c *Chunk) String() string {
	return string(c.Bytes())
}

// Advance moves the head cursor forward by n consumed bytes.
// Panics if n exceeds the readable count.
func (c *Chunk) Advance(n int) {
	if n < 0 || n > c.Readable() {
		panic(fmt.Sprintf("chunk: advance %d beyond readable %d", n, c.Readable()))
	}
	c.head += n
}

// Write appends p at the tail, growing the chunk if needed.
func (c *Chunk) Write(p []byte) {
	c.EnsureWritable(len(p))
	copy(c.buf[c.tail:], p)
	c.tail += len(p)
}

// WriteString appends s at the tail, growing the chunk if needed.
func (c *Chunk) WriteString(s string) {
	c.EnsureWritable(len(s))
	copy(c.buf[c.tail:], s)
	c.tail += len(s)
}

// WritableBytes returns the free region at the tail for direct writes,
// io.Reader style. After filling the first n bytes, call Extend(n) to
// make them readable.
func (c *Chunk) WritableBytes() []byte {
	return c.buf[c.tail:]
}

// Extend moves the tail cursor forward over n bytes written directly
// into WritableBytes. Panics if n exceeds the writable space.
func (c *Chunk) Extend(n int) {
	if n < 0 || n > c.Writable() {
		panic(fmt.Sprintf("chunk: extend %d beyond writable %d", n, c.Writable()))
	}
	c.tail += n
}

// EnsureWritable guarantees room for n more bytes at the tail. It first
// reclaims the consumed head region by compaction; only when that is not
// enough does it move the readable bytes into a larger arena buffer.
func (c *Chunk) EnsureWritable(n int) {
	if c.Writable() >= n {
		return
	}
	readable := c.Readable()
	if len(c.buf)-readable >= n {
		copy(c.buf, c.buf[c.head:c.tail])
		c.head = 0
		c.tail = readable
		return
	}

	grown := len(c.buf)*2 + n
	if grown < readable+n {
		grown = readable + n
	}
	bb := arena.Get()
	if cap(bb.B) < grown {
		bb.B = append(bb.B[:0], make([]byte, grown)...)
	}
	buf := bb.B[:cap(bb.B)]
	copy(buf, c.buf[c.head:c.tail])
	c.release()
	c.buf = buf
	c.bb = bb
	c.head = 0
	c.tail = readable
}

// Recycle returns the chunk's storage to the arena. The chunk must not be
// used afterwards. Recycling twice is an ownership bug and panics.
func (c *Chunk) Recycle() {
	if c.recycled {
		panic("chunk: double recycle")
	}
	c.recycled = true
	c.release()
	c.buf = nil
	c.head = 0
	c.tail = 0
}

// release hands the current backing buffer back to the arena, recording the
// used length so the pool's size calibration sees real demand.
func (c *Chunk) release() {
	if c.bb == nil {
		return
	}
	c.bb.B = c.buf[:c.tail]
	arena.Put(c.bb)
	c.bb = nil
}
