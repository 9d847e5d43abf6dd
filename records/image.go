package records

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// ImageAlign is the guaranteed alignment of Image pixel data.
const ImageAlign = 16

// Element depths, encoded in the low three bits of an image type.
const (
	Depth8U  int32 = 0
	Depth8S  int32 = 1
	Depth16U int32 = 2
	Depth16S int32 = 3
	Depth32S int32 = 4
	Depth32F int32 = 5
	Depth64F int32 = 6
)

var (
	// ErrImageSize is returned when the pixel data does not match rows*cols*elemSize.
	ErrImageSize = errors.New("records: image size mismatch")

	// ErrImageType is returned for an unknown depth or channel count.
	ErrImageType = errors.New("records: invalid image type")
)

// ImageType packs a depth and channel count (1..512) into one type code.
func ImageType(depth int32, channels int) int32 {
	return (depth & 7) + int32(channels-1)<<3
}

var depthSize = [...]int{1, 1, 2, 2, 4, 4, 8}

// imageBuffer is the shared backing store. data is never written after
// NewImage returns.
type imageBuffer struct {
	refs atomic.Int32
	data []byte
}

// Image is a handle onto an immutable, aligned pixel buffer.
type Image struct {
	rows, cols int
	typ        int32
	buf        *imageBuffer
	released   atomic.Bool
}

// NewImage allocates an aligned buffer and copies pix into it. pix may be nil
// for a zeroed image.
func NewImage(rows, cols int, typ int32, pix []byte) (*Image, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageSize, rows, cols)
	}
	depth := typ & 7
	if int(depth) >= len(depthSize) || typ < 0 {
		return nil, fmt.Errorf("%w: %d", ErrImageType, typ)
	}
	n := rows * cols * elemSize(typ)
	if pix != nil && len(pix) != n {
		return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrImageSize, len(pix), n)
	}

	buf := &imageBuffer{data: alignedBytes(n)}
	copy(buf.data, pix)
	buf.refs.Store(1)
	return &Image{rows: rows, cols: cols, typ: typ, buf: buf}, nil
}

func alignedBytes(n int) []byte {
	if n == 0 {
		return nil
	}
	raw := make([]byte, n+ImageAlign-1)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % ImageAlign); rem != 0 {
		off = ImageAlign - rem
	}
	return raw[off : off+n : off+n]
}

func elemSize(typ int32) int {
	return depthSize[typ&7] * (int(typ>>3) + 1)
}

// Retain returns a new handle sharing the same pixels.
func (m *Image) Retain() *Image {
	m.buf.refs.Add(1)
	return &Image{rows: m.rows, cols: m.cols, typ: m.typ, buf: m.buf}
}

// Release gives the handle back. Calling it more than once on the same handle
// has no further effect.
func (m *Image) Release() {
	if !m.released.CompareAndSwap(false, true) {
		return
	}
	if m.buf.refs.Add(-1) == 0 {
		m.buf.data = nil
	}
}

// Refs reports how many live handles share the buffer.
func (m *Image) Refs() int { return int(m.buf.refs.Load()) }

func (m *Image) Rows() int     { return m.rows }
func (m *Image) Cols() int     { return m.cols }
func (m *Image) Type() int32   { return m.typ }
func (m *Image) Channels() int { return int(m.typ>>3) + 1 }
func (m *Image) ElemSize() int { return elemSize(m.typ) }

// Empty reports whether the image has no pixels or the handle was released.
func (m *Image) Empty() bool {
	return m.released.Load() || m.rows*m.cols == 0
}

// Bytes returns the pixel data. The slice must not be modified.
func (m *Image) Bytes() []byte {
	if m.released.Load() {
		return nil
	}
	return m.buf.data
}
