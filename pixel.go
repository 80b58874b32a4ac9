package fuse

import "image"

// Pixel is one luma/chroma sample: Y is luma, U the blue-difference and
// V the red-difference channel. A carries no meaning and is kept opaque.
type Pixel struct {
	Y, U, V, A uint8
}

// PackedFrame stores full 4-channel pixels contiguously in Y, U, V, A
// order. It backs the previous-frame role: each cycle stages the raw
// current frame into it for the next one.
//
// Thread safety: concurrent Set/At calls are safe as long as no two
// goroutines touch the same coordinate.
type PackedFrame struct {
	// Pix holds the samples, 4 bytes per pixel.
	Pix []uint8
	// Stride is the distance in bytes between vertically adjacent pixels.
	Stride int
	// Rect is the frame bounds; Min is always (0, 0).
	Rect image.Rectangle
}

// NewPackedFrame allocates a zeroed frame of the given size.
func NewPackedFrame(width, height int) *PackedFrame {
	return &PackedFrame{
		Pix:    make([]uint8, 4*width*height),
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// Bounds returns the frame bounds.
func (f *PackedFrame) Bounds() image.Rectangle { return f.Rect }

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (f *PackedFrame) PixOffset(x, y int) int {
	return y*f.Stride + x*4
}

// At returns the pixel at (x, y). Coordinates are not bounds-checked
// beyond what the slice access does.
func (f *PackedFrame) At(x, y int) Pixel {
	i := f.PixOffset(x, y)
	s := f.Pix[i : i+4 : i+4]
	return Pixel{Y: s[0], U: s[1], V: s[2], A: s[3]}
}

// Set stores p at (x, y).
func (f *PackedFrame) Set(x, y int, p Pixel) {
	i := f.PixOffset(x, y)
	s := f.Pix[i : i+4 : i+4]
	s[0] = p.Y
	s[1] = p.U
	s[2] = p.V
	s[3] = p.A
}

// Clear zeroes every sample.
func (f *PackedFrame) Clear() {
	clear(f.Pix)
}

// readCurrent combines the three planes of src at (x, y) into one pixel.
// (x, y) is relative to src.Rect.Min; chroma subsampling is resolved by
// image.YCbCr.COffset.
func readCurrent(src *image.YCbCr, x, y int) Pixel {
	px := src.Rect.Min.X + x
	py := src.Rect.Min.Y + y
	ci := src.COffset(px, py)
	return Pixel{
		Y: src.Y[src.YOffset(px, py)],
		U: src.Cb[ci],
		V: src.Cr[ci],
		A: 255,
	}
}
