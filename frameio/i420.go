package frameio

import (
	"fmt"
	"image"
	"io"
)

// I420Reader reads consecutive raw planar 4:2:0 frames: a full-resolution
// Y plane followed by quarter-resolution U and V planes, without padding.
// Odd dimensions round the chroma planes up.
type I420Reader struct {
	r      io.Reader
	width  int
	height int
}

// NewI420Reader returns a reader for frames of the given size.
func NewI420Reader(r io.Reader, width, height int) (*I420Reader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frameio: invalid frame size %dx%d", width, height)
	}
	return &I420Reader{r: r, width: width, height: height}, nil
}

// FrameSize returns the size in bytes of one raw frame.
func (r *I420Reader) FrameSize() int {
	cw, ch := (r.width+1)/2, (r.height+1)/2
	return r.width*r.height + 2*cw*ch
}

// Next reads the next frame. If dst has the reader's size it is filled
// in place; otherwise a new frame is allocated. Next returns io.EOF when
// the stream ends on a frame boundary and io.ErrUnexpectedEOF when it
// ends inside a frame.
func (r *I420Reader) Next(dst *image.YCbCr) (*image.YCbCr, error) {
	rect := image.Rect(0, 0, r.width, r.height)
	if dst == nil || dst.Rect != rect || dst.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		dst = image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
	}

	if _, err := io.ReadFull(r.r, dst.Y); err != nil {
		return nil, err
	}
	for _, plane := range [][]uint8{dst.Cb, dst.Cr} {
		if _, err := io.ReadFull(r.r, plane); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return dst, nil
}

// WriteI420 writes img as one raw 4:2:0 frame. img must use 4:2:0
// subsampling.
func WriteI420(w io.Writer, img *image.YCbCr) error {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return fmt.Errorf("frameio: WriteI420 needs 4:2:0, got %v", img.SubsampleRatio)
	}
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.YOffset(b.Min.X, y)
		if _, err := w.Write(img.Y[i : i+b.Dx()]); err != nil {
			return err
		}
	}
	cw := (b.Max.X+1)/2 - b.Min.X/2
	for _, plane := range [][]uint8{img.Cb, img.Cr} {
		for y := b.Min.Y; y < b.Max.Y; y += 2 {
			i := img.COffset(b.Min.X, y)
			if _, err := w.Write(plane[i : i+cw]); err != nil {
				return err
			}
		}
	}
	return nil
}
