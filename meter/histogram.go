// Package meter measures preview exposure from luma histograms.
//
// A Meter watches the current frames fed to a fusion session, counts the
// luma levels of a downscaled copy and reports how much of the frame sits
// in the darkest and brightest populated levels. It is a passive
// observer: it never changes capture settings.
package meter

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Levels is the number of histogram bins, one per 8-bit luma value.
const Levels = 256

// Histogram counts samples per luma level.
type Histogram [Levels]uint32

// HistogramOf counts every sample of img.
func HistogramOf(img *image.Gray) Histogram {
	var h Histogram
	h.Add(img)
	return h
}

// Add counts every sample of img into h.
func (h *Histogram) Add(img *image.Gray) {
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		for _, v := range img.Pix[i : i+b.Dx()] {
			h[v]++
		}
	}
}

// Total returns the number of counted samples.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, c := range h {
		n += uint64(c)
	}
	return n
}

// Reset zeroes every bin.
func (h *Histogram) Reset() {
	*h = Histogram{}
}

// Luma returns the luma plane of src as a gray image. The result shares
// memory with src.
func Luma(src *image.YCbCr) *image.Gray {
	return &image.Gray{
		Pix:    src.Y,
		Stride: src.YStride,
		Rect:   src.Rect,
	}
}

// Downscale resizes src to at most maxWidth columns, keeping the aspect
// ratio, with approximate bilinear filtering. dst is reused when it has
// the right size; otherwise a new image is allocated. src is returned
// unchanged when it is already narrow enough or maxWidth <= 0.
func Downscale(dst, src *image.Gray, maxWidth int) *image.Gray {
	sb := src.Bounds()
	if maxWidth <= 0 || sb.Dx() <= maxWidth {
		return src
	}
	w := maxWidth
	h := max(sb.Dy()*maxWidth/sb.Dx(), 1)

	if dst == nil || dst.Rect != image.Rect(0, 0, w, h) {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, src, sb, xdraw.Src, nil)
	return dst
}
