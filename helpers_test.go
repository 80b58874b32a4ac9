package fuse

import "image"

// newTestFrame builds a current frame whose pixel at (x, y) is fn(x, y).
// With subsampled chroma the last write to a shared chroma cell wins.
func newTestFrame(w, h int, ratio image.YCbCrSubsampleRatio, fn func(x, y int) Pixel) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), ratio)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := fn(x, y)
			img.Y[img.YOffset(x, y)] = p.Y
			ci := img.COffset(x, y)
			img.Cb[ci] = p.U
			img.Cr[ci] = p.V
		}
	}
	return img
}

func uniformFrame(w, h int, p Pixel) *image.YCbCr {
	return newTestFrame(w, h, image.YCbCrSubsampleRatio444, func(int, int) Pixel { return p })
}

// gradientFrame varies every channel across the frame.
func gradientFrame(w, h int, ratio image.YCbCrSubsampleRatio, seed int) *image.YCbCr {
	return newTestFrame(w, h, ratio, func(x, y int) Pixel {
		return Pixel{
			Y: uint8(x*37 + y*11 + seed),
			U: uint8(x*5 + y*29 + seed*3),
			V: uint8(x*13 + y*7 + seed*7),
			A: 255,
		}
	})
}
