package fuse

import "image/color"

// Fixed-point JFIF luma/chroma -> RGB coefficients. Each pair is the
// scaled multiplier and its divisor; the additive constants fold in the
// 128 chroma offset.
//
//	R = Y + 1.402   (V - 128)
//	G = Y - 0.34414 (U - 128) - 0.71414 (V - 128)
//	B = Y + 1.772   (U - 128)
const (
	kRV    = 1436
	kRVDiv = 1024
	kRBias = 179

	kGU    = 46549
	kGV    = 93604
	kGDiv  = 131072
	kGBias = 44 + 91

	kBU    = 1814
	kBUDiv = 1024
	kBBias = 227
)

// ToRGB converts a merged luma/chroma pixel to opaque RGB.
//
// Division truncates toward zero and each channel is clamped to [0, 255]
// afterwards, so the conversion is total over all 8-bit inputs.
func ToRGB(p Pixel) color.RGBA {
	y, u, v := int(p.Y), int(p.U), int(p.V)

	r := y + v*kRV/kRVDiv - kRBias
	g := y - u*kGU/kGDiv - v*kGV/kGDiv + kGBias
	b := y + u*kBU/kBUDiv - kBBias

	return color.RGBA{R: clamp8(r), G: clamp8(g), B: clamp8(b), A: 255}
}

// clamp8 saturates v to the uint8 range.
func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	//nolint:gosec // G115: v is clamped to [0,255]
	return uint8(v)
}
