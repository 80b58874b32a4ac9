//go:build !nogpu

// Package gpu runs the preview fusion kernel as a WebGPU compute shader.
//
// The shader in shaders/fuse.wgsl produces the same bytes as the CPU
// kernel in package fuse for every built-in strategy. It is compiled to
// SPIR-V with naga and dispatched through the wgpu HAL of a host-supplied
// device, so the package never opens a GPU on its own.
//
// Build with -tags nogpu to leave it out.
package gpu

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/naga"

	"github.com/videohdr/fuse"
)

//go:embed shaders/fuse.wgsl
var fuseShaderWGSL string

// EntryPoint is the compute entry point of the fusion shader.
const EntryPoint = "cs_fuse"

// WorkgroupSize is the edge length of the shader's square workgroup.
const WorkgroupSize = 8

// ParamsSize is the size in bytes of the uniform parameter block.
const ParamsSize = 16

// MaxWeight bounds the magnitude of weights the shader accepts. The
// shader blends in 32-bit integers, so two weights times 255 must fit.
const MaxWeight = 1 << 22

var (
	// ErrWeightRange is returned when a weight table does not fit the
	// shader's 32-bit arithmetic.
	ErrWeightRange = errors.New("gpu: weight outside shader range")

	// ErrUnsupportedStrategy is returned for strategies the shader does
	// not implement, such as parity averaging with a custom operation.
	ErrUnsupportedStrategy = errors.New("gpu: strategy not supported by shader")

	// ErrDispatchTimeout is returned when the device does not signal a
	// dispatch's fence in time.
	ErrDispatchTimeout = errors.New("gpu: dispatch timed out")
)

// Shader returns the WGSL source of the fusion kernel.
func Shader() string { return fuseShaderWGSL }

// CompileKernel compiles the fusion shader to SPIR-V words.
func CompileKernel() ([]uint32, error) {
	spirvBytes, err := naga.Compile(fuseShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile fuse shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return spirvCode, nil
}

// strategyValue validates s and dereferences the pointer forms of the
// built-in strategies.
func strategyValue(s fuse.Strategy) (fuse.Strategy, error) {
	if err := fuse.ValidateStrategy(s); err != nil {
		return nil, err
	}
	switch v := s.(type) {
	case *fuse.Averaging:
		return *v, nil
	case *fuse.ParityAveraging:
		return *v, nil
	case *fuse.Weighted:
		return *v, nil
	}
	return s, nil
}

// strategyCode maps s to the shader's strategy selector.
func strategyCode(s fuse.Strategy) (uint32, error) {
	s, err := strategyValue(s)
	if err != nil {
		return 0, err
	}
	switch v := s.(type) {
	case fuse.Averaging:
		return 0, nil
	case fuse.ParityAveraging:
		if v.Op != nil {
			return 0, fmt.Errorf("%w: parity with custom operation", ErrUnsupportedStrategy)
		}
		return 1, nil
	case fuse.Weighted:
		if v.Table == nil {
			return 0, fuse.ErrMissingWeightTable
		}
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedStrategy, s)
	}
}

// EncodeParams returns the uniform block for one dispatch.
func EncodeParams(width, height int, s fuse.Strategy, frame uint64) ([]byte, error) {
	code, err := strategyCode(s)
	if err != nil {
		return nil, err
	}
	var prevIsDark uint32
	if fuse.PreviousIsDark(frame) {
		prevIsDark = 1
	}
	b := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(width))  //nolint:gosec // frame sizes fit uint32
	binary.LittleEndian.PutUint32(b[4:], uint32(height)) //nolint:gosec // frame sizes fit uint32
	binary.LittleEndian.PutUint32(b[8:], code)
	binary.LittleEndian.PutUint32(b[12:], prevIsDark)
	return b, nil
}

// EncodeWeights returns the storage block for a weight table. A nil table
// encodes as all zeros.
func EncodeWeights(t *fuse.WeightTable) ([]byte, error) {
	b := make([]byte, 4*len(fuse.WeightTable{}))
	if t == nil {
		return b, nil
	}
	for i, w := range t {
		if w > MaxWeight || w < -MaxWeight {
			return nil, fmt.Errorf("%w: table[%d] = %d", ErrWeightRange, i, w)
		}
		binary.LittleEndian.PutUint32(b[4*i:], uint32(w)) //nolint:gosec // two's complement is intended
	}
	return b, nil
}

// PackFrame packs src into one little-endian word per pixel, upsampling
// chroma. dst is reused when large enough.
func PackFrame(dst []byte, src *image.YCbCr) []byte {
	b := src.Rect
	n := 4 * b.Dx() * b.Dy()
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ci := src.COffset(x, y)
			dst[i+0] = src.Y[src.YOffset(x, y)]
			dst[i+1] = src.Cb[ci]
			dst[i+2] = src.Cr[ci]
			dst[i+3] = 255
			i += 4
		}
	}
	return dst
}

// UnpackRGBA copies packed output words into dst.
func UnpackRGBA(dst *image.RGBA, src []byte) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*w], src[4*w*y:])
	}
}

// Workgroups returns the dispatch size covering a width x height frame.
func Workgroups(width, height int) (x, y uint32) {
	//nolint:gosec // frame sizes fit uint32
	return uint32((width + WorkgroupSize - 1) / WorkgroupSize), uint32((height + WorkgroupSize - 1) / WorkgroupSize)
}
