//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/videohdr/fuse"
)

// fenceTimeout bounds the wait for one dispatch.
const fenceTimeout = 5 * time.Second

// Fuser runs fusion cycles on a shared GPU device. It keeps the previous
// frame in a device buffer and mirrors the CPU session's frame counter,
// so outputs match a fuse.Session fed the same frames.
//
// A Fuser runs one cycle at a time; Fuse calls are serialized.
type Fuser struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	paramsBuf  hal.Buffer
	curBuf     hal.Buffer
	prevBuf    hal.Buffer
	weightsBuf hal.Buffer
	outBuf     hal.Buffer
	stagingBuf hal.Buffer
	bindGroup  hal.BindGroup

	strategy fuse.Strategy
	width    int
	height   int
	frames   uint64
	packed   []byte
	closed   bool
}

// NewFuser builds the fusion pipeline on the device of provider.
//
// The provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue, as gogpu's context does. If it also implements
// gpucontext.DeviceProvider, its surface format is recorded for hosts
// that present the output.
func NewFuser(provider any, width, height int, s fuse.Strategy) (*Fuser, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", fuse.ErrInvalidDimensions, width, height)
	}
	if s == nil {
		s = fuse.Averaging{}
	}
	if _, err := strategyCode(s); err != nil {
		return nil, err
	}
	s, _ = strategyValue(s)
	var table *fuse.WeightTable
	if w, ok := s.(fuse.Weighted); ok {
		table = w.Table
	}
	weights, err := EncodeWeights(table)
	if err != nil {
		return nil, err
	}

	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	f := &Fuser{
		device:   device,
		queue:    queue,
		format:   gputypes.TextureFormatUndefined,
		strategy: s,
		width:    width,
		height:   height,
	}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		f.format = dp.SurfaceFormat()
	}

	if err := f.createPipeline(); err != nil {
		f.destroy()
		return nil, err
	}
	if err := f.createBuffers(weights); err != nil {
		f.destroy()
		return nil, err
	}

	fuse.Logger().Info("gpu fuser ready",
		"width", width,
		"height", height,
		"strategy", s.Kind().String(),
		"surface_format", f.format)
	return f, nil
}

// SurfaceFormat returns the provider's surface format, or
// gputypes.TextureFormatUndefined when the provider did not report one.
func (f *Fuser) SurfaceFormat() gputypes.TextureFormat { return f.format }

// Frames returns the number of completed cycles.
func (f *Fuser) Frames() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *Fuser) createPipeline() error {
	spirv, err := CompileKernel()
	if err != nil {
		return err
	}
	f.shader, err = f.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "fuse_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}

	f.bindLayout, err = f.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "fuse_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}

	f.pipeLayout, err = f.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "fuse_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{f.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	f.pipeline, err = f.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "fuse_pipeline", Layout: f.pipeLayout,
		Compute: hal.ComputeState{Module: f.shader, EntryPoint: EntryPoint},
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute pipeline: %w", err)
	}
	return nil
}

func (f *Fuser) createBuffers(weights []byte) error {
	pixelBytes := uint64(4 * f.width * f.height) //nolint:gosec // positive frame size

	buffers := []struct {
		dst   *hal.Buffer
		label string
		size  uint64
		usage gputypes.BufferUsage
	}{
		{&f.paramsBuf, "fuse_params", ParamsSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&f.curBuf, "fuse_current", pixelBytes, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&f.prevBuf, "fuse_previous", pixelBytes, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&f.weightsBuf, "fuse_weights", uint64(len(weights)), gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&f.outBuf, "fuse_output", pixelBytes, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc},
		{&f.stagingBuf, "fuse_staging", pixelBytes, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
	}
	for _, b := range buffers {
		buf, err := f.device.CreateBuffer(&hal.BufferDescriptor{Label: b.label, Size: b.size, Usage: b.usage})
		if err != nil {
			return fmt.Errorf("gpu: create %s buffer: %w", b.label, err)
		}
		*b.dst = buf
	}

	// The previous frame starts black, as on the CPU.
	f.queue.WriteBuffer(f.prevBuf, 0, make([]byte, pixelBytes))
	f.queue.WriteBuffer(f.weightsBuf, 0, weights)

	bg, err := f.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "fuse_bind", Layout: f.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: f.paramsBuf.NativeHandle(), Size: ParamsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: f.curBuf.NativeHandle(), Size: pixelBytes}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: f.prevBuf.NativeHandle(), Size: pixelBytes}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: f.weightsBuf.NativeHandle(), Size: uint64(len(weights))}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: f.outBuf.NativeHandle(), Size: pixelBytes}},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	f.bindGroup = bg
	return nil
}

// Fuse runs one cycle for cur and returns the fused frame. ctx is checked
// before the dispatch is submitted.
func (f *Fuser) Fuse(ctx context.Context, cur *image.YCbCr) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, fuse.ErrSessionClosed
	}
	if cur == nil || cur.Rect.Dx() != f.width || cur.Rect.Dy() != f.height {
		return nil, fmt.Errorf("%w: want %dx%d", fuse.ErrFrameSize, f.width, f.height)
	}

	params, err := EncodeParams(f.width, f.height, f.strategy, f.frames)
	if err != nil {
		return nil, err
	}
	f.packed = PackFrame(f.packed, cur)
	f.queue.WriteBuffer(f.paramsBuf, 0, params)
	f.queue.WriteBuffer(f.curBuf, 0, f.packed)

	readback, err := f.dispatch(uint64(len(f.packed)))
	if err != nil {
		return nil, err
	}
	f.frames++

	out := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	UnpackRGBA(out, readback)
	return out, nil
}

func (f *Fuser) dispatch(size uint64) ([]byte, error) {
	encoder, err := f.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fuse_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fuse"); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}

	gx, gy := Workgroups(f.width, f.height)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "fuse_pass"})
	pass.SetPipeline(f.pipeline)
	pass.SetBindGroup(0, f.bindGroup, nil)
	pass.Dispatch(gx, gy, 1)
	pass.End()

	encoder.CopyBufferToBuffer(f.outBuf, f.stagingBuf, []hal.BufferCopy{{Size: size}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer f.device.FreeCommandBuffer(cmdBuf)

	fence, err := f.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	defer f.device.DestroyFence(fence)
	if err := f.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("gpu: submit: %w", err)
	}
	if err := waitResult(f.device.Wait(fence, 1, fenceTimeout)); err != nil {
		return nil, err
	}

	readback := make([]byte, size)
	if err := f.queue.ReadBuffer(f.stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	return readback, nil
}

// Close releases the device resources. The shared device itself is not
// destroyed. Close is idempotent.
func (f *Fuser) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.destroy()
}

func (f *Fuser) destroy() {
	if f.bindGroup != nil {
		f.device.DestroyBindGroup(f.bindGroup)
	}
	for _, b := range []hal.Buffer{f.paramsBuf, f.curBuf, f.prevBuf, f.weightsBuf, f.outBuf, f.stagingBuf} {
		if b != nil {
			f.device.DestroyBuffer(b)
		}
	}
	if f.pipeline != nil {
		f.device.DestroyComputePipeline(f.pipeline)
	}
	if f.pipeLayout != nil {
		f.device.DestroyPipelineLayout(f.pipeLayout)
	}
	if f.bindLayout != nil {
		f.device.DestroyBindGroupLayout(f.bindLayout)
	}
	if f.shader != nil {
		f.device.DestroyShaderModule(f.shader)
	}
}

// waitResult maps the outcome of a fence wait to an error.
func waitResult(signaled bool, err error) error {
	if err != nil {
		return fmt.Errorf("gpu: wait for dispatch: %w", err)
	}
	if !signaled {
		return fmt.Errorf("%w after %v", ErrDispatchTimeout, fenceTimeout)
	}
	return nil
}
