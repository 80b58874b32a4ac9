// Package framepool recycles output frames between fusion cycles.
package framepool

import (
	"image"
	"sync"
)

// Pool is a thread-safe pool of *image.RGBA grouped by size.
//
// Frames handed out by Get are not cleared: the fusion kernel overwrites
// every pixel of its output, so stale content never escapes.
type Pool struct {
	mu      sync.Mutex
	buckets map[image.Point][]*image.RGBA
	maxSize int // max frames per bucket; <= 0 means unlimited
}

// New creates a pool that keeps at most maxPerBucket frames of each size.
func New(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[image.Point][]*image.RGBA),
		maxSize: maxPerBucket,
	}
}

// Get returns a width x height frame with Min at the origin, reusing a
// pooled one when available.
func (p *Pool) Get(width, height int) *image.RGBA {
	key := image.Pt(width, height)

	p.mu.Lock()
	bucket := p.buckets[key]
	if n := len(bucket); n > 0 {
		img := bucket[n-1]
		bucket[n-1] = nil
		p.buckets[key] = bucket[:n-1]
		p.mu.Unlock()
		return img
	}
	p.mu.Unlock()

	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// Put returns a frame to the pool. Frames that are nil, not anchored at
// the origin, or whose bucket is full are dropped for the GC.
func (p *Pool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	key := img.Rect.Size()

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, img)
}

// Len returns the number of pooled frames of the given size.
func (p *Pool) Len(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[image.Pt(width, height)])
}
