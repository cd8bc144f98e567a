package mempool

import (
	"sync"
)

// A sized pool for []float64 scanline buffers to reduce allocations on hot paths.

var float64Pools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of 1024.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func float64Pool(cls int) *sync.Pool {
	pAny, _ := float64Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float64, cls) }})
	p, _ := pAny.(*sync.Pool)
	return p
}

// GetFloat64 retrieves a []float64 buffer of at least n elements from the pool.
// The returned slice has length n but may have larger capacity. Contents are
// not zeroed. The caller must return it via PutFloat64 when done.
func GetFloat64(n int) []float64 {
	cls := sizeClass(n)
	p := float64Pool(cls)
	if p == nil {
		return make([]float64, cls)[:n]
	}
	buf, ok := p.Get().([]float64)
	if !ok || cap(buf) < cls {
		buf = make([]float64, cls)
	}
	return buf[:n]
}

// PutFloat64 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat64(buf []float64) {
	if buf == nil {
		return
	}
	p := float64Pool(sizeClass(cap(buf)))
	if p == nil {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat64Multiple retrieves one buffer per requested size.
func GetFloat64Multiple(sizes []int) [][]float64 {
	if len(sizes) == 0 {
		return nil
	}
	buffers := make([][]float64, len(sizes))
	for i, size := range sizes {
		buffers[i] = GetFloat64(size)
	}
	return buffers
}

// PutFloat64Multiple returns multiple buffers to the pool.
// It is safe to pass nil slices in the array.
func PutFloat64Multiple(bufs [][]float64) {
	for _, buf := range bufs {
		PutFloat64(buf)
	}
}
