// Package mempool pools the float32 buffers that back model input tensors so
// steady-state frame analysis does not allocate a new tensor per frame.
package mempool

import (
	"sync"
)

const step = 1024

var float32Pools sync.Map // size class -> *sync.Pool

// sizeClass rounds n up to the next multiple of 1024, with 1024 as minimum.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Its contents are undefined.
// Return it with PutFloat32 once nothing references it.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]float32)
	if !ok || cap(*bp) < cls {
		buf := make([]float32, cls)
		return buf[:n]
	}
	return (*bp)[:n]
}

// PutFloat32 hands buf back to its pool. nil is ignored, as are buffers that
// did not come from GetFloat32.
func PutFloat32(buf []float32) {
	c := cap(buf)
	if c == 0 || c%step != 0 {
		return
	}
	buf = buf[:c]
	poolFor(c).Put(&buf)
}
