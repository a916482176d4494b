package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer is the largest buffer capacity returned to the pool.
// Larger buffers come from unusually big images and are left to the GC.
const maxPooledBuffer = 8 << 20

// BufferPool provides a pool of reusable byte buffers
var BufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	return BufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	BufferPool.Put(buf)
}
