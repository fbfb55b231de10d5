package core

import (
	"bytes"
	"sync"
)

// DefaultBlockBufferSize is a reasonable pre-allocated capacity for buffers
// used to stage and (de)compress data file blocks.
const DefaultBlockBufferSize = 4 * 1024

// BufferPool is a shared pool of block staging buffers.
var BufferPool = NewBufferPool(DefaultBlockBufferSize)

type bufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool whose buffers start with the given capacity.
func NewBufferPool(initialCapacity int) *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := &bytes.Buffer{}
				buf.Grow(initialCapacity)
				return buf
			},
		},
	}
}

// Get retrieves an empty buffer from the pool.
func (p *bufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool.
func (p *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	p.pool.Put(buf)
}
