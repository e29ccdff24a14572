// Package bpool pools the buffers outbound frames are assembled in.
package bpool

import (
	"bytes"
	"sync"
)

// maxPooled bounds the capacity of buffers kept around so a single
// huge frame does not pin its memory forever.
const maxPooled = 64 << 10

var bpool sync.Pool

// Get returns a buffer from the pool or creates a new one if
// the pool is empty.
func Get() *bytes.Buffer {
	b, ok := bpool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put returns a buffer into the pool.
func Put(b *bytes.Buffer) {
	if b.Cap() > maxPooled {
		return
	}
	b.Reset()
	bpool.Put(b)
}
