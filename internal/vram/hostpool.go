package vram

import "sync"

// Staging buffers hold the host-side copy of an asynchronous write for the
// lifetime of the device transfer. They are block-sized, recycled through a
// sync.Pool, and returned exactly once by the write's completion callback.
var stagingPool = sync.Pool{
	New: func() any {
		buf := make([]byte, BlockSize)
		return &buf
	},
}

func getStaging() *[]byte {
	return stagingPool.Get().(*[]byte)
}

func putStaging(buf *[]byte) {
	*buf = (*buf)[:BlockSize]
	stagingPool.Put(buf)
}
