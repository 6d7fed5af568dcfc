package vfs

import (
	"errors"
	"io"
	"sync"

	"github.com/vramfs/vramfs/internal/vram"
)

var ErrNoSpace = errors.New("no device space left")

// fileData is the content of one file: its logical size and the ordered
// sequence of blocks backing it. Blocks are allocated lazily, so a slot can
// be nil for a never-written range, which reads as zero.
type fileData struct {
	size   int64
	blocks []*vram.Block
}

// fileTable maps entry ids to file content. It owns all interaction with
// the block pool and serializes it, satisfying the pool's single-writer
// contract.
type fileTable struct {
	mu    sync.Mutex
	pool  *vram.Pool
	files map[int64]*fileData
}

func newFileTable(pool *vram.Pool) *fileTable {
	return &fileTable{pool: pool, files: make(map[int64]*fileData)}
}

func (t *fileTable) size(id int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f := t.files[id]; f != nil {
		return f.size
	}
	return 0
}

// readAt fills p from the file's blocks starting at off, clamped to the
// file size. Unallocated slots read as zero.
func (t *fileTable) readAt(id int64, p []byte, off int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.files[id]
	if f == nil || off >= f.size {
		return 0, io.EOF
	}
	if rest := f.size - off; int64(len(p)) > rest {
		p = p[:rest]
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		bi := int(pos / vram.BlockSize)
		bo := int(pos % vram.BlockSize)
		chunk := min(len(p)-n, vram.BlockSize-bo)

		if bi >= len(f.blocks) || f.blocks[bi] == nil {
			clear(p[n : n+chunk])
		} else if err := f.blocks[bi].Read(bo, p[n:n+chunk]); err != nil {
			return n, err
		}
		n += chunk
	}
	return n, nil
}

// writeAt stores p at off, checking out blocks as the range requires and
// growing the pool when it runs dry. Writes go down the asynchronous path;
// the in-order queue keeps later reads coherent.
func (t *fileTable) writeAt(id int64, p []byte, off int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.files[id]
	if f == nil {
		f = &fileData{}
		t.files[id] = f
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		bi := int(pos / vram.BlockSize)
		bo := int(pos % vram.BlockSize)
		chunk := min(len(p)-n, vram.BlockSize-bo)

		for bi >= len(f.blocks) {
			f.blocks = append(f.blocks, nil)
		}
		if f.blocks[bi] == nil {
			blk, err := t.checkout()
			if err != nil {
				return n, err
			}
			f.blocks[bi] = blk
		}
		if err := f.blocks[bi].Write(bo, p[n:n+chunk], true); err != nil {
			return n, err
		}
		n += chunk
	}

	if end := off + int64(n); end > f.size {
		f.size = end
	}
	return n, nil
}

// checkout acquires one block, growing the pool by a block when exhausted.
func (t *fileTable) checkout() (*vram.Block, error) {
	if t.pool.Available() == 0 && t.pool.Grow(vram.BlockSize) == 0 {
		return nil, ErrNoSpace
	}
	blk := t.pool.Allocate()
	if blk == nil {
		return nil, ErrNoSpace
	}
	return blk, nil
}

// release drops the file's content and returns its blocks to the pool.
// Each block is synced first so no async write copy outlives its transfer.
func (t *fileTable) release(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.files[id]
	if f == nil {
		return nil
	}
	delete(t.files, id)
	for _, blk := range f.blocks {
		if blk == nil {
			continue
		}
		if err := blk.Sync(); err != nil {
			return err
		}
		blk.Free()
	}
	return nil
}
